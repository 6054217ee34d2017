// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianDelphi/services/delphi/datatypes"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/resolver"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/storage"
)

// ModerateRequest is the body of POST /topicMod/moderate.
type ModerateRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	TopicKey       string `json:"topic_key" binding:"required,topickey"`
	Status         string `json:"status" binding:"required,moderationstatus"`
	Moderator      string `json:"moderator"`
}

// RegisterValidations installs the custom field validators used by the
// binding tags above on gin's validator engine. Call once at startup.
func RegisterValidations() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin binding validator engine is not *validator.Validate")
	}
	if err := v.RegisterValidation("topickey", func(fl validator.FieldLevel) bool {
		_, _, err := datatypes.ParseTopicKey(fl.Field().String())
		return err == nil
	}); err != nil {
		return err
	}
	return v.RegisterValidation("moderationstatus", func(fl validator.FieldLevel) bool {
		return datatypes.ValidStatus(fl.Field().String())
	})
}

// ModerateTopic serves POST /topicMod/moderate: records a moderation
// decision for a topic and notifies websocket subscribers. Unlike the read
// endpoints, a failed write is reported as status:"error" — silently
// dropping a moderator's decision would be worse than a console error.
func ModerateTopic(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const endpoint = "moderate"

		var req ModerateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			env.Metrics.RecordRequest(endpoint, false)
			respondError(c, KindInvalidParameter, err.Error())
			return
		}
		ctx := c.Request.Context()
		log := loggerWithTrace(ctx, env.logger())

		partition, err := env.Resolver.ResolveConversation(ctx, req.ConversationID)
		if err != nil {
			if errors.Is(err, resolver.ErrNotResolved) {
				env.Metrics.RecordRequest(endpoint, false)
				respondError(c, KindIdentifierNotFound, "unknown conversation_id")
				return
			}
			env.Metrics.RecordRequest(endpoint, false)
			env.Metrics.RecordStoreError(storage.TableConversations, "unavailable")
			log.Error("resolver lookup failed", "error", err)
			respondError(c, KindStoreUnavailableSoft, "analytics store temporarily unavailable")
			return
		}

		now := time.Now().UTC().Format(time.RFC3339)
		rec := datatypes.Record{
			CompositeKey: req.TopicKey + datatypes.KeyDelimiter + "decision",
			Timestamp:    now,
			Attrs: map[string]string{
				"status":    req.Status,
				"moderator": req.Moderator,
			},
		}
		if err := env.Store.Put(ctx, storage.TableModeration, partition, req.TopicKey, rec); err != nil {
			env.Metrics.RecordRequest(endpoint, false)
			if errors.Is(err, storage.ErrTableNotProvisioned) {
				env.Metrics.RecordStoreError(storage.TableModeration, "not_provisioned")
				respondError(c, KindStoreNotProvisioned, "moderation table has not been provisioned")
				return
			}
			env.Metrics.RecordStoreError(storage.TableModeration, "unavailable")
			log.Error("moderation write failed",
				"topic_key", req.TopicKey, "error", err)
			respondError(c, KindStoreUnavailableSoft, "analytics store temporarily unavailable")
			return
		}

		log.Info("moderation decision recorded",
			"conversation_id", req.ConversationID,
			"topic_key", req.TopicKey,
			"decision", req.Status)

		env.Events.Broadcast(ModerationEvent{
			ConversationID: req.ConversationID,
			TopicKey:       req.TopicKey,
			Status:         req.Status,
			Moderator:      req.Moderator,
			Timestamp:      now,
		})

		env.Metrics.RecordRequest(endpoint, true)
		respondSuccess(c, gin.H{
			"topic_key":    req.TopicKey,
			"new_status":   req.Status,
			"moderated_at": now,
		})
	}
}
