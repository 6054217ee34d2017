// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin handlers for the delphi aggregation
// endpoints.
//
// Every response is HTTP 200 with an embedded status field; the admin
// console inspects the body, never the status code. Inside the service,
// failures stay typed (storage and resolver sentinel errors) and are only
// flattened into the wire envelope here, at the HTTP boundary:
//
//   - missing parameters and unresolved identifiers respond
//     status:"error" with an error_kind;
//   - store failures respond status:"success" with empty collections,
//     plus a hint when the table simply is not provisioned yet, so a
//     half-deployed pipeline never breaks console rendering.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianDelphi/services/delphi/aggregate"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/observability"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/resolver"
	"github.com/AleutianAI/AleutianDelphi/services/delphi/storage"
)

// Error kinds surfaced in the status:"error" envelope.
const (
	KindMissingParameter     = "missing_parameter"
	KindIdentifierNotFound   = "identifier_not_resolved"
	KindInvalidParameter     = "invalid_parameter"
	KindStoreNotProvisioned  = "store_not_provisioned"
	KindStoreUnavailableSoft = "store_unavailable"
)

// Env bundles the dependencies handlers need. Constructed once at startup
// by the composition root; handlers never reach for globals.
type Env struct {
	Store    storage.Store
	Fetcher  *aggregate.Fetcher
	Resolver resolver.Resolver
	Metrics  *observability.Metrics
	Logger   *slog.Logger
	Events   *Hub
}

func (e *Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// loggerWithTrace returns a logger with trace context attached so store
// failures can be correlated with their spans.
func loggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}

// respondError writes the status:"error" envelope. Still HTTP 200.
func respondError(c *gin.Context, kind, message string) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "error",
		"error_kind": kind,
		"message":    message,
	})
}

// respondSuccess writes the status:"success" envelope around body.
func respondSuccess(c *gin.Context, body gin.H) {
	body["status"] = "success"
	c.JSON(http.StatusOK, body)
}

// resolveConversation handles the shared parameter-and-resolution preamble.
// empty is the endpoint's empty payload, used when the resolver's store
// lookup fails so the degraded envelope keeps the endpoint's wire shape.
// Returns the partition key, or "" after having written the error envelope.
func resolveConversation(c *gin.Context, env *Env, endpoint string, empty gin.H) string {
	conversationID := c.Query("conversation_id")
	if conversationID == "" {
		env.Metrics.RecordRequest(endpoint, false)
		respondError(c, KindMissingParameter, "conversation_id is required")
		return ""
	}
	partition, err := env.Resolver.ResolveConversation(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, resolver.ErrNotResolved) {
			env.Metrics.RecordRequest(endpoint, false)
			respondError(c, KindIdentifierNotFound, "unknown conversation_id")
			return ""
		}
		// Resolver lookups hit the same store; degrade like any fetch.
		softStoreFailure(c, env, endpoint, storage.TableConversations, err, empty)
		return ""
	}
	return partition
}

// softStoreFailure flattens a store error into the degraded success
// envelope: empty payload, success status, and a hint or message field
// telling operators (not the console) what actually happened.
// Returns true when err was a store error and the response was written.
func softStoreFailure(c *gin.Context, env *Env, endpoint, table string, err error, empty gin.H) bool {
	if err == nil {
		return false
	}
	log := loggerWithTrace(c.Request.Context(), env.logger())
	body := gin.H{}
	for k, v := range empty {
		body[k] = v
	}
	switch {
	case errors.Is(err, storage.ErrTableNotProvisioned):
		env.Metrics.RecordStoreError(table, "not_provisioned")
		log.Info("table not provisioned, returning empty data",
			"endpoint", endpoint, "table", table)
		body["hint"] = "no data yet: analytics tables have not been provisioned for this deployment"
	default:
		env.Metrics.RecordStoreError(table, "unavailable")
		log.Error("store query failed, returning empty data",
			"endpoint", endpoint, "table", table, "error", err)
		body["message"] = "analytics store temporarily unavailable"
	}
	env.Metrics.RecordRequest(endpoint, true)
	respondSuccess(c, body)
	return true
}
