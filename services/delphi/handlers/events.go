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
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianDelphi/services/delphi/observability"
)

// ModerationEvent is one moderation decision pushed to subscribers.
type ModerationEvent struct {
	ConversationID string `json:"conversation_id"`
	TopicKey       string `json:"topic_key"`
	Status         string `json:"status"`
	Moderator      string `json:"moderator,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// subscriber is one connected websocket, filtered to a conversation.
type subscriber struct {
	conversationID string
	ch             chan ModerationEvent
}

// Hub fans moderation events out to connected websocket clients. Events
// are best-effort: a subscriber whose buffer is full misses the event
// rather than blocking the moderation write path.
type Hub struct {
	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewHub builds an event hub. metrics may be nil.
func NewHub(logger *slog.Logger, metrics *observability.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:    make(map[*subscriber]struct{}),
		logger:  logger,
		metrics: metrics,
	}
}

// Broadcast delivers an event to every subscriber watching its
// conversation. Nil hubs are a no-op so tests can skip wiring one.
func (h *Hub) Broadcast(ev ModerationEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.conversationID != ev.ConversationID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("dropping moderation event, subscriber too slow",
				"conversation_id", ev.ConversationID)
		}
	}
}

func (h *Hub) subscribe(conversationID string) *subscriber {
	sub := &subscriber{
		conversationID: conversationID,
		ch:             make(chan ModerationEvent, 16),
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	h.metrics.SubscriberConnected()
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	h.metrics.SubscriberDisconnected()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

const pingInterval = 30 * time.Second

// ModerationEvents serves GET /topicMod/events: a websocket stream of
// moderation decisions for one conversation.
func ModerationEvents(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Query("conversation_id")
		if conversationID == "" {
			respondError(c, KindMissingParameter, "conversation_id is required")
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			env.logger().Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		sub := env.Events.subscribe(conversationID)
		defer env.Events.unsubscribe(sub)
		env.logger().Info("moderation event subscriber connected",
			"conversation_id", conversationID)

		// Reader goroutine: we never expect client messages, but reading
		// is how gorilla surfaces close frames.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case ev := <-sub.ch:
				if err := ws.WriteJSON(ev); err != nil {
					env.logger().Warn("failed to write moderation event", "error", err)
					return
				}
			case <-ticker.C:
				if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
