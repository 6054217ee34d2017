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
	"strconv"
	"testing"
)

func TestHub_BroadcastFiltersByConversation(t *testing.T) {
	hub := NewHub(nil, nil)
	watching := hub.subscribe("conv-a")
	other := hub.subscribe("conv-b")
	defer hub.unsubscribe(watching)
	defer hub.unsubscribe(other)

	hub.Broadcast(ModerationEvent{
		ConversationID: "conv-a",
		TopicKey:       "layer0_1",
		Status:         "accepted",
	})

	select {
	case ev := <-watching.ch:
		if ev.TopicKey != "layer0_1" {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Fatal("subscriber for conv-a received nothing")
	}

	select {
	case ev := <-other.ch:
		t.Fatalf("subscriber for conv-b received %+v", ev)
	default:
	}
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(nil, nil)
	sub := hub.subscribe("conv-a")
	defer hub.unsubscribe(sub)

	// Overfill the buffer; Broadcast must return without blocking.
	for i := 0; i < cap(sub.ch)+5; i++ {
		hub.Broadcast(ModerationEvent{
			ConversationID: "conv-a",
			TopicKey:       "layer0_" + strconv.Itoa(i),
		})
	}

	if got := len(sub.ch); got != cap(sub.ch) {
		t.Errorf("buffered events = %d, want %d", got, cap(sub.ch))
	}
}

func TestHub_NilHubIsNoop(t *testing.T) {
	var hub *Hub
	hub.Broadcast(ModerationEvent{ConversationID: "conv-a"})
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(nil, nil)
	sub := hub.subscribe("conv-a")
	hub.unsubscribe(sub)

	hub.Broadcast(ModerationEvent{ConversationID: "conv-a"})
	if len(sub.ch) != 0 {
		t.Error("unsubscribed channel still received an event")
	}
}
