// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package propagation provides the change propagation bus.
//
// # Description
//
// The bus carries adaptation outcomes, pattern detections, and health
// changes from the pipeline orchestrator to downstream subscribers. A
// bounded priority queue absorbs bursts; a periodic tick drains it in
// descending priority order. Messages whose age exceeds their TTL at
// processing time are dropped and never delivered. Three channels are
// supported: broadcast (every subscriber), targeted (subscribers named
// in the message's target set), and event-driven (fan-out keyed by
// event name).
//
// # Thread Safety
//
// All bus methods are safe for concurrent use. Handlers run on the
// bus's drain goroutine, so a slow handler delays the tick; keep
// handlers short or hand off internally.
package propagation

import (
	"context"
	"time"
)

// Channel selects the delivery model for a message.
type Channel string

const (
	ChannelBroadcast   Channel = "broadcast"
	ChannelTargeted    Channel = "targeted"
	ChannelEventDriven Channel = "event-driven"
)

// Message priorities. Higher values drain first.
const (
	PriorityLow      = 0
	PriorityNormal   = 5
	PriorityHigh     = 8
	PriorityCritical = 10
)

// Message is one unit on the bus.
type Message struct {
	ID          string        `json:"id"`
	Channel     Channel       `json:"channel"`
	Source      string        `json:"source,omitempty"`
	Targets     []string      `json:"targets,omitempty"`
	Event       string        `json:"event"`
	Payload     any           `json:"payload,omitempty"`
	Priority    int           `json:"priority"`
	TTL         time.Duration `json:"ttl"`
	Timestamp   time.Time     `json:"timestamp"`
	RequiresAck bool          `json:"requires_ack"`
}

// Expired reports whether the message's age exceeds its TTL at the
// given instant.
func (m *Message) Expired(now time.Time) bool {
	return m.TTL > 0 && now.Sub(m.Timestamp) > m.TTL
}

// Handler consumes delivered messages. A non-nil error raises a failed
// signal; it does not stop delivery to other subscribers.
type Handler func(ctx context.Context, msg Message) error

// SignalKind classifies a bus signal.
type SignalKind string

const (
	// SignalSent is raised after at least one subscriber accepted the
	// message. A message every matching handler rejected, or one that
	// matched no subscriber, raises no sent signal.
	SignalSent SignalKind = "sent"

	// SignalExpired is raised when a message was dropped for exceeding
	// its TTL. Expiry is not an error.
	SignalExpired SignalKind = "expired"

	// SignalFailed is raised when a subscriber handler returned an
	// error.
	SignalFailed SignalKind = "failed"

	// SignalEvicted is raised when the full queue evicted its
	// lowest-priority message to admit a new one.
	SignalEvicted SignalKind = "evicted"
)

// Signal is one observability event from the bus.
type Signal struct {
	Kind       SignalKind `json:"kind"`
	MessageID  string     `json:"message_id"`
	Event      string     `json:"event"`
	Channel    Channel    `json:"channel,omitempty"`
	Subscriber string     `json:"subscriber,omitempty"`
	Error      string     `json:"error,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}
