// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies one pipeline lifecycle event.
type EventType string

const (
	EventChangeDetected      EventType = "change-detected"
	EventPipelineCreated     EventType = "pipeline-created"
	EventStageChanged        EventType = "stage-changed"
	EventAnalysisCompleted   EventType = "analysis-completed"
	EventProposalGenerated   EventType = "proposal-generated"
	EventValidationCompleted EventType = "validation-completed"
	EventApprovalRequired    EventType = "approval-required"
	EventDeploymentCompleted EventType = "deployment-completed"
	EventPipelineCompleted   EventType = "pipeline-completed"
	EventPipelineFailed      EventType = "pipeline-failed"
	EventRollbackExecuted    EventType = "rollback-executed"
)

// Rollback trigger values carried as the EventRollbackExecuted payload.
const (
	RollbackTriggerAuto   = "auto"
	RollbackTriggerManual = "manual"
)

// Event is one entry on the orchestrator's typed event stream.
type Event struct {
	Type       EventType `json:"type"`
	PipelineID string    `json:"pipeline_id,omitempty"`
	ChangeID   string    `json:"change_id,omitempty"`
	Stage      Stage     `json:"stage,omitempty"`
	Payload    any       `json:"payload,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Dispatcher fans pipeline events out to subscribers over bounded
// channels. Delivery is at-most-once: a subscriber whose channel is
// full misses the event, and a slow subscriber never blocks publishers
// or other subscribers. The dispatcher is channel-based so WebSocket
// and propagation consumers share one subscription surface.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   map[string]chan Event
	buffer int
	closed bool
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher with the given per-subscriber
// channel capacity.
func NewDispatcher(buffer int, logger *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		subs:   make(map[string]chan Event),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new subscriber and returns its ID and receive
// channel. The channel is closed on Unsubscribe or Close.
func (d *Dispatcher) Subscribe() (string, <-chan Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan Event, d.buffer)
	if d.closed {
		close(ch)
		return id, ch
	}
	d.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown IDs
// are a no-op.
func (d *Dispatcher) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ch, ok := d.subs[id]; ok {
		delete(d.subs, id)
		close(ch)
	}
}

// Publish delivers the event to every subscriber without blocking.
// Events dropped on full channels are logged at debug level.
func (d *Dispatcher) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return
	}
	for id, ch := range d.subs {
		select {
		case ch <- evt:
		default:
			d.logger.Debug("event dropped for slow subscriber",
				"subscriber", id, "event", string(evt.Type))
		}
	}
}

// Close shuts the dispatcher down and closes all subscriber channels.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	for id, ch := range d.subs {
		delete(d.subs, id)
		close(ch)
	}
}
