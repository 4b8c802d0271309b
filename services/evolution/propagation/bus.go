// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package propagation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Sentinel errors for the bus.
var (
	// ErrBusStopped indicates the bus is not accepting messages.
	ErrBusStopped = errors.New("propagation bus stopped")

	// ErrNilHandler indicates a subscription without a handler.
	ErrNilHandler = errors.New("nil subscriber handler")

	// ErrUnknownSubscription indicates an unsubscribe for an ID that
	// does not exist.
	ErrUnknownSubscription = errors.New("unknown subscription")
)

// Defaults applied by NewBus.
const (
	DefaultMaxQueueSize = 1024
	DefaultTickInterval = 100 * time.Millisecond
	DefaultTTL          = time.Minute
	DefaultSignalBuffer = 256
)

// Config holds bus configuration. The zero value is usable.
type Config struct {
	// MaxQueueSize bounds the message queue. Once full the
	// lowest-priority message is evicted. Default: 1024
	MaxQueueSize int

	// TickInterval is how often the drain loop runs. Default: 100ms
	TickInterval time.Duration

	// DefaultTTL applies to messages enqueued without an explicit TTL.
	// Default: 1m
	DefaultTTL time.Duration

	// SignalBuffer is the capacity of the signal channel. Default: 256
	SignalBuffer int
}

func (c *Config) applyDefaults() {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = DefaultTTL
	}
	if c.SignalBuffer <= 0 {
		c.SignalBuffer = DefaultSignalBuffer
	}
}

// subscription is one registered consumer.
type subscription struct {
	id         string
	subscriber string
	handler    Handler
	filter     func(Message) bool
	events     map[string]bool
	priority   int
}

// wants reports whether the subscription should receive the message on
// its channel, before the user filter runs.
func (s *subscription) wants(msg Message) bool {
	switch msg.Channel {
	case ChannelTargeted:
		for _, target := range msg.Targets {
			if target == s.subscriber {
				return true
			}
		}
		return false
	case ChannelEventDriven:
		return s.events[msg.Event]
	default:
		return true
	}
}

// =============================================================================
// Bus
// =============================================================================

// Bus is the change propagation bus. Create with NewBus, call Start to
// begin draining, and Stop to shut down.
type Bus struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	queue   *messageQueue
	subs    map[string]*subscription
	started bool
	stopped bool
	done    chan struct{}
	wg      sync.WaitGroup

	signals chan Signal
}

// NewBus creates a bus. Call Start before expecting delivery.
func NewBus(cfg Config, logger *slog.Logger) *Bus {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		cfg:     cfg,
		logger:  logger.With("component", "propagation"),
		queue:   newMessageQueue(cfg.MaxQueueSize),
		subs:    make(map[string]*subscription),
		done:    make(chan struct{}),
		signals: make(chan Signal, cfg.SignalBuffer),
	}
}

// Start launches the drain loop. Safe to call once; subsequent calls
// are no-ops.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.stopped {
		return
	}
	b.started = true
	b.wg.Add(1)
	go b.drainLoop()
	b.logger.Info("propagation bus started",
		"tick", b.cfg.TickInterval.String(), "max_queue", b.cfg.MaxQueueSize)
}

// Stop drains one final tick, stops the loop, and closes the signal
// channel. Messages still queued after the final drain are discarded.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	started := b.started
	b.mu.Unlock()

	if started {
		close(b.done)
		b.wg.Wait()
	}
	close(b.signals)
	b.logger.Info("propagation bus stopped")
}

// Signals exposes the bus's observability stream. Signals are dropped,
// never blocked on, when the channel is full.
func (b *Bus) Signals() <-chan Signal {
	return b.signals
}

// =============================================================================
// Producer API
// =============================================================================

// PropagateOption customizes an enqueued message.
type PropagateOption func(*Message)

// WithChannel selects the delivery channel. Default: event-driven.
func WithChannel(ch Channel) PropagateOption {
	return func(m *Message) { m.Channel = ch }
}

// WithTargets sets the target subscriber IDs and switches the message
// to the targeted channel.
func WithTargets(targets ...string) PropagateOption {
	return func(m *Message) {
		m.Channel = ChannelTargeted
		m.Targets = targets
	}
}

// WithPriority sets the drain priority.
func WithPriority(priority int) PropagateOption {
	return func(m *Message) { m.Priority = priority }
}

// WithTTL overrides the default message TTL.
func WithTTL(ttl time.Duration) PropagateOption {
	return func(m *Message) { m.TTL = ttl }
}

// WithSource records the producing component.
func WithSource(source string) PropagateOption {
	return func(m *Message) { m.Source = source }
}

// WithAck marks the message as requiring acknowledgement.
func WithAck() PropagateOption {
	return func(m *Message) { m.RequiresAck = true }
}

// Propagate enqueues an event-driven message with default priority and
// TTL. It satisfies the orchestrator's propagator contract.
func (b *Bus) Propagate(ctx context.Context, event string, payload any) (string, error) {
	return b.PropagateWith(ctx, event, payload)
}

// PropagateWith enqueues a message with options applied.
//
// # Outputs
//
//   - string: The assigned message ID.
//   - error: ErrBusStopped after Stop.
func (b *Bus) PropagateWith(ctx context.Context, event string, payload any, opts ...PropagateOption) (string, error) {
	msg := Message{
		ID:        uuid.NewString(),
		Channel:   ChannelEventDriven,
		Event:     event,
		Payload:   payload,
		Priority:  PriorityNormal,
		TTL:       b.cfg.DefaultTTL,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(&msg)
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return "", ErrBusStopped
	}
	evicted, didEvict := b.queue.push(msg)
	depth := b.queue.Len()
	b.mu.Unlock()

	busInstruments().recordEnqueued(ctx, string(msg.Channel), depth)
	if didEvict {
		busInstruments().recordEvicted(ctx)
		b.raise(Signal{Kind: SignalEvicted, MessageID: evicted.ID,
			Event: evicted.Event, Channel: evicted.Channel})
		b.logger.Warn("queue full, evicted lowest-priority message",
			"evicted_id", evicted.ID, "evicted_event", evicted.Event)
	}
	return msg.ID, nil
}

// =============================================================================
// Subscriber API
// =============================================================================

// SubscribeOption customizes a subscription.
type SubscribeOption func(*subscription)

// WithFilter drops messages the predicate rejects, after channel
// routing.
func WithFilter(filter func(Message) bool) SubscribeOption {
	return func(s *subscription) { s.filter = filter }
}

// WithEvents limits event-driven delivery to the named events. A
// subscription without events never receives event-driven messages.
func WithEvents(events ...string) SubscribeOption {
	return func(s *subscription) {
		for _, e := range events {
			s.events[e] = true
		}
	}
}

// WithSubscriberPriority orders handler invocation within one message;
// higher runs first.
func WithSubscriberPriority(priority int) SubscribeOption {
	return func(s *subscription) { s.priority = priority }
}

// Subscribe registers a handler under the given subscriber identity
// (used for targeted delivery) and returns the subscription ID.
func (b *Bus) Subscribe(subscriber string, handler Handler, opts ...SubscribeOption) (string, error) {
	if handler == nil {
		return "", ErrNilHandler
	}

	sub := &subscription{
		id:         uuid.NewString(),
		subscriber: subscriber,
		handler:    handler,
		events:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(sub)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return "", ErrBusStopped
	}
	b.subs[sub.id] = sub
	return sub.id, nil
}

// Unsubscribe removes a subscription.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return ErrUnknownSubscription
	}
	delete(b.subs, id)
	return nil
}

// =============================================================================
// Drain Loop
// =============================================================================

func (b *Bus) drainLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drain()
		case <-b.done:
			b.drain()
			return
		}
	}
}

// drain empties the queue in descending priority order and routes each
// message.
func (b *Bus) drain() {
	for {
		b.mu.Lock()
		msg, ok := b.queue.pop()
		b.mu.Unlock()
		if !ok {
			return
		}
		b.process(msg)
	}
}

// process checks expiry and routes one message to matching
// subscribers.
func (b *Bus) process(msg Message) {
	ctx := context.Background()
	now := time.Now()

	if msg.Expired(now) {
		busInstruments().recordExpired(ctx)
		b.raise(Signal{Kind: SignalExpired, MessageID: msg.ID,
			Event: msg.Event, Channel: msg.Channel})
		b.logger.Debug("message expired before delivery",
			"message_id", msg.ID, "event", msg.Event, "age", now.Sub(msg.Timestamp).String())
		return
	}

	delivered := 0
	for _, sub := range b.matching(msg) {
		if err := sub.handler(ctx, msg); err != nil {
			busInstruments().recordFailed(ctx)
			b.raise(Signal{Kind: SignalFailed, MessageID: msg.ID, Event: msg.Event,
				Channel: msg.Channel, Subscriber: sub.subscriber, Error: err.Error()})
			b.logger.Warn("subscriber handler failed",
				"message_id", msg.ID, "subscriber", sub.subscriber, "error", err)
			continue
		}
		busInstruments().recordDelivered(ctx, string(msg.Channel))
		delivered++
	}
	if delivered == 0 {
		return
	}

	b.raise(Signal{Kind: SignalSent, MessageID: msg.ID,
		Event: msg.Event, Channel: msg.Channel})
}

// matching snapshots the subscriptions the message routes to, ordered
// by subscriber priority (stable on registration order).
func (b *Bus) matching(msg Message) []*subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*subscription, 0)
	for _, sub := range b.subs {
		if !sub.wants(msg) {
			continue
		}
		if sub.filter != nil && !sub.filter(msg) {
			continue
		}
		out = append(out, sub)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].priority > out[j-1].priority; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// raise emits a signal without blocking; a full channel drops it.
func (b *Bus) raise(sig Signal) {
	sig.Timestamp = time.Now()
	b.mu.Lock()
	stopped := b.stopped
	b.mu.Unlock()
	if stopped {
		return
	}
	select {
	case b.signals <- sig:
	default:
	}
}

// =============================================================================
// Instruments
// =============================================================================

var (
	busInstrumentsOnce sync.Once
	busInstrumentsInst *busMetrics
)

type busMetrics struct {
	enqueued  metric.Int64Counter
	delivered metric.Int64Counter
	expired   metric.Int64Counter
	failed    metric.Int64Counter
	evicted   metric.Int64Counter
	depth     metric.Int64Gauge
}

func busInstruments() *busMetrics {
	busInstrumentsOnce.Do(func() {
		meter := otel.Meter("evolve.propagation")
		inst := &busMetrics{}
		var err error
		if inst.enqueued, err = meter.Int64Counter("evolve.propagation.enqueued",
			metric.WithDescription("Messages enqueued, by channel")); err != nil {
			slog.Warn("failed to create enqueued counter", "error", err)
		}
		if inst.delivered, err = meter.Int64Counter("evolve.propagation.delivered",
			metric.WithDescription("Messages delivered to handlers, by channel")); err != nil {
			slog.Warn("failed to create delivered counter", "error", err)
		}
		if inst.expired, err = meter.Int64Counter("evolve.propagation.expired",
			metric.WithDescription("Messages dropped past their TTL")); err != nil {
			slog.Warn("failed to create expired counter", "error", err)
		}
		if inst.failed, err = meter.Int64Counter("evolve.propagation.failed",
			metric.WithDescription("Handler failures")); err != nil {
			slog.Warn("failed to create failed counter", "error", err)
		}
		if inst.evicted, err = meter.Int64Counter("evolve.propagation.evicted",
			metric.WithDescription("Messages evicted from the full queue")); err != nil {
			slog.Warn("failed to create evicted counter", "error", err)
		}
		if inst.depth, err = meter.Int64Gauge("evolve.propagation.queue.depth",
			metric.WithDescription("Queue depth after enqueue")); err != nil {
			slog.Warn("failed to create queue depth gauge", "error", err)
		}
		busInstrumentsInst = inst
	})
	return busInstrumentsInst
}

func (m *busMetrics) recordEnqueued(ctx context.Context, channel string, depth int) {
	if m == nil {
		return
	}
	if m.enqueued != nil {
		m.enqueued.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
	}
	if m.depth != nil {
		m.depth.Record(ctx, int64(depth))
	}
}

func (m *busMetrics) recordDelivered(ctx context.Context, channel string) {
	if m == nil || m.delivered == nil {
		return
	}
	m.delivered.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}

func (m *busMetrics) recordExpired(ctx context.Context) {
	if m == nil || m.expired == nil {
		return
	}
	m.expired.Add(ctx, 1)
}

func (m *busMetrics) recordFailed(ctx context.Context) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.Add(ctx, 1)
}

func (m *busMetrics) recordEvicted(ctx context.Context) {
	if m == nil || m.evicted == nil {
		return
	}
	m.evicted.Add(ctx, 1)
}
