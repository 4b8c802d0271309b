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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects delivered messages for assertions.
type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) handle(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.ID)
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b := NewBus(Config{TickInterval: 5 * time.Millisecond}, nil)
	b.Start()
	t.Cleanup(b.Stop)
	return b
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	b := newTestBus(t)

	var first, second recorder
	_, err := b.Subscribe("adapter-payments", first.handle)
	require.NoError(t, err)
	_, err = b.Subscribe("adapter-orders", second.handle)
	require.NoError(t, err)

	id, err := b.PropagateWith(context.Background(), "health-change", "degraded",
		WithChannel(ChannelBroadcast))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		return first.count() == 1 && second.count() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{id}, first.ids())
	assert.Equal(t, []string{id}, second.ids())
}

func TestTargetedDeliveryOnlyReachesTargets(t *testing.T) {
	b := newTestBus(t)

	var target, other recorder
	_, err := b.Subscribe("adapter-payments", target.handle)
	require.NoError(t, err)
	_, err = b.Subscribe("adapter-orders", other.handle)
	require.NoError(t, err)

	_, err = b.PropagateWith(context.Background(), "adaptation-completed", nil,
		WithTargets("adapter-payments"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return target.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, other.count())
}

func TestEventDrivenFanOut(t *testing.T) {
	b := newTestBus(t)

	var adaptation, health recorder
	_, err := b.Subscribe("sub-a", adaptation.handle, WithEvents("adaptation-completed"))
	require.NoError(t, err)
	_, err = b.Subscribe("sub-b", health.handle, WithEvents("health-change"))
	require.NoError(t, err)

	_, err = b.Propagate(context.Background(), "adaptation-completed", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return adaptation.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, health.count())
}

func TestExpiredMessageNeverDelivered(t *testing.T) {
	b := NewBus(Config{TickInterval: 50 * time.Millisecond, DefaultTTL: time.Minute}, nil)
	b.Start()
	t.Cleanup(b.Stop)

	var rec recorder
	_, err := b.Subscribe("sub", rec.handle)
	require.NoError(t, err)

	// TTL shorter than the tick interval: the message is already
	// expired when the drain loop first sees it.
	id, err := b.PropagateWith(context.Background(), "stale-event", nil,
		WithChannel(ChannelBroadcast), WithTTL(time.Millisecond))
	require.NoError(t, err)

	var expired Signal
	require.Eventually(t, func() bool {
		select {
		case sig := <-b.Signals():
			if sig.Kind == SignalExpired {
				expired = sig
				return true
			}
		default:
		}
		return false
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, id, expired.MessageID)
	assert.Zero(t, rec.count())
}

func TestHandlerErrorRaisesFailedSignal(t *testing.T) {
	b := newTestBus(t)

	var healthy recorder
	_, err := b.Subscribe("broken", func(ctx context.Context, msg Message) error {
		return fmt.Errorf("subscriber offline")
	})
	require.NoError(t, err)
	_, err = b.Subscribe("healthy", healthy.handle)
	require.NoError(t, err)

	_, err = b.PropagateWith(context.Background(), "adaptation-completed", nil,
		WithChannel(ChannelBroadcast))
	require.NoError(t, err)

	// The failing handler must not block the healthy one.
	require.Eventually(t, func() bool { return healthy.count() == 1 }, time.Second, 5*time.Millisecond)

	foundFailed := false
	require.Eventually(t, func() bool {
		select {
		case sig := <-b.Signals():
			if sig.Kind == SignalFailed && sig.Subscriber == "broken" {
				foundFailed = true
			}
		default:
		}
		return foundFailed
	}, time.Second, 5*time.Millisecond)
}

func TestSentSignalRequiresDelivery(t *testing.T) {
	b := newTestBus(t)

	_, err := b.Subscribe("offline", func(ctx context.Context, msg Message) error {
		return fmt.Errorf("subscriber offline")
	})
	require.NoError(t, err)

	// Every matching handler fails on the first message; the second
	// matches no subscriber at all. Neither may raise a sent signal.
	_, err = b.PropagateWith(context.Background(), "adaptation-completed", nil,
		WithChannel(ChannelBroadcast))
	require.NoError(t, err)
	_, err = b.PropagateWith(context.Background(), "adaptation-completed", nil,
		WithTargets("nobody"))
	require.NoError(t, err)

	sawFailed := false
	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case sig := <-b.Signals():
			require.NotEqual(t, SignalSent, sig.Kind)
			if sig.Kind == SignalFailed {
				sawFailed = true
			}
		case <-deadline:
			assert.True(t, sawFailed)
			return
		}
	}
}

func TestSubscriberFilter(t *testing.T) {
	b := newTestBus(t)

	var rec recorder
	_, err := b.Subscribe("picky", rec.handle,
		WithFilter(func(m Message) bool { return m.Priority >= PriorityHigh }))
	require.NoError(t, err)

	_, err = b.PropagateWith(context.Background(), "e", nil,
		WithChannel(ChannelBroadcast), WithPriority(PriorityLow))
	require.NoError(t, err)
	wanted, err := b.PropagateWith(context.Background(), "e", nil,
		WithChannel(ChannelBroadcast), WithPriority(PriorityCritical))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{wanted}, rec.ids())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBus(t)

	var rec recorder
	id, err := b.Subscribe("sub", rec.handle)
	require.NoError(t, err)

	require.NoError(t, b.Unsubscribe(id))
	assert.ErrorIs(t, b.Unsubscribe(id), ErrUnknownSubscription)

	_, err = b.PropagateWith(context.Background(), "e", nil, WithChannel(ChannelBroadcast))
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, rec.count())
}

func TestSubscribeValidation(t *testing.T) {
	b := newTestBus(t)
	_, err := b.Subscribe("sub", nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestPropagateAfterStop(t *testing.T) {
	b := NewBus(Config{TickInterval: 5 * time.Millisecond}, nil)
	b.Start()
	b.Stop()

	_, err := b.Propagate(context.Background(), "e", nil)
	assert.ErrorIs(t, err, ErrBusStopped)
	_, err = b.Subscribe("sub", (&recorder{}).handle)
	assert.ErrorIs(t, err, ErrBusStopped)

	// Stop is idempotent.
	b.Stop()
}

func TestStopDrainsPendingMessages(t *testing.T) {
	// Long tick: delivery happens only through the final drain on Stop.
	b := NewBus(Config{TickInterval: time.Hour}, nil)
	b.Start()

	var rec recorder
	_, err := b.Subscribe("sub", rec.handle)
	require.NoError(t, err)

	_, err = b.PropagateWith(context.Background(), "e", nil, WithChannel(ChannelBroadcast))
	require.NoError(t, err)

	b.Stop()
	assert.Equal(t, 1, rec.count())
}
