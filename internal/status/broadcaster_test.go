// ABOUTME: Tests for the liveness broadcaster.
// ABOUTME: Covers ticking with a fake clock, slow subscribers, cancellation and Close.

package status

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/2389/tether/internal/session"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu   sync.Mutex
	live map[string]bool
}

func (s *fakeSource) set(id string, live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[id] = live
}

func (s *fakeSource) Snapshot(ids []string) []session.Liveness {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]session.Liveness, len(ids))
	for i, id := range ids {
		out[i] = session.Liveness{ID: id, Live: s.live[id]}
	}
	return out
}

func receive(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "channel closed")
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func TestBroadcaster_PublishesEachSubscribersIDs(t *testing.T) {
	src := &fakeSource{live: map[string]bool{"A": true}}
	b := NewBroadcaster(src, 0, testingclock.NewFakeClock(epoch), nil)
	defer b.Close()

	chA, _ := b.Subscribe(t.Context(), []string{"A"})
	chAB, _ := b.Subscribe(t.Context(), []string{"A", "B"})

	b.Publish()

	assert.Equal(t, []session.Liveness{{ID: "A", Live: true}}, receive(t, chA).Sessions)
	snap := receive(t, chAB)
	assert.Equal(t, epoch, snap.At)
	assert.Equal(t, []session.Liveness{{ID: "A", Live: true}, {ID: "B", Live: false}}, snap.Sessions)
}

func TestBroadcaster_RunTicksOnInterval(t *testing.T) {
	clk := testingclock.NewFakeClock(epoch)
	src := &fakeSource{live: map[string]bool{}}
	b := NewBroadcaster(src, 5*time.Second, clk, nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), []string{"A"})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
	clk.Step(5 * time.Second)
	assert.False(t, receive(t, ch).Sessions[0].Live)

	src.set("A", true)
	clk.Step(5 * time.Second)
	snap := receive(t, ch)
	assert.True(t, snap.Sessions[0].Live)
	assert.Equal(t, epoch.Add(10*time.Second), snap.At)

	cancel()
	assert.NoError(t, <-done)
}

func TestBroadcaster_SlowSubscriberDropsSnapshots(t *testing.T) {
	src := &fakeSource{live: map[string]bool{}}
	b := NewBroadcaster(src, 0, testingclock.NewFakeClock(epoch), nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), []string{"A"})
	for range subscriberBufferSize + 5 {
		b.Publish()
	}
	assert.Len(t, ch, subscriberBufferSize)
}

func TestBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	b := NewBroadcaster(&fakeSource{live: map[string]bool{}}, 0, nil, nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(t.Context())
	ch, _ := b.Subscribe(ctx, []string{"A"})
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestBroadcaster_CloseClosesEverything(t *testing.T) {
	b := NewBroadcaster(&fakeSource{live: map[string]bool{}}, 0, nil, nil)

	ch1, _ := b.Subscribe(t.Context(), []string{"A"})
	ch2, id2 := b.Subscribe(t.Context(), []string{"B"})
	b.Close()

	_, ok := <-ch1
	assert.False(t, ok)
	_, ok = <-ch2
	assert.False(t, ok)

	b.Unsubscribe(id2)
	b.Publish()

	late, _ := b.Subscribe(t.Context(), []string{"C"})
	_, ok = <-late
	assert.False(t, ok)
}

func TestChanges(t *testing.T) {
	prev := Snapshot{Sessions: []session.Liveness{{ID: "A", Live: true}, {ID: "B", Live: false}}}
	next := Snapshot{Sessions: []session.Liveness{{ID: "A", Live: false}, {ID: "B", Live: false}, {ID: "C", Live: true}}}

	assert.Equal(t, []session.Liveness{{ID: "A", Live: false}, {ID: "C", Live: true}}, Changes(prev, next))
	assert.Empty(t, Changes(next, next))
}
