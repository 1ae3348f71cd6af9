// ABOUTME: Periodic fan-out of session liveness snapshots to subscribers.
// ABOUTME: Each subscriber names the ids it watches; slow subscribers miss ticks.

package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/2389/tether/internal/session"
)

const (
	// DefaultInterval is how often Run publishes when no interval is given.
	DefaultInterval = 5 * time.Second

	subscriberBufferSize = 8
)

// Source answers liveness queries. *session.Manager satisfies it.
type Source interface {
	Snapshot(ids []string) []session.Liveness
}

// Snapshot is one published liveness reading.
type Snapshot struct {
	At       time.Time
	Sessions []session.Liveness
}

type subscriber struct {
	ids []string
	ch  chan Snapshot
}

// Broadcaster polls a Source and pushes snapshots to subscribers.
type Broadcaster struct {
	source   Source
	interval time.Duration
	clock    clock.WithTicker
	logger   *slog.Logger

	mu          sync.RWMutex
	subscribers map[string]*subscriber // subID -> subscriber
	closed      bool
}

// NewBroadcaster creates a Broadcaster. A zero interval means DefaultInterval;
// nil clock and logger fall back to the real clock and slog.Default.
func NewBroadcaster(source Source, interval time.Duration, clk clock.WithTicker, logger *slog.Logger) *Broadcaster {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		source:      source,
		interval:    interval,
		clock:       clk,
		logger:      logger.With("component", "status"),
		subscribers: make(map[string]*subscriber),
	}
}

// Subscribe registers interest in ids. The returned channel receives a
// snapshot per tick and is closed when ctx ends or the broadcaster closes.
func (b *Broadcaster) Subscribe(ctx context.Context, ids []string) (<-chan Snapshot, string) {
	subID := uuid.New().String()
	ch := make(chan Snapshot, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = &subscriber{ids: append([]string(nil), ids...), ch: ch}
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID, "sessions", len(ids))

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(sub.ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Run publishes every interval until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	ticker := b.clock.NewTicker(b.interval)
	defer ticker.Stop()

	b.logger.Info("status broadcaster started", "interval", b.interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			b.Publish()
		}
	}
}

// Publish sends one snapshot to every subscriber. Non-blocking: a
// subscriber whose buffer is full misses this one.
func (b *Broadcaster) Publish() {
	now := b.clock.Now()

	b.mu.RLock()
	defer b.mu.RUnlock()

	for subID, sub := range b.subscribers {
		snap := Snapshot{At: now, Sessions: b.source.Snapshot(sub.ids)}
		select {
		case sub.ch <- snap:
		default:
			b.logger.Debug("dropped snapshot for slow subscriber", "sub_id", subID)
		}
	}
}

// Close closes all subscriber channels. Later subscriptions get a closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, subID)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}

// Changes returns the entries of next whose liveness differs from prev,
// including ids prev did not mention.
func Changes(prev, next Snapshot) []session.Liveness {
	was := make(map[string]bool, len(prev.Sessions))
	for _, l := range prev.Sessions {
		was[l.ID] = l.Live
	}

	var out []session.Liveness
	for _, l := range next.Sessions {
		if live, seen := was[l.ID]; !seen || live != l.Live {
			out = append(out, l)
		}
	}
	return out
}
