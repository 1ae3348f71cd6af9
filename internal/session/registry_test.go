package session

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/2389/tether/internal/remote"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_InsertRemove(t *testing.T) {
	reg := NewRegistry(quietLogger())

	e := Entry{ID: "AAAABBBBCCCCDDDD", Params: remote.Params{Host: "example.net"}, ConnectedAt: time.Now()}
	require.NoError(t, reg.Insert(e))
	assert.True(t, reg.IsLive(e.ID))
	assert.Equal(t, 1, reg.Len())

	got, ok := reg.Get(e.ID)
	require.True(t, ok)
	assert.Equal(t, "example.net", got.Params.Host)

	assert.ErrorIs(t, reg.Insert(e), ErrAlreadyRegistered)

	assert.True(t, reg.Remove(e.ID))
	assert.False(t, reg.Remove(e.ID))
	assert.False(t, reg.IsLive(e.ID))
	assert.Zero(t, reg.Len())
}

func TestRegistry_SnapshotKeepsOrder(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Insert(Entry{ID: "B"}))
	require.NoError(t, reg.Insert(Entry{ID: "D"}))

	snap := reg.Snapshot([]string{"A", "B", "C", "D", "B"})
	assert.Equal(t, []Liveness{
		{ID: "A", Live: false},
		{ID: "B", Live: true},
		{ID: "C", Live: false},
		{ID: "D", Live: true},
		{ID: "B", Live: true},
	}, snap)

	assert.Empty(t, reg.Snapshot(nil))
	assert.Len(t, reg.List(), 2)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry(quietLogger())

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := string(rune('A'+i%26)) + string(rune('a'+i/26))
			_ = reg.Insert(Entry{ID: id})
			_ = reg.IsLive(id)
			_ = reg.Snapshot([]string{id})
			reg.Remove(id)
		}()
	}
	wg.Wait()
	assert.Zero(t, reg.Len())
}

func TestMailbox_FIFOAndClose(t *testing.T) {
	mb := newMailbox()
	require.True(t, mb.post(1))
	require.True(t, mb.post(2))
	require.True(t, mb.post(3))

	select {
	case <-mb.ready:
	default:
		t.Fatal("expected a wakeup")
	}

	ev, ok := mb.pop()
	require.True(t, ok)
	assert.Equal(t, 1, ev)

	rest := mb.close()
	assert.Equal(t, []any{2, 3}, rest)

	assert.False(t, mb.post(4))
	_, ok = mb.pop()
	assert.False(t, ok)
}

func TestRegistry_UptimeFollowsClock(t *testing.T) {
	var buf bytes.Buffer
	clk := testingclock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	reg := NewRegistry(slog.New(slog.NewTextHandler(&buf, nil)), WithRegistryClock(clk))

	require.NoError(t, reg.Insert(Entry{ID: "AAAABBBBCCCCDDDD"}))
	got, ok := reg.Get("AAAABBBBCCCCDDDD")
	require.True(t, ok)
	assert.Equal(t, clk.Now(), got.ConnectedAt)

	clk.Step(90 * time.Second)
	require.True(t, reg.Remove("AAAABBBBCCCCDDDD"))
	assert.Contains(t, buf.String(), "uptime=1m30s")
}
