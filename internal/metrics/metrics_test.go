package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/2389/tether/internal/behavior"
	"github.com/2389/tether/internal/remote"
	"github.com/2389/tether/internal/session"
)

func TestObserverCounts(t *testing.T) {
	m := New()

	m.SessionUp("A")
	m.SessionUp("B")
	m.SessionDown("A", "kicked")
	m.SessionDown("B", session.ReasonTerminated)
	m.ReconnectScheduled("A", session.ReconnectDelay)
	m.CreateFinished(nil)
	m.CreateFinished(errors.New("refused"))
	m.CreateFinished(nil)
	m.TaskFired(behavior.TaskDrift)
	m.TaskFired(behavior.TaskDrift)
	m.TaskFired(behavior.TaskSweep)
	m.CommandFailed(behavior.TaskIdle, errors.New("closed"))

	assert.Equal(t, 0.0, testutil.ToFloat64(m.SessionsLive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionDrops))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconnectAttempts))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsCreated.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsCreated.WithLabelValues(ResultFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BehaviorFires.WithLabelValues(string(behavior.TaskDrift))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BehaviorFires.WithLabelValues(string(behavior.TaskSweep))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandErrors.WithLabelValues(string(behavior.TaskIdle))))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.SessionUp("A")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tether_sessions_live 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestWiredIntoManager(t *testing.T) {
	m := New()
	clk := testingclock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	dialer := remote.NewMockDialer()
	mgr := session.NewManager(session.NewRegistry(nil), dialer,
		session.WithClock(clk),
		session.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		session.WithObserver(m),
	)
	defer mgr.Close(context.Background())

	ident, err := mgr.Create(context.Background(), remote.Params{Host: "h"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsLive))

	dialer.Last().Terminate("kicked")
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ReconnectAttempts) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SessionsLive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionDrops))

	require.NoError(t, mgr.Delete(context.Background(), ident.ID, ident.Key, ident.Key))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SessionsLive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsCreated.WithLabelValues(ResultOK)))
}
