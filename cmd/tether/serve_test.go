package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/2389/tether/internal/config"
	"github.com/2389/tether/internal/credential"
	"github.com/2389/tether/internal/fleet"
	"github.com/2389/tether/internal/remote"
	"github.com/2389/tether/internal/session"
	"github.com/2389/tether/internal/status"
	"github.com/2389/tether/internal/store"
)

type serveHarness struct {
	logger      *slog.Logger
	manager     *session.Manager
	fleet       *fleet.Fleet
	store       *store.MockStore
	broadcaster *status.Broadcaster
}

func newServeHarness(t *testing.T) *serveHarness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := testingclock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	mgr := session.NewManager(session.NewRegistry(logger, session.WithRegistryClock(clk)), remote.NewMockDialer(),
		session.WithClock(clk),
		session.WithLogger(logger),
		session.WithKeyComparer(credential.MatchHash),
	)
	st := store.NewMockStore()
	fl := fleet.New(mgr, st,
		fleet.WithLogger(logger),
		fleet.WithKeyHasher(func(key string) (string, error) {
			h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
			return string(h), err
		}),
	)
	bc := status.NewBroadcaster(mgr, time.Second, clk, logger)

	t.Cleanup(func() {
		bc.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = fl.Shutdown(ctx)
	})

	return &serveHarness{logger: logger, manager: mgr, fleet: fl, store: st, broadcaster: bc}
}

func (h *serveHarness) targets(owners ...string) []config.TargetConfig {
	out := make([]config.TargetConfig, 0, len(owners))
	for _, o := range owners {
		out = append(out, config.TargetConfig{Owner: o, Host: "localhost", Port: 25565})
	}
	return out
}
