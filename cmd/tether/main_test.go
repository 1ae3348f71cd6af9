package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/tether/internal/store"
)

func TestGetConfigPath(t *testing.T) {
	t.Setenv("TETHER_CONFIG", "/etc/tether.yaml")
	assert.Equal(t, "/etc/tether.yaml", getConfigPath())

	t.Setenv("TETHER_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "tether", "tether.yaml"), getConfigPath())
}

func TestGetDataPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	assert.Equal(t, filepath.Join("/data", "tether"), getDataPath())
}

func TestParseOwner(t *testing.T) {
	tests := []struct {
		args    []string
		want    string
		wantErr bool
	}{
		{args: []string{"--owner", "alice"}, want: "alice"},
		{args: []string{"-o", "bob"}, want: "bob"},
		{args: []string{"--owner=carol"}, want: "carol"},
		{args: []string{"--owner"}, wantErr: true},
		{args: []string{"--owner", "  "}, wantErr: true},
		{args: []string{"--verbose"}, wantErr: true},
		{args: []string{"alice"}, wantErr: true},
		{args: nil, wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseOwner(tt.args)
		if tt.wantErr {
			assert.Error(t, err, "args %v", tt.args)
			continue
		}
		require.NoError(t, err, "args %v", tt.args)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestColorHandler(t *testing.T) {
	var buf bytes.Buffer
	h := newColorHandler(&buf, slog.LevelInfo)
	logger := slog.New(h).With("component", "session").WithGroup("conn")

	logger.Debug("hidden")
	logger.Info("=== SESSION LIVE ===", "addr", "localhost:25565")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "=== SESSION LIVE ===")
	assert.Contains(t, out, "component=")
	assert.Contains(t, out, "conn.addr=")
	assert.Contains(t, out, "localhost:25565")
}

func TestCreateTargets_SkipsFailures(t *testing.T) {
	h := newServeHarness(t)

	running := createTargets(context.Background(), h.fleet, h.targets("alice", "alice", "alice"), h.logger)

	// Default quota is two per owner.
	require.Len(t, running, 2)
	for _, s := range running {
		assert.Equal(t, "alice", s.owner)
		assert.True(t, h.manager.IsLive(s.ident.ID))
	}
}

func TestPruneStale_FreesQuotaAfterRestart(t *testing.T) {
	h := newServeHarness(t)
	ctx := context.Background()
	for _, id := range []string{"AAAA000000000000", "BBBB000000000000"} {
		require.NoError(t, h.store.CreateSession(ctx, &store.SessionRecord{
			ID: id, KeyHash: "x", OwnerID: "alice", Host: "localhost", Port: 25565, DisplayName: "old",
		}))
	}

	pruneStale(ctx, h.fleet, h.targets("alice", "alice"), h.logger)

	n, err := h.store.CountSessionsByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, n)

	running := createTargets(ctx, h.fleet, h.targets("alice", "alice"), h.logger)
	assert.Len(t, running, 2)
}

func TestWatchLiveness_EndsWithContext(t *testing.T) {
	h := newServeHarness(t)
	running := createTargets(context.Background(), h.fleet, h.targets("alice"), h.logger)
	require.Len(t, running, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		watchLiveness(ctx, h.broadcaster, running, h.logger)
		close(done)
	}()

	h.broadcaster.Publish()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watchLiveness did not return after cancel")
	}
}

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}
