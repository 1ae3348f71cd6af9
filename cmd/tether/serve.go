// ABOUTME: The serve command: creates configured sessions and keeps them running
// ABOUTME: Runs the status watcher and metrics endpoint until a signal arrives

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/2389/tether/internal/config"
	"github.com/2389/tether/internal/credential"
	"github.com/2389/tether/internal/fleet"
	"github.com/2389/tether/internal/metrics"
	"github.com/2389/tether/internal/remote"
	"github.com/2389/tether/internal/remote/wsconn"
	"github.com/2389/tether/internal/session"
	"github.com/2389/tether/internal/status"
	"github.com/2389/tether/internal/store"
)

const shutdownTimeout = 15 * time.Second

// started is a session serve created and must delete on the way out.
type started struct {
	owner string
	ident credential.Identity
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Targets:   %d\n", len(cfg.Targets))
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   http://%s%s\n", cfg.Metrics.Addr, cfg.Metrics.Path)
	}
	fmt.Println()

	logger.Info("starting tether",
		"config", configPath,
		"targets", len(cfg.Targets),
		"max_per_owner", cfg.Sessions.MaxPerOwner,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	m := metrics.New()
	registry := session.NewRegistry(logger)
	dialer := &wsconn.Dialer{
		Path:        cfg.Remote.Path,
		DialTimeout: cfg.Remote.DialTimeout,
		Keepalive:   cfg.Remote.Keepalive,
		Logger:      logger,
	}
	mgr := session.NewManager(registry, dialer,
		session.WithLogger(logger),
		session.WithKeyComparer(credential.MatchHash),
		session.WithObserver(m),
	)
	fl := fleet.New(mgr, st,
		fleet.WithMaxPerOwner(cfg.Sessions.MaxPerOwner),
		fleet.WithLogger(logger),
	)

	pruneStale(ctx, fl, cfg.Targets, logger)
	running := createTargets(ctx, fl, cfg.Targets, logger)

	bc := status.NewBroadcaster(mgr, cfg.Sessions.StatusInterval, clock.RealClock{}, logger)
	defer bc.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bc.Run(gctx)
	})
	g.Go(func() error {
		watchLiveness(gctx, bc, running, logger)
		return nil
	})
	if cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux(cfg.Metrics.Path, m),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics listening", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()

	logger.Info("shutting down", "sessions", len(running))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, s := range running {
		if err := fl.Delete(shutdownCtx, s.owner, s.ident.ID, s.ident.Key); err != nil {
			logger.Warn("deleting session failed", "session_id", s.ident.ID, "error", err)
		}
	}
	if err := fl.Shutdown(shutdownCtx); err != nil {
		logger.Error("session shutdown incomplete", "error", err)
	}

	return runErr
}

// createTargets starts one session per target. Failures are logged and
// skipped so one unreachable host does not keep the rest down.
// pruneStale drops records a previous run left without live sessions, once
// per configured owner.
func pruneStale(ctx context.Context, fl *fleet.Fleet, targets []config.TargetConfig, logger *slog.Logger) {
	seen := make(map[string]bool, len(targets))
	for _, t := range targets {
		if seen[t.Owner] {
			continue
		}
		seen[t.Owner] = true

		n, err := fl.Prune(ctx, t.Owner)
		if err != nil {
			logger.Error("pruning stale sessions failed", "owner", t.Owner, "error", err)
			continue
		}
		if n > 0 {
			logger.Info("pruned stale sessions", "owner", t.Owner, "count", n)
		}
	}
}

func createTargets(ctx context.Context, fl *fleet.Fleet, targets []config.TargetConfig, logger *slog.Logger) []started {
	yellow := color.New(color.FgYellow)

	var out []started
	for _, t := range targets {
		params := remote.Params{Host: t.Host, Port: t.Port, DisplayName: t.DisplayName}
		ident, err := fl.Create(ctx, t.Owner, params)
		if err != nil {
			logger.Error("session create failed", "owner", t.Owner, "host", t.Host, "error", err)
			continue
		}
		out = append(out, started{owner: t.Owner, ident: ident})

		yellow.Print("    ★ ")
		fmt.Printf("%s  id=%s  key=%s\n", t.Owner, ident.ID, ident.Key)
	}
	if len(out) > 0 {
		fmt.Println()
	}
	return out
}

// watchLiveness logs every liveness transition of the running sessions.
func watchLiveness(ctx context.Context, bc *status.Broadcaster, running []started, logger *slog.Logger) {
	ids := make([]string, 0, len(running))
	for _, s := range running {
		ids = append(ids, s.ident.ID)
	}
	if len(ids) == 0 {
		<-ctx.Done()
		return
	}

	ch, _ := bc.Subscribe(ctx, ids)
	var prev status.Snapshot
	first := true
	for snap := range ch {
		for _, l := range status.Changes(prev, snap) {
			if first && l.Live {
				continue
			}
			logger.Info("session liveness changed", "session_id", l.ID, "live", l.Live)
		}
		prev = snap
		first = false
	}
}

func metricsMux(path string, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	return mux
}
