// ABOUTME: Minimal remote endpoint for manual end-to-end runs of tether sessions.
// ABOUTME: Usage: fake-remote [-addr :25565] [-path /tether] [-kick-after 2m] [-drop-after 5m] [-error-every 30s]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/2389/tether/internal/remote/wsconn"
)

func main() {
	addr := flag.String("addr", ":25565", "listen address")
	path := flag.String("path", wsconn.DefaultPath, "websocket path")
	kickAfter := flag.Duration("kick-after", 0, "kick each client this long after login (0 disables)")
	dropAfter := flag.Duration("drop-after", 0, "cut each client's connection this long after login (0 disables)")
	errorEvery := flag.Duration("error-every", 0, "send every client a non-fatal error at this interval (0 disables)")
	verbose := flag.Bool("v", false, "log every command")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(*addr, *path, *kickAfter, *dropAfter, *errorEvery, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, path string, kickAfter, dropAfter, errorEvery time.Duration, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &wsconn.Server{KickAfter: kickAfter, DropAfter: dropAfter, Logger: logger}

	mux := http.NewServeMux()
	mux.Handle(path, srv)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if errorEvery > 0 {
		go nagClients(ctx, srv, errorEvery)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fake remote listening", "addr", addr, "path", path, "kick_after", kickAfter, "drop_after", dropAfter)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listening: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "clients", len(srv.Clients()))
	for _, name := range srv.Clients() {
		srv.Kick(name, "server shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// nagClients sends the same error to every client on each tick so the
// client side's repeated-error suppression has something to do.
func nagClients(ctx context.Context, srv *wsconn.Server, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range srv.Clients() {
				srv.SendError(name, "world is read-only")
			}
		}
	}
}
