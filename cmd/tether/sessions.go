// ABOUTME: The sessions command: lists stored session records for one owner
// ABOUTME: Reads the database directly; liveness belongs to the running daemon

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/tether/internal/config"
	"github.com/2389/tether/internal/store"
)

// parseOwner accepts both "--owner value" and "--owner=value".
func parseOwner(args []string) (string, error) {
	var owner string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--owner" || arg == "-o":
			if i+1 >= len(args) {
				return "", fmt.Errorf("--owner requires a value")
			}
			owner = args[i+1]
			i++
		case strings.HasPrefix(arg, "--owner="):
			owner = strings.TrimPrefix(arg, "--owner=")
		case strings.HasPrefix(arg, "-"):
			return "", fmt.Errorf("unknown flag: %s", arg)
		default:
			return "", fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", fmt.Errorf("--owner flag is required")
	}
	return owner, nil
}

func runSessions(ctx context.Context, args []string) error {
	owner, err := parseOwner(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	recs, err := st.ListSessionsByOwner(ctx, owner)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	if len(recs) == 0 {
		fmt.Printf("No sessions for %s\n", owner)
		return nil
	}

	cyan := color.New(color.FgCyan)
	cyan.Printf("%-16s  %-28s  %-24s  %s\n", "ID", "ADDRESS", "NAME", "CREATED")
	for _, rec := range recs {
		fmt.Printf("%-16s  %-28s  %-24s  %s\n",
			rec.ID,
			fmt.Sprintf("%s:%d", rec.Host, rec.Port),
			rec.DisplayName,
			rec.CreatedAt.Local().Format("Jan 02 15:04:05"),
		)
	}
	color.New(color.FgHiBlack).Printf("\n%d of %d allowed\n", len(recs), cfg.Sessions.MaxPerOwner)
	return nil
}
