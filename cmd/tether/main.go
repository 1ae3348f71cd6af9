// ABOUTME: Entry point for the tether session daemon and operator CLI
// ABOUTME: Runs configured sessions, writes config files and lists stored sessions

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

// Version is set at build time.
var version = "dev"

const banner = `
 _       _   _
| |_ ___| |_| |__   ___ _ __
| __/ _ \ __| '_ \ / _ \ '__|
| ||  __/ |_| | | |  __/ |
 \__\___|\__|_| |_|\___|_|
`

// getConfigPath returns the path to the tether config file.
// Priority: TETHER_CONFIG env var > XDG_CONFIG_HOME/tether/tether.yaml > ~/.config/tether/tether.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TETHER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "tether.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "tether", "tether.yaml")
}

// getDataPath returns the path to the tether data directory.
// Priority: XDG_DATA_HOME/tether > ~/.local/share/tether
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "tether")
}

func usage() {
	fmt.Println("Usage: tether <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                   Run the configured sessions until interrupted")
	fmt.Println("  init                    Create a new config file interactively")
	fmt.Println("  sessions --owner NAME   List stored sessions for an owner")
	fmt.Println("  version                 Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "sessions":
		err = runSessions(ctx, os.Args[2:])
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
