// ABOUTME: Interactive config file writer for tether init
// ABOUTME: Prompts with defaults and validates the result before writing it

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/2389/tether/internal/config"
)

// initFile is the subset of the config that init writes. Durations stay
// strings so the file reads the way a person would write it.
type initFile struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Sessions struct {
		MaxPerOwner    int    `yaml:"max_per_owner"`
		StatusInterval string `yaml:"status_interval"`
	} `yaml:"sessions"`
	Remote struct {
		Path        string `yaml:"path"`
		DialTimeout string `yaml:"dial_timeout"`
		Keepalive   string `yaml:"keepalive"`
	} `yaml:"remote"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Targets []config.TargetConfig `yaml:"targets,omitempty"`
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("tether configuration setup")
	fmt.Println("==========================")
	fmt.Println()

	defaultDbPath := filepath.Join(getDataPath(), "tether.db")

	outputFile := prompt(reader, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var f initFile

	fmt.Println("\n--- Database Configuration ---")
	f.Database.Path = prompt(reader, "SQLite database path", defaultDbPath)

	fmt.Println("\n--- Session Configuration ---")
	maxStr := prompt(reader, "Max sessions per owner", strconv.Itoa(config.DefaultMaxPerOwner))
	maxPerOwner, err := strconv.Atoi(maxStr)
	if err != nil {
		return fmt.Errorf("max sessions per owner: %w", err)
	}
	f.Sessions.MaxPerOwner = maxPerOwner
	f.Sessions.StatusInterval = prompt(reader, "Status interval", config.DefaultStatusInterval.String())

	fmt.Println("\n--- Remote Configuration ---")
	f.Remote.Path = prompt(reader, "Websocket path", config.DefaultRemotePath)
	f.Remote.DialTimeout = prompt(reader, "Dial timeout", config.DefaultDialTimeout.String())
	f.Remote.Keepalive = prompt(reader, "Keepalive interval", config.DefaultKeepalive.String())

	fmt.Println("\n--- Metrics Configuration ---")
	f.Metrics.Enabled = yes(prompt(reader, "Enable metrics endpoint?", "no"))
	f.Metrics.Addr = config.DefaultMetricsAddr
	f.Metrics.Path = config.DefaultMetricsPath
	if f.Metrics.Enabled {
		f.Metrics.Addr = prompt(reader, "Metrics address", config.DefaultMetricsAddr)
		f.Metrics.Path = prompt(reader, "Metrics path", config.DefaultMetricsPath)
	}

	fmt.Println("\n--- Logging Configuration ---")
	f.Logging.Level = prompt(reader, "Log level (debug/info/warn/error)", config.DefaultLogLevel)
	f.Logging.Format = prompt(reader, "Log format (text/json)", config.DefaultLogFormat)

	fmt.Println("\n--- Targets ---")
	for yes(prompt(reader, "Add a target session?", "no")) {
		t := config.TargetConfig{
			Owner: prompt(reader, "  Owner", ""),
			Host:  prompt(reader, "  Host", "localhost"),
		}
		portStr := prompt(reader, "  Port", "25565")
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("target port: %w", err)
		}
		t.Port = port
		t.DisplayName = prompt(reader, "  Display name (empty for generated)", "")
		f.Targets = append(f.Targets, t)
	}

	body, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	content := "# tether configuration\n# Generated by tether init\n\n" + string(body)

	// Catch mistakes before they reach disk.
	if _, err := config.Parse(content, false); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(f.Database.Path)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the sessions:")
	fmt.Println("  tether serve")

	return nil
}

func yes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// EOF keeps the default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
