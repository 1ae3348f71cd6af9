// Package config handles configuration loading for tether.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. The file extension picks the format: .toml is TOML, anything
// else is YAML. Defaults are filled in before validation.
//
// # Configuration File
//
// The tether command looks in these locations, in order:
//
//  1. Path from the TETHER_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/tether/tether.yaml
//  3. ~/.config/tether/tether.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${TETHER_DATA}/tether.db"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sessions:
//	  status_interval: "5s"
//	remote:
//	  dial_timeout: "30s"
//	  keepalive: "30s"
//
// # Configuration Sections
//
//	database:
//	  path: "/var/lib/tether/tether.db"   # required
//
//	sessions:
//	  max_per_owner: 2
//	  status_interval: "5s"
//
//	remote:
//	  path: "/tether"       # websocket endpoint on the remote server
//	  dial_timeout: "30s"
//	  keepalive: "30s"
//
//	metrics:
//	  enabled: true
//	  addr: "127.0.0.1:9464"
//	  path: "/metrics"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	targets:
//	  - owner: "alice"
//	    host: "play.example.net"
//	    port: 25565
//	    display_name: "scout"
//
// The same layout in TOML uses [database], [sessions] and so on, with
// [[targets]] tables for the session list.
package config
