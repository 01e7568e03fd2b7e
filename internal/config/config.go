// Package config manages the goudpstack daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete goudpstack configuration.
type Config struct {
	UDP       UDPConfig        `koanf:"udp"`
	Metrics   MetricsConfig    `koanf:"metrics"`
	Log       LogConfig        `koanf:"log"`
	Listeners []ListenerConfig `koanf:"listeners"`
}

// UDPConfig holds the default UDP protocol handler parameters
// (internal/udp.Core construction options).
type UDPConfig struct {
	// TTL is the outgoing IPv4 TTL for datagrams sent via udp.Core.Send.
	TTL uint8 `koanf:"ttl"`

	// EphemeralPortFirst and EphemeralPortLast describe the ephemeral
	// source port range. Parsed and validated but never consulted by
	// udp.Core: automatic ephemeral port allocation is an explicit
	// non-goal.
	EphemeralPortFirst uint16 `koanf:"ephemeral_port_first"`
	EphemeralPortLast  uint16 `koanf:"ephemeral_port_last"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// ListenerConfig describes a declarative UDP listener from the
// configuration file. Each entry registers a udp.Listener on daemon
// startup.
type ListenerConfig struct {
	// Addr is the local address to listen on. Empty or "0.0.0.0" acts as
	// a wildcard.
	Addr string `koanf:"addr"`

	// Port is the local UDP port to listen on. 0 acts as a wildcard.
	Port uint16 `koanf:"port"`

	// Interface restricts the listener to one network interface by name.
	// Empty wildcards the receive interface.
	Interface string `koanf:"interface"`

	// AcceptNonlocalDst lifts the requirement that a received datagram's
	// destination address equal the receiving interface's local address.
	AcceptNonlocalDst bool `koanf:"accept_nonlocal_dst"`
}

// ListenAddr parses Addr as a netip.Addr. An empty string parses as the
// unspecified (wildcard) address.
func (lc ListenerConfig) ListenAddr() (netip.Addr, error) {
	if lc.Addr == "" {
		return netip.Addr{}, nil
	}
	addr, err := netip.ParseAddr(lc.Addr)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("parse listener addr %q: %w", lc.Addr, err)
	}
	return addr, nil
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		UDP: UDPConfig{
			TTL:                64,
			EphemeralPortFirst: 49152,
			EphemeralPortLast:  65535,
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for goudpstack configuration.
// Variables are named GOUDPSTACK_<section>_<key>, e.g. GOUDPSTACK_UDP_TTL.
const envPrefix = "GOUDPSTACK_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GOUDPSTACK_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	GOUDPSTACK_UDP_TTL       -> udp.ttl
//	GOUDPSTACK_METRICS_ADDR  -> metrics.addr
//	GOUDPSTACK_METRICS_PATH  -> metrics.path
//	GOUDPSTACK_LOG_LEVEL     -> log.level
//	GOUDPSTACK_LOG_FORMAT    -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GOUDPSTACK_UDP_TTL -> udp.ttl.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"udp.ttl":                  defaults.UDP.TTL,
		"udp.ephemeral_port_first": defaults.UDP.EphemeralPortFirst,
		"udp.ephemeral_port_last":  defaults.UDP.EphemeralPortLast,
		"metrics.addr":             defaults.Metrics.Addr,
		"metrics.path":             defaults.Metrics.Path,
		"log.level":                defaults.Log.Level,
		"log.format":               defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrInvalidEphemeralRange indicates the ephemeral port range is
	// empty or inverted.
	ErrInvalidEphemeralRange = errors.New("udp.ephemeral_port_first must be <= udp.ephemeral_port_last")

	// ErrInvalidListenerAddr indicates a listener has an unparseable
	// address.
	ErrInvalidListenerAddr = errors.New("listener address is invalid")

	// ErrDuplicateListenerKey indicates two listeners share the same
	// (addr, port, interface) key.
	ErrDuplicateListenerKey = errors.New("duplicate listener key")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.UDP.EphemeralPortFirst > cfg.UDP.EphemeralPortLast {
		return ErrInvalidEphemeralRange
	}

	return validateListeners(cfg.Listeners)
}

// validateListeners checks each declarative listener entry for correctness.
func validateListeners(listeners []ListenerConfig) error {
	seen := make(map[string]struct{}, len(listeners))

	for i, lc := range listeners {
		if _, err := lc.ListenAddr(); err != nil {
			return fmt.Errorf("listeners[%d]: %w: %w", i, ErrInvalidListenerAddr, err)
		}

		key := fmt.Sprintf("%s|%d|%s", lc.Addr, lc.Port, lc.Interface)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("listeners[%d] key %q: %w", i, key, ErrDuplicateListenerKey)
		}
		seen[key] = struct{}{}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
