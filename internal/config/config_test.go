package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dantte-lp/goudpstack/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.UDP.TTL != 64 {
		t.Errorf("UDP.TTL = %d, want %d", cfg.UDP.TTL, 64)
	}

	if cfg.UDP.EphemeralPortFirst != 49152 {
		t.Errorf("UDP.EphemeralPortFirst = %d, want %d", cfg.UDP.EphemeralPortFirst, 49152)
	}

	if cfg.UDP.EphemeralPortLast != 65535 {
		t.Errorf("UDP.EphemeralPortLast = %d, want %d", cfg.UDP.EphemeralPortLast, 65535)
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	// Defaults must pass validation.
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
udp:
  ttl: 32
  ephemeral_port_first: 30000
  ephemeral_port_last: 40000
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
listeners:
  - addr: "10.0.0.1"
    port: 5005
    interface: "eth0"
    accept_nonlocal_dst: true
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.UDP.TTL != 32 {
		t.Errorf("UDP.TTL = %d, want %d", cfg.UDP.TTL, 32)
	}

	if cfg.UDP.EphemeralPortFirst != 30000 {
		t.Errorf("UDP.EphemeralPortFirst = %d, want %d", cfg.UDP.EphemeralPortFirst, 30000)
	}

	if cfg.UDP.EphemeralPortLast != 40000 {
		t.Errorf("UDP.EphemeralPortLast = %d, want %d", cfg.UDP.EphemeralPortLast, 40000)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}

	if len(cfg.Listeners) != 1 {
		t.Fatalf("Listeners count = %d, want 1", len(cfg.Listeners))
	}

	l0 := cfg.Listeners[0]
	if l0.Addr != "10.0.0.1" {
		t.Errorf("Listeners[0].Addr = %q, want %q", l0.Addr, "10.0.0.1")
	}
	if l0.Port != 5005 {
		t.Errorf("Listeners[0].Port = %d, want %d", l0.Port, 5005)
	}
	if l0.Interface != "eth0" {
		t.Errorf("Listeners[0].Interface = %q, want %q", l0.Interface, "eth0")
	}
	if !l0.AcceptNonlocalDst {
		t.Errorf("Listeners[0].AcceptNonlocalDst = false, want true")
	}

	addr, err := l0.ListenAddr()
	if err != nil {
		t.Fatalf("ListenAddr() error: %v", err)
	}
	if addr.String() != "10.0.0.1" {
		t.Errorf("ListenAddr() = %s, want 10.0.0.1", addr)
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override udp.ttl and log.level.
	// Everything else should inherit from defaults.
	yamlContent := `
udp:
  ttl: 16
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	// Overridden values.
	if cfg.UDP.TTL != 16 {
		t.Errorf("UDP.TTL = %d, want %d", cfg.UDP.TTL, 16)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.UDP.EphemeralPortFirst != 49152 {
		t.Errorf("UDP.EphemeralPortFirst = %d, want default %d", cfg.UDP.EphemeralPortFirst, 49152)
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "inverted ephemeral range",
			modify: func(cfg *config.Config) {
				cfg.UDP.EphemeralPortFirst = 60000
				cfg.UDP.EphemeralPortLast = 50000
			},
			wantErr: config.ErrInvalidEphemeralRange,
		},
		{
			name: "invalid listener addr",
			modify: func(cfg *config.Config) {
				cfg.Listeners = []config.ListenerConfig{
					{Addr: "not-an-ip", Port: 5005},
				}
			},
			wantErr: config.ErrInvalidListenerAddr,
		},
		{
			name: "duplicate listener keys",
			modify: func(cfg *config.Config) {
				cfg.Listeners = []config.ListenerConfig{
					{Addr: "10.0.0.1", Port: 5005, Interface: "eth0"},
					{Addr: "10.0.0.1", Port: 5005, Interface: "eth0"},
				}
			},
			wantErr: config.ErrDuplicateListenerKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateWildcardListenersCoexist(t *testing.T) {
	t.Parallel()

	// Empty addr/port/interface wildcards are still distinct keys as long
	// as they aren't byte-for-byte identical.
	cfg := config.DefaultConfig()
	cfg.Listeners = []config.ListenerConfig{
		{Addr: "", Port: 0, Interface: "eth0"},
		{Addr: "", Port: 0, Interface: "eth1"},
	}

	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate() returned error for distinct wildcard listeners: %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

// -------------------------------------------------------------------------
// Environment Variable Override Tests
// -------------------------------------------------------------------------

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
udp:
  ttl: 64
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("GOUDPSTACK_UDP_TTL", "8")
	t.Setenv("GOUDPSTACK_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.UDP.TTL != 8 {
		t.Errorf("UDP.TTL = %d, want %d (from env)", cfg.UDP.TTL, 8)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
udp:
  ttl: 64
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("GOUDPSTACK_METRICS_ADDR", ":9200")
	t.Setenv("GOUDPSTACK_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "goudpstack.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
