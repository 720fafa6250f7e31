package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dantte-lp/gogap/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Control.SocketPath != "/run/gapd/control.sock" {
		t.Errorf("Control.SocketPath = %q, want %q", cfg.Control.SocketPath, "/run/gapd/control.sock")
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

	if cfg.GAP.CreateConnectionTimeout != 10*time.Second {
		t.Errorf("GAP.CreateConnectionTimeout = %v, want %v", cfg.GAP.CreateConnectionTimeout, 10*time.Second)
	}

	if cfg.GAP.DisconnectCooldown != 2*time.Second {
		t.Errorf("GAP.DisconnectCooldown = %v, want %v", cfg.GAP.DisconnectCooldown, 2*time.Second)
	}

	if cfg.GAP.InquiryLength != 8 {
		t.Errorf("GAP.InquiryLength = %d, want %d", cfg.GAP.InquiryLength, 8)
	}

	// Defaults must pass validation.
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
control:
  socket_path: "/tmp/gapd-test.sock"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
adapter:
  hci_device_index: 1
gap:
  create_connection_timeout: "5s"
  disconnect_cooldown: "1s"
  inquiry_length: 16
  le_scan_period: "5s"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Control.SocketPath != "/tmp/gapd-test.sock" {
		t.Errorf("Control.SocketPath = %q, want %q", cfg.Control.SocketPath, "/tmp/gapd-test.sock")
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Adapter.HCIDeviceIndex != 1 {
		t.Errorf("Adapter.HCIDeviceIndex = %d, want %d", cfg.Adapter.HCIDeviceIndex, 1)
	}

	if cfg.GAP.CreateConnectionTimeout != 5*time.Second {
		t.Errorf("GAP.CreateConnectionTimeout = %v, want %v", cfg.GAP.CreateConnectionTimeout, 5*time.Second)
	}

	if cfg.GAP.InquiryLength != 16 {
		t.Errorf("GAP.InquiryLength = %d, want %d", cfg.GAP.InquiryLength, 16)
	}

	if cfg.GAP.LEScanPeriod != 5*time.Second {
		t.Errorf("GAP.LEScanPeriod = %v, want %v", cfg.GAP.LEScanPeriod, 5*time.Second)
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override log.level. Everything else should
	// inherit from defaults.
	yamlContent := `
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}

	if cfg.GAP.CreateConnectionTimeout != 10*time.Second {
		t.Errorf("GAP.CreateConnectionTimeout = %v, want default %v", cfg.GAP.CreateConnectionTimeout, 10*time.Second)
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
			name: "empty control socket path",
			modify: func(cfg *config.Config) {
				cfg.Control.SocketPath = ""
			},
			wantErr: config.ErrEmptySocketPath,
		},
		{
			name: "zero create connection timeout",
			modify: func(cfg *config.Config) {
				cfg.GAP.CreateConnectionTimeout = 0
			},
			wantErr: config.ErrInvalidCreateConnectionTimeout,
		},
		{
			name: "negative disconnect cooldown",
			modify: func(cfg *config.Config) {
				cfg.GAP.DisconnectCooldown = -1 * time.Second
			},
			wantErr: config.ErrInvalidDisconnectCooldown,
		},
		{
			name: "zero inquiry length",
			modify: func(cfg *config.Config) {
				cfg.GAP.InquiryLength = 0
			},
			wantErr: config.ErrInvalidInquiryLength,
		},
		{
			name: "inquiry length too large",
			modify: func(cfg *config.Config) {
				cfg.GAP.InquiryLength = 0x31
			},
			wantErr: config.ErrInvalidInquiryLength,
		},
		{
			name: "zero le scan period",
			modify: func(cfg *config.Config) {
				cfg.GAP.LEScanPeriod = 0
			},
			wantErr: config.ErrInvalidLEScanPeriod,
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

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
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
// Service Search Entry Tests
// -------------------------------------------------------------------------

func TestLoadWithServices(t *testing.T) {
	t.Parallel()

	yamlContent := `
services:
  - name: "obex"
    uuid: "1105"
  - name: "a2dp-sink"
    uuid: "110b"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if len(cfg.Services) != 2 {
		t.Fatalf("Services count = %d, want 2", len(cfg.Services))
	}

	if cfg.Services[0].Name != "obex" || cfg.Services[0].UUID != "1105" {
		t.Errorf("Services[0] = %+v, want name=obex uuid=1105", cfg.Services[0])
	}

	if cfg.Services[1].Name != "a2dp-sink" || cfg.Services[1].UUID != "110b" {
		t.Errorf("Services[1] = %+v, want name=a2dp-sink uuid=110b", cfg.Services[1])
	}
}

func TestValidateServiceErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty service uuid",
			modify: func(cfg *config.Config) {
				cfg.Services = []config.ServiceEntry{{Name: "x", UUID: ""}}
			},
			wantErr: config.ErrInvalidServiceEntry,
		},
		{
			name: "duplicate service names",
			modify: func(cfg *config.Config) {
				cfg.Services = []config.ServiceEntry{
					{Name: "obex", UUID: "1105"},
					{Name: "obex", UUID: "110a"},
				}
			},
			wantErr: config.ErrDuplicateServiceName,
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

// -------------------------------------------------------------------------
// Environment Variable Override Tests
// -------------------------------------------------------------------------

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("GOGAP_LOG_LEVEL", "debug")
	t.Setenv("GOGAP_METRICS_ADDR", ":9300")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}

	if cfg.Metrics.Addr != ":9300" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9300")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "gogap.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
