// Package config manages GoGAP daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete gapd configuration.
type Config struct {
	Control  ControlConfig  `koanf:"control"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Adapter  AdapterConfig  `koanf:"adapter"`
	GAP      GAPConfig      `koanf:"gap"`
	Services []ServiceEntry `koanf:"services"`
}

// ControlConfig holds the gapctl control-socket configuration.
type ControlConfig struct {
	// SocketPath is the Unix domain socket path the daemon listens on
	// and gapctl dials.
	SocketPath string `koanf:"socket_path"`
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

// AdapterConfig selects which local controller the daemon binds to and
// how it's exposed on the desktop D-Bus.
type AdapterConfig struct {
	// HCIDeviceIndex is the Linux hci_dev index (0 for hci0) the
	// reference HCI transport binds its raw socket to.
	HCIDeviceIndex uint16 `koanf:"hci_device_index"`

	// BluezObjectPath is the org.bluez Adapter1 object path the BlueZ
	// bridge mirrors Peer Cache state onto (e.g., "/org/bluez/hci0").
	// Empty disables the D-Bus bridge.
	BluezObjectPath string `koanf:"bluez_object_path"`
}

// GAPConfig holds the default GAP core parameters. These are passed in
// as constructor options to the Connection Manager and Discovery
// Managers on daemon startup.
type GAPConfig struct {
	// CreateConnectionTimeout bounds a single outbound Create Connection
	// attempt (§4.2.1) before it is treated as a failure.
	CreateConnectionTimeout time.Duration `koanf:"create_connection_timeout"`

	// DisconnectCooldown is how long after a local ApiRequest disconnect
	// inbound connection requests from the same peer are rejected;
	// outbound connections are not delayed (§4.2.4).
	DisconnectCooldown time.Duration `koanf:"disconnect_cooldown"`

	// InquiryLength is the default BR/EDR Inquiry duration passed to the
	// Inquiry HCI command, in 1.28s units (§4.3).
	InquiryLength uint8 `koanf:"inquiry_length"`

	// LEScanPeriod is the Active Discovery / Background Scan rotation
	// period (§4.4) after which the scanning address and filter window
	// are rotated.
	LEScanPeriod time.Duration `koanf:"le_scan_period"`

	// LEScanWindow and LEScanInterval configure LE Set Scan Parameters,
	// both in units of 0.625ms.
	LEScanWindow   uint16 `koanf:"le_scan_window"`
	LEScanInterval uint16 `koanf:"le_scan_interval"`
}

// ServiceEntry declares a service search the Connection Manager's SDP
// dispatch (§4.2.7) runs against every newly interrogated peer.
type ServiceEntry struct {
	// Name identifies this search for logging/control-protocol display.
	Name string `koanf:"name"`

	// UUID is the service class UUID to search for (16-bit short form
	// or 128-bit long form, as a hex string).
	UUID string `koanf:"uuid"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Control: ControlConfig{
			SocketPath: "/run/gapd/control.sock",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Adapter: AdapterConfig{
			HCIDeviceIndex:  0,
			BluezObjectPath: "",
		},
		GAP: GAPConfig{
			CreateConnectionTimeout: 10 * time.Second,
			DisconnectCooldown:      2 * time.Second,
			InquiryLength:           8, // ~10.24s
			LEScanPeriod:            10240 * time.Millisecond,
			LEScanWindow:            0x0012, // 11.25ms
			LEScanInterval:          0x0012, // 11.25ms
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for GoGAP configuration.
// Variables are named GOGAP_<section>_<key>, e.g., GOGAP_METRICS_ADDR.
const envPrefix = "GOGAP_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GOGAP_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
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

// envKeyMapper transforms GOGAP_METRICS_ADDR -> metrics.addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"control.socket_path":           defaults.Control.SocketPath,
		"metrics.addr":                  defaults.Metrics.Addr,
		"metrics.path":                  defaults.Metrics.Path,
		"log.level":                     defaults.Log.Level,
		"log.format":                    defaults.Log.Format,
		"adapter.hci_device_index":      defaults.Adapter.HCIDeviceIndex,
		"adapter.bluez_object_path":     defaults.Adapter.BluezObjectPath,
		"gap.create_connection_timeout": defaults.GAP.CreateConnectionTimeout.String(),
		"gap.disconnect_cooldown":       defaults.GAP.DisconnectCooldown.String(),
		"gap.inquiry_length":            defaults.GAP.InquiryLength,
		"gap.le_scan_period":            defaults.GAP.LEScanPeriod.String(),
		"gap.le_scan_window":            defaults.GAP.LEScanWindow,
		"gap.le_scan_interval":          defaults.GAP.LEScanInterval,
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
	// ErrEmptySocketPath indicates the control socket path is empty.
	ErrEmptySocketPath = errors.New("control.socket_path must not be empty")

	// ErrInvalidCreateConnectionTimeout indicates a non-positive timeout.
	ErrInvalidCreateConnectionTimeout = errors.New("gap.create_connection_timeout must be > 0")

	// ErrInvalidDisconnectCooldown indicates a negative cooldown.
	ErrInvalidDisconnectCooldown = errors.New("gap.disconnect_cooldown must be >= 0")

	// ErrInvalidInquiryLength indicates an inquiry length outside 0x01-0x30.
	ErrInvalidInquiryLength = errors.New("gap.inquiry_length must be between 0x01 and 0x30")

	// ErrInvalidLEScanPeriod indicates a non-positive scan period.
	ErrInvalidLEScanPeriod = errors.New("gap.le_scan_period must be > 0")

	// ErrInvalidServiceEntry indicates a service search entry with an
	// empty UUID.
	ErrInvalidServiceEntry = errors.New("service entry uuid must not be empty")

	// ErrDuplicateServiceName indicates two service entries share a name.
	ErrDuplicateServiceName = errors.New("duplicate service entry name")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Control.SocketPath == "" {
		return ErrEmptySocketPath
	}

	if cfg.GAP.CreateConnectionTimeout <= 0 {
		return ErrInvalidCreateConnectionTimeout
	}

	if cfg.GAP.DisconnectCooldown < 0 {
		return ErrInvalidDisconnectCooldown
	}

	if cfg.GAP.InquiryLength < 0x01 || cfg.GAP.InquiryLength > 0x30 {
		return ErrInvalidInquiryLength
	}

	if cfg.GAP.LEScanPeriod <= 0 {
		return ErrInvalidLEScanPeriod
	}

	if err := validateServices(cfg.Services); err != nil {
		return err
	}

	return nil
}

// validateServices checks each declarative SDP search entry for correctness.
func validateServices(services []ServiceEntry) error {
	seen := make(map[string]struct{}, len(services))

	for i, s := range services {
		if s.UUID == "" {
			return fmt.Errorf("services[%d]: %w", i, ErrInvalidServiceEntry)
		}

		if s.Name != "" {
			if _, dup := seen[s.Name]; dup {
				return fmt.Errorf("services[%d] name %q: %w", i, s.Name, ErrDuplicateServiceName)
			}
			seen[s.Name] = struct{}{}
		}
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
