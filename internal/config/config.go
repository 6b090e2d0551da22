// Package config manages gocaptp daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and CLI flags.
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

// Config holds the complete gocaptp daemon configuration.
type Config struct {
	Identity  IdentityConfig   `koanf:"identity"`
	Netlayers []NetlayerConfig `koanf:"netlayers"`
	Admin     AdminConfig      `koanf:"admin"`
	Metrics   MetricsConfig    `koanf:"metrics"`
	Log       LogConfig        `koanf:"log"`
	Bootstrap BootstrapConfig  `koanf:"bootstrap"`
}

// IdentityConfig describes the node's own advertised locator.
type IdentityConfig struct {
	// Designator is the host portion of the node's ocapn:// locator, e.g.
	// "203.0.113.5" or "node.example".
	Designator string `koanf:"designator"`

	// KeyFile optionally names a file holding a persisted Ed25519 seed. The
	// daemon does not read it: a fresh signing identity is generated on
	// every start whatever its value.
	KeyFile string `koanf:"key_file"`
}

// NetlayerConfig declares one transport the daemon listens on.
type NetlayerConfig struct {
	// Transport names the netlayer driver: "tcp", "tcp+tls", or "onion".
	Transport string `koanf:"transport"`

	// Addr is the listen address for this netlayer (e.g., ":9923").
	Addr string `koanf:"addr"`
}

// AdminConfig holds the admin HTTP API configuration.
type AdminConfig struct {
	// Addr is the HTTP listen address for the admin API (e.g., ":9924").
	Addr string `koanf:"addr"`
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

// BootstrapConfig declares swiss numbers to register on the daemon's own
// bootstrap object at startup, for objects that are always present rather
// than provisioned dynamically at runtime.
type BootstrapConfig struct {
	// SwissRegistrations lists statically configured swiss numbers, each
	// naming a built-in object kind the daemon knows how to construct.
	SwissRegistrations []SwissRegistration `koanf:"swiss"`

	// HandshakeTimeout is loaded and defaulted, but nothing in the daemon
	// applies it: the op:start-session exchange runs without a deadline.
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
}

// SwissRegistration binds a hex-encoded swiss number to a named built-in
// object kind.
type SwissRegistration struct {
	// SwissHex is the swiss number, hex-encoded (it is an arbitrary
	// byte-string on the wire).
	SwissHex string `koanf:"swiss_hex"`
	// Kind names the built-in object constructor, e.g. "echo".
	Kind string `koanf:"kind"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Netlayers: []NetlayerConfig{
			{Transport: "tcp", Addr: ":9923"},
		},
		Admin: AdminConfig{
			Addr: ":9924",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Bootstrap: BootstrapConfig{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for gocaptp configuration.
// Variables are named CAPTP_<section>_<key>, e.g., CAPTP_ADMIN_ADDR.
const envPrefix = "CAPTP_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (CAPTP_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	CAPTP_IDENTITY_DESIGNATOR -> identity.designator
//	CAPTP_ADMIN_ADDR          -> admin.addr
//	CAPTP_METRICS_ADDR        -> metrics.addr
//	CAPTP_LOG_LEVEL           -> log.level
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

// envKeyMapper transforms CAPTP_ADMIN_ADDR -> admin.addr. Strips the
// CAPTP_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"admin.addr":                 defaults.Admin.Addr,
		"metrics.addr":               defaults.Metrics.Addr,
		"metrics.path":               defaults.Metrics.Path,
		"log.level":                  defaults.Log.Level,
		"log.format":                 defaults.Log.Format,
		"bootstrap.handshake_timeout": defaults.Bootstrap.HandshakeTimeout.String(),
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if len(defaults.Netlayers) > 0 {
		netlayers := make([]map[string]any, 0, len(defaults.Netlayers))
		for _, nl := range defaults.Netlayers {
			netlayers = append(netlayers, map[string]any{
				"transport": nl.Transport,
				"addr":      nl.Addr,
			})
		}
		if err := k.Set("netlayers", netlayers); err != nil {
			return fmt.Errorf("set default netlayers: %w", err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyDesignator indicates the node's identity designator is empty.
	ErrEmptyDesignator = errors.New("identity.designator must not be empty")

	// ErrNoNetlayers indicates no netlayer was configured to listen on.
	ErrNoNetlayers = errors.New("at least one netlayer must be configured")

	// ErrEmptyNetlayerAddr indicates a netlayer entry has no listen address.
	ErrEmptyNetlayerAddr = errors.New("netlayer addr must not be empty")

	// ErrUnrecognizedTransport indicates a netlayer names an unknown
	// transport driver.
	ErrUnrecognizedTransport = errors.New("netlayer transport is not recognized")

	// ErrInvalidSwissHex indicates a configured swiss registration's hex
	// string does not decode.
	ErrInvalidSwissHex = errors.New("swiss registration swiss_hex does not decode")

	// ErrDuplicateSwiss indicates two bootstrap registrations share the
	// same swiss number.
	ErrDuplicateSwiss = errors.New("duplicate swiss registration")
)

// ValidTransports lists the recognized netlayer transport strings.
var ValidTransports = map[string]bool{
	"tcp":     true,
	"tcp+tls": true,
	"onion":   true,
}

// Validate checks the configuration for logical errors.
func Validate(cfg *Config) error {
	if cfg.Identity.Designator == "" {
		return ErrEmptyDesignator
	}

	if len(cfg.Netlayers) == 0 {
		return ErrNoNetlayers
	}
	for i, nl := range cfg.Netlayers {
		if nl.Addr == "" {
			return fmt.Errorf("netlayers[%d]: %w", i, ErrEmptyNetlayerAddr)
		}
		if !ValidTransports[nl.Transport] {
			return fmt.Errorf("netlayers[%d] transport %q: %w", i, nl.Transport, ErrUnrecognizedTransport)
		}
	}

	return validateSwiss(cfg.Bootstrap.SwissRegistrations)
}

func validateSwiss(regs []SwissRegistration) error {
	seen := make(map[string]struct{}, len(regs))
	for i, reg := range regs {
		if _, err := DecodeSwissHex(reg.SwissHex); err != nil {
			return fmt.Errorf("bootstrap.swiss[%d]: %w: %w", i, ErrInvalidSwissHex, err)
		}
		if _, dup := seen[reg.SwissHex]; dup {
			return fmt.Errorf("bootstrap.swiss[%d] %q: %w", i, reg.SwissHex, ErrDuplicateSwiss)
		}
		seen[reg.SwissHex] = struct{}{}
	}
	return nil
}

// DecodeSwissHex decodes a hex-encoded swiss number, as configured in
// BootstrapConfig.SwissRegistrations.
func DecodeSwissHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string %q", s)
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		hi, ok := hexVal(s[2*i])
		if !ok {
			return nil, fmt.Errorf("invalid hex digit %q", s[2*i])
		}
		lo, ok := hexVal(s[2*i+1])
		if !ok {
			return nil, fmt.Errorf("invalid hex digit %q", s[2*i+1])
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexVal(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	default:
		return 0, false
	}
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
