package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dantte-lp/gocaptp/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if len(cfg.Netlayers) != 1 || cfg.Netlayers[0].Addr != ":9923" {
		t.Errorf("Netlayers = %+v, want a single tcp netlayer on :9923", cfg.Netlayers)
	}

	if cfg.Admin.Addr != ":9924" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":9924")
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

	if cfg.Bootstrap.HandshakeTimeout != 10*time.Second {
		t.Errorf("Bootstrap.HandshakeTimeout = %v, want %v", cfg.Bootstrap.HandshakeTimeout, 10*time.Second)
	}

	// DefaultConfig leaves Identity.Designator empty, so defaults alone
	// fail validation: a node cannot pick its own designator for itself.
	cfg.Identity.Designator = "node.example"
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() with a designator failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
identity:
  designator: "node.example"
admin:
  addr: ":60000"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
netlayers:
  - transport: tcp
    addr: ":7000"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Identity.Designator != "node.example" {
		t.Errorf("Identity.Designator = %q, want %q", cfg.Identity.Designator, "node.example")
	}

	if cfg.Admin.Addr != ":60000" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":60000")
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

	if len(cfg.Netlayers) != 1 || cfg.Netlayers[0].Addr != ":7000" {
		t.Errorf("Netlayers = %+v, want a single tcp netlayer on :7000", cfg.Netlayers)
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override identity and log.level. Everything else
	// should inherit from defaults.
	yamlContent := `
identity:
  designator: "node.example"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Identity.Designator != "node.example" {
		t.Errorf("Identity.Designator = %q, want %q", cfg.Identity.Designator, "node.example")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Admin.Addr != ":9924" {
		t.Errorf("Admin.Addr = %q, want default %q", cfg.Admin.Addr, ":9924")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}

	if len(cfg.Netlayers) != 1 || cfg.Netlayers[0].Addr != ":9923" {
		t.Errorf("Netlayers = %+v, want default tcp netlayer on :9923", cfg.Netlayers)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	base := func() *config.Config {
		cfg := config.DefaultConfig()
		cfg.Identity.Designator = "node.example"
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty designator",
			modify: func(cfg *config.Config) {
				cfg.Identity.Designator = ""
			},
			wantErr: config.ErrEmptyDesignator,
		},
		{
			name: "no netlayers",
			modify: func(cfg *config.Config) {
				cfg.Netlayers = nil
			},
			wantErr: config.ErrNoNetlayers,
		},
		{
			name: "empty netlayer addr",
			modify: func(cfg *config.Config) {
				cfg.Netlayers = []config.NetlayerConfig{{Transport: "tcp", Addr: ""}}
			},
			wantErr: config.ErrEmptyNetlayerAddr,
		},
		{
			name: "unrecognized transport",
			modify: func(cfg *config.Config) {
				cfg.Netlayers = []config.NetlayerConfig{{Transport: "carrier-pigeon", Addr: ":1"}}
			},
			wantErr: config.ErrUnrecognizedTransport,
		},
		{
			name: "invalid swiss hex",
			modify: func(cfg *config.Config) {
				cfg.Bootstrap.SwissRegistrations = []config.SwissRegistration{
					{SwissHex: "not-hex", Kind: "echo"},
				}
			},
			wantErr: config.ErrInvalidSwissHex,
		},
		{
			name: "duplicate swiss registration",
			modify: func(cfg *config.Config) {
				cfg.Bootstrap.SwissRegistrations = []config.SwissRegistration{
					{SwissHex: "deadbeef", Kind: "echo"},
					{SwissHex: "deadbeef", Kind: "echo"},
				}
			},
			wantErr: config.ErrDuplicateSwiss,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := base()
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

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
identity:
  designator: "node.example"
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("CAPTP_ADMIN_ADDR", ":60000")
	t.Setenv("CAPTP_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Admin.Addr != ":60000" {
		t.Errorf("Admin.Addr = %q, want %q (from env)", cfg.Admin.Addr, ":60000")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
identity:
  designator: "node.example"
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("CAPTP_METRICS_ADDR", ":9200")
	t.Setenv("CAPTP_METRICS_PATH", "/custom")

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

// writeTemp creates a temporary YAML file and returns its path. The file is
// automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "gocaptp.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
