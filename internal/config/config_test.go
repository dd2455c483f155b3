package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/rflandau/nodenet/internal/testsupport"
	"github.com/rs/zerolog"
)

func TestParse(t *testing.T) {
	t.Run("empty keeps defaults", func(t *testing.T) {
		cfg, err := Parse("")
		if err != nil {
			t.Fatal(err)
		}
		if cfg != Default() {
			t.Error("defaults altered", ExpectedActual(Default(), cfg))
		}
	})

	t.Run("full file", func(t *testing.T) {
		cfg, err := Parse(`
address = 0x2A
port = "/dev/ttyAMA0"
baud = 115200
quiet = "2ms"
log_level = "debug"
capacity = 8
max_payload = 24
max_retries = 5
tick_interval = "250ms"
bus_idle_timeout = "50ms"
poll_interval = "10ms"
duplicate_window = "3s"
listen = "0.0.0.0:9000"
echo = false
`)
		if err != nil {
			t.Fatal(err)
		}
		want := Config{
			Address:         0x2A,
			Port:            "/dev/ttyAMA0",
			Baud:            115200,
			Quiet:           2 * time.Millisecond,
			LogLevel:        zerolog.DebugLevel,
			Capacity:        8,
			MaxPayload:      24,
			MaxRetries:      5,
			TickInterval:    250 * time.Millisecond,
			BusIdleTimeout:  50 * time.Millisecond,
			PollInterval:    10 * time.Millisecond,
			DuplicateWindow: 3 * time.Second,
			Listen:          "0.0.0.0:9000",
			Echo:            false,
		}
		if cfg != want {
			t.Error("bad config", ExpectedActual(want, cfg))
		}
	})

	t.Run("rejects", func(t *testing.T) {
		for name, text := range map[string]string{
			"address too large": `address = 256`,
			"bad duration":      `tick_interval = "soon"`,
			"bad level":         `log_level = "loud"`,
			"zero retries":      `max_retries = 0`,
			"unknown key":       `colour = "blue"`,
			"not toml":          `address = `,
		} {
			if _, err := Parse(text); err == nil {
				t.Errorf("%s: expected an error", name)
			}
		}
	})
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.toml")
	if err := os.WriteFile(path, []byte("address = 3\nlog_level = \"warn\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Run("file", func(t *testing.T) {
		cfg, err := Load(path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Address != 3 || cfg.LogLevel != zerolog.WarnLevel {
			t.Errorf("bad config: %+v", cfg)
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv(EnvLogLevel, "trace")
		t.Setenv(EnvAddress, "0x10")
		t.Setenv(EnvPort, "/dev/ttyS1")
		cfg, err := Load(path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.LogLevel != zerolog.TraceLevel {
			t.Error("bad level", ExpectedActual(zerolog.TraceLevel, cfg.LogLevel))
		}
		if cfg.Address != 0x10 {
			t.Error("bad address", ExpectedActual(uint8(0x10), cfg.Address))
		}
		if cfg.Port != "/dev/ttyS1" {
			t.Error("bad port", ExpectedActual("/dev/ttyS1", cfg.Port))
		}
	})

	t.Run("bad environment", func(t *testing.T) {
		t.Setenv(EnvAddress, "300")
		if _, err := Load(""); err == nil {
			t.Error("expected an error for an out of range address")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("engine options", func(t *testing.T) {
		cfg := Default()
		if n := len(cfg.EngineOptions()); n != 7 {
			t.Error("bad option count", ExpectedActual(7, n))
		}
	})
}
