// Package config loads a node's settings from a TOML file, with environment overrides applied on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rflandau/nodenet/pkg/nodenet"
	"github.com/rflandau/nodenet/pkg/nodenet/engine"
	"github.com/rs/zerolog"
)

// Environment variables consulted after the file is read.
const (
	EnvLogLevel = "NODENET_LOG_LEVEL"
	EnvAddress  = "NODENET_ADDRESS"
	EnvPort     = "NODENET_PORT"
)

// Config is everything a node daemon needs.
type Config struct {
	Address nodenet.Addr // our bus address

	Port     string        // serial device
	Baud     int           // line speed
	Quiet    time.Duration // silence before the bus counts as idle
	LogLevel zerolog.Level

	Capacity        int
	MaxPayload      int
	MaxRetries      uint8
	TickInterval    time.Duration
	BusIdleTimeout  time.Duration
	PollInterval    time.Duration
	DuplicateWindow time.Duration

	Listen string // control plane ip:port; empty disables it
	Echo   bool   // answer every request with its own payload
}

// Default returns the configuration used for anything a file does not set.
func Default() Config {
	return Config{
		Address:        1,
		Port:           "/dev/ttyUSB0",
		Baud:           9600,
		LogLevel:       zerolog.InfoLevel,
		Capacity:       nodenet.DefaultPoolCapacity,
		MaxPayload:     nodenet.DefaultMaxPayload,
		MaxRetries:     nodenet.DefaultMaxRetries,
		TickInterval:   nodenet.DefaultTickInterval,
		BusIdleTimeout: engine.DefaultBusIdleTimeout,
		PollInterval:   engine.DefaultPollInterval,
		Listen:         "127.0.0.1:8080",
		Echo:           true,
	}
}

type fileConfig struct {
	Address         int    `toml:"address"`
	Port            string `toml:"port"`
	Baud            int    `toml:"baud"`
	Quiet           string `toml:"quiet"`
	LogLevel        string `toml:"log_level"`
	Capacity        int    `toml:"capacity"`
	MaxPayload      int    `toml:"max_payload"`
	MaxRetries      int    `toml:"max_retries"`
	TickInterval    string `toml:"tick_interval"`
	BusIdleTimeout  string `toml:"bus_idle_timeout"`
	PollInterval    string `toml:"poll_interval"`
	DuplicateWindow string `toml:"duplicate_window"`
	Listen          string `toml:"listen"`
	Echo            bool   `toml:"echo"`
}

// Load reads the TOML file at path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		if cfg, err = Parse(string(raw)); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Parse decodes TOML text over the defaults.
// Keys absent from the text keep their default values.
func Parse(text string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.Decode(text, &raw)
	if err != nil {
		return Config{}, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("address") {
		if raw.Address < 0 || raw.Address > 0xFF {
			return Config{}, fmt.Errorf("address must be 0 <= x <= 255 (given %d)", raw.Address)
		}
		cfg.Address = nodenet.Addr(raw.Address)
	}
	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud") {
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("log_level") {
		lvl, err := zerolog.ParseLevel(strings.TrimSpace(raw.LogLevel))
		if err != nil {
			return Config{}, fmt.Errorf("parse log_level: %w", err)
		}
		cfg.LogLevel = lvl
	}
	if meta.IsDefined("capacity") {
		cfg.Capacity = raw.Capacity
	}
	if meta.IsDefined("max_payload") {
		cfg.MaxPayload = raw.MaxPayload
	}
	if meta.IsDefined("max_retries") {
		if raw.MaxRetries < 1 || raw.MaxRetries > 0xFF {
			return Config{}, fmt.Errorf("max_retries must be 1 <= x <= 255 (given %d)", raw.MaxRetries)
		}
		cfg.MaxRetries = uint8(raw.MaxRetries)
	}
	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("echo") {
		cfg.Echo = raw.Echo
	}

	for _, d := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"quiet", raw.Quiet, &cfg.Quiet},
		{"tick_interval", raw.TickInterval, &cfg.TickInterval},
		{"bus_idle_timeout", raw.BusIdleTimeout, &cfg.BusIdleTimeout},
		{"poll_interval", raw.PollInterval, &cfg.PollInterval},
		{"duplicate_window", raw.DuplicateWindow, &cfg.DuplicateWindow},
	} {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	return cfg, nil
}

// applyEnv overrides fields from the environment.
func (cfg *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		lvl, err := zerolog.ParseLevel(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvLogLevel, err)
		}
		cfg.LogLevel = lvl
	}
	if v, ok := os.LookupEnv(EnvAddress); ok {
		// accepts 0x-prefixed hex as well as decimal
		a, err := strconv.ParseUint(strings.TrimSpace(v), 0, 8)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvAddress, err)
		}
		cfg.Address = nodenet.Addr(a)
	}
	if v, ok := os.LookupEnv(EnvPort); ok {
		cfg.Port = strings.TrimSpace(v)
	}
	return nil
}

// Validate reports the first setting that cannot work.
func (cfg Config) Validate() error {
	switch {
	case cfg.Port == "":
		return fmt.Errorf("port must not be empty")
	case cfg.Baud <= 0:
		return fmt.Errorf("baud must be > 0 (given %d)", cfg.Baud)
	case cfg.Capacity < 1 || cfg.Capacity > nodenet.MaxPoolCapacity:
		return fmt.Errorf("capacity must be 1 <= x <= %d (given %d)", nodenet.MaxPoolCapacity, cfg.Capacity)
	case cfg.MaxPayload < 1:
		return fmt.Errorf("max_payload must be >= 1 (given %d)", cfg.MaxPayload)
	case cfg.MaxRetries < 1:
		return fmt.Errorf("max_retries must be >= 1 (given %d)", cfg.MaxRetries)
	case cfg.Quiet < 0, cfg.TickInterval < 0, cfg.BusIdleTimeout < 0, cfg.PollInterval < 0, cfg.DuplicateWindow < 0:
		return fmt.Errorf("durations must be >= 0")
	}
	return nil
}

// EngineOptions translates the configuration into engine options.
func (cfg Config) EngineOptions() []engine.Option {
	return []engine.Option{
		engine.WithPoolCapacity(cfg.Capacity),
		engine.WithMaxPayload(cfg.MaxPayload),
		engine.WithMaxRetries(cfg.MaxRetries),
		engine.WithTickInterval(cfg.TickInterval),
		engine.WithBusIdleTimeout(cfg.BusIdleTimeout),
		engine.WithPollInterval(cfg.PollInterval),
		engine.WithDuplicateWindow(cfg.DuplicateWindow),
	}
}
