// Package config loads the yaml configuration from the goremind home
// directory and applies defaults and environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DaemonConfig tunes the notification scan loop.
type DaemonConfig struct {
	// NormalIntervalSeconds is the baseline poll cadence.
	NormalIntervalSeconds int `yaml:"normal_interval_seconds"`
	// IdleIntervalSeconds applies after a scan with zero due items.
	IdleIntervalSeconds int `yaml:"idle_interval_seconds"`
	// FastIntervalSeconds applies after a scan with a large backlog.
	FastIntervalSeconds int `yaml:"fast_interval_seconds"`
	// FastThreshold is the due-item count that triggers the fast interval.
	FastThreshold int `yaml:"fast_threshold"`
	// BatchSize bounds how many due items one scan processes.
	BatchSize int `yaml:"batch_size"`
	// LeewaySeconds widens the due cutoff to absorb wakeup coalescing.
	LeewaySeconds int `yaml:"leeway_seconds"`
}

type NotifyConfig struct {
	// DefaultSound names the chime used when a reminder has no sound hint.
	DefaultSound string `yaml:"default_sound"`
	// ForceTransport pins delivery to one transport; empty uses the chain.
	ForceTransport string `yaml:"force_transport"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // OTLP HTTP endpoint; empty means stdout exporter
}

type Config struct {
	HomeDir string `yaml:"-"`

	DBPath    string          `yaml:"db_path"`
	LogLevel  string          `yaml:"log_level"`
	Daemon    DaemonConfig    `yaml:"daemon"`
	Notify    NotifyConfig    `yaml:"notify"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		Daemon: DaemonConfig{
			NormalIntervalSeconds: 60,
			IdleIntervalSeconds:   300,
			FastIntervalSeconds:   30,
			FastThreshold:         5,
			BatchSize:             16,
			LeewaySeconds:         10,
		},
		Notify: NotifyConfig{
			DefaultSound: "Glass",
		},
	}
}

// HomeDir resolves the goremind home, honoring the GOREMIND_HOME override.
func HomeDir() string {
	if override := os.Getenv("GOREMIND_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".goremind")
}

// Load reads config.yaml from the home directory, creating the directory
// if needed. A missing file yields pure defaults.
func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom is Load with an explicit home directory, for tests.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = homeDir

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create goremind home: %w", err)
	}

	configPath := filepath.Join(cfg.HomeDir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("GOREMIND_DB_PATH"); raw != "" {
		cfg.DBPath = raw
	}
	if raw := os.Getenv("GOREMIND_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("TELEGRAM_TOKEN"); raw != "" {
		cfg.Telegram.Token = raw
	}
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}
}

func normalize(cfg *Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.HomeDir, "goremind.db")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	d := &cfg.Daemon
	if d.NormalIntervalSeconds <= 0 {
		d.NormalIntervalSeconds = 60
	}
	if d.IdleIntervalSeconds <= 0 {
		d.IdleIntervalSeconds = 300
	}
	if d.FastIntervalSeconds <= 0 {
		d.FastIntervalSeconds = 30
	}
	if d.FastThreshold <= 0 {
		d.FastThreshold = 5
	}
	if d.BatchSize <= 0 {
		d.BatchSize = 16
	}
	if d.LeewaySeconds < 0 {
		d.LeewaySeconds = 10
	}
	if cfg.Notify.DefaultSound == "" {
		cfg.Notify.DefaultSound = "Glass"
	}
}

// LogDir is where the structured log and the notification fallback log live.
func (c Config) LogDir() string {
	return filepath.Join(c.HomeDir, "logs")
}

// PIDPath is the daemon pid file location.
func (c Config) PIDPath() string {
	return filepath.Join(c.HomeDir, "daemon.pid")
}

// NormalInterval, IdleInterval and FastInterval expose the daemon cadence
// as durations.
func (d DaemonConfig) NormalInterval() time.Duration {
	return time.Duration(d.NormalIntervalSeconds) * time.Second
}

func (d DaemonConfig) IdleInterval() time.Duration {
	return time.Duration(d.IdleIntervalSeconds) * time.Second
}

func (d DaemonConfig) FastInterval() time.Duration {
	return time.Duration(d.FastIntervalSeconds) * time.Second
}

func (d DaemonConfig) Leeway() time.Duration {
	return time.Duration(d.LeewaySeconds) * time.Second
}
