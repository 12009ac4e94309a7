package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultInterval   = 5 * time.Minute
	DefaultEmbedColor = 11730954
	MaxBatchSize      = 10
)

type Config struct {
	Bot         BotConfig      `toml:"bot"`
	Storage     StorageConfig  `toml:"storage"`
	Dispatch    DispatchConfig `toml:"dispatch"`
	Timeline    TimelineConfig `toml:"timeline"`
	Server      ServerConfig   `toml:"server"`
	SourcesFile string         `toml:"sources_file"`
	Sources     []SourceConfig `toml:"sources"`
}

type BotConfig struct {
	Name      string `toml:"name"`
	Interval  string `toml:"interval"`
	RunOnce   bool   `toml:"run_once"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

type StorageConfig struct {
	Type      string `toml:"type"`
	Path      string `toml:"path"`
	RedisAddr string `toml:"redis_addr"`
	RedisKey  string `toml:"redis_key"`
}

type DispatchConfig struct {
	Timeout    string  `toml:"timeout"`
	RatePerSec float64 `toml:"rate_per_sec"`
	Burst      int     `toml:"burst"`
	EmbedColor int     `toml:"embed_color"`
	BatchSize  int     `toml:"batch_size"`
}

type TimelineConfig struct {
	BearerToken string `toml:"bearer_token"`
	BaseURL     string `toml:"base_url"`
	MaxResults  int    `toml:"max_results"`
	Timeout     string `toml:"timeout"`
}

type ServerConfig struct {
	Enabled     bool   `toml:"enabled"`
	Addr        string `toml:"addr"`
	HistorySize int    `toml:"history_size"`
}

// SourceConfig describes one polled source. It is immutable once loaded.
type SourceConfig struct {
	URL       string   `toml:"url" json:"url"`
	Username  string   `toml:"username" json:"username"`
	UserImage string   `toml:"userimage" json:"userimage"`
	Webhooks  []string `toml:"webhooks" json:"webhooks"`
}

// Name is the display label used in logs.
func (s SourceConfig) Name() string {
	if s.Username != "" {
		return s.Username
	}
	return s.URL
}

func (t TimelineConfig) HasCredential() bool {
	return strings.TrimSpace(t.BearerToken) != ""
}

func (b BotConfig) IntervalDuration() time.Duration {
	return ParseDuration(b.Interval, DefaultInterval)
}

func (d DispatchConfig) TimeoutDuration() time.Duration {
	return ParseDuration(d.Timeout, 30*time.Second)
}

func (t TimelineConfig) TimeoutDuration() time.Duration {
	return ParseDuration(t.Timeout, 30*time.Second)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.SourcesFile != "" {
		sources, err := LoadSourcesFile(config.SourcesFile)
		if err != nil {
			return nil, err
		}
		config.Sources = append(config.Sources, sources...)
	}

	applyEnv(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func validateConfig(config *Config) error {
	if config.Bot.Name == "" {
		config.Bot.Name = "herald"
	}

	if config.Bot.Interval == "" {
		config.Bot.Interval = DefaultInterval.String()
	}

	interval, err := time.ParseDuration(config.Bot.Interval)
	if err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}
	if interval < time.Second {
		return fmt.Errorf("invalid interval: %s is shorter than one second", interval)
	}

	if config.Bot.LogLevel == "" {
		config.Bot.LogLevel = "info"
	}

	if config.Bot.LogFormat == "" {
		config.Bot.LogFormat = "text"
	}

	if config.Storage.Type == "" {
		config.Storage.Type = "file"
	}

	if config.Storage.Path == "" {
		switch config.Storage.Type {
		case "sqlite":
			config.Storage.Path = "./herald.db"
		default:
			config.Storage.Path = "./hashes.json"
		}
	}

	if config.Storage.RedisKey == "" {
		config.Storage.RedisKey = "herald:ledger"
	}

	if config.Storage.Type == "redis" && config.Storage.RedisAddr == "" {
		return fmt.Errorf("redis storage requires redis_addr")
	}

	if config.Dispatch.Timeout == "" {
		config.Dispatch.Timeout = "30s"
	}

	if _, err := time.ParseDuration(config.Dispatch.Timeout); err != nil {
		return fmt.Errorf("invalid dispatch timeout: %w", err)
	}

	if config.Dispatch.RatePerSec <= 0 {
		config.Dispatch.RatePerSec = 5
	}

	if config.Dispatch.Burst <= 0 {
		config.Dispatch.Burst = 5
	}

	if config.Dispatch.EmbedColor == 0 {
		config.Dispatch.EmbedColor = DefaultEmbedColor
	}

	if config.Dispatch.BatchSize <= 0 || config.Dispatch.BatchSize > MaxBatchSize {
		config.Dispatch.BatchSize = MaxBatchSize
	}

	if config.Timeline.BaseURL == "" {
		config.Timeline.BaseURL = "https://api.twitter.com"
	}

	if config.Timeline.MaxResults <= 0 {
		config.Timeline.MaxResults = 5
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}

	if config.Server.HistorySize <= 0 {
		config.Server.HistorySize = 100
	}

	if len(config.Sources) == 0 {
		return fmt.Errorf("at least one source must be configured")
	}

	seen := make(map[string]bool, len(config.Sources))
	for i, src := range config.Sources {
		if err := validateSource(src); err != nil {
			return fmt.Errorf("source %d: %w", i, err)
		}
		if seen[src.URL] {
			return fmt.Errorf("source %d: duplicate url %s", i, src.URL)
		}
		seen[src.URL] = true
	}

	return nil
}

func validateSource(src SourceConfig) error {
	if src.URL == "" {
		return fmt.Errorf("url is required")
	}

	u, err := url.Parse(src.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", src.URL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("url %q missing scheme or host", src.URL)
	}

	if len(src.Webhooks) == 0 {
		return fmt.Errorf("%s has no webhooks configured", src.URL)
	}

	for _, hook := range src.Webhooks {
		if strings.TrimSpace(hook) == "" {
			return fmt.Errorf("%s has an empty webhook address", src.URL)
		}
	}

	return nil
}

func ParseDuration(value string, defaultValue time.Duration) time.Duration {
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
