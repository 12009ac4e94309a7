package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvBearerToken   = "TWITTER_BEARER_TOKEN"
	EnvUpdateTimeout = "RSS_UPDATE_TIMEOUT"
	EnvLogLevel      = "HERALD_LOG_LEVEL"
)

// LoadDotEnv reads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	return godotenv.Load(existing...)
}

func applyEnv(config *Config) {
	if token := strings.TrimSpace(os.Getenv(EnvBearerToken)); token != "" {
		config.Timeline.BearerToken = token
	}

	// Milliseconds, for compatibility with older deployments.
	if raw := strings.TrimSpace(os.Getenv(EnvUpdateTimeout)); raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > 0 {
			config.Bot.Interval = (time.Duration(ms) * time.Millisecond).String()
		}
	}

	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		config.Bot.LogLevel = level
	}
}
