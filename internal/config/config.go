package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process settings: file locations, validator and fetcher limits, logging and
// optional outputs. What to collect lives in the playlist file (see Playlist).
// Load from env; call LoadEnvFile(".env") first to use a .env file.
type Config struct {
	// Paths
	TemplatePath string // curated template, e.g. demo.txt
	ConfigPath   string // playlist YAML, e.g. collect.yaml
	M3UPath      string
	TXTPath      string

	// Validator: per-URL deadline covers every attempt and backoff wait.
	ValidateTimeout     time.Duration
	ValidateAttempts    int
	ValidateBackoff     time.Duration
	ValidateConcurrency int
	ValidateRate        float64 // probes per second across all hosts; 0 = unlimited
	ValidatePerHost     int     // in-flight probes per origin; 0 = unlimited

	// Fetcher
	FetchTimeout     time.Duration
	FetchConcurrency int
	UserAgent        string

	LogLevel  string // debug | info | warn | error
	LogFormat string // text | json

	// Optional outputs; "" = disabled.
	MetricsFile string // Prometheus textfile
	HistoryDB   string // SQLite run history
}

// Load reads the IPTV_COLLECT_* environment. Unset or invalid values fall back to defaults.
func Load() *Config {
	c := &Config{
		TemplatePath:        getEnv("IPTV_COLLECT_TEMPLATE", "demo.txt"),
		ConfigPath:          getEnv("IPTV_COLLECT_CONFIG", "collect.yaml"),
		M3UPath:             getEnv("IPTV_COLLECT_M3U_FILE", "live.m3u"),
		TXTPath:             getEnv("IPTV_COLLECT_TXT_FILE", "live.txt"),
		ValidateTimeout:     getEnvDuration("IPTV_COLLECT_VALIDATE_TIMEOUT", 10*time.Second),
		ValidateAttempts:    getEnvInt("IPTV_COLLECT_VALIDATE_ATTEMPTS", 3),
		ValidateBackoff:     getEnvDuration("IPTV_COLLECT_VALIDATE_BACKOFF", time.Second),
		ValidateConcurrency: getEnvInt("IPTV_COLLECT_VALIDATE_CONCURRENCY", 32),
		ValidateRate:        getEnvFloat("IPTV_COLLECT_VALIDATE_RATE", 0),
		ValidatePerHost:     getEnvInt("IPTV_COLLECT_VALIDATE_PER_HOST", 4),
		FetchTimeout:        getEnvDuration("IPTV_COLLECT_FETCH_TIMEOUT", 60*time.Second),
		FetchConcurrency:    getEnvInt("IPTV_COLLECT_FETCH_CONCURRENCY", 4),
		UserAgent:           os.Getenv("IPTV_COLLECT_USER_AGENT"),
		LogLevel:            getEnv("IPTV_COLLECT_LOG_LEVEL", "info"),
		LogFormat:           getEnv("IPTV_COLLECT_LOG_FORMAT", "text"),
		MetricsFile:         os.Getenv("IPTV_COLLECT_METRICS_FILE"),
		HistoryDB:           os.Getenv("IPTV_COLLECT_HISTORY_DB"),
	}
	if c.ValidateTimeout <= 0 {
		c.ValidateTimeout = 10 * time.Second
	}
	if c.ValidateAttempts <= 0 {
		c.ValidateAttempts = 3
	}
	if c.ValidateConcurrency <= 0 {
		c.ValidateConcurrency = 32
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 60 * time.Second
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = 4
	}
	return c
}

// SourceURLs returns the sources to fetch: IPTV_COLLECT_SOURCES (comma-separated) when set,
// otherwise the playlist file's list.
func (c *Config) SourceURLs(p *Playlist) []string {
	if s := os.Getenv("IPTV_COLLECT_SOURCES"); s != "" {
		if out := splitList(s); len(out) > 0 {
			return out
		}
	}
	if p == nil {
		return nil
	}
	return p.Sources
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, _ := strconv.Atoi(v)
		return n
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
