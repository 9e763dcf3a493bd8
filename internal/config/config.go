package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSourceURL = "https://api.skinport.com/v1/items?app_id=730&currency=EUR&tradable=1"
	relayBaseURL     = "https://api.allorigins.win/raw?url="
)

// DefaultBlockedStatuses are the upstream statuses that send a fetch through the relay.
var DefaultBlockedStatuses = []int{403, 406, 429}

type Config struct {
	DatabaseURL string
	RedisURL    string
	MetricsPort string
	HTTPAddr    string

	RefreshInterval time.Duration
	CacheTTL        time.Duration
	ChangeThreshold float64
	FetchRPS        float64
	MirrorTTL       time.Duration

	Source SourceConfig

	LogLevel  string
	LogFormat string
	LogOutput string
	LogMaxAge int

	// Warnings collects values that could not be parsed and fell back to defaults.
	Warnings []string
}

// SourceConfig describes where prices are fetched from.
type SourceConfig struct {
	URL             string            `yaml:"url"`
	RelayURL        string            `yaml:"relay_url"`
	BlockedStatuses []int             `yaml:"blocked_statuses"`
	Headers         map[string]string `yaml:"headers"`
}

type fileConfig struct {
	Source SourceConfig `yaml:"source"`
}

func Load() *Config {
	// .env from the project root, then the working directory
	_ = godotenv.Load("../../.env")
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		MetricsPort: getEnv("METRICS_PORT", "9090"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		LogOutput:   getEnv("LOG_OUTPUT", "stdout"),
	}
	cfg.RefreshInterval = cfg.durEnvMs("PRICE_REFRESH_MS", 300000)
	cfg.CacheTTL = cfg.durEnvMs("PRICE_TTL_MS", 600000)
	cfg.MirrorTTL = cfg.durEnvMs("PRICE_MIRROR_TTL_MS", 3600000)
	cfg.ChangeThreshold = cfg.floatEnv("PRICE_CHANGE_THRESHOLD", 0.01)
	cfg.FetchRPS = cfg.floatEnv("PRICE_FETCH_RPS", 0.2)
	cfg.LogMaxAge = cfg.intEnv("LOG_MAX_AGE", 0)

	cfg.Source = SourceConfig{
		URL:             getEnv("PRICE_SOURCE_URL", DefaultSourceURL),
		BlockedStatuses: DefaultBlockedStatuses,
	}
	cfg.Source.RelayURL = getEnv("PRICE_RELAY_URL", RelayURL(cfg.Source.URL))
	if v := os.Getenv("PRICE_BLOCKED_STATUSES"); v != "" {
		codes, err := ParseStatuses(v)
		if err != nil {
			cfg.warn("PRICE_BLOCKED_STATUSES: %v, using %v", err, DefaultBlockedStatuses)
		} else {
			cfg.Source.BlockedStatuses = codes
		}
	}

	if path := os.Getenv("PRICES_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			cfg.warn("PRICES_CONFIG_FILE: %v", err)
		}
	}
	return cfg
}

// RelayURL wraps a source URL in the raw AllOrigins relay.
func RelayURL(source string) string {
	return relayBaseURL + url.QueryEscape(source)
}

// ParseStatuses reads a comma separated list of HTTP status codes.
func ParseStatuses(s string) ([]int, error) {
	var codes []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 100 || n > 599 {
			return nil, fmt.Errorf("invalid status %q", part)
		}
		codes = append(codes, n)
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("no statuses in %q", s)
	}
	return codes, nil
}

// applyFile overlays the source section of a YAML file on top of the environment.
func (c *Config) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if fc.Source.URL != "" {
		c.Source.URL = fc.Source.URL
		if fc.Source.RelayURL == "" && os.Getenv("PRICE_RELAY_URL") == "" {
			c.Source.RelayURL = RelayURL(fc.Source.URL)
		}
	}
	if fc.Source.RelayURL != "" {
		c.Source.RelayURL = fc.Source.RelayURL
	}
	if len(fc.Source.BlockedStatuses) > 0 {
		c.Source.BlockedStatuses = fc.Source.BlockedStatuses
	}
	if len(fc.Source.Headers) > 0 {
		c.Source.Headers = fc.Source.Headers
	}
	return nil
}

func (c *Config) warn(format string, args ...interface{}) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func (c *Config) intEnv(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		c.warn("invalid %s=%q, using %d", k, v, d)
		return d
	}
	return n
}

func (c *Config) floatEnv(k string, d float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 {
		c.warn("invalid %s=%q, using %g", k, v, d)
		return d
	}
	return f
}

func (c *Config) durEnvMs(k string, defMs int) time.Duration {
	ms := c.intEnv(k, defMs)
	if ms <= 0 {
		c.warn("invalid %s=%d, using %d", k, ms, defMs)
		ms = defMs
	}
	return time.Duration(ms) * time.Millisecond
}

func getEnv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
