package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	defaultReportTime   = "00:00"
	defaultCurrency     = "USD"
	defaultStorageDir   = "./storage"
	defaultMinVolume24h = 76_000_000
	defaultPollMillis   = 1000
	defaultRatePerMin   = 30
	defaultHTTPPort     = 8080
)

type Config struct {
	APIKey  string
	BaseURL string

	ReportTime   string
	Currency     string
	StorageDir   string
	MinVolume24h float64
	PollInterval time.Duration

	RateLimitPerMin int
	RedisURL        string

	HTTPEnabled bool
	HTTPPort    int
	HTTPAPIKey  string

	LogLevel log.Level
}

func Load() *Config {
	cfg := &Config{
		APIKey:   strings.TrimSpace(os.Getenv("CMC_API_KEY")),
		BaseURL:  strings.TrimSpace(os.Getenv("CMC_BASE_URL")),
		RedisURL: strings.TrimSpace(os.Getenv("REDIS_URL")),

		HTTPAPIKey: strings.TrimSpace(os.Getenv("HTTP_API_KEY")),
	}

	if cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(os.Getenv("API_KEY"))
	}
	if cfg.APIKey == "" {
		log.Warn("CMC_API_KEY not set, upstream requests will be rejected")
	}

	cfg.ReportTime = defaultReportTime
	if v := strings.TrimSpace(os.Getenv("REPORT_TIME")); v != "" {
		if validReportTime(v) {
			cfg.ReportTime = v
		} else {
			log.Warn("invalid REPORT_TIME, using default", "value", v, "default", defaultReportTime)
		}
	}

	cfg.Currency = defaultCurrency
	if v := strings.TrimSpace(os.Getenv("CONVERT_CURRENCY")); v != "" {
		cfg.Currency = strings.ToUpper(v)
	}

	cfg.StorageDir = defaultStorageDir
	if v := strings.TrimSpace(os.Getenv("STORAGE_DIR")); v != "" {
		cfg.StorageDir = v
	}

	cfg.MinVolume24h = defaultMinVolume24h
	if v := strings.TrimSpace(os.Getenv("MIN_VOLUME_24H")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			cfg.MinVolume24h = n
		} else {
			log.Warn("invalid MIN_VOLUME_24H, using default", "value", v)
		}
	}

	cfg.PollInterval = defaultPollMillis * time.Millisecond
	if v := strings.TrimSpace(os.Getenv("SCHEDULER_POLL_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PollInterval = time.Duration(n) * time.Millisecond
		}
	}

	cfg.RateLimitPerMin = defaultRatePerMin
	if v := strings.TrimSpace(os.Getenv("CMC_RATE_PER_MIN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RateLimitPerMin = n
		}
	}

	cfg.HTTPEnabled = true
	if v := strings.TrimSpace(os.Getenv("HTTP_ENABLED")); v != "" {
		cfg.HTTPEnabled = !strings.EqualFold(v, "false")
	}

	cfg.HTTPPort = defaultHTTPPort
	if v := strings.TrimSpace(os.Getenv("HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < 65536 {
			cfg.HTTPPort = n
		}
	}

	cfg.LogLevel = log.InfoLevel
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		if lvl, err := log.ParseLevel(strings.ToLower(v)); err == nil {
			cfg.LogLevel = lvl
		} else {
			log.Warn("invalid LOG_LEVEL, using info", "value", v)
		}
	}

	return cfg
}

func validReportTime(v string) bool {
	if len(v) != 5 {
		return false
	}
	_, err := time.Parse("15:04", v)
	return err == nil
}
