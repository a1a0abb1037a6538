package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP Server
	Port               string
	LogLevel           string
	RateLimitPerMinute int
	TrustedProxies     []string
	MaxUploadBytes     int64

	// Database
	DBDriver     string
	SQLiteDBPath string
	DatabaseURL  string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Extraction service
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIVisionModel string
	OpenAITextModel   string
	ExtractTimeout    time.Duration

	// Extraction cache
	CacheBackend string
	RedisURL     string
	CacheTTL     time.Duration

	// Analytics defaults
	AnalyticsMonths int
	AnalyticsTopN   int

	// Worker
	ReconcileInterval time.Duration

	// Google Sheets export (optional)
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// LoadDotEnv reads a .env file when present; a missing file is not an error.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

func Load() *Config {
	cfg := &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 25<<20)),

		DBDriver:     getEnv("DB_DRIVER", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fintrack.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fintrack"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "transactions_recorded"),

		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		OpenAIVisionModel: getEnv("OPENAI_VISION_MODEL", "gpt-4o-mini"),
		OpenAITextModel:   getEnv("OPENAI_TEXT_MODEL", "gpt-4o-mini"),
		ExtractTimeout:    getEnvDuration("EXTRACT_TIMEOUT", 45*time.Second),

		CacheBackend: getEnv("CACHE_BACKEND", "memory"),
		RedisURL:     getEnv("REDIS_URL", ""),
		CacheTTL:     getEnvDuration("CACHE_TTL", 24*time.Hour),

		AnalyticsMonths: getEnvInt("ANALYTICS_MONTHS", 6),
		AnalyticsTopN:   getEnvInt("ANALYTICS_TOP_N", 5),

		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 15*time.Minute),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 || c.RateLimitPerMinute > 10000 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be between 1 and 10000 requests per minute", c.RateLimitPerMinute))
	}
	if c.MaxUploadBytes < 1<<10 {
		errors = append(errors, fmt.Sprintf("invalid max upload size %d: must be at least 1024 bytes", c.MaxUploadBytes))
	}

	switch c.DBDriver {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite driver")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using postgres driver")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, fmt.Sprintf("invalid DATABASE_URL '%s': must be a postgres:// URL", redact(c.DatabaseURL)))
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid db driver '%s': must be one of [sqlite postgres]", c.DBDriver))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", redact(c.AMQPURL), err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.OpenAIBaseURL != "" {
		if u, err := url.Parse(c.OpenAIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid OPENAI_BASE_URL '%s'", c.OpenAIBaseURL))
		}
	}
	if c.ExtractTimeout < time.Second || c.ExtractTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid extract timeout %v: must be between 1s and 5m", c.ExtractTimeout))
	}

	switch c.CacheBackend {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			errors = append(errors, "REDIS_URL is required when using redis cache backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid cache backend '%s': must be one of [memory redis]", c.CacheBackend))
	}

	if c.AnalyticsMonths < 1 || c.AnalyticsMonths > 120 {
		errors = append(errors, fmt.Sprintf("invalid analytics months %d: must be between 1 and 120", c.AnalyticsMonths))
	}
	if c.AnalyticsTopN < 1 || c.AnalyticsTopN > 50 {
		errors = append(errors, fmt.Sprintf("invalid analytics top N %d: must be between 1 and 50", c.AnalyticsTopN))
	}

	if c.ReconcileInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid reconcile interval %v: must be at least 1 second", c.ReconcileInterval))
	} else if c.ReconcileInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid reconcile interval %v: must be at most 24 hours", c.ReconcileInterval))
	}

	// Sheets export is optional but needs credentials once a spreadsheet is named
	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when GOOGLE_SPREADSHEET_ID is set")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets export")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ExtractionEnabled reports whether receipt and voice capture can be served.
func (c *Config) ExtractionEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// redact hides the password of a URL before it is logged or returned.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
