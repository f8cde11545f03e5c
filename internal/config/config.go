package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port         string
	SecureCookie bool
	RateLimitRPM int
	// TrustedProxies lists proxy addresses whose X-Forwarded-For is honoured.
	TrustedProxies []string

	// Database
	SQLiteDBPath string

	// Logging
	LogLevel string

	// Web sessions
	SessionSecret string
	SessionTTL    time.Duration

	// Tokens issued on mobile login are bound to this organisation, named
	// by title or by id.
	DefaultOrganisation   string
	DefaultOrganisationID int64

	// Ingest
	MobileBatchMode     string
	BillSequenceBackend string
	RedisURL            string
	TitleCacheTTL       time.Duration

	// AMQP, disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export sink
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		SecureCookie:   getEnvBool("SECURE_COOKIE", false),
		RateLimitRPM:   getEnvInt("RATE_LIMIT_RPM", 120),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/expensehub.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionTTL:    getEnvDuration("SESSION_TTL", 12*time.Hour),

		DefaultOrganisation:   getEnv("DEFAULT_ORGANISATION", ""),
		DefaultOrganisationID: int64(getEnvInt("DEFAULT_ORGANISATION_ID", 0)),

		MobileBatchMode:     getEnv("MOBILE_BATCH_MODE", "best_effort"),
		BillSequenceBackend: getEnv("BILL_SEQUENCE_BACKEND", "sqlite"),
		RedisURL:            getEnv("REDIS_URL", ""),
		TitleCacheTTL:       getEnvDuration("TITLE_CACHE_TTL", 5*time.Minute),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "expensehub"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "expense_created"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Expenses"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
	}
}

// Validate checks the settings shared by every binary and the HTTP server.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	problems = append(problems, c.storageProblems()...)

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if c.SessionSecret == "" {
		problems = append(problems, "SESSION_SECRET is required")
	} else if len(c.SessionSecret) < 16 {
		problems = append(problems, "SESSION_SECRET must be at least 16 characters")
	}
	if c.SessionTTL < time.Minute {
		problems = append(problems, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	if c.DefaultOrganisation == "" && c.DefaultOrganisationID == 0 {
		problems = append(problems, "either DEFAULT_ORGANISATION or DEFAULT_ORGANISATION_ID must be provided")
	}
	if c.DefaultOrganisationID < 0 {
		problems = append(problems, fmt.Sprintf("invalid default organisation id %d", c.DefaultOrganisationID))
	}

	if c.MobileBatchMode != "best_effort" && c.MobileBatchMode != "atomic" {
		problems = append(problems, fmt.Sprintf("invalid mobile batch mode '%s': must be 'best_effort' or 'atomic'", c.MobileBatchMode))
	}

	switch c.BillSequenceBackend {
	case "sqlite":
	case "redis":
		if c.RedisURL == "" {
			problems = append(problems, "REDIS_URL is required when BILL_SEQUENCE_BACKEND is redis")
		} else if u, err := url.Parse(c.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			problems = append(problems, fmt.Sprintf("invalid Redis URL '%s': scheme must be 'redis' or 'rediss'", c.RedisURL))
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid bill sequence backend '%s': must be 'sqlite' or 'redis'", c.BillSequenceBackend))
	}

	if c.RateLimitRPM < 1 {
		problems = append(problems, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitRPM))
	}
	if c.TitleCacheTTL < 0 {
		problems = append(problems, fmt.Sprintf("invalid title cache TTL %v", c.TitleCacheTTL))
	}

	problems = append(problems, c.amqpProblems()...)

	return combine(problems)
}

// ValidateExportWorker checks what the export worker needs: the store,
// a broker and a spreadsheet.
func (c *Config) ValidateExportWorker() error {
	problems := c.storageProblems()

	if c.AMQPURL == "" {
		problems = append(problems, "AMQP_URL is required for the export worker")
	}
	problems = append(problems, c.amqpProblems()...)

	if c.GoogleSpreadsheetID == "" {
		problems = append(problems, "GOOGLE_SPREADSHEET_ID is required for the export worker")
	}
	if c.GoogleSheetName == "" {
		problems = append(problems, "GOOGLE_SHEET_NAME is required for the export worker")
	}
	hasFile := c.GoogleServiceAccountFile != ""
	hasJSON := c.GoogleServiceAccountJSON != ""
	if !hasFile && !hasJSON {
		problems = append(problems, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided")
	}
	if hasFile {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			problems = append(problems, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	return combine(problems)
}

func (c *Config) storageProblems() []string {
	if c.SQLiteDBPath == "" {
		return []string{"SQLite database path cannot be empty"}
	}
	dir := filepath.Dir(c.SQLiteDBPath)
	if dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return []string{fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err)}
			}
		}
	}
	return nil
}

func (c *Config) amqpProblems() []string {
	if c.AMQPURL == "" {
		return nil
	}
	var problems []string
	if parsed, err := url.Parse(c.AMQPURL); err != nil {
		problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
	} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
	}
	if c.AMQPExchange == "" {
		problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
	}
	return problems
}

func combine(problems []string) error {
	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
