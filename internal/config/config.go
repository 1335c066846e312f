package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"receivables/internal/logger"
)

// Source names accepted in SYNC_SOURCES
const (
	SourceSheets     = "sheets"
	SourceDocumentAI = "documentai"
	SourceJSONFile   = "jsonfile"
)

type Config struct {
	// Tenant whose receivables this process syncs
	TenantID string

	// Database Configuration
	DBDriver    string
	DatabaseDSN string
	DBDebug     bool
	Migrations  bool

	// Sync Configuration
	SyncSources       []string
	SourceTimeout     time.Duration
	SourceParallelism int
	SyncInterval      time.Duration

	// Matching Configuration
	MatchMinScore     int
	MarkPaidOnConfirm bool

	// MatchDateBands overrides the date weights, e.g. "7:30,14:20,30:10"
	MatchDateBands string

	// Google Sheets Configuration
	GoogleSheetURL      string
	GoogleSheetInvoices string
	GoogleSheetPayments string
	GoogleSheetReview   string

	// Google Cloud / Document AI Configuration
	GoogleCloudProject         string
	GoogleCloudLocation        string
	DocumentAIProcessorID      string
	DocumentAIProcessorVersion string
	InvoiceInboxDir            string
	InboxWorkers               int
	PaymentTermDays            int

	// JSON export source
	JSONSourceFile string

	// HTTP
	HTTPAddr string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		TenantID:                   getEnv("TENANT_ID", "default"),
		DBDriver:                   strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DatabaseDSN:                getEnv("DATABASE_DSN", "receivables.db"),
		DBDebug:                    ParseBool(getEnv("DB_DEBUG", "")),
		Migrations:                 ParseBool(getEnv("MIGRATIONS", "")),
		SyncSources:                splitList(getEnv("SYNC_SOURCES", SourceJSONFile)),
		SourceTimeout:              getDuration("SOURCE_TIMEOUT", 2*time.Minute),
		SourceParallelism:          getInt("SOURCE_PARALLELISM", 4),
		SyncInterval:               getDuration("SYNC_INTERVAL", 24*time.Hour),
		MatchMinScore:              getInt("MATCH_MIN_SCORE", 40),
		MarkPaidOnConfirm:          ParseBool(getEnv("MARK_PAID_ON_CONFIRM", "true")),
		MatchDateBands:             getEnv("MATCH_DATE_BANDS", ""),
		GoogleSheetURL:             getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetInvoices:        getEnv("GOOGLE_SHEET_INVOICES", "Debitoren"),
		GoogleSheetPayments:        getEnv("GOOGLE_SHEET_PAYMENTS", "Bank"),
		GoogleSheetReview:          getEnv("GOOGLE_SHEET_REVIEW", "Abgleich"),
		GoogleCloudProject:         getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:        getEnv("GOOGLE_CLOUD_LOCATION", "eu"),
		DocumentAIProcessorID:      getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocumentAIProcessorVersion: getEnv("DOCUMENT_AI_PROCESSOR_VERSION", ""),
		InvoiceInboxDir:            getEnv("INVOICE_INBOX_DIR", ""),
		InboxWorkers:               getInt("INBOX_WORKERS", 4),
		PaymentTermDays:            getInt("PAYMENT_TERM_DAYS", 14),
		JSONSourceFile:             getEnv("JSON_SOURCE_FILE", "invoices.json"),
		HTTPAddr:                   getEnv("HTTP_ADDR", ":8080"),
		LogLevel:                   getEnv("LOG_LEVEL", "info"),
		LogFormat:                  getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:              getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:                  getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	if len(c.SyncSources) == 0 {
		return fmt.Errorf("SYNC_SOURCES must name at least one source")
	}
	for _, source := range c.SyncSources {
		switch source {
		case SourceSheets:
			if c.GoogleSheetURL == "" {
				return fmt.Errorf("GOOGLE_SHEET_URL is required for the sheets source")
			}
		case SourceDocumentAI:
			if c.GoogleCloudProject == "" {
				return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for the documentai source")
			}
			if c.DocumentAIProcessorID == "" {
				return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required for the documentai source")
			}
			if c.InvoiceInboxDir == "" {
				return fmt.Errorf("INVOICE_INBOX_DIR is required for the documentai source")
			}
		case SourceJSONFile:
			if c.JSONSourceFile == "" {
				return fmt.Errorf("JSON_SOURCE_FILE is required for the jsonfile source")
			}
		default:
			return fmt.Errorf("unknown source %q in SYNC_SOURCES", source)
		}
	}
	if c.SourceTimeout <= 0 {
		return fmt.Errorf("SOURCE_TIMEOUT must be positive")
	}
	if c.SourceParallelism <= 0 {
		return fmt.Errorf("SOURCE_PARALLELISM must be positive")
	}
	if c.MatchMinScore < 0 || c.MatchMinScore > 100 {
		return fmt.Errorf("MATCH_MIN_SCORE must be between 0 and 100")
	}
	if _, err := parseDateBands(c.MatchDateBands); err != nil {
		return fmt.Errorf("MATCH_DATE_BANDS: %w", err)
	}
	if c.PaymentTermDays < 0 {
		return fmt.Errorf("PAYMENT_TERM_DAYS must not be negative")
	}
	return nil
}

// HasSource reports whether the named source is enabled
func (c *Config) HasSource(name string) bool {
	for _, s := range c.SyncSources {
		if s == name {
			return true
		}
	}
	return false
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// ParseBool accepts 1/true/yes/on in any case
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
