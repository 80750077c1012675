package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Backends accepted by DATA_BACKEND.
const (
	BackendMemory = "memory"
	BackendSheets = "sheets"
	BackendXLSX   = "xlsx"
)

var validBackends = []string{BackendMemory, BackendSheets, BackendXLSX}

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string
	// RefreshRateLimit caps POST /api/refresh per client and minute.
	RefreshRateLimit int
	TrustedProxies   []string

	// Backend selection
	DataBackend string

	// Google Sheets. The spreadsheet may be given as an ID or a full URL.
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	// User OAuth, used instead of the service account when a token file is set.
	GoogleOAuthClientJSON string
	GoogleOAuthClientFile string
	GoogleOAuthTokenFile  string

	// Local sources
	XLSXPath string
	DataDir  string

	// Table layout
	MonthlySheetName string
	SummarySheetName string
	PeriodColumn     string
	MonthColumn      string

	// Refresh
	RefreshInterval time.Duration
	CacheTTL        time.Duration
	// SnapshotPeriod pins the worker to one period; empty follows the latest.
	SnapshotPeriod string

	// AMQP (optional)
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string
}

func Load() *Config {
	refresh := time.Duration(getEnvInt("REFRESH_INTERVAL_MINUTES", 5)) * time.Minute

	cfg := &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RefreshRateLimit: getEnvInt("REFRESH_RATE_LIMIT", 10),
		TrustedProxies:   getEnvList("TRUSTED_PROXIES"),

		DataBackend: strings.ToLower(getEnv("DATA_BACKEND", BackendMemory)),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", getEnv("GOOGLE_SPREADSHEET_URL", "")),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),
		GoogleOAuthClientJSON:    getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthClientFile:    getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:     getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),

		XLSXPath: getEnv("XLSX_PATH", ""),
		DataDir:  getEnv("DATA_DIR", "data"),

		MonthlySheetName: getEnv("MONTHLY_SHEET_NAME", "Mensuel"),
		SummarySheetName: getEnv("SUMMARY_SHEET_NAME", ""),
		PeriodColumn:     getEnv("PERIOD_COLUMN", "Period"),
		MonthColumn:      getEnv("MONTH_COLUMN", "Mois"),

		RefreshInterval: refresh,
		CacheTTL:        getEnvDuration("CACHE_TTL", refresh),
		SnapshotPeriod:  strings.TrimSpace(getEnv("SNAPSHOT_PERIOD", "")),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "leasedash"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "report.snapshot"),
	}

	return cfg
}

// HasSummarySheet reports whether period totals come from a dedicated sheet
// rather than being derived from the monthly table.
func (c *Config) HasSummarySheet() bool {
	return strings.TrimSpace(c.SummarySheetName) != ""
}

// UsesOAuth reports whether the sheets backend authenticates with a saved
// user token instead of a service account.
func (c *Config) UsesOAuth() bool {
	return c.GoogleOAuthTokenFile != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RefreshRateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid refresh rate limit %d: must be positive", c.RefreshRateLimit))
	}
	for _, p := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", p))
		}
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendSheets:
		if strings.TrimSpace(c.GoogleSpreadsheetID) == "" {
			errors = append(errors, "GOOGLE_SPREADSHEET_ID or GOOGLE_SPREADSHEET_URL is required when using sheets backend")
		}
		if c.UsesOAuth() {
			if c.GoogleOAuthClientJSON == "" && c.GoogleOAuthClientFile == "" {
				errors = append(errors, "GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE is required with GOOGLE_OAUTH_TOKEN_FILE")
			}
			if _, err := os.Stat(c.GoogleOAuthTokenFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("oauth token file does not exist: %s (run leasedash-oauth-init)", c.GoogleOAuthTokenFile))
			}
			break
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_OAUTH_TOKEN_FILE must be provided for sheets backend")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	case BackendXLSX:
		if c.XLSXPath == "" {
			errors = append(errors, "XLSX_PATH is required when using xlsx backend")
		} else if _, err := os.Stat(c.XLSXPath); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("workbook does not exist: %s", c.XLSXPath))
		}
	}

	if strings.TrimSpace(c.MonthlySheetName) == "" {
		errors = append(errors, "monthly sheet name cannot be empty")
	}
	if strings.TrimSpace(c.PeriodColumn) == "" || strings.TrimSpace(c.MonthColumn) == "" {
		errors = append(errors, "period and month column names cannot be empty")
	}

	if c.RefreshInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at least 1 minute", c.RefreshInterval))
	} else if c.RefreshInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at most 24 hours", c.RefreshInterval))
	}
	if c.CacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be positive", c.CacheTTL))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRoutingKey == "" {
			errors = append(errors, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
