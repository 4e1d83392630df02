package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DiscordToken        string
	DatabaseDriver      string // postgres|sqlite
	DatabaseURL         string
	LogLevel            string
	Environment         string
	PollCronSpec        string // Tick for the one-off message poller
	ResyncCronSpec      string // Periodic re-enumeration of recurring configs
	ReferenceTimezone   string // Zone in which one-off date/time fields are read
	PlatformTimeout     time.Duration
	SendRatePerSecond   int
	DispatchConcurrency int
	SheetsAPIKey        string
	SheetsSpreadsheetID string
	SheetsBaseURL       string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")

	cfg.DatabaseDriver = strings.ToLower(os.Getenv("DATABASE_DRIVER"))
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = "postgres"
	}
	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "sqlite" {
		return nil, fmt.Errorf("invalid DATABASE_DRIVER %q: expected postgres or sqlite", cfg.DatabaseDriver)
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.PollCronSpec = os.Getenv("POLL_CRON_SPEC")
	if cfg.PollCronSpec == "" {
		cfg.PollCronSpec = "* * * * *" // Default: every minute
	}

	cfg.ResyncCronSpec = os.Getenv("RESYNC_CRON_SPEC")
	if cfg.ResyncCronSpec == "" {
		cfg.ResyncCronSpec = "*/15 * * * *" // Default: every 15 minutes
	}

	cfg.ReferenceTimezone = os.Getenv("REFERENCE_TIMEZONE")
	if cfg.ReferenceTimezone == "" {
		cfg.ReferenceTimezone = "UTC"
	}
	if _, err := time.LoadLocation(cfg.ReferenceTimezone); err != nil {
		return nil, fmt.Errorf("invalid REFERENCE_TIMEZONE: %w", err)
	}

	cfg.PlatformTimeout = 10 * time.Second
	if v := os.Getenv("PLATFORM_TIMEOUT"); v != "" {
		cfg.PlatformTimeout, err = time.ParseDuration(v)
		if err != nil || cfg.PlatformTimeout <= 0 {
			return nil, fmt.Errorf("invalid PLATFORM_TIMEOUT %q", v)
		}
	}

	cfg.SendRatePerSecond, err = intFromEnv("SEND_RATE_PER_SECOND", 5)
	if err != nil {
		return nil, err
	}
	cfg.DispatchConcurrency, err = intFromEnv("DISPATCH_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}

	cfg.SheetsAPIKey = os.Getenv("SHEETS_API_KEY")
	cfg.SheetsSpreadsheetID = os.Getenv("SHEETS_SPREADSHEET_ID")
	cfg.SheetsBaseURL = os.Getenv("SHEETS_BASE_URL")
	if cfg.SheetsBaseURL == "" {
		cfg.SheetsBaseURL = "https://sheets.googleapis.com/v4"
	}

	return cfg, nil
}

// RequireDiscord is checked by commands that connect to the gateway.
func (c *AppConfig) RequireDiscord() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN is not set")
	}
	return nil
}

func intFromEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: expected a positive integer", key, v)
	}
	return n, nil
}
