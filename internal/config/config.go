package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration of the experiment service
type Config struct {
	// Telegram bot token
	BotToken string
	// Database driver name: "sqlite3" or "postgres"
	DatabaseDriver string
	// Data source name passed to the driver
	DatabaseURL string
	// Telegram user IDs allowed to run admin commands
	AdminUserIDs map[int64]bool
	// Optional YAML file overriding the compiled-in experiment protocol
	ExperimentFile string
	// Address for the Prometheus endpoint, empty disables it
	MetricsAddr string
	// zap level name
	LogLevel string
	// Development logging (console encoder)
	LogDevelopment bool
	// Idle sessions older than this are evicted
	SessionTTL time.Duration
	// How often the janitor runs
	JanitorInterval time.Duration
	// Whether the janitor is scheduled at all
	JanitorEnabled bool
	// Send a per-session CSV document at the end of a session
	ExportCSV bool
	// Minimum spacing between countdown message edits
	CountdownRefresh time.Duration
}

// Default returns the configuration used when no environment overrides are set
func Default() *Config {
	return &Config{
		DatabaseDriver:   "sqlite3",
		DatabaseURL:      "data/memtest.db",
		AdminUserIDs:     make(map[int64]bool),
		LogLevel:         "info",
		SessionTTL:       30 * time.Minute,
		JanitorInterval:  time.Minute,
		JanitorEnabled:   true,
		ExportCSV:        false,
		CountdownRefresh: 5 * time.Second,
	}
}

// Load reads an optional .env file and then the process environment
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		// godotenv.Load never overrides variables that are already set
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function such as os.Getenv
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := Default()

	cfg.BotToken = getenv("TELEGRAM_BOT_TOKEN")
	if v := getenv("DATABASE_DRIVER"); v != "" {
		switch v {
		case "sqlite3", "postgres":
			cfg.DatabaseDriver = v
		default:
			return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", v)
		}
	}
	if v := getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	cfg.ExperimentFile = getenv("EXPERIMENT_FILE")
	cfg.MetricsAddr = getenv("METRICS_ADDR")
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	cfg.LogDevelopment = getenv("LOG_DEVELOPMENT") == "true"

	if adminIDs := getenv("ADMIN_USER_IDS"); adminIDs != "" {
		for _, idStr := range strings.Split(adminIDs, ",") {
			idStr = strings.TrimSpace(idStr)
			if idStr == "" {
				continue
			}
			id, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid admin user ID %q: %w", idStr, err)
			}
			cfg.AdminUserIDs[id] = true
		}
	}

	var err error
	if cfg.SessionTTL, err = durationEnv(getenv, "SESSION_TTL", cfg.SessionTTL); err != nil {
		return nil, err
	}
	if cfg.JanitorInterval, err = durationEnv(getenv, "JANITOR_INTERVAL", cfg.JanitorInterval); err != nil {
		return nil, err
	}
	if cfg.CountdownRefresh, err = durationEnv(getenv, "COUNTDOWN_REFRESH", cfg.CountdownRefresh); err != nil {
		return nil, err
	}
	cfg.JanitorEnabled = getenv("ENABLE_JANITOR") != "false"
	cfg.ExportCSV = getenv("EXPORT_CSV") == "true"

	return cfg, nil
}

// IsAdmin checks if a Telegram user may run admin commands
func (c *Config) IsAdmin(userID int64) bool {
	return c.AdminUserIDs[userID]
}

func durationEnv(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
