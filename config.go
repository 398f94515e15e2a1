package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/nwah/tripnav/location"
	"github.com/nwah/tripnav/mode"
	"github.com/nwah/tripnav/nav"
)

// SessionConfig holds per-connection settings
type SessionConfig struct {
	SearchDebounce nav.Duration `toml:"search_debounce"`
}

// Config holds the application configuration
type Config struct {
	Port        string              `toml:"port"`
	LogLevel    string              `toml:"log_level"`
	SentryDSN   string              `toml:"sentry_dsn"`
	Environment string              `toml:"environment"`
	Nav         nav.NavConfig       `toml:"nav"`
	Location    location.MQTTConfig `toml:"location"`
	Session     SessionConfig       `toml:"session"`
}

// lookupEnv reads the process environment first, then the .env file
func lookupEnv(envFile map[string]string, key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return envFile[key]
}

// LoadConfig loads the configuration from a TOML file. Secrets missing from
// the file are taken from the environment or envPath.
func LoadConfig(filename, envPath string) (Config, error) {
	var config Config
	if _, err := toml.DecodeFile(filename, &config); err != nil {
		return Config{}, fmt.Errorf("error decoding config file: %w", err)
	}

	// a missing .env file is fine
	envFile, _ := godotenv.Read(envPath)
	if config.Nav.AccessToken == "" {
		config.Nav.AccessToken = lookupEnv(envFile, "MAPBOX_TOKEN")
	}
	if config.Nav.GoogleAPIKey == "" {
		config.Nav.GoogleAPIKey = lookupEnv(envFile, "GOOGLE_MAPS_API_KEY")
	}
	if config.SentryDSN == "" {
		config.SentryDSN = lookupEnv(envFile, "SENTRY_DSN")
	}
	if level := lookupEnv(envFile, "LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}

	if config.Port == "" {
		config.Port = ":8080" // Default port
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.Session.SearchDebounce.Duration <= 0 {
		config.Session.SearchDebounce.Duration = mode.DefaultDebounce
	}
	config.Nav = config.Nav.WithDefaults()

	if _, err := parseLevel(config.LogLevel); err != nil {
		return Config{}, err
	}
	if err := config.Nav.Validate(); err != nil {
		return Config{}, err
	}
	if (config.Location.Broker == "") != (config.Location.Topic == "") {
		return Config{}, fmt.Errorf("location.mqtt_broker and location.mqtt_topic must be set together")
	}

	return config, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q: must be debug, info, warn or error", s)
	}
}

// NewLogger returns a JSON logger whose keys match Cloud Logging
func NewLogger(service, level string) *slog.Logger {
	lvl, _ := parseLevel(level)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: a.Value}
			case slog.LevelKey:
				return slog.Attr{Key: "severity", Value: a.Value}
			case slog.TimeKey:
				return slog.String("timestamp", a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	})
	logger := slog.New(handler).With("service", service)
	if host, err := os.Hostname(); err == nil {
		logger = logger.With("host", host)
	}
	return logger
}
