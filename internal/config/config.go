package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"waflow/internal/constants"
	"waflow/internal/models"
	"waflow/internal/security"
)

var (
	ErrMissingVerifyToken = models.ConfigError{Message: "missing webhook verify token"}
	ErrMissingDBPath      = models.ConfigError{Message: "missing database path"}
)

// LoadConfig reads the optional JSON config file, applies defaults and
// environment overrides, and validates the result. An empty path loads from
// environment and defaults only.
func LoadConfig(path string) (*models.Config, error) {
	var config models.Config

	if path != "" {
		if err := security.ValidateFilePath(path); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		file, err := os.ReadFile(path) // #nosec G304 - path validated above
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(file, &config); err != nil {
			return nil, err
		}
	}

	applyDefaults(&config)
	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(c *models.Config) {
	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Database.Path == "" {
		c.Database.Path = "waflow.db"
	}
	if c.Meta.GraphBaseURL == "" {
		c.Meta.GraphBaseURL = constants.GraphAPIBaseURL
	}
	if c.Meta.TimeoutSec <= 0 {
		c.Meta.TimeoutSec = constants.DefaultMetaHTTPTimeoutSec
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultBackoffInitialMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultBackoffMaxMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = constants.DefaultRetentionDays
	}
	if c.CleanupIntervalHours <= 0 {
		c.CleanupIntervalHours = constants.DefaultCleanupIntervalHours
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "waflow"
	}
	if c.Tracing.SampleRate <= 0 {
		c.Tracing.SampleRate = 0.1
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if token := firstEnv("META_VERIFY_TOKEN", "WHATSAPP_VERIFY_TOKEN", "VERIFY_TOKEN"); token != "" {
		c.Server.VerifyToken = token
	}
	if port := firstEnv("PORT", "APP_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil && parsed > 0 {
			c.Server.Port = parsed
		}
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if url := os.Getenv("META_GRAPH_URL"); url != "" {
		c.Meta.GraphBaseURL = url
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if IsDevelopment() && c.LogLevel == "" {
		c.LogLevel = "debug"
	}
}

// IsDevelopment reports whether the process runs in development mode
func IsDevelopment() bool {
	env := os.Getenv("WAFLOW_ENV")
	return env == "" || env == "development"
}

func validate(c *models.Config) error {
	if c.Server.VerifyToken == "" {
		if !IsDevelopment() {
			return ErrMissingVerifyToken
		}
		fmt.Fprintln(os.Stderr, "WARNING: webhook verify token not set. Set META_VERIFY_TOKEN to enable webhook verification.")
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return models.ConfigError{Message: fmt.Sprintf("invalid port %d", c.Server.Port)}
	}
	return nil
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if value := os.Getenv(name); value != "" {
			return value
		}
	}
	return ""
}
