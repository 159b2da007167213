package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// DatabaseConfig holds the database connection information.
type DatabaseConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// AdminConfig holds configuration for the admin API.
type AdminConfig struct {
	Password string `yaml:"password"`
}

// MediaConfig holds configuration for the upstream media resolver.
type MediaConfig struct {
	BaseURL string `yaml:"base_url"`
	Proxy   string `yaml:"proxy"`
	Timeout string `yaml:"timeout"`

	// TimeoutDuration is the parsed form of Timeout, populated by LoadConfig.
	TimeoutDuration time.Duration `yaml:"-"`
}

// DirectoryConfig holds configuration for the owner directory lookup.
type DirectoryConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`

	TimeoutDuration time.Duration `yaml:"-"`
}

// NotifyConfig holds the webhook endpoints for the administrative sink and
// owner messages. Empty URLs disable the corresponding notifications.
type NotifyConfig struct {
	AdminWebhook string `yaml:"admin_webhook"`
	OwnerWebhook string `yaml:"owner_webhook"`
	Timeout      string `yaml:"timeout"`

	TimeoutDuration time.Duration `yaml:"-"`
}

// SchedulerConfig holds configuration for the daily reset scheduler.
type SchedulerConfig struct {
	RetryCooldown string `yaml:"retry_cooldown"`
	MaxRetries    int    `yaml:"max_retries"`

	RetryCooldownDuration time.Duration `yaml:"-"`
}

// Config holds the configuration for the key gateway.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Admin     AdminConfig     `yaml:"admin"`
	Media     MediaConfig     `yaml:"media"`
	Directory DirectoryConfig `yaml:"directory"`
	Notify    NotifyConfig    `yaml:"notify"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Port      int             `yaml:"port"`
	Debug     bool            `yaml:"debug"`
}

func parseDuration(name, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", name, err)
	}
	return d, nil
}

// LoadConfig reads and parses the configuration file. It returns the config and a potential warning message.
var LoadConfig = func(path string) (*Config, string, error) {
	var config Config
	var warning string

	data, err := os.ReadFile(path)
	if err == nil {
		// File exists, so unmarshal it
		err = yaml.Unmarshal(data, &config)
		if err != nil {
			return nil, "", fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		// An error other than "not found" occurred
		return nil, "", fmt.Errorf("failed to read config file: %w", err)
	}
	// If file does not exist, we continue with an empty config and rely on environment variables.

	// Set default values
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.Scheduler.RetryCooldown == "" {
		warning = "scheduler.retry_cooldown not set, using default value of 5m"
	}
	if config.Scheduler.MaxRetries == 0 {
		config.Scheduler.MaxRetries = 3
	}

	// Override with environment variables if they exist
	if dsn := os.Getenv("YTGATE_DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if dbType := os.Getenv("YTGATE_DATABASE_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if port := os.Getenv("YTGATE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}
	if password := os.Getenv("YTGATE_ADMIN_PASSWORD"); password != "" {
		config.Admin.Password = password
	}
	if mediaURL := os.Getenv("YTGATE_MEDIA_BASE_URL"); mediaURL != "" {
		config.Media.BaseURL = mediaURL
	}
	if proxy := os.Getenv("YTGATE_MEDIA_PROXY"); proxy != "" {
		config.Media.Proxy = proxy
	}
	if dirURL := os.Getenv("YTGATE_DIRECTORY_BASE_URL"); dirURL != "" {
		config.Directory.BaseURL = dirURL
	}
	if adminHook := os.Getenv("YTGATE_NOTIFY_ADMIN_WEBHOOK"); adminHook != "" {
		config.Notify.AdminWebhook = adminHook
	}
	if ownerHook := os.Getenv("YTGATE_NOTIFY_OWNER_WEBHOOK"); ownerHook != "" {
		config.Notify.OwnerWebhook = ownerHook
	}
	if debug := os.Getenv("YTGATE_DEBUG"); debug != "" {
		config.Debug = (debug == "true")
	}

	// Parse duration fields, falling back to defaults when unset.
	if config.Media.TimeoutDuration, err = parseDuration("media.timeout", config.Media.Timeout, 60*time.Second); err != nil {
		return nil, "", err
	}
	if config.Directory.TimeoutDuration, err = parseDuration("directory.timeout", config.Directory.Timeout, 10*time.Second); err != nil {
		return nil, "", err
	}
	if config.Notify.TimeoutDuration, err = parseDuration("notify.timeout", config.Notify.Timeout, 10*time.Second); err != nil {
		return nil, "", err
	}
	if config.Scheduler.RetryCooldownDuration, err = parseDuration("scheduler.retry_cooldown", config.Scheduler.RetryCooldown, 5*time.Minute); err != nil {
		return nil, "", err
	}

	// Final validation after overrides
	if config.Database.Type == "" || config.Database.DSN == "" {
		return nil, "", fmt.Errorf("database type and dsn must be configured in config.yaml or via environment variables")
	}
	if config.Media.BaseURL == "" {
		return nil, "", fmt.Errorf("media.base_url must be configured in config.yaml or via environment variables")
	}

	return &config, warning, nil
}
