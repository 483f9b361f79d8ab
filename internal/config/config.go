package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nholik/backend-sentinel/internal/registry"
)

const (
	envLogLevel           = "BS_LOG_LEVEL"
	envEnvironment        = "BS_ENVIRONMENT"
	envRegistryFile       = "BS_REGISTRY_FILE"
	envPollInterval       = "BS_POLL_INTERVAL"
	envMaxConcurrency     = "BS_MAX_CONCURRENCY"
	envRequiredCategories = "BS_REQUIRED_CATEGORIES"
	envHealthPort         = "BS_HEALTH_PORT"
	envMetricsPort        = "BS_METRICS_PORT"
	envStatePath          = "BS_STATE_PATH"
	envSlackWebhookURL    = "BS_SLACK_WEBHOOK_URL"
	envWebhookURL         = "BS_WEBHOOK_URL"
	envWebhookTemplate    = "BS_WEBHOOK_TEMPLATE"
	envDryRun             = "BS_DRY_RUN"
)

const (
	defaultLogLevel       = "info"
	defaultEnvironment    = "development"
	defaultPollInterval   = 30 * time.Second
	defaultMaxConcurrency = 8
	defaultHealthPort     = 8080
	defaultMetricsPort    = 9090
)

var defaultRequired = []registry.Category{registry.CategoryVector, registry.CategoryGraph, registry.CategoryStorage}

// Config describes runtime configuration loaded from the environment.
type Config struct {
	LogLevel           string
	Environment        string
	RegistryFile       string
	PollInterval       time.Duration
	MaxConcurrency     int
	RequiredCategories []registry.Category
	HealthPort         int
	MetricsPort        int
	StatePath          string
	SlackWebhookURL    string
	WebhookURL         string
	WebhookTemplate    string
	DryRun             bool
}

// Load reads configuration from environment variables and a local .env file if present.
// Existing environment variables take precedence over values in .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		LogLevel:           defaultLogLevel,
		Environment:        defaultEnvironment,
		PollInterval:       defaultPollInterval,
		MaxConcurrency:     defaultMaxConcurrency,
		RequiredCategories: append([]registry.Category(nil), defaultRequired...),
		HealthPort:         defaultHealthPort,
		MetricsPort:        defaultMetricsPort,
	}

	if value, ok := lookupTrimmed(envLogLevel); ok && value != "" {
		cfg.LogLevel = value
	}
	if value, ok := lookupTrimmed(envEnvironment); ok && value != "" {
		cfg.Environment = value
	}
	if value, ok := lookupTrimmed(envRegistryFile); ok {
		cfg.RegistryFile = value
	}

	if value, ok := lookupTrimmed(envPollInterval); ok {
		interval, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envPollInterval, err)
		}
		if interval <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envPollInterval)
		}
		cfg.PollInterval = interval
	}

	if value, ok := lookupTrimmed(envMaxConcurrency); ok {
		n, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envMaxConcurrency, err)
		}
		if n <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envMaxConcurrency)
		}
		cfg.MaxConcurrency = n
	}

	if value, ok := lookupTrimmed(envRequiredCategories); ok {
		categories, err := ParseCategories(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envRequiredCategories, err)
		}
		cfg.RequiredCategories = categories
	}

	var err error
	if cfg.HealthPort, err = portFromEnv(envHealthPort, cfg.HealthPort); err != nil {
		return Config{}, err
	}
	if cfg.MetricsPort, err = portFromEnv(envMetricsPort, cfg.MetricsPort); err != nil {
		return Config{}, err
	}

	if value, ok := lookupTrimmed(envStatePath); ok {
		cfg.StatePath = value
	}

	if value, ok := lookupTrimmed(envSlackWebhookURL); ok && value != "" {
		if err := validateURL(value, envSlackWebhookURL); err != nil {
			return Config{}, err
		}
		cfg.SlackWebhookURL = value
	}
	if value, ok := lookupTrimmed(envWebhookURL); ok && value != "" {
		if err := validateURL(value, envWebhookURL); err != nil {
			return Config{}, err
		}
		cfg.WebhookURL = value
	}
	if value, ok := os.LookupEnv(envWebhookTemplate); ok {
		cfg.WebhookTemplate = value
	}

	if value, ok := lookupTrimmed(envDryRun); ok && value != "" {
		dryRun, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envDryRun, err)
		}
		cfg.DryRun = dryRun
	}

	return cfg, nil
}

// ParseCategories parses a comma separated category list. An empty list is
// allowed and means nothing is required.
func ParseCategories(value string) ([]registry.Category, error) {
	categories := []registry.Category{}
	seen := make(map[registry.Category]bool)
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		category, err := registry.ParseCategory(part)
		if err != nil {
			return nil, err
		}
		if seen[category] {
			continue
		}
		seen[category] = true
		categories = append(categories, category)
	}
	return categories, nil
}

func portFromEnv(key string, def int) (int, error) {
	value, ok := lookupTrimmed(key)
	if !ok || value == "" {
		return def, nil
	}
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("%s must be between 0 and 65535", key)
	}
	return port, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
