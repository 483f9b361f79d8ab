package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/nholik/backend-sentinel/internal/registry"
)

func defaultConfig() Config {
	return Config{
		LogLevel:           defaultLogLevel,
		Environment:        defaultEnvironment,
		PollInterval:       defaultPollInterval,
		MaxConcurrency:     defaultMaxConcurrency,
		RequiredCategories: []registry.Category{registry.CategoryVector, registry.CategoryGraph, registry.CategoryStorage},
		HealthPort:         defaultHealthPort,
		MetricsPort:        defaultMetricsPort,
	}
}

func TestLoad_ValidationAndDefaults(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		wantErr bool
		want    func() Config
	}{
		{
			name: "defaults applied",
			env:  map[string]string{},
			want: defaultConfig,
		},
		{
			name:    "invalid poll interval",
			env:     map[string]string{envPollInterval: "nope"},
			wantErr: true,
		},
		{
			name:    "zero poll interval",
			env:     map[string]string{envPollInterval: "0s"},
			wantErr: true,
		},
		{
			name:    "negative poll interval",
			env:     map[string]string{envPollInterval: "-5s"},
			wantErr: true,
		},
		{
			name:    "zero max concurrency",
			env:     map[string]string{envMaxConcurrency: "0"},
			wantErr: true,
		},
		{
			name:    "unknown required category",
			env:     map[string]string{envRequiredCategories: "vector,search"},
			wantErr: true,
		},
		{
			name:    "health port out of range",
			env:     map[string]string{envHealthPort: "70000"},
			wantErr: true,
		},
		{
			name:    "invalid slack webhook url",
			env:     map[string]string{envSlackWebhookURL: "not-a-url"},
			wantErr: true,
		},
		{
			name:    "invalid webhook url",
			env:     map[string]string{envWebhookURL: "example.com/hook"},
			wantErr: true,
		},
		{
			name:    "invalid dry run",
			env:     map[string]string{envDryRun: "maybe"},
			wantErr: true,
		},
		{
			name: "overrides",
			env: map[string]string{
				envLogLevel:           "debug",
				envEnvironment:        "prod",
				envRegistryFile:       "/etc/sentinel/services.yml",
				envPollInterval:       "45s",
				envMaxConcurrency:     "2",
				envRequiredCategories: " Vector , cache,vector",
				envHealthPort:         "0",
				envMetricsPort:        "9100",
				envStatePath:          "/var/lib/sentinel/state.json",
				envSlackWebhookURL:    "https://hooks.slack.com/services/T00/B00/XXX",
				envWebhookURL:         "https://example.com/hook",
				envDryRun:             "true",
			},
			want: func() Config {
				return Config{
					LogLevel:           "debug",
					Environment:        "prod",
					RegistryFile:       "/etc/sentinel/services.yml",
					PollInterval:       45 * time.Second,
					MaxConcurrency:     2,
					RequiredCategories: []registry.Category{registry.CategoryVector, registry.CategoryCache},
					HealthPort:         0,
					MetricsPort:        9100,
					StatePath:          "/var/lib/sentinel/state.json",
					SlackWebhookURL:    "https://hooks.slack.com/services/T00/B00/XXX",
					WebhookURL:         "https://example.com/hook",
					DryRun:             true,
				}
			},
		},
		{
			name: "empty required categories",
			env:  map[string]string{envRequiredCategories: ""},
			want: func() Config {
				cfg := defaultConfig()
				cfg.RequiredCategories = []registry.Category{}
				return cfg
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			restoreDir := mustChdir(t, tmpDir)
			defer restoreDir()

			for key, value := range tc.env {
				t.Setenv(key, value)
			}

			got, err := Load()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if want := tc.want(); !reflect.DeepEqual(got, want) {
				t.Fatalf("unexpected config:\n got %+v\nwant %+v", got, want)
			}
		})
	}
}

func TestLoad_DotEnvAndEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	restoreDir := mustChdir(t, tmpDir)
	defer restoreDir()

	dotenv := []byte(`
# example .env
BS_ENVIRONMENT=from-dotenv
BS_SLACK_WEBHOOK_URL=https://hooks.slack.com/services/test
BS_MAX_CONCURRENCY=3
`)

	if err := os.WriteFile(filepath.Join(tmpDir, ".env"), dotenv, 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	t.Setenv(envEnvironment, "from-env")
	// godotenv sets process variables; register them for cleanup.
	t.Setenv(envSlackWebhookURL, "")
	os.Unsetenv(envSlackWebhookURL)
	t.Setenv(envMaxConcurrency, "")
	os.Unsetenv(envMaxConcurrency)

	got, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Environment != "from-env" {
		t.Fatalf("environment did not prefer env: %s", got.Environment)
	}
	if got.SlackWebhookURL != "https://hooks.slack.com/services/test" {
		t.Fatalf("slack webhook url not loaded from .env: %s", got.SlackWebhookURL)
	}
	if got.MaxConcurrency != 3 {
		t.Fatalf("max concurrency not loaded from .env: %d", got.MaxConcurrency)
	}
	if got.PollInterval != defaultPollInterval {
		t.Fatalf("unexpected poll interval: %s", got.PollInterval)
	}
}

func TestParseCategories(t *testing.T) {
	got, err := ParseCategories("graph, objectstore ,graph")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []registry.Category{registry.CategoryGraph, registry.CategoryStorage}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseCategories() = %v, want %v", got, want)
	}
}

func mustChdir(t *testing.T, dir string) func() {
	t.Helper()
	original, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	return func() {
		if err := os.Chdir(original); err != nil {
			t.Fatalf("restore dir: %v", err)
		}
	}
}
