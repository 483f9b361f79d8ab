package config

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nholik/backend-sentinel/internal/registry"
	"gopkg.in/yaml.v3"
)

const (
	defaultServiceTimeout = 30 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryDelay     = 5 * time.Second
)

var defaultCategories = map[registry.Backend]registry.Category{
	registry.BackendChroma:   registry.CategoryVector,
	registry.BackendQdrant:   registry.CategoryVector,
	registry.BackendWeaviate: registry.CategoryVector,
	registry.BackendNeo4j:    registry.CategoryGraph,
	registry.BackendArangoDB: registry.CategoryGraph,
	registry.BackendMinIO:    registry.CategoryStorage,
	registry.BackendRedis:    registry.CategoryCache,
}

// ServiceSpec is one service entry of a registry file.
type ServiceSpec struct {
	Name          string            `yaml:"name"`
	Category      string            `yaml:"category,omitempty"`
	Backend       string            `yaml:"backend,omitempty"`
	Host          string            `yaml:"host,omitempty"`
	Port          int               `yaml:"port,omitempty"`
	URI           string            `yaml:"uri,omitempty"`
	Username      string            `yaml:"username,omitempty"`
	Password      string            `yaml:"password,omitempty"`
	APIKey        string            `yaml:"api_key,omitempty"`
	Database      string            `yaml:"database,omitempty"`
	Secure        bool              `yaml:"secure,omitempty"`
	Timeout       time.Duration     `yaml:"timeout,omitempty"`
	RetryAttempts *int              `yaml:"retry_attempts,omitempty"`
	RetryDelay    *time.Duration    `yaml:"retry_delay,omitempty"`
	Extra         map[string]string `yaml:"extra,omitempty"`
}

// ServicesFile is the parsed YAML structure of a registry file:
// services: [{name, backend, host, port, ...}], fallbacks: {primary: [alt, ...]}
type ServicesFile struct {
	Services  []ServiceSpec       `yaml:"services"`
	Fallbacks map[string][]string `yaml:"fallbacks,omitempty"`
}

// LoadServices builds a registry from the YAML file at path. An empty path
// builds it from the backend environment variables with the default
// fallback plan.
func LoadServices(path string) (*registry.Registry, error) {
	if path == "" {
		descriptors, err := ServicesFromEnv()
		if err != nil {
			return nil, err
		}
		return registry.New(descriptors, registry.DefaultFallbackPlan())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}

	var sf ServicesFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse registry file: %w", err)
	}
	if len(sf.Services) == 0 {
		return nil, fmt.Errorf("registry file contains no services")
	}

	descriptors := make([]registry.Descriptor, 0, len(sf.Services))
	for i, spec := range sf.Services {
		d, err := spec.descriptor()
		if err != nil {
			if spec.Name == "" {
				return nil, fmt.Errorf("service %d: %w", i, err)
			}
			return nil, fmt.Errorf("service %q: %w", spec.Name, err)
		}
		descriptors = append(descriptors, d)
	}

	// An explicit plan must only name configured services.
	if sf.Fallbacks != nil {
		return registry.NewStrict(descriptors, registry.FallbackPlan(sf.Fallbacks))
	}
	return registry.New(descriptors, registry.DefaultFallbackPlan())
}

// RegistryLoader returns a loader that re-reads the registry source on
// every call. Its signature matches manager.Loader.
func RegistryLoader(path string) func(context.Context) (*registry.Registry, error) {
	return func(ctx context.Context) (*registry.Registry, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return LoadServices(path)
	}
}

func (s ServiceSpec) descriptor() (registry.Descriptor, error) {
	if s.Name == "" {
		return registry.Descriptor{}, fmt.Errorf("name is required")
	}

	backend := registry.Backend(strings.ToLower(s.Backend))
	if backend == "" {
		backend = registry.Backend(strings.ToLower(s.Name))
		if !backend.Known() {
			return registry.Descriptor{}, fmt.Errorf("backend is required")
		}
	}

	var category registry.Category
	if s.Category != "" {
		parsed, err := registry.ParseCategory(strings.ToLower(s.Category))
		if err != nil {
			return registry.Descriptor{}, err
		}
		category = parsed
	} else {
		known, ok := defaultCategories[backend]
		if !ok {
			return registry.Descriptor{}, fmt.Errorf("category is required for backend %q", backend)
		}
		category = known
	}

	if s.Host == "" && s.URI == "" {
		return registry.Descriptor{}, fmt.Errorf("host or uri is required")
	}
	if s.Port < 0 || s.Port > 65535 {
		return registry.Descriptor{}, fmt.Errorf("port %d out of range", s.Port)
	}

	d := registry.Descriptor{
		Name:          s.Name,
		Category:      category,
		Backend:       backend,
		Host:          s.Host,
		Port:          s.Port,
		URI:           s.URI,
		Username:      s.Username,
		Password:      s.Password,
		APIKey:        s.APIKey,
		Database:      s.Database,
		Secure:        s.Secure,
		Timeout:       s.Timeout,
		RetryAttempts: defaultRetryAttempts,
		RetryDelay:    defaultRetryDelay,
		Extra:         s.Extra,
	}
	if d.Timeout == 0 {
		d.Timeout = defaultServiceTimeout
	}
	if s.RetryAttempts != nil {
		d.RetryAttempts = *s.RetryAttempts
	}
	if s.RetryDelay != nil {
		d.RetryDelay = *s.RetryDelay
	}
	if d.Timeout < 0 || d.RetryDelay < 0 || d.RetryAttempts < 0 {
		return registry.Descriptor{}, fmt.Errorf("timeout, retry_attempts and retry_delay cannot be negative")
	}
	return d, nil
}

// envService describes how one backend is read from the environment.
type envService struct {
	name     string
	prefix   string
	category registry.Category
	backend  registry.Backend
	port     int
	// uriKey and uriScheme build the default URI from host and port.
	uriKey    string
	uriScheme string
	userKey   string
	userDef   string
	passKey   string
	passDef   string
	dbKey     string
	dbDef     string
	apiKeyKey string
	secureKey string
	extras    []envExtra
}

type envExtra struct {
	key, env, def string
}

var envServices = []envService{
	{
		name: "chromadb", prefix: "CHROMA", category: registry.CategoryVector, backend: registry.BackendChroma,
		port: 8001, uriKey: "CHROMADB_URL", uriScheme: "http",
		extras: []envExtra{{key: "collection_name", env: "CHROMA_COLLECTION_NAME", def: "kotaemon_documents"}},
	},
	{
		name: "neo4j", prefix: "NEO4J", category: registry.CategoryGraph, backend: registry.BackendNeo4j,
		port: 7687, uriKey: "NEO4J_URI", uriScheme: "bolt",
		userKey: "NEO4J_USERNAME", userDef: "neo4j", passKey: "NEO4J_PASSWORD", passDef: "password",
		dbKey: "NEO4J_DATABASE", dbDef: "neo4j",
		extras: []envExtra{{key: "http_port", env: "NEO4J_HTTP_PORT"}, {key: "http_url", env: "NEO4J_HTTP_URL"}},
	},
	{
		name: "minio", prefix: "MINIO", category: registry.CategoryStorage, backend: registry.BackendMinIO,
		port: 9000, uriKey: "MINIO_ENDPOINT",
		userKey: "MINIO_ACCESS_KEY", userDef: "minioadmin", passKey: "MINIO_SECRET_KEY", passDef: "minioadmin",
		secureKey: "MINIO_SECURE",
		extras: []envExtra{{key: "bucket", env: "MINIO_BUCKET", def: "kotaemon-pipeline"}, {key: "region", env: "MINIO_REGION"}},
	},
	{
		name: "redis", prefix: "REDIS", category: registry.CategoryCache, backend: registry.BackendRedis,
		port: 6379, uriKey: "REDIS_URL",
		passKey: "REDIS_PASSWORD", dbKey: "REDIS_DB", dbDef: "0",
	},
	{
		name: "qdrant", prefix: "QDRANT", category: registry.CategoryVector, backend: registry.BackendQdrant,
		port: 6333, uriKey: "QDRANT_URL", uriScheme: "http", apiKeyKey: "QDRANT_API_KEY",
		extras: []envExtra{{key: "collection_name", env: "QDRANT_COLLECTION_NAME", def: "kotaemon_documents"}},
	},
	{
		name: "weaviate", prefix: "WEAVIATE", category: registry.CategoryVector, backend: registry.BackendWeaviate,
		port: 8080, uriKey: "WEAVIATE_URL", uriScheme: "http", apiKeyKey: "WEAVIATE_API_KEY",
		extras: []envExtra{{key: "class_name", env: "WEAVIATE_CLASS_NAME", def: "KotaemonDocument"}},
	},
	{
		name: "arangodb", prefix: "ARANGODB", category: registry.CategoryGraph, backend: registry.BackendArangoDB,
		port: 8529, uriKey: "ARANGODB_URL", uriScheme: "http",
		userKey: "ARANGODB_USERNAME", userDef: "root", passKey: "ARANGODB_PASSWORD", passDef: "password",
		dbKey: "ARANGODB_DATABASE", dbDef: "kotaemon",
	},
}

// ServicesFromEnv returns the built-in descriptors, each overridable through
// its <PREFIX>_HOST, <PREFIX>_PORT, <PREFIX>_TIMEOUT, <PREFIX>_RETRY_ATTEMPTS
// and <PREFIX>_RETRY_DELAY variables plus backend specific ones.
func ServicesFromEnv() ([]registry.Descriptor, error) {
	descriptors := make([]registry.Descriptor, 0, len(envServices))
	for _, svc := range envServices {
		d, err := svc.descriptor()
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", svc.name, err)
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

func (s envService) descriptor() (registry.Descriptor, error) {
	host := envOr(s.prefix+"_HOST", "localhost")
	port, err := envInt(s.prefix+"_PORT", s.port)
	if err != nil {
		return registry.Descriptor{}, err
	}
	timeout, err := envSeconds(s.prefix+"_TIMEOUT", defaultServiceTimeout)
	if err != nil {
		return registry.Descriptor{}, err
	}
	attempts, err := envInt(s.prefix+"_RETRY_ATTEMPTS", defaultRetryAttempts)
	if err != nil {
		return registry.Descriptor{}, err
	}
	delay, err := envSeconds(s.prefix+"_RETRY_DELAY", defaultRetryDelay)
	if err != nil {
		return registry.Descriptor{}, err
	}

	d := registry.Descriptor{
		Name:          s.name,
		Category:      s.category,
		Backend:       s.backend,
		Host:          host,
		Port:          port,
		Timeout:       timeout,
		RetryAttempts: attempts,
		RetryDelay:    delay,
	}

	hostPort := net.JoinHostPort(host, strconv.Itoa(port))
	uriDefault := hostPort
	if s.uriScheme != "" {
		uriDefault = s.uriScheme + "://" + hostPort
	}
	if s.uriKey != "" {
		d.URI = envOr(s.uriKey, "")
		if d.URI == "" && s.backend != registry.BackendRedis {
			d.URI = uriDefault
		}
	}
	if s.userKey != "" {
		d.Username = envOr(s.userKey, s.userDef)
	}
	if s.passKey != "" {
		d.Password = envOr(s.passKey, s.passDef)
	}
	if s.dbKey != "" {
		d.Database = envOr(s.dbKey, s.dbDef)
	}
	if s.apiKeyKey != "" {
		d.APIKey = envOr(s.apiKeyKey, "")
	}
	if s.secureKey != "" {
		if value := envOr(s.secureKey, ""); value != "" {
			d.Secure = strings.EqualFold(value, "true")
		}
	}
	for _, extra := range s.extras {
		value := envOr(extra.env, extra.def)
		if value == "" {
			continue
		}
		if d.Extra == nil {
			d.Extra = make(map[string]string, len(s.extras))
		}
		d.Extra[extra.key] = value
	}
	return d, nil
}

func envOr(key, def string) string {
	if value, ok := lookupTrimmed(key); ok && value != "" {
		return value
	}
	return def
}

func envInt(key string, def int) (int, error) {
	value, ok := lookupTrimmed(key)
	if !ok || value == "" {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s cannot be negative", key)
	}
	return n, nil
}

// envSeconds accepts a whole number of seconds or a Go duration.
func envSeconds(key string, def time.Duration) (time.Duration, error) {
	value, ok := lookupTrimmed(key)
	if !ok || value == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(value); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("%s cannot be negative", key)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s cannot be negative", key)
	}
	return d, nil
}
