package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile          = ".env"
	defaultPort             = "8080"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 15 * time.Second
	defaultIdleTimeout      = 60 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultEnvironment      = "local"
	defaultLogLevel         = "info"
	defaultStorageBackend   = BackendMemory
	defaultRedisAddr        = "localhost:6379"
	defaultRedisPrefix      = "gamified:visitor:"
	defaultRedisTTL         = 30 * 24 * time.Hour
	defaultFirestoreColl    = "storefront_visitors"
	defaultCatalogPath      = "data/catalog.yaml"
	defaultSessionIdleTTL   = 2 * time.Hour
	defaultSessionSweepTick = 10 * time.Minute
)

// Storage backends accepted by GAMIFIED_STORAGE_BACKEND.
const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Session SessionConfig
	Storage StorageConfig
	Catalog CatalogConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Production reports whether the server runs in the prod environment.
func (c ServerConfig) Production() bool {
	return c.Environment == "prod"
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string
}

// SessionConfig controls visitor cookies and in-memory session retention.
type SessionConfig struct {
	SigningKey    string
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// StorageConfig selects and configures the visitor key-value backend.
type StorageConfig struct {
	Backend   string
	Redis     RedisConfig
	Firestore FirestoreConfig
}

// RedisConfig stores connection parameters for the redis backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every visitor hash key.
	Prefix string
	// TTL expires visitor hashes that receive no writes; zero keeps them forever.
	TTL time.Duration
}

// FirestoreConfig stores database parameters for the firestore backend.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	Collection   string
}

// CatalogConfig points at the catalog sources.
type CatalogConfig struct {
	DataPath   string
	MarkupPath string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env overrides
// and environment variables.
func Load(_ context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	port := stringWithDefault(lookup, "GAMIFIED_PORT", "")
	if port == "" {
		// Cloud Run style fallback.
		port = stringWithDefault(lookup, "PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			Environment:     strings.ToLower(stringWithDefault(lookup, "GAMIFIED_ENV", defaultEnvironment)),
			ReadTimeout:     durationWithDefault(lookup, "GAMIFIED_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "GAMIFIED_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "GAMIFIED_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "GAMIFIED_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Log: LogConfig{
			Level: stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel),
		},
		Session: SessionConfig{
			SigningKey:    stringWithDefault(lookup, "GAMIFIED_SESSION_SIGNING_KEY", ""),
			IdleTTL:       durationWithDefault(lookup, "GAMIFIED_SESSION_IDLE_TTL", defaultSessionIdleTTL),
			SweepInterval: durationWithDefault(lookup, "GAMIFIED_SESSION_SWEEP_INTERVAL", defaultSessionSweepTick),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(stringWithDefault(lookup, "GAMIFIED_STORAGE_BACKEND", defaultStorageBackend)),
			Redis: RedisConfig{
				Addr:     stringWithDefault(lookup, "GAMIFIED_REDIS_ADDR", defaultRedisAddr),
				Password: stringWithDefault(lookup, "GAMIFIED_REDIS_PASSWORD", ""),
				DB:       intWithDefault(lookup, "GAMIFIED_REDIS_DB", 0),
				Prefix:   stringWithDefault(lookup, "GAMIFIED_REDIS_PREFIX", defaultRedisPrefix),
				TTL:      durationWithDefault(lookup, "GAMIFIED_REDIS_TTL", defaultRedisTTL),
			},
			Firestore: FirestoreConfig{
				ProjectID:    stringWithDefault(lookup, "GAMIFIED_FIRESTORE_PROJECT_ID", stringWithDefault(lookup, "GOOGLE_CLOUD_PROJECT", "")),
				EmulatorHost: stringWithDefault(lookup, "GAMIFIED_FIRESTORE_EMULATOR_HOST", stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", "")),
				Collection:   stringWithDefault(lookup, "GAMIFIED_FIRESTORE_COLLECTION", defaultFirestoreColl),
			},
		},
		Catalog: CatalogConfig{
			DataPath:   stringWithDefault(lookup, "GAMIFIED_CATALOG_DATA", defaultCatalogPath),
			MarkupPath: stringWithDefault(lookup, "GAMIFIED_CATALOG_MARKUP", ""),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if strings.TrimSpace(cfg.Server.Port) == "" {
		missing = append(missing, "Server.Port")
	} else if _, err := strconv.Atoi(cfg.Server.Port); err != nil {
		missing = append(missing, "Server.Port")
	}
	if cfg.Server.Production() && strings.TrimSpace(cfg.Session.SigningKey) == "" {
		missing = append(missing, "Session.SigningKey")
	}
	if cfg.Session.IdleTTL <= 0 {
		missing = append(missing, "Session.IdleTTL")
	}

	switch cfg.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		if strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
			missing = append(missing, "Storage.Redis.Addr")
		}
	case BackendFirestore:
		if strings.TrimSpace(cfg.Storage.Firestore.ProjectID) == "" {
			missing = append(missing, "Storage.Firestore.ProjectID")
		}
	default:
		missing = append(missing, "Storage.Backend")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(parts[1]), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
