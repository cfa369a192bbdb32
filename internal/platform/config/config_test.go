package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.Environment != "local" {
		t.Errorf("expected local environment, got %s", cfg.Server.Environment)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Catalog.DataPath != defaultCatalogPath {
		t.Errorf("unexpected catalog path: %s", cfg.Catalog.DataPath)
	}
	if cfg.Session.IdleTTL != defaultSessionIdleTTL {
		t.Errorf("unexpected idle ttl: %s", cfg.Session.IdleTTL)
	}
	if cfg.Storage.Redis.Prefix != defaultRedisPrefix || cfg.Storage.Redis.TTL != defaultRedisTTL {
		t.Errorf("unexpected redis defaults: %+v", cfg.Storage.Redis)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("unexpected log level: %s", cfg.Log.Level)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"GAMIFIED_PORT":                 "9090",
		"GAMIFIED_ENV":                  "PROD",
		"GAMIFIED_SESSION_SIGNING_KEY":  "k",
		"GAMIFIED_SERVER_READ_TIMEOUT":  "20s",
		"GAMIFIED_STORAGE_BACKEND":      "Redis",
		"GAMIFIED_REDIS_ADDR":           "redis:6380",
		"GAMIFIED_REDIS_DB":             "3",
		"GAMIFIED_REDIS_PREFIX":         "shop:",
		"GAMIFIED_REDIS_TTL":            "48h",
		"GAMIFIED_CATALOG_MARKUP":       "public/index.html",
		"GAMIFIED_SESSION_IDLE_TTL":     "30m",
		"GAMIFIED_SERVER_WRITE_TIMEOUT": "not-a-duration",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected port override, got %s", cfg.Server.Port)
	}
	if !cfg.Server.Production() {
		t.Errorf("expected production environment")
	}
	if cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != defaultWriteTimeout {
		t.Errorf("expected invalid duration to fall back, got %s", cfg.Server.WriteTimeout)
	}
	if cfg.Storage.Backend != BackendRedis || cfg.Storage.Redis.Addr != "redis:6380" || cfg.Storage.Redis.DB != 3 {
		t.Errorf("unexpected redis config: %+v", cfg.Storage)
	}
	if cfg.Storage.Redis.Prefix != "shop:" || cfg.Storage.Redis.TTL != 48*time.Hour {
		t.Errorf("unexpected redis prefix/ttl: %q %s", cfg.Storage.Redis.Prefix, cfg.Storage.Redis.TTL)
	}
	if cfg.Catalog.MarkupPath != "public/index.html" {
		t.Errorf("unexpected markup path: %s", cfg.Catalog.MarkupPath)
	}
	if cfg.Session.IdleTTL != 30*time.Minute {
		t.Errorf("unexpected idle ttl: %s", cfg.Session.IdleTTL)
	}
}

func TestLoadFallsBackToPORT(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{"PORT": "7070"}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Fatalf("expected PORT fallback, got %s", cfg.Server.Port)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"GAMIFIED_ENV":             "prod",
		"GAMIFIED_STORAGE_BACKEND": "firestore",
		"GAMIFIED_PORT":            "eighty",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := map[string]bool{}
	for _, f := range verr.Fields() {
		fields[f] = true
	}
	for _, want := range []string{"Server.Port", "Session.SigningKey", "Storage.Firestore.ProjectID"} {
		if !fields[want] {
			t.Errorf("expected %s in validation fields, got %v", want, verr.Fields())
		}
	}
}

func TestLoadUnknownBackend(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{"GAMIFIED_STORAGE_BACKEND": "etcd"}), WithoutSystemEnv(), WithEnvFile(""))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nexport GAMIFIED_PORT=\"6060\"\nGAMIFIED_CATALOG_DATA='games.yaml'\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}

	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(path))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("expected port from .env, got %s", cfg.Server.Port)
	}
	if cfg.Catalog.DataPath != "games.yaml" {
		t.Errorf("expected catalog data from .env, got %s", cfg.Catalog.DataPath)
	}
}

func TestEnvMapOverridesDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("GAMIFIED_PORT=6060\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(path), WithEnvMap(map[string]string{"GAMIFIED_PORT": "5050"}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "5050" {
		t.Fatalf("expected env map to win, got %s", cfg.Server.Port)
	}
}
