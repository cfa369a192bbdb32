//go:build integration

package kv

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestRedisStoreIntegration(t *testing.T) {
	addr := os.Getenv("GAMIFIED_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GAMIFIED_TEST_REDIS_ADDR not set")
	}
	client, err := NewRedisClient(context.Background(), addr, "", 0)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	prefix := "gamified:test:" + ulid.Make().String() + ":"
	exerciseStorage(t, NewRedisStore(client, WithRedisPrefix(prefix), WithRedisTTL(time.Minute)))

	ctx := context.Background()
	if err := NewRedisStore(client, WithRedisPrefix(prefix), WithRedisTTL(time.Minute)).Set(ctx, "ttl", "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	ttl, err := client.TTL(ctx, prefix+"ttl").Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected hash to expire within a minute, got %s", ttl)
	}
}

func TestFirestoreStoreIntegration(t *testing.T) {
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	client, err := NewFirestoreClient(context.Background(), "test-project", host)
	if err != nil {
		t.Fatalf("firestore client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	exerciseStorage(t, NewFirestoreStore(client, WithCollection("kv_"+ulid.Make().String())))
}
