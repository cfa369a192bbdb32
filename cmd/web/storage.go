package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"finitefield.org/gamified-web/internal/platform/config"
	"finitefield.org/gamified-web/internal/platform/kv"
)

// openStorage builds the configured visitor storage backend. The returned close
// func releases backend clients and is safe to call once.
func openStorage(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (kv.Storage, func(), error) {
	switch cfg.Backend {
	case config.BackendRedis:
		client, err := kv.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("storage: redis connected",
			zap.String("addr", cfg.Redis.Addr),
			zap.Int("db", cfg.Redis.DB),
			zap.String("prefix", cfg.Redis.Prefix),
			zap.Duration("ttl", cfg.Redis.TTL),
		)
		store := kv.NewRedisStore(client, kv.WithRedisPrefix(cfg.Redis.Prefix), kv.WithRedisTTL(cfg.Redis.TTL))
		return store, func() {
			if err := client.Close(); err != nil {
				logger.Warn("storage: redis close error", zap.Error(err))
			}
		}, nil
	case config.BackendFirestore:
		client, err := kv.NewFirestoreClient(ctx, cfg.Firestore.ProjectID, cfg.Firestore.EmulatorHost)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("storage: firestore client ready",
			zap.String("project", cfg.Firestore.ProjectID),
			zap.String("collection", cfg.Firestore.Collection),
			zap.Bool("emulator", cfg.Firestore.EmulatorHost != ""),
		)
		return kv.NewFirestoreStore(client, kv.WithCollection(cfg.Firestore.Collection)), func() {
			if err := client.Close(); err != nil {
				logger.Warn("storage: firestore close error", zap.Error(err))
			}
		}, nil
	case config.BackendMemory, "":
		logger.Info("storage: using in-memory store")
		return kv.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("storage: unsupported backend %q", cfg.Backend)
	}
}
