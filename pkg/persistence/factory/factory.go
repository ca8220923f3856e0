// Package factory opens the ledger persistence backend selected by configuration.
package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/config"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/persistence/badger"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/persistence/memory"
	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/persistence/redis"
)

// NewLedgerPersistence opens the backend named by cfg.Type and verifies it is healthy.
func NewLedgerPersistence(cfg *config.PersistenceConfig, logger *zap.Logger) (persistence.ILedgerPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("persistence config cannot be nil")
	}

	var (
		store persistence.ILedgerPersistence
		err   error
	)
	switch cfg.Type {
	case config.PersistenceTypeMemory:
		store = memory.NewMemoryPersistence(logger)
	case config.PersistenceTypeBadger:
		store, err = badger.NewBadgerPersistence(cfg.DataPath, logger)
	case config.PersistenceTypeRedis:
		store, err = redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported persistence type: %q (supported: %s)", cfg.Type, config.GetSupportedPersistenceTypesString())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s persistence: %w", cfg.Type, err)
	}

	if err := store.HealthCheck(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%s persistence failed health check: %w", cfg.Type, err)
	}

	return store, nil
}
