package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/persistence"
)

// Key prefixes for namespacing
const (
	keyPrefixEpoch       = "epoch:"
	keyPrefixAllotment   = "allotment:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

// BadgerPersistence is a durable ledger persistence implementation using Badger.
// Provides disk-based storage with ACID guarantees.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerPersistence creates a new Badger-backed persistence layer.
// The database is opened at the specified path with SyncWrites enabled for durability.
// A background goroutine is started for garbage collection.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger ledger persistence initialized", "path", absPath)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic value log garbage collection in the background
func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func epochKey(id string) []byte {
	return []byte(keyPrefixEpoch + id)
}

// allotmentPrefix is terminated by a separator so that epoch "a" never matches epoch "ab"
func allotmentPrefix(epochID string) []byte {
	return []byte(keyPrefixAllotment + epochID + "/")
}

func allotmentKey(epochID string, leafIndex int) []byte {
	return []byte(fmt.Sprintf("%s%s/%010d", keyPrefixAllotment, epochID, leafIndex))
}

// ownsAllotmentKey rejects keys of a longer epoch id that itself contains the separator
func ownsAllotmentKey(prefix, key []byte) bool {
	return !bytes.Contains(key[len(prefix):], []byte("/"))
}

// getValue copies the value stored under key; nil means not found
func getValue(txn *badgerdb.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err == badgerdb.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// SaveEpoch persists an epoch
func (b *BadgerPersistence) SaveEpoch(epoch *persistence.Epoch) error {
	if err := persistence.ValidateEpoch(epoch); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	data, err := persistence.MarshalEpoch(epoch)
	if err != nil {
		return fmt.Errorf("failed to marshal Epoch: %w", err)
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(epochKey(epoch.ID), data)
	})
}

// LoadEpoch retrieves an epoch by ID
func (b *BadgerPersistence) LoadEpoch(id string) (*persistence.Epoch, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		data, err = getValue(txn, epochKey(id))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load Epoch: %w", err)
	}

	if data == nil {
		return nil, nil // Not found
	}

	epoch, err := persistence.UnmarshalEpoch(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal Epoch: %w", err)
	}

	return epoch, nil
}

// ListEpochs returns all epochs sorted by creation time
func (b *BadgerPersistence) ListEpochs() ([]*persistence.Epoch, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	epochs := make([]*persistence.Epoch, 0)

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixEpoch)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			epoch, err := persistence.UnmarshalEpoch(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal Epoch, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}

			epochs = append(epochs, epoch)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list Epochs: %w", err)
	}

	persistence.SortEpochs(epochs)

	return epochs, nil
}

// DeleteEpoch removes an epoch and its allotments in one transaction
func (b *BadgerPersistence) DeleteEpoch(id string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = allotmentPrefix(id)
		opts.PrefetchValues = false

		var keys [][]byte
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if ownsAllotmentKey(opts.Prefix, key) {
				keys = append(keys, key)
			}
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		return txn.Delete(epochKey(id))
	})
}

// SaveAllotment persists an accepted allotment unless the leaf already holds one
func (b *BadgerPersistence) SaveAllotment(allotment *persistence.Allotment) error {
	if err := persistence.ValidateAllotment(allotment); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	data, err := persistence.MarshalAllotment(allotment)
	if err != nil {
		return fmt.Errorf("failed to marshal Allotment: %w", err)
	}

	key := allotmentKey(allotment.EpochID, allotment.LeafIndex)
	err = b.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return persistence.ErrAllotmentExists
		}
		if err != badgerdb.ErrKeyNotFound {
			return fmt.Errorf("failed to check existing Allotment: %w", err)
		}
		return txn.Set(key, data)
	})
	// The transaction only read this key, so a conflict means another writer stored it first
	if err == badgerdb.ErrConflict {
		err = persistence.ErrAllotmentExists
	}
	if errors.Is(err, persistence.ErrAllotmentExists) {
		return fmt.Errorf("%w: epoch %s leaf %d", err, allotment.EpochID, allotment.LeafIndex)
	}
	return err
}

// ListAllotments returns an epoch's allotments sorted by interval start
func (b *BadgerPersistence) ListAllotments(epochID string) ([]*persistence.Allotment, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	allotments := make([]*persistence.Allotment, 0)

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = allotmentPrefix(epochID)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if !ownsAllotmentKey(opts.Prefix, item.Key()) {
				continue
			}

			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			allotment, err := persistence.UnmarshalAllotment(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal Allotment, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}

			allotments = append(allotments, allotment)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list Allotments: %w", err)
	}

	persistence.SortAllotments(allotments)

	return allotments, nil
}

// Close shuts down the persistence layer
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger ledger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
