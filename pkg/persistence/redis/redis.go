package redis

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-sum-tree-go/pkg/persistence"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixEpoch       = "sumtree:epoch:"
	keyPrefixAllotments  = "sumtree:allotments:"
	keySchemaVersion     = "sumtree:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Key set for listing epochs (Redis doesn't support prefix iteration natively)
	keySetEpochs = "sumtree:epochs:index"
)

// RedisPersistence is a ledger persistence implementation using Redis.
// Epochs are stored as JSON strings; each epoch's allotments live in one hash keyed by leaf index.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix prepended to all keys, e.g. "tenant-a:" gives
	// keys like "tenant-a:sumtree:epoch:<id>".
	KeyPrefix string
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis ledger persistence initialized",
		"address", cfg.Address,
		"db", cfg.DB,
		"key_prefix", cfg.KeyPrefix,
	)

	return rp, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

func (r *RedisPersistence) epochKey(id string) string {
	return r.prefixKey(keyPrefixEpoch + id)
}

func (r *RedisPersistence) allotmentsKey(epochID string) string {
	return r.prefixKey(keyPrefixAllotments + epochID)
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

// SaveEpoch persists an epoch and adds it to the index set
func (r *RedisPersistence) SaveEpoch(epoch *persistence.Epoch) error {
	if err := persistence.ValidateEpoch(epoch); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()

	data, err := persistence.MarshalEpoch(epoch)
	if err != nil {
		return fmt.Errorf("failed to marshal Epoch: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.epochKey(epoch.ID), data, 0)
		pipe.SAdd(ctx, r.prefixKey(keySetEpochs), epoch.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save Epoch: %w", err)
	}

	return nil
}

// LoadEpoch retrieves an epoch by ID
func (r *RedisPersistence) LoadEpoch(id string) (*persistence.Epoch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	data, err := r.client.Get(context.Background(), r.epochKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load Epoch: %w", err)
	}

	epoch, err := persistence.UnmarshalEpoch(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal Epoch: %w", err)
	}

	return epoch, nil
}

// ListEpochs returns all epochs sorted by creation time
func (r *RedisPersistence) ListEpochs() ([]*persistence.Epoch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	indexKey := r.prefixKey(keySetEpochs)

	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list Epoch ids: %w", err)
	}

	if len(ids) == 0 {
		return []*persistence.Epoch{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.epochKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Epochs: %w", err)
	}

	epochs := make([]*persistence.Epoch, 0, len(values))
	for i, val := range values {
		if val == nil {
			// Key was in index but doesn't exist - clean up index
			r.client.SRem(ctx, indexKey, ids[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for Epoch", "key", keys[i])
			continue
		}

		epoch, err := persistence.UnmarshalEpoch([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal Epoch, skipping",
				"key", keys[i], "error", err)
			continue
		}

		epochs = append(epochs, epoch)
	}

	persistence.SortEpochs(epochs)

	return epochs, nil
}

// DeleteEpoch removes an epoch, its allotments and its index entry atomically
func (r *RedisPersistence) DeleteEpoch(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.epochKey(id), r.allotmentsKey(id))
		pipe.SRem(ctx, r.prefixKey(keySetEpochs), id)
		return nil
	})
	return err
}

// SaveAllotment persists an accepted allotment in its epoch's hash unless the leaf already holds one
func (r *RedisPersistence) SaveAllotment(allotment *persistence.Allotment) error {
	if err := persistence.ValidateAllotment(allotment); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	data, err := persistence.MarshalAllotment(allotment)
	if err != nil {
		return fmt.Errorf("failed to marshal Allotment: %w", err)
	}

	field := strconv.Itoa(allotment.LeafIndex)
	stored, err := r.client.HSetNX(context.Background(), r.allotmentsKey(allotment.EpochID), field, data).Result()
	if err != nil {
		return fmt.Errorf("failed to save Allotment: %w", err)
	}
	if !stored {
		return fmt.Errorf("%w: epoch %s leaf %d", persistence.ErrAllotmentExists, allotment.EpochID, allotment.LeafIndex)
	}

	return nil
}

// ListAllotments returns an epoch's allotments sorted by interval start
func (r *RedisPersistence) ListAllotments(epochID string) ([]*persistence.Allotment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	key := r.allotmentsKey(epochID)
	values, err := r.client.HGetAll(context.Background(), key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list Allotments: %w", err)
	}

	allotments := make([]*persistence.Allotment, 0, len(values))
	for field, data := range values {
		allotment, err := persistence.UnmarshalAllotment([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal Allotment, skipping",
				"key", key, "field", field, "error", err)
			continue
		}
		allotments = append(allotments, allotment)
	}

	persistence.SortAllotments(allotments)

	return allotments, nil
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil // Already closed, idempotent
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis ledger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	return nil
}
