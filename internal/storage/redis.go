package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/piwi3910/catweave/internal/models"
)

const (
	// Redis key prefixes
	envelopeKeyPrefix   = "envelope:"
	envelopeSetPrefix   = "envelopes:"
	statusIndexSegment  = ":status:"
	publishedSetSegment = ":published"

	// Envelope keys never expire; the store is the system of record.
	envelopeTTL = 0
)

// RedisConfig holds configuration for the Redis connection.
type RedisConfig struct {
	// Addr is the Redis server address (host:port) for standalone mode.
	// Ignored if UseSentinel is true.
	Addr string

	// Password for Redis authentication.
	Password string

	// DB is the Redis database number (0-15).
	DB int

	// UseSentinel enables Redis Sentinel mode for high availability.
	UseSentinel bool

	// SentinelAddrs is the list of Sentinel server addresses.
	// Required if UseSentinel is true.
	SentinelAddrs []string

	// MasterName is the name of the Redis master in Sentinel mode.
	// Required if UseSentinel is true.
	MasterName string

	// MaxRetries is the maximum number of retries for failed commands.
	MaxRetries int

	// DialTimeout is the timeout for establishing connections.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration

	// PoolSize is the maximum number of socket connections.
	PoolSize int
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		UseSentinel:  false,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	}
}

// RedisStore implements the Store interface using Redis as the backend.
// It supports both standalone Redis and Redis Sentinel for high availability.
//
// Data Model:
//   - envelope:<kind>:<id> (string) - envelope JSON
//   - envelopes:<kind> (set) - all envelope IDs of a kind
//   - envelopes:<kind>:status:<status> (set) - index by lifecycle status
//   - envelopes:<kind>:published (set) - IDs of published public mirrors
//
// Example:
//
//	cfg := DefaultRedisConfig()
//	cfg.Addr = "redis.example.com:6379"
//	store := NewRedisStore(cfg)
//	defer store.Close()
type RedisStore struct {
	client redis.UniversalClient
	config *RedisConfig
}

// NewRedisStore creates a new RedisStore instance.
// It automatically configures Redis Sentinel if enabled in the config.
func NewRedisStore(cfg *RedisConfig) *RedisStore {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}

	var client redis.UniversalClient

	if cfg.UseSentinel {
		// Redis Sentinel mode for HA
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.SentinelAddrs,
			Password:      cfg.Password,
			DB:            cfg.DB,
			MaxRetries:    cfg.MaxRetries,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
			PoolSize:      cfg.PoolSize,
		})
	} else {
		// Standalone Redis mode
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
		})
	}

	return &RedisStore{
		client: client,
		config: cfg,
	}
}

// envelopeKey builds the storage key for an envelope.
func envelopeKey(kind models.Kind, id string) string {
	return envelopeKeyPrefix + string(kind) + ":" + id
}

// kindSetKey builds the key of the all-IDs set for a kind.
func kindSetKey(kind models.Kind) string {
	return envelopeSetPrefix + string(kind)
}

// statusIndexKey builds the key of the status index set for a kind.
func statusIndexKey(kind models.Kind, status string) string {
	return envelopeSetPrefix + string(kind) + statusIndexSegment + status
}

// publishedSetKey builds the key of the published-mirror set for a kind.
func publishedSetKey(kind models.Kind) string {
	return envelopeSetPrefix + string(kind) + publishedSetSegment
}

// Create stores a new envelope.
// Returns ErrAlreadyExists if an envelope with the same kind and ID exists.
// Returns ErrInvalidID if the envelope ID is empty.
func (r *RedisStore) Create(ctx context.Context, env *models.Envelope) error {
	if env.ID == "" {
		return ErrInvalidID
	}
	if !env.Kind.Valid() {
		return fmt.Errorf("%w: %s", models.ErrUnknownKind, env.Kind)
	}

	key := envelopeKey(env.Kind, env.ID)

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check envelope existence: %w", err)
	}
	if exists > 0 {
		return ErrAlreadyExists
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	// Pipeline keeps the envelope and its indexes in step.
	pipe := r.client.Pipeline()
	pipe.Set(ctx, key, data, envelopeTTL)
	pipe.SAdd(ctx, kindSetKey(env.Kind), env.ID)
	if env.Status != "" {
		pipe.SAdd(ctx, statusIndexKey(env.Kind, env.Status), env.ID)
	}
	if env.Metadata.Published {
		pipe.SAdd(ctx, publishedSetKey(env.Kind), env.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create envelope: %w", err)
	}

	return nil
}

// Get retrieves an envelope by kind and ID.
// Returns ErrNotFound if the envelope does not exist.
func (r *RedisStore) Get(ctx context.Context, kind models.Kind, id string) (*models.Envelope, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	data, err := r.client.Get(ctx, envelopeKey(kind, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get envelope: %w", err)
	}

	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	return &env, nil
}

// Update replaces an existing envelope and maintains the status and
// published indexes.
// Returns ErrNotFound if the envelope does not exist.
func (r *RedisStore) Update(ctx context.Context, env *models.Envelope) error {
	if env.ID == "" {
		return ErrInvalidID
	}

	existing, err := r.Get(ctx, env.Kind, env.ID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, envelopeKey(env.Kind, env.ID), data, envelopeTTL)

	// Move between status index sets if the status changed.
	if existing.Status != env.Status {
		if existing.Status != "" {
			pipe.SRem(ctx, statusIndexKey(env.Kind, existing.Status), env.ID)
		}
		if env.Status != "" {
			pipe.SAdd(ctx, statusIndexKey(env.Kind, env.Status), env.ID)
		}
	}

	// Track published transitions.
	if existing.Metadata.Published != env.Metadata.Published {
		if env.Metadata.Published {
			pipe.SAdd(ctx, publishedSetKey(env.Kind), env.ID)
		} else {
			pipe.SRem(ctx, publishedSetKey(env.Kind), env.ID)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update envelope: %w", err)
	}

	return nil
}

// Delete removes an envelope by kind and ID.
// Returns ErrNotFound if the envelope does not exist.
func (r *RedisStore) Delete(ctx context.Context, kind models.Kind, id string) error {
	if id == "" {
		return ErrInvalidID
	}

	existing, err := r.Get(ctx, kind, id)
	if err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.Del(ctx, envelopeKey(kind, id))
	pipe.SRem(ctx, kindSetKey(kind), id)
	if existing.Status != "" {
		pipe.SRem(ctx, statusIndexKey(kind, existing.Status), id)
	}
	pipe.SRem(ctx, publishedSetKey(kind), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete envelope: %w", err)
	}

	return nil
}

// List retrieves all envelopes of a kind.
// Returns an empty slice if none exist.
func (r *RedisStore) List(ctx context.Context, kind models.Kind) ([]*models.Envelope, error) {
	return r.listSet(ctx, kind, kindSetKey(kind))
}

// ListByStatus retrieves envelopes of a kind filtered by status.
// Returns an empty slice if none match.
func (r *RedisStore) ListByStatus(ctx context.Context, kind models.Kind, status string) ([]*models.Envelope, error) {
	if status == "" {
		return []*models.Envelope{}, nil
	}
	return r.listSet(ctx, kind, statusIndexKey(kind, status))
}

// ListPublished retrieves the published public mirrors of a kind.
// Returns an empty slice if none exist.
func (r *RedisStore) ListPublished(ctx context.Context, kind models.Kind) ([]*models.Envelope, error) {
	return r.listSet(ctx, kind, publishedSetKey(kind))
}

// FindPublished looks up a published public instance of a canonical
// identifier in any catalogue.
// Returns ErrNotFound if no published instance exists.
func (r *RedisStore) FindPublished(ctx context.Context, kind models.Kind, canonicalID string) (*models.Envelope, error) {
	if canonicalID == "" {
		return nil, ErrInvalidID
	}

	ids, err := r.client.SMembers(ctx, publishedSetKey(kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list published envelopes: %w", err)
	}

	for _, id := range ids {
		// A mirror ID is "<catalogueID>.<canonicalID>"; the reference
		// may hold either form.
		if id != canonicalID && !strings.HasSuffix(id, "."+canonicalID) {
			continue
		}
		env, err := r.Get(ctx, kind, id)
		if err != nil {
			continue
		}
		return env, nil
	}

	return nil, ErrNotFound
}

// listSet loads every envelope whose ID is a member of the given set.
// Members that fail to load are skipped.
func (r *RedisStore) listSet(ctx context.Context, kind models.Kind, setKey string) ([]*models.Envelope, error) {
	ids, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list envelope IDs: %w", err)
	}

	envs := make([]*models.Envelope, 0, len(ids))
	for _, id := range ids {
		env, err := r.Get(ctx, kind, id)
		if err != nil {
			continue
		}
		envs = append(envs, env)
	}

	return envs, nil
}

// Client returns the underlying Redis client so that packages keeping
// their own keyspace can share the connection pool.
func (r *RedisStore) Client() redis.UniversalClient {
	return r.client
}

// Close closes the Redis connection and releases resources.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is available.
// Returns ErrStorageUnavailable if Redis cannot be reached.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
