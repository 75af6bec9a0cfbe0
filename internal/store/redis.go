package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ashureev/math-interviewer/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "interview:session:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr     string
	Password string
	DB       int
	// Prefix is the key prefix for snapshot keys (default: "interview:session:").
	Prefix string
	// TTL expires snapshots (0 = never expire).
	TTL time.Duration
}

// RedisStore keeps each snapshot as a JSON string under <prefix><session_id>.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

var _ Repository = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisStore) key(sessionID string) string {
	return r.prefix + sessionID
}

func (r *RedisStore) checkOpen() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrStorageClosed
	}
	return nil
}

// Name returns the backend name.
func (r *RedisStore) Name() string {
	return BackendRedis
}

// SaveSnapshot stores rec, refreshing the TTL when one is configured.
func (r *RedisStore) SaveSnapshot(ctx context.Context, rec *domain.SessionRecord) (string, error) {
	if err := r.checkOpen(); err != nil {
		return "", err
	}
	if rec == nil || rec.SessionID == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSessionID)
	}

	data, err := rec.MarshalIndented()
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	key := r.key(rec.SessionID)
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	return "redis://" + key, nil
}

// LoadSnapshot fetches the snapshot for sessionID.
func (r *RedisStore) LoadSnapshot(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	data, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return domain.DecodeRecord(data)
}

// Ping verifies the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}
