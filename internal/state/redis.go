package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/scout/config"
)

const DefaultStateTTL = 24 * time.Hour

// Conn opens a Redis client and verifies it answers PING.
func Conn(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		DialTimeout: cfg.Timeout,
		Password:    cfg.Password,
		DB:          cfg.DB,
	})
	if logger != nil {
		logger.Info("connecting to redis", zap.String("addr", cfg.Addr()), zap.Int("db", cfg.DB))
	}

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if pong != "PONG" {
		_ = client.Close()
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	return client, nil
}

// RedisStore keeps one run's state in a Redis hash so branches running in
// separate processes can share it. The hash expires after ttl.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisStore(client redis.UniversalClient, runID string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &RedisStore{client: client, key: "scout:run:" + runID + ":state", ttl: ttl, logger: zap.NewNop()}
}

// RedisOpener opens a RedisStore per run on a shared client.
func RedisOpener(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) Opener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, runID string) (Store, error) {
		s := NewRedisStore(client, runID, ttl)
		s.logger = logger.With(zap.String("run_id", runID))
		return s, nil
	}
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.HGet(ctx, r.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("state get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	ok, err := r.client.HSetNX(ctx, r.key, key, value).Result()
	if err != nil {
		return fmt.Errorf("state set %s: %w", key, err)
	}
	if !ok {
		return ErrKeyWritten
	}
	// The value is stored; a missed expiry only leaves the hash around longer.
	if err := r.client.Expire(ctx, r.key, r.ttl).Err(); err != nil {
		r.logger.Warn("state expire failed", zap.String("key", r.key), zap.Error(err))
	}
	return nil
}

func (r *RedisStore) Snapshot(ctx context.Context) (map[string]string, error) {
	out, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("state snapshot: %w", err)
	}
	return out, nil
}
