package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/config"
)

// NewRedisClient connects and pings the configured Redis
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// RedisStateStore keeps OAuth states as keys with a TTL
type RedisStateStore struct {
	rdb *redis.Client
}

// NewRedisStateStore wraps a connected client
func NewRedisStateStore(rdb *redis.Client) *RedisStateStore {
	return &RedisStateStore{rdb: rdb}
}

func stateKey(state string) string {
	return "oauth_state:" + state
}

func (s *RedisStateStore) Put(ctx context.Context, state string, accountID int64, ttl time.Duration) error {
	return s.rdb.Set(ctx, stateKey(state), accountID, ttl).Err()
}

// Consume reads and deletes the state atomically
func (s *RedisStateStore) Consume(ctx context.Context, state string) (int64, error) {
	val, err := s.rdb.GetDel(ctx, stateKey(state)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrStateNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read oauth state: %w", err)
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt oauth state value %q: %w", val, err)
	}
	return id, nil
}

// releaseScript deletes the lock only if this holder still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a SETNX lock shared by every instance using the same Redis.
// The TTL bounds how long a crashed holder can block the key.
type RedisLocker struct {
	rdb *redis.Client
}

// NewRedisLocker wraps a connected client
func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	lockKey := "lock:" + key
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.rdb, []string{lockKey}, token).Err()
	}
	return release, true, nil
}
