package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore keeps AI mode membership in a Redis set so that several
// replicas behind one callback URL agree on a user's mode.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	s := NewRedisStoreWithClient(client, opts.KeyPrefix)
	if err := s.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "snobot"
	}
	return &RedisStore{client: client, key: keyPrefix + ":ai_mode"}
}

func member(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func (s *RedisStore) Enter(ctx context.Context, userID int64) error {
	if err := s.client.SAdd(ctx, s.key, member(userID)).Err(); err != nil {
		return fmt.Errorf("session enter: %w", err)
	}
	return nil
}

func (s *RedisStore) Exit(ctx context.Context, userID int64) error {
	if err := s.client.SRem(ctx, s.key, member(userID)).Err(); err != nil {
		return fmt.Errorf("session exit: %w", err)
	}
	return nil
}

func (s *RedisStore) InAIMode(ctx context.Context, userID int64) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key, member(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("session lookup: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("session count: %w", err)
	}
	return int(n), nil
}

// Ping tests the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
