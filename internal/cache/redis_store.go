package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisPrefix  = "portfolio:"
	redisChannel = "portfolio:changes"
)

// RedisStore keeps keys in Redis and announces writes on a pub/sub channel.
type RedisStore struct {
	client *redis.Client
	prefix string
	origin string
	logger *zap.Logger
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(redisURL string, logger *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, logger), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		prefix: redisPrefix,
		origin: uuid.NewString(),
		logger: logger,
	}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

// Get returns the value for key and whether it was present.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return val, true, nil
}

// Set writes key and publishes the change.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	s.publish(ctx, Change{Key: key, NewValue: value, Origin: s.origin})
	return nil
}

// Remove deletes key and publishes the removal.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	s.publish(ctx, Change{Key: key, Removed: true, Origin: s.origin})
	return nil
}

// publish is best effort: the value is already stored.
func (s *RedisStore) publish(ctx context.Context, change Change) {
	payload, err := json.Marshal(change)
	if err != nil {
		return
	}
	if err := s.client.Publish(ctx, redisChannel, payload).Err(); err != nil {
		s.logger.Warn("publish cache change failed", zap.String("key", change.Key), zap.Error(err))
	}
}

// Subscribe delivers changes published by other stores until ctx is done.
func (s *RedisStore) Subscribe(ctx context.Context) (<-chan Change, error) {
	sub := s.client.Subscribe(ctx, redisChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Change, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					s.logger.Debug("ignoring malformed cache change", zap.Error(err))
					continue
				}
				if change.Origin == s.origin {
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
