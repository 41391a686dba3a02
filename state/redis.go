package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// KeyPrefix namespaces this bot's records; defaults to "skillflow".
	KeyPrefix string `yaml:"keyPrefix"`
	// TTL expires idle conversations; zero keeps records forever.
	TTL time.Duration `yaml:"ttl"`
}

// DefaultRedisConfig returns a local single-node setup with a 24h TTL.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "skillflow",
		TTL:       24 * time.Hour,
	}
}

// RedisStore persists conversation records in Redis, one JSON value per
// conversation.
type RedisStore struct {
	client redis.UniversalClient
	cfg    RedisConfig
	logger *zap.Logger
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "skillflow"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("state: redis ping: %w", err)
	}
	logger.Info("redis state store connected", zap.String("addr", cfg.Addr))
	return &RedisStore{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "redis_state")),
	}, nil
}

func (s *RedisStore) key(conversationID string) string {
	return s.cfg.KeyPrefix + ":conv:" + conversationID
}

func (s *RedisStore) Load(ctx context.Context, conversationID string) (*ConversationRecord, error) {
	raw, err := s.client.Get(ctx, s.key(conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewConversationRecord(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: redis get: %w", err)
	}
	record := &ConversationRecord{}
	if err := json.Unmarshal(raw, record); err != nil {
		return nil, fmt.Errorf("state: decode record: %w", err)
	}
	return record.normalize(), nil
}

func (s *RedisStore) Save(ctx context.Context, conversationID string, record *ConversationRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(conversationID), raw, s.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("state: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, conversationID string) error {
	if err := s.client.Del(ctx, s.key(conversationID)).Err(); err != nil {
		return fmt.Errorf("state: redis del: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
