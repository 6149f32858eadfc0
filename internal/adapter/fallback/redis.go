package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/ports"
)

// RedisSource answers entity lookups that missed the in-memory store from a
// Redis instance kept warm by an external pipeline. A missing key is an
// authoritative miss, not an error.
type RedisSource struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisSource(url string, log *zap.Logger) (*RedisSource, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Successfully connected to Redis")
	return &RedisSource{client: client, log: log}, nil
}

func (s *RedisSource) Close() error {
	return s.client.Close()
}

// TokenLookup returns a ports.TokenLookup backed by this source.
func (s *RedisSource) TokenLookup() ports.TokenLookup {
	return func(ctx context.Context, key domain.PartyKey, id domain.TokenID) (*domain.TokenStatus, error) {
		return get[domain.TokenStatus](ctx, s, tokenKey(key, id))
	}
}

// SessionLookup returns a ports.SessionLookup backed by this source.
func (s *RedisSource) SessionLookup() ports.SessionLookup {
	return func(ctx context.Context, key domain.PartyKey, id domain.SessionID) (*domain.Session, error) {
		return get[domain.Session](ctx, s, sessionKey(key, id))
	}
}

// CDRLookup returns a ports.CDRLookup backed by this source.
func (s *RedisSource) CDRLookup() ports.CDRLookup {
	return func(ctx context.Context, key domain.PartyKey, id domain.CDRID) (*domain.CDR, error) {
		return get[domain.CDR](ctx, s, cdrKey(key, id))
	}
}

func get[T any](ctx context.Context, s *RedisSource, key string) (*T, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis lookup of %q: %w", key, err)
	}

	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.log.Warn("discarding malformed redis entry", zap.String("key", key), zap.Error(err))
		return nil, nil
	}
	return &v, nil
}

func tokenKey(key domain.PartyKey, id domain.TokenID) string {
	return fmt.Sprintf("ocpi:token:%s:%s", key, id)
}

func sessionKey(key domain.PartyKey, id domain.SessionID) string {
	return fmt.Sprintf("ocpi:session:%s:%s", key, id)
}

func cdrKey(key domain.PartyKey, id domain.CDRID) string {
	return fmt.Sprintf("ocpi:cdr:%s:%s", key, id)
}
