package formstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"marketplace-pricing/decision/marketplace"
)

// RedisStore keeps each form as a JSON value with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedis connects to Redis and checks the connection.
func NewRedis(ctx context.Context, addr, password string, db int, ttl time.Duration, logger zerolog.Logger) (*RedisStore, error) {
	s := &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl:    ttl,
		logger: logger.With().Str("component", "formstate.redis").Logger(),
	}

	if err := s.Ping(ctx); err != nil {
		_ = s.client.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	s.logger.Info().Str("addr", addr).Dur("ttl", ttl).Msg("Connected to Redis")
	return s, nil
}

func (s *RedisStore) Save(ctx context.Context, k marketplace.Kind, form marketplace.Form) error {
	data, err := json.Marshal(clean(k, form))
	if err != nil {
		return fmt.Errorf("marshal form: %w", err)
	}
	if err := s.client.Set(ctx, Key(k), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", Key(k), err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, k marketplace.Kind) (marketplace.Form, error) {
	data, err := s.client.Get(ctx, Key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return marketplace.Form{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", Key(k), err)
	}

	var form marketplace.Form
	if err := json.Unmarshal(data, &form); err != nil {
		// a corrupt entry is treated like a missing one
		s.logger.Warn().Err(err).Str("key", Key(k)).Msg("Discarding unreadable form state")
		return marketplace.Form{}, nil
	}
	return clean(k, form), nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
