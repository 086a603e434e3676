package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"free-shipping-bar/internal/domain"
	"free-shipping-bar/internal/ports"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "fsb:oauth_state:"

var _ ports.StateStore = (*RedisStore)(nil)

// RedisStore shares states across instances. Consume relies on GETDEL so a
// state can be redeemed once even under concurrent callbacks.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStore connects to the Redis server at redisURL (redis:// or rediss://).
func NewRedisStore(redisURL string, ttl time.Duration, logger zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: redis.NewClient(opts),
		ttl:    ttl,
		logger: logger.With().Str("component", "redis_state_store").Logger(),
	}, nil
}

// Ping verifies Redis connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *RedisStore) Issue(ctx context.Context, shop string) (string, error) {
	state, err := NewState()
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(domain.OAuthState{
		Shop:      shop,
		State:     state,
		ExpiresAt: time.Now().Add(r.ttl),
	})
	if err != nil {
		return "", fmt.Errorf("json marshal: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+shop, data, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("redis set state: %w", err)
	}
	return state, nil
}

func (r *RedisStore) Consume(ctx context.Context, shop, state string) (bool, error) {
	res, err := r.client.GetDel(ctx, keyPrefix+shop).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis getdel state: %w", err)
	}

	var saved domain.OAuthState
	if err := json.Unmarshal([]byte(res), &saved); err != nil {
		r.logger.Warn().Err(err).Str("shop", shop).Msg("Discarding unreadable OAuth state")
		return false, nil
	}
	if saved.Expired(time.Now()) {
		return false, nil
	}
	return statesEqual(saved.State, state), nil
}

// Close releases Redis resources.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
