// Package idempotency records Idempotency-Key claims for order creation so a
// retried request returns the order the first attempt created.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	keyFormat    = "idem:order:create:%s:%s"
	pendingValue = "pending"
	separator    = "|"
)

// State is the outcome of a claim attempt.
type State int

const (
	// Acquired means the caller owns the key and must Complete or Release it.
	Acquired State = iota
	// InFlight means another request holds the key and has not finished.
	InFlight
	// Completed means an order was already created under the key.
	Completed
	// Mismatch means the key was claimed for a request with other content.
	Mismatch
)

// Claim is the result of Store.Claim.
type Claim struct {
	State   State
	OrderID uuid.UUID
}

// Store claims and resolves idempotency keys. Keys are scoped per user and
// bound to the fingerprint of the request that first claimed them.
type Store interface {
	Claim(ctx context.Context, scope, key, fingerprint string) (Claim, error)
	Complete(ctx context.Context, scope, key, fingerprint string, orderID uuid.UUID) error
	Release(ctx context.Context, scope, key string) error
}

// RedisStore keeps claims in Redis with a TTL.
type RedisStore struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With().Str("component", "idempotency").Logger(),
	}
}

// NewClient opens a Redis client and verifies it with PING.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

func redisKey(scope, key string) string {
	return fmt.Sprintf(keyFormat, scope, key)
}

// Claim tries SET NX on the key. When the key exists it reports whether the
// holder is still working, which order it produced, or that it belongs to a
// request with a different fingerprint.
func (s *RedisStore) Claim(ctx context.Context, scope, key, fingerprint string) (Claim, error) {
	k := redisKey(scope, key)

	ok, err := s.rdb.SetNX(ctx, k, pendingValue+separator+fingerprint, s.ttl).Result()
	if err != nil {
		s.logger.Error().Err(err).Str("key", k).Msg("failed to claim idempotency key")
		return Claim{}, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if ok {
		return Claim{State: Acquired}, nil
	}

	val, err := s.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired or released between SETNX and GET.
		return s.Claim(ctx, scope, key, fingerprint)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("key", k).Msg("failed to read idempotency key")
		return Claim{}, fmt.Errorf("failed to read idempotency key: %w", err)
	}

	holder, stored, found := strings.Cut(val, separator)
	if !found {
		return Claim{}, fmt.Errorf("corrupt idempotency value for %s", k)
	}
	if stored != fingerprint {
		return Claim{State: Mismatch}, nil
	}
	if holder == pendingValue {
		return Claim{State: InFlight}, nil
	}

	orderID, err := uuid.Parse(holder)
	if err != nil {
		return Claim{}, fmt.Errorf("corrupt idempotency value for %s: %w", k, err)
	}
	return Claim{State: Completed, OrderID: orderID}, nil
}

// Complete binds the key to the created order for the rest of the TTL.
func (s *RedisStore) Complete(ctx context.Context, scope, key, fingerprint string, orderID uuid.UUID) error {
	k := redisKey(scope, key)
	if err := s.rdb.Set(ctx, k, orderID.String()+separator+fingerprint, s.ttl).Err(); err != nil {
		s.logger.Error().Err(err).Str("key", k).Msg("failed to complete idempotency key")
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	return nil
}

// Release drops a pending claim so the client can retry.
func (s *RedisStore) Release(ctx context.Context, scope, key string) error {
	k := redisKey(scope, key)
	if err := s.rdb.Del(ctx, k).Err(); err != nil {
		s.logger.Error().Err(err).Str("key", k).Msg("failed to release idempotency key")
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// NopStore grants every claim. Used when Redis is disabled.
type NopStore struct{}

func (NopStore) Claim(context.Context, string, string, string) (Claim, error) {
	return Claim{State: Acquired}, nil
}

func (NopStore) Complete(context.Context, string, string, string, uuid.UUID) error { return nil }

func (NopStore) Release(context.Context, string, string) error { return nil }
