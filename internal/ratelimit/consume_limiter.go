package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/revora/revora/internal/config"
)

const (
	keyConsumeEndpoint     = "usage:consume:endpoint"
	keyConsumeSubscription = "usage:consume:sub:%s"
	keyIdempotencyLock     = "usage:consume:key:%s"
)

// ConsumeLimiter throttles POST /v1/usage/consume. A global endpoint
// bucket bounds the whole ingest path and a per-subscription bucket keeps
// one noisy client from starving the rest. Nil limiter means the feature
// is disabled and everything passes.
type ConsumeLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	endpointRate      float64
	endpointBurst     int
	subscriptionRate  float64
	subscriptionBurst int
	lockTTL           time.Duration
}

func NewConsumeLimiter(cfg config.Config) (*ConsumeLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.ConsumePerSecond <= 0 || limitCfg.ConsumeBurst <= 0 {
		return nil, errors.New("consume rate limit must be positive")
	}
	if limitCfg.SubscriptionPerSec <= 0 || limitCfg.SubscriptionBurst <= 0 {
		return nil, errors.New("subscription rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
	})

	return &ConsumeLimiter{
		enabled:           true,
		bucket:            NewTokenBucket(client),
		locker:            NewLocker(client),
		endpointRate:      limitCfg.ConsumePerSecond,
		endpointBurst:     limitCfg.ConsumeBurst,
		subscriptionRate:  limitCfg.SubscriptionPerSec,
		subscriptionBurst: limitCfg.SubscriptionBurst,
		lockTTL:           time.Duration(limitCfg.IdempotencyLockTTLMS) * time.Millisecond,
	}, nil
}

func (l *ConsumeLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *ConsumeLimiter) AllowEndpoint(ctx context.Context) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, keyConsumeEndpoint, l.endpointRate, l.endpointBurst)
}

func (l *ConsumeLimiter) AllowSubscription(ctx context.Context, subscriptionID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyConsumeSubscription, strings.TrimSpace(subscriptionID))
	return l.bucket.Allow(ctx, key, l.subscriptionRate, l.subscriptionBurst)
}

// TryLockIdempotencyKey short-circuits racing duplicates of one key before
// they reach the database. The unique index remains the real guarantee.
func (l *ConsumeLimiter) TryLockIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keyIdempotencyLock, strings.TrimSpace(key)), l.lockTTL)
}

func (l *ConsumeLimiter) ReleaseIdempotencyKey(ctx context.Context, key, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keyIdempotencyLock, strings.TrimSpace(key)), token)
}
