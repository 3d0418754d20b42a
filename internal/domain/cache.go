package domain

import (
	"context"
	"time"
)

// PriceCache stores the latest spot price per pair with its observation
// timestamp.
type PriceCache interface {
	SetPrice(ctx context.Context, pair string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, pair string) (float64, time.Time, error)
	GetPrices(ctx context.Context, pairs []string) (map[string]float64, error)
}

// LockManager provides a distributed mutual-exclusion lock. Acquire returns
// ErrLockHeld without blocking when the lock is taken elsewhere.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter bounds the rate of outbound exchange calls.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
