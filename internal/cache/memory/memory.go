// Package memory provides in-process fallbacks for the cache interfaces,
// used when Redis is disabled. They cover a single-process deployment only.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/dualhedge/internal/domain"
)

type pricePoint struct {
	price float64
	ts    time.Time
}

// PriceCache implements domain.PriceCache with a mutex-guarded map.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]pricePoint
}

// NewPriceCache creates an empty in-memory price cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]pricePoint)}
}

func (pc *PriceCache) SetPrice(_ context.Context, pair string, price float64, ts time.Time) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.prices[pair] = pricePoint{price: price, ts: ts}
	return nil
}

func (pc *PriceCache) GetPrice(_ context.Context, pair string) (float64, time.Time, error) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	p, ok := pc.prices[pair]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p.price, p.ts, nil
}

func (pc *PriceCache) GetPrices(_ context.Context, pairs []string) (map[string]float64, error) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		if p, ok := pc.prices[pair]; ok {
			out[pair] = p.price
		}
	}
	return out, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)

// LockManager implements domain.LockManager with per-key in-process mutexes.
// Acquire never blocks; a held key returns domain.ErrLockHeld.
type LockManager struct {
	mu   sync.Mutex
	gen  uint64
	held map[string]lockHold
}

type lockHold struct {
	expiry time.Time
	gen    uint64
}

// NewLockManager creates an empty in-memory lock manager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]lockHold)}
}

func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	now := time.Now()

	lm.mu.Lock()
	defer lm.mu.Unlock()

	if h, ok := lm.held[key]; ok && now.Before(h.expiry) {
		return nil, domain.ErrLockHeld
	}
	lm.gen++
	gen := lm.gen
	lm.held[key] = lockHold{expiry: now.Add(ttl), gen: gen}

	// Release only our own hold. A stale unlock arriving after the TTL
	// expired and another caller re-acquired must not free their lock.
	unlock := func() {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		if h, ok := lm.held[key]; ok && h.gen == gen {
			delete(lm.held, key)
		}
	}
	return unlock, nil
}

var _ domain.LockManager = (*LockManager)(nil)
