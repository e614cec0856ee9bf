package model

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ParamStore fetches serialized model parameters by key. Absence is a valid,
// non-error state: the forecast is simply unavailable.
type ParamStore interface {
	Get(ctx context.Context, modelKey string) (raw []byte, found bool, err error)
}

// Cache memoizes parsed models with time-based invalidation. It is owned by
// the orchestrator and injected where forecasts are needed; there is no
// package-level state.
//
// Concurrent reads after first load are safe. Two goroutines racing past an
// expired entry may both reload; the second write simply replaces the first,
// which is harmless because entries are immutable once parsed.
type Cache struct {
	store ParamStore
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	model    *Model // nil means the store had no parameters for the key
	loadedAt time.Time
}

// NewCache creates a parameter cache over the given store.
func NewCache(store ParamStore, ttl time.Duration) *Cache {
	return &Cache{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Model returns the parsed model for key, loading and memoizing on miss or
// TTL expiry. found=false means the store has no parameters for the key.
func (c *Cache) Model(ctx context.Context, key string) (*Model, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.loadedAt) < c.ttl {
		return entry.model, entry.model != nil, nil
	}

	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		// Serve the stale entry if we have one; a reload failure should not
		// take down scoring when a valid model is already in memory.
		if ok && entry.model != nil {
			log.Warn().Err(err).Str("model_key", key).Msg("model reload failed, serving cached parameters")
			return entry.model, true, nil
		}
		return nil, false, err
	}

	var m *Model
	if found {
		m, err = Parse(raw)
		if err != nil {
			return nil, false, err
		}
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{model: m, loadedAt: c.now()}
	c.mu.Unlock()

	return m, m != nil, nil
}
