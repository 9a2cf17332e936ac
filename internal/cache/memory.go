package cache

import (
	"sync"
	"time"

	"histdata/models"
)

type memoryEntry struct {
	candles   []models.Candle
	expiresAt time.Time
}

// MemoryCache is a thread-safe TTL cache of candle series keyed by
// symbol and timeframe.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration

	hits   int64
	misses int64
}

// NewMemoryCache creates a memory cache whose entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
	}
}

// Key builds the cache key for a symbol/timeframe pair.
func Key(symbol, timeframe string) string {
	return symbol + "|" + timeframe
}

// Get returns a copy of the cached series, or false when absent or expired.
func (c *MemoryCache) Get(symbol, timeframe string) ([]models.Candle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[Key(symbol, timeframe)]
	if !ok || time.Now().After(entry.expiresAt) {
		if ok {
			delete(c.entries, Key(symbol, timeframe))
		}
		c.misses++
		return nil, false
	}

	c.hits++
	out := make([]models.Candle, len(entry.candles))
	copy(out, entry.candles)
	return out, true
}

// Put stores a copy of the series under the symbol/timeframe key.
func (c *MemoryCache) Put(symbol, timeframe string, candles []models.Candle) {
	stored := make([]models.Candle, len(candles))
	copy(stored, candles)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[Key(symbol, timeframe)] = memoryEntry{
		candles:   stored,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Invalidate drops the entry for a symbol/timeframe pair.
func (c *MemoryCache) Invalidate(symbol, timeframe string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, Key(symbol, timeframe))
}

// Stats returns the hit and miss counters.
func (c *MemoryCache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Len returns the number of live entries, expired ones included until read.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
