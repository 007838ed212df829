// Package cache holds recent basket results keyed by basket fingerprint.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"holdings-tracker/internal/models"
)

// DefaultTTL matches the default refresh interval.
const DefaultTTL = 15 * time.Second

// DefaultMaxEntries bounds the number of distinct baskets held at once.
const DefaultMaxEntries = 256

// Entry is one cached basket result. Entries are replaced, never mutated.
type Entry struct {
	Key       string
	Payload   []models.QuoteResult
	CreatedAt time.Time
	TTL       time.Duration
}

// ExpiresAt returns when the entry stops being served.
func (e Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

type slot struct {
	entry     Entry
	insertIdx int64
}

// SnapshotCache is a TTL map from basket fingerprint to fetch results.
// Expiry is checked lazily on read. Thread-safe with sync.RWMutex.
type SnapshotCache struct {
	mu         sync.RWMutex
	items      map[string]slot
	ttl        time.Duration
	maxEntries int
	nextIdx    int64
	now        func() time.Time
}

// New creates a SnapshotCache. Non-positive arguments select the defaults.
func New(ttl time.Duration, maxEntries int) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &SnapshotCache{
		items:      make(map[string]slot),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (c *SnapshotCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// TTL returns the cache's time-to-live.
func (c *SnapshotCache) TTL() time.Duration {
	return c.ttl
}

// Fingerprint derives the cache key for a basket: SHA-256 over the ordered
// EXCHANGE:SYMBOL list. Order matters; the same basket always maps to the
// same key.
func Fingerprint(items []models.BasketItem) string {
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = item.Key()
	}
	sum := sha256.Sum256([]byte(strings.Join(keys, ",")))
	return "basket:" + hex.EncodeToString(sum[:16])
}

// Get returns the entry for key if present and fresh. The returned payload
// is a copy.
func (c *SnapshotCache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	s, ok := c.items[key]
	now := c.now()
	c.mu.RUnlock()

	if !ok {
		return Entry{}, false
	}

	if !now.Before(s.entry.ExpiresAt()) {
		// Expired: remove lazily
		c.mu.Lock()
		if s2, ok2 := c.items[key]; ok2 && !c.now().Before(s2.entry.ExpiresAt()) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return Entry{}, false
	}

	e := s.entry
	e.Payload = append([]models.QuoteResult(nil), s.entry.Payload...)
	return e, true
}

// Set stores payload under key, replacing any previous entry. The oldest
// entry is evicted when the cache is full.
func (c *SnapshotCache) Set(key string, payload []models.QuoteResult) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := Entry{
		Key:       key,
		Payload:   append([]models.QuoteResult(nil), payload...),
		CreatedAt: c.now(),
		TTL:       c.ttl,
	}
	s := slot{entry: e, insertIdx: c.nextIdx}
	c.nextIdx++

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxEntries {
		c.evictOldest()
	}
	c.items[key] = s

	return e
}

// Len returns the number of stored entries, fresh or not.
func (c *SnapshotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// evictOldest removes the entry with the lowest insertIdx. Must be called with mu held.
func (c *SnapshotCache) evictOldest() {
	var oldestKey string
	var oldestIdx int64 = -1

	for key, s := range c.items {
		if oldestIdx == -1 || s.insertIdx < oldestIdx {
			oldestIdx = s.insertIdx
			oldestKey = key
		}
	}
	if oldestIdx >= 0 {
		delete(c.items, oldestKey)
	}
}
