// Package cache provides the deduplicating result cache for search and
// analysis calls. A local LRU with TTL is always present; a Redis tier
// can sit behind it and is consulted only on local misses.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/Kocoro-lab/Meridian/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTTL is the entry lifetime when none is configured.
const DefaultTTL = 86400 * time.Second

// Key derives a cache key from its parts: sha256 hex of the parts
// joined by "|".
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

type entry struct {
	key     string
	value   []byte
	expires time.Time
}

// Cache is a thread-safe LRU with per-entry TTL. Values are opaque
// bytes; callers marshal what they store.
type Cache struct {
	mu      sync.Mutex
	name    string
	maxSize int
	ttl     time.Duration
	order   *list.List // front = most recent
	items   map[string]*list.Element

	hits      int64
	misses    int64
	evictions int64

	now func() time.Time

	redis  *redis.Client
	logger *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithRedis attaches a shared Redis tier behind the local cache.
func WithRedis(client *redis.Client) Option {
	return func(c *Cache) { c.redis = client }
}

// WithLogger sets the logger for tier degradation events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithName labels this cache's hit/miss/eviction metrics. Unnamed
// caches record nothing.
func WithName(name string) Option {
	return func(c *Cache) { c.name = name }
}

// New creates a cache with the given capacity and TTL. Non-positive
// arguments fall back to 256 entries and DefaultTTL.
func New(maxSize int, ttl time.Duration, opts ...Option) *Cache {
	if maxSize <= 0 {
		maxSize = 256
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		maxSize: maxSize,
		ttl:     ttl,
		order:   list.New(),
		items:   make(map[string]*list.Element),
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key. Expired entries count as misses
// and are removed. On a local miss the Redis tier is consulted when
// configured; a Redis hit repopulates the local tier.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry)
		if c.now().Before(ent.expires) {
			c.order.MoveToFront(el)
			c.hits++
			val := ent.value
			name := c.name
			c.mu.Unlock()
			if name != "" {
				metrics.CacheHits.WithLabelValues(name).Inc()
			}
			return val, true
		}
		c.order.Remove(el)
		delete(c.items, key)
	}
	c.misses++
	name := c.name
	c.mu.Unlock()
	if name != "" {
		metrics.CacheMisses.WithLabelValues(name).Inc()
	}

	if c.redis == nil {
		return nil, false
	}
	val, err := c.redis.Get(ctx, "meridian:cache:"+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("Redis cache tier unavailable", zap.Error(err))
		}
		return nil, false
	}
	c.setLocal(key, val)
	return val, true
}

// Set stores a value under key in both tiers.
func (c *Cache) Set(ctx context.Context, key string, value []byte) {
	c.setLocal(key, value)
	if c.redis != nil {
		if err := c.redis.Set(ctx, "meridian:cache:"+key, value, c.ttl).Err(); err != nil {
			c.logger.Debug("Redis cache tier write failed", zap.Error(err))
		}
	}
}

func (c *Cache) setLocal(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry)
		ent.value = value
		ent.expires = c.now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	for c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
		c.evictions++
		if c.name != "" {
			metrics.CacheEvictions.WithLabelValues(c.name).Inc()
		}
	}

	el := c.order.PushFront(&entry{key: key, value: value, expires: c.now().Add(c.ttl)})
	c.items[key] = el
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Evictions: c.evictions, Size: c.order.Len()}
}

// Len reports the current local entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
