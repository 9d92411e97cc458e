package rate

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "rate_cache_hits_total"})
	cacheMiss = promauto.NewCounter(prometheus.CounterOpts{Name: "rate_cache_miss_total"})
)

type entry struct {
	Rate     decimal.Decimal
	Active   bool
	LoadedAt time.Time
}

// Cache keeps resolved category rates for ttl. Mutations invalidate eagerly.
type Cache struct {
	mu    sync.RWMutex
	items map[string]entry
	ttl   time.Duration
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		items: make(map[string]entry),
		ttl:   ttl,
	}
}

func (c *Cache) Get(category string) (entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[category]
	if !ok || (c.ttl > 0 && time.Since(v.LoadedAt) > c.ttl) {
		cacheMiss.Inc()
		return entry{}, false
	}
	cacheHits.Inc()
	return v, true
}

func (c *Cache) Set(category string, v entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[category] = v
}

func (c *Cache) Invalidate(category string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, category)
}
