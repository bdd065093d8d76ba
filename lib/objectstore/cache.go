package objectstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/shardctl/internal/logging"
)

var log = logging.New("objstore")

// pollInterval is the fixed interval the cache polls at while waiting for
// outstanding borrows to drain before a rebuild.
const pollInterval = 10 * time.Millisecond

// Cache holds at most one client object, keyed by (bucket, rate-limit)
//.
type Cache struct {
	factory Factory

	mu      sync.Mutex
	key     ClientKey
	client  Env
	hasOne  bool
	refcount int
}

// NewCache creates a cache that builds clients via factory.
func NewCache(factory Factory) *Cache {
	return &Cache{factory: factory}
}

// Borrowed is a reference-counted handle to the cache's current client.
// Callers must call Release exactly once.
type Borrowed struct {
	Env
	cache *Cache
}

// Release decrements the cache's outstanding-borrow count.
func (b *Borrowed) Release() {
	b.cache.mu.Lock()
	b.cache.refcount--
	b.cache.mu.Unlock()
}

// Borrow returns a shared borrow of the client for key. If no client exists,
// or the existing one does not match key, it waits until there are no other
// borrowers, drops the old client, constructs a new one, and returns a fresh
// borrow - the "drain-and-swap" sequencing needed so the
// underlying SDK's global init/shutdown calls stay paired.
func (c *Cache) Borrow(key ClientKey) (*Borrowed, error) {
	c.mu.Lock()
	if c.hasOne && c.key == key {
		c.refcount++
		b := &Borrowed{Env: c.client, cache: c}
		c.mu.Unlock()
		return b, nil
	}
	c.mu.Unlock()

	for {
		c.mu.Lock()
		if !c.hasOne || c.key != key {
			if c.refcount == 0 {
				break
			}
			c.mu.Unlock()
			time.Sleep(pollInterval)
			continue
		}
		// another goroutine already rebuilt to the key we want while we waited
		c.refcount++
		b := &Borrowed{Env: c.client, cache: c}
		c.mu.Unlock()
		return b, nil
	}
	defer c.mu.Unlock()

	if c.hasOne {
		log.Infof("draining client for bucket=%s before rebuild", c.key.Bucket)
		if err := c.client.Close(); err != nil {
			log.Warningf("error closing previous client: %v", err)
		}
		c.hasOne = false
	}

	client, err := c.factory(key)
	if err != nil {
		return nil, fmt.Errorf("objectstore: build client for bucket=%s: %w", key.Bucket, err)
	}
	c.client = client
	c.key = key
	c.hasOne = true
	c.refcount = 1
	log.Infof("built client for bucket=%s rate_limit_mbps=%.2f", key.Bucket, key.RateLimitMBps)
	return &Borrowed{Env: client, cache: c}, nil
}
