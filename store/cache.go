package store

import (
	"sync"
	"time"

	"github.com/facebookgo/clock"
)

// sizeCache remembers the sizes the S3 and REST sources learn from the
// remote side, and which keys are known to be missing. A job opens an archive
// and then reopens its entries many times, so without it every Open would
// cost a round trip.
//
// Files may be replaced between batches, so entries expire. Missing keys
// expire sooner than present ones.
type sizeCache struct {
	clk     clock.Clock
	hitTTL  time.Duration
	missTTL time.Duration

	mu        sync.Mutex
	entries   map[string]sizeEntry
	nextSweep time.Time
}

type sizeEntry struct {
	size    int64
	missing bool
	expire  time.Time
}

const (
	defaultHitTTL  = 15 * time.Minute
	defaultMissTTL = time.Minute
)

func newSizeCache(clk clock.Clock) *sizeCache {
	if clk == nil {
		clk = clock.New()
	}
	return &sizeCache{
		clk:     clk,
		hitTTL:  defaultHitTTL,
		missTTL: defaultMissTTL,
		entries: make(map[string]sizeEntry),
	}
}

// lookup returns the size of key. On a miss it calls stat outside the lock
// and remembers the answer if stat either found the key or returned
// ErrNotExist. Other errors are passed through and not cached.
func (c *sizeCache) lookup(key string, stat func(key string) (int64, error)) (int64, error) {
	now := c.clk.Now()
	c.mu.Lock()
	if now.After(c.nextSweep) {
		c.sweep(now)
	}
	e, ok := c.entries[key]
	c.mu.Unlock()
	if ok && now.Before(e.expire) {
		if e.missing {
			return 0, ErrNotExist
		}
		return e.size, nil
	}
	size, err := stat(key)
	switch err {
	case nil:
		c.found(key, size)
	case ErrNotExist:
		c.missing(key)
		size = 0
	}
	return size, err
}

func (c *sizeCache) found(key string, size int64) {
	c.put(key, sizeEntry{size: size, expire: c.clk.Now().Add(c.hitTTL)})
}

func (c *sizeCache) missing(key string) {
	c.put(key, sizeEntry{missing: true, expire: c.clk.Now().Add(c.missTTL)})
}

// forget drops what is known about key, for when it is about to change.
func (c *sizeCache) forget(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *sizeCache) put(key string, e sizeEntry) {
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// sweep removes expired entries. The caller must hold c.mu.
func (c *sizeCache) sweep(now time.Time) {
	c.nextSweep = now.Add(c.hitTTL)
	for k, e := range c.entries {
		if now.After(e.expire) {
			delete(c.entries, k)
		}
	}
}

func (c *sizeCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
