package server

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tartampluch/famcal/internal/config"
)

// cacheItem is one rendered feed with its HTTP caching metadata.
type cacheItem struct {
	household    string
	filename     string
	data         []byte
	etag         string
	lastModified string // http.TimeFormat
	gen          uint64 // household generation the render started from
}

func newCacheItem(household, filename string, data []byte, now time.Time) *cacheItem {
	hash := sha256.Sum256(data)
	return &cacheItem{
		household:    household,
		filename:     filename,
		data:         data,
		etag:         fmt.Sprintf(config.FormatETag, hex.EncodeToString(hash[:])),
		lastModified: now.UTC().Format(http.TimeFormat),
	}
}

// feedCache maps feed tokens to rendered documents. Readers load an
// immutable snapshot without locking; writers copy the map and swap it.
//
// Each household carries a generation bumped by dropHousehold. A render
// records the generation it started from, and put and replace refuse an
// item whose household moved on while it was rendering.
type feedCache struct {
	snapshot atomic.Pointer[map[string]*cacheItem]
	mu       sync.Mutex
	gens     map[string]uint64
	limit    int
}

func newFeedCache(limit int) *feedCache {
	c := &feedCache{limit: limit, gens: map[string]uint64{}}
	empty := map[string]*cacheItem{}
	c.snapshot.Store(&empty)
	return c
}

func (c *feedCache) get(token string) *cacheItem {
	return (*c.snapshot.Load())[token]
}

// generation returns the current generation of household. Capture it
// before reading any household data.
func (c *feedCache) generation(household string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[household]
}

// stale reports whether item was rendered before its household last
// changed. Callers hold c.mu.
func (c *feedCache) stale(item *cacheItem) bool {
	return item.gen != c.gens[item.household]
}

// put stores item under token. A re-render with identical bytes keeps the
// previous item so Last-Modified only moves when content does. A stale
// item is returned to the caller but not stored.
func (c *feedCache) put(token string, item *cacheItem) *cacheItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stale(item) {
		slog.Debug(config.MsgCacheStale,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyHousehold, item.household,
		)
		return item
	}

	cur := *c.snapshot.Load()
	if old := cur[token]; old != nil && old.etag == item.etag {
		return old
	}

	next := make(map[string]*cacheItem, len(cur)+1)
	if c.limit <= 0 || len(cur) < c.limit {
		for k, v := range cur {
			next[k] = v
		}
	} else {
		slog.Debug(config.MsgCacheEvicted,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyCount, len(cur),
		)
	}
	next[token] = item
	c.snapshot.Store(&next)

	slog.Debug(config.MsgCacheUpdated,
		config.LogKeyComponent, config.CompServer,
		config.LogKeyHousehold, item.household,
		config.LogKeySizeBytes, len(item.data),
		config.LogKeyETag, item.etag,
	)
	return item
}

// dropHousehold forgets every feed of household after its data changed.
func (c *feedCache) dropHousehold(household string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[household]++
	cur := *c.snapshot.Load()
	next := make(map[string]*cacheItem, len(cur))
	for k, v := range cur {
		if v.household != household {
			next[k] = v
		}
	}
	c.snapshot.Store(&next)
}

// replace swaps in a fully re-rendered set, keeping items whose bytes did
// not change. For a stale item the entry rendered after the household
// changed is kept if there is one.
func (c *feedCache) replace(items map[string]*cacheItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := *c.snapshot.Load()
	next := make(map[string]*cacheItem, len(items))
	for k, v := range items {
		if c.stale(v) {
			if old := cur[k]; old != nil && !c.stale(old) {
				next[k] = old
			}
			continue
		}
		if old := cur[k]; old != nil && old.etag == v.etag {
			v = old
		}
		next[k] = v
	}
	c.snapshot.Store(&next)
}

func (c *feedCache) len() int {
	return len(*c.snapshot.Load())
}
