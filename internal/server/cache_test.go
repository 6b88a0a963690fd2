package server

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(household, body string, at time.Time) *cacheItem {
	return newCacheItem(household, "cal.ics", []byte(body), at)
}

func TestCache_PutKeepsUnchangedItem(t *testing.T) {
	c := newFeedCache(0)
	first := c.put("tok", item("hh", "v1", testNow))

	same := c.put("tok", item("hh", "v1", testNow.Add(time.Hour)))
	assert.Same(t, first, same, "identical bytes keep the original Last-Modified")

	changed := c.put("tok", item("hh", "v2", testNow.Add(time.Hour)))
	assert.NotSame(t, first, changed)
	assert.NotEqual(t, first.etag, changed.etag)
	assert.Equal(t, changed, c.get("tok"))
}

func TestCache_LimitEvictsEverything(t *testing.T) {
	c := newFeedCache(2)
	c.put("a", item("hh", "a", testNow))
	c.put("b", item("hh", "b", testNow))
	require.Equal(t, 2, c.len())

	c.put("c", item("hh", "c", testNow))

	assert.Equal(t, 1, c.len())
	assert.NotNil(t, c.get("c"))
	assert.Nil(t, c.get("a"))
}

func TestCache_DropHousehold(t *testing.T) {
	c := newFeedCache(0)
	c.put("a", item("hh-1", "a", testNow))
	c.put("b", item("hh-2", "b", testNow))

	c.dropHousehold("hh-1")

	assert.Nil(t, c.get("a"))
	assert.NotNil(t, c.get("b"))
}

func TestCache_ReplaceKeepsUnchangedItems(t *testing.T) {
	c := newFeedCache(0)
	old := c.put("a", item("hh", "a", testNow))
	c.put("gone", item("hh", "x", testNow))

	c.replace(map[string]*cacheItem{
		"a": item("hh", "a", testNow.Add(24*time.Hour)),
		"b": item("hh", "b", testNow.Add(24*time.Hour)),
	})

	assert.Same(t, old, c.get("a"))
	assert.NotNil(t, c.get("b"))
	assert.Nil(t, c.get("gone"))
}

func TestCache_PutRefusesItemRenderedBeforeDrop(t *testing.T) {
	c := newFeedCache(0)
	gen := c.generation("hh")

	c.dropHousehold("hh")
	it := item("hh", "old", testNow)
	it.gen = gen
	got := c.put("tok", it)

	assert.Same(t, it, got, "the caller still gets its render")
	assert.Nil(t, c.get("tok"))

	fresh := item("hh", "new", testNow)
	fresh.gen = c.generation("hh")
	c.put("tok", fresh)
	assert.Same(t, fresh, c.get("tok"))
}

func TestCache_ReplaceSkipsStaleItems(t *testing.T) {
	c := newFeedCache(0)
	gen := c.generation("hh-1")

	c.dropHousehold("hh-1")
	fresh := item("hh-1", "fresh", testNow)
	fresh.gen = c.generation("hh-1")
	c.put("kept", fresh)

	staleKept := item("hh-1", "old", testNow)
	staleKept.gen = gen
	staleMissing := item("hh-1", "old", testNow)
	staleMissing.gen = gen
	c.replace(map[string]*cacheItem{
		"kept":    staleKept,
		"missing": staleMissing,
		"other":   item("hh-2", "b", testNow),
	})

	assert.Same(t, fresh, c.get("kept"))
	assert.Nil(t, c.get("missing"))
	assert.NotNil(t, c.get("other"))
}

func TestCache_ETagIsContentHash(t *testing.T) {
	a := item("hh", "same", testNow)
	b := item("other", "same", testNow.Add(time.Minute))

	assert.Equal(t, a.etag, b.etag)
	assert.Regexp(t, `^"[0-9a-f]{64}"$`, a.etag)
}

// Run with -race.
func TestCache_ConcurrentAccess(t *testing.T) {
	c := newFeedCache(8)
	var wg sync.WaitGroup
	end := time.Now().Add(200 * time.Millisecond)

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; time.Now().Before(end); i++ {
				tok := fmt.Sprintf("tok-%d", i%10)
				c.put(tok, item(fmt.Sprintf("hh-%d", id), fmt.Sprintf("%d-%d", id, i), testNow))
				if i%7 == 0 {
					c.dropHousehold(fmt.Sprintf("hh-%d", id))
				}
			}
		}(w)
	}
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) {
				if it := c.get("tok-1"); it != nil {
					assert.NotEmpty(t, it.etag)
				}
			}
		}()
	}
	wg.Wait()
}
