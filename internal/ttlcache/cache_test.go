// ABOUTME: Tests for the TTL value cache.
// ABOUTME: Validates TTL expiration, size limits, eviction, cleanup, and concurrency safety.

package ttlcache

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

// fakeClock is advanced manually by tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(ttl time.Duration, size int) (*Cache[int], *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return newCache[int](ttl, size, clock.Now), clock
}

func TestCache_GetMissing(t *testing.T) {
	cache, _ := newTestCache(time.Minute, 10)

	_, ok := cache.Get("never-set")
	assert.False(t, ok)
}

func TestCache_SetGet(t *testing.T) {
	cache, _ := newTestCache(time.Minute, 10)

	cache.Set("a", 1)
	v, ok := cache.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestCache_Expiry(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 10)

	cache.Set("a", 1)
	clock.Advance(59 * time.Second)
	_, ok := cache.Get("a")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = cache.Get("a")
	assert.False(t, ok)
}

func TestCache_SetRefreshesTimestamp(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 10)

	cache.Set("a", 1)
	clock.Advance(40 * time.Second)
	cache.Set("a", 2)
	clock.Advance(40 * time.Second)

	v, ok := cache.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	cache, _ := newTestCache(time.Minute, 2)

	cache.Set("first", 1)
	cache.Set("second", 2)
	cache.Set("third", 3)

	_, ok := cache.Get("first")
	assert.False(t, ok)
	_, ok = cache.Get("second")
	assert.True(t, ok)
	_, ok = cache.Get("third")
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Len())
}

func TestCache_RunCleanup(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 10)

	cache.Set("old", 1)
	clock.Advance(2 * time.Minute)
	cache.Set("fresh", 2)

	cache.runCleanup()
	assert.Equal(t, 1, cache.Len())
}

func TestCache_Delete(t *testing.T) {
	cache, _ := newTestCache(time.Minute, 10)

	cache.Set("a", 1)
	cache.Delete("a")
	cache.Delete("missing")

	_, ok := cache.Get("a")
	assert.False(t, ok)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := New[int](time.Minute, 100)
	defer cache.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := strconv.Itoa((n * j) % 150)
				cache.Set(key, j)
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Len(), 100)
}

func TestCache_CloseStopsCleanup(t *testing.T) {
	defer goleak.VerifyNone(t)

	cache := New[string](time.Minute, 10)
	cache.Close()
	cache.Close()
}
