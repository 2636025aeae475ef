package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCache_GetSetDelete(t *testing.T) {
	c := NewInMemoryCache(0)

	_, found := c.Get("products:page=1")
	assert.False(t, found)

	c.Set("products:page=1", []string{"p1"})
	val, found := c.Get("products:page=1")
	require.True(t, found)
	assert.Equal(t, []string{"p1"}, val)

	c.Delete("products:page=1")
	_, found = c.Get("products:page=1")
	assert.False(t, found)
}

func TestInMemoryCache_Expiry(t *testing.T) {
	c := NewInMemoryCache(time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("stats:all", 3)
	_, found := c.Get("stats:all")
	assert.True(t, found)

	now = now.Add(2 * time.Minute)
	_, found = c.Get("stats:all")
	assert.False(t, found)
}

func TestInMemoryCache_DeletePrefix(t *testing.T) {
	c := NewInMemoryCache(0)
	c.Set("products:a", 1)
	c.Set("products:b", 2)
	c.Set("stats:a", 3)

	assert.Equal(t, 2, c.DeletePrefix(ProductsPrefix))
	assert.Equal(t, 1, c.Len())
	_, found := c.Get("stats:a")
	assert.True(t, found)
}

func TestInMemoryCache_GetOrLoad(t *testing.T) {
	c := NewInMemoryCache(0)
	calls := 0
	load := func() (any, error) {
		calls++
		return "loaded", nil
	}

	for range 3 {
		v, err := c.GetOrLoad("stats:x", load)
		require.NoError(t, err)
		assert.Equal(t, "loaded", v)
	}
	assert.Equal(t, 1, calls)

	_, err := c.GetOrLoad("stats:y", func() (any, error) { return nil, errors.New("db down") })
	assert.Error(t, err)
	_, found := c.Get("stats:y")
	assert.False(t, found, "errors are not cached")
}

func TestInMemoryCache_GetOrLoadRacedByInvalidation(t *testing.T) {
	tests := []struct {
		name       string
		invalidate func(c *InMemoryCache)
		wantCached bool
	}{
		{"product refresh during load", func(c *InMemoryCache) { NewInvalidator(c).RefreshProducts() }, false},
		{"key deleted during load", func(c *InMemoryCache) { c.Delete("products:page=1") }, false},
		{"other channel during load", func(c *InMemoryCache) { NewInvalidator(c).RefreshSourceStats() }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewInMemoryCache(30 * time.Second)
			started := make(chan struct{})
			release := make(chan struct{})
			done := make(chan any)

			go func() {
				v, err := c.GetOrLoad("products:page=1", func() (any, error) {
					close(started)
					<-release
					return "status=pending", nil
				})
				assert.NoError(t, err)
				done <- v
			}()

			<-started
			tt.invalidate(c)
			close(release)

			assert.Equal(t, "status=pending", <-done, "caller still gets its own read")
			_, cached := c.Get("products:page=1")
			assert.Equal(t, tt.wantCached, cached)
		})
	}
}

func TestInMemoryCache_GetOrLoadAfterInvalidationCaches(t *testing.T) {
	c := NewInMemoryCache(0)
	NewInvalidator(c).RefreshProducts()

	_, err := c.GetOrLoad("products:page=1", func() (any, error) { return "fresh", nil })
	require.NoError(t, err)

	v, cached := c.Get("products:page=1")
	assert.True(t, cached)
	assert.Equal(t, "fresh", v)
}

func TestInvalidator_ChannelsAreIndependent(t *testing.T) {
	c := NewInMemoryCache(0)
	inv := NewInvalidator(c)
	c.Set("products:1", 1)
	c.Set("stats:1", 1)

	inv.RefreshProducts()
	_, products := c.Get("products:1")
	_, stats := c.Get("stats:1")
	assert.False(t, products)
	assert.True(t, stats)

	inv.RefreshSourceStats()
	assert.Zero(t, c.Len())
}

func TestInMemoryCache_Concurrent(t *testing.T) {
	c := NewInMemoryCache(0)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("products:%d", i)
			c.Set(key, i)
			c.Get(key)
			c.DeletePrefix("stats:")
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, c.Len())
}
