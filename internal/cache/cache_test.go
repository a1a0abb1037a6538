package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLRU(size int, ttl time.Duration) (*LRUCache[string], *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](size, ttl)
	c.now = clock.Now
	return c, clock
}

func TestLRUCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestLRU(2, time.Minute)

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "a", "1"))
	v, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	require.NoError(t, c.Set(ctx, "a", "2"))
	v, _, _ = c.Get(ctx, "a")
	assert.Equal(t, "2", v)
	assert.Equal(t, 1, c.Size())

	require.NoError(t, c.Delete(ctx, "a"))
	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestLRU(2, time.Minute)

	_ = c.Set(ctx, "a", "1")
	_ = c.Set(ctx, "b", "2")
	_, _, _ = c.Get(ctx, "a")
	_ = c.Set(ctx, "c", "3")

	_, okA, _ := c.Get(ctx, "a")
	_, okB, _ := c.Get(ctx, "b")
	_, okC, _ := c.Get(ctx, "c")
	assert.True(t, okA)
	assert.False(t, okB, "b was least recently used")
	assert.True(t, okC)
	assert.Equal(t, 2, c.Size())
}

func TestLRUCache_TTL(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestLRU(10, time.Minute)

	_ = c.Set(ctx, "a", "1")
	_ = c.Set(ctx, "b", "2")
	clock.Advance(30 * time.Second)
	_ = c.Set(ctx, "c", "3")
	clock.Advance(45 * time.Second)

	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)

	assert.Equal(t, 1, c.CleanExpired(), "b expired, c still fresh")
	assert.Equal(t, 1, c.Size())
}

func TestLRUCache_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache[int](50, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*i)%80)
				_ = c.Set(ctx, key, i)
				_, _, _ = c.Get(ctx, key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Size(), 50)
}

func TestManager(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestLRU(10, time.Second)
	_ = c.Set(ctx, "a", "1")
	clock.Advance(2 * time.Second)

	m := NewManager()
	m.Register(c)
	assert.Equal(t, 1, m.CleanNow())

	m.StartCleanup(10 * time.Millisecond)
	m.StartCleanup(10 * time.Millisecond)
	m.Stop()
	m.Stop()
	m.StartCleanup(10 * time.Millisecond)
}

func TestRedisCache_KeyPrefix(t *testing.T) {
	c := NewRedisCache[string](nil, "fintrack:extract:", time.Hour)
	assert.Equal(t, "fintrack:extract:abc", c.key("abc"))
}

func TestRedisCache_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedisCache[string](client, "p:", time.Minute)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "k")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, c.Set(ctx, "k", "v"))

	_, err = NewRedisClient(ctx, "redis://127.0.0.1:1/0?dial_timeout=50ms&max_retries=-1")
	assert.Error(t, err)

	_, err = NewRedisClient(ctx, "http://not-redis")
	assert.Error(t, err)
}
