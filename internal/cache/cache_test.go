package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/contentrelay/internal/clock"
)

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		params map[string]string
		want   string
	}{
		{name: "sorted", prefix: "transcript", params: map[string]string{"videoId": "abc", "lang": "en"}, want: "transcript:lang=en&videoId=abc"},
		{name: "single", prefix: "page", params: map[string]string{"url": "https://example.com"}, want: "page:url=https://example.com"},
		{name: "empty", prefix: "social", params: nil, want: "social:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Key(tt.prefix, tt.params))
		})
	}
}

func TestKeyIndependentOfInsertionOrder(t *testing.T) {
	t.Parallel()

	a := map[string]string{}
	a["b"] = "2"
	a["a"] = "1"
	a["c"] = "3"
	b := map[string]string{"c": "3", "a": "1", "b": "2"}

	assert.Equal(t, Key("p", a), Key("p", b))
}

func TestGetSetAndCounters(t *testing.T) {
	t.Parallel()

	c := New[string](Config{MaxSize: 10, TTL: time.Minute}, clock.NewManual(epoch))

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", "v", "page")
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	assert.True(t, c.Has("k"))

	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 10, stats.MaxSize)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestHitRateZeroWithoutLookups(t *testing.T) {
	t.Parallel()

	c := New[int](Config{}, nil)
	assert.Zero(t, c.Stats().HitRate)
	assert.Equal(t, DefaultMaxSize, c.Stats().MaxSize)
}

func TestEvictsOldestInserted(t *testing.T) {
	t.Parallel()

	c := New[int](Config{MaxSize: 2, TTL: time.Hour}, clock.NewManual(epoch))
	c.Set("a", 1, "page")
	c.Set("b", 2, "page")

	// Reads do not refresh recency.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", 3, "page")

	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("b"))
	assert.True(t, c.Has("c"))
	assert.Equal(t, 2, c.Stats().Size)
}

func TestResetCountsAsFreshInsertion(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(epoch)
	c := New[int](Config{MaxSize: 2, TTL: time.Hour}, clk)
	c.Set("a", 1, "page")
	c.Set("b", 2, "page")
	c.Set("a", 10, "page")
	c.Set("c", 3, "page")

	assert.False(t, c.Has("b"))
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, got)
}

func TestTTLExpiry(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(epoch)
	c := New[string](Config{MaxSize: 5, TTL: time.Minute}, clk)
	c.Set("k", "v", "transcript")

	clk.Advance(30 * time.Second)
	remaining, ok := c.RemainingTTL("k")
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, remaining)

	// Reading does not extend life.
	_, ok = c.Get("k")
	require.True(t, ok)

	clk.Advance(30 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Size)

	_, ok = c.RemainingTTL("k")
	assert.False(t, ok)
}

func TestDeleteAndPrefix(t *testing.T) {
	t.Parallel()

	c := New[int](Config{MaxSize: 10, TTL: time.Hour}, clock.NewManual(epoch))
	c.Set("page:url=a", 1, "page")
	c.Set("page:url=b", 2, "page")
	c.Set("transcript:videoId=x", 3, "transcript")

	assert.True(t, c.Delete("page:url=a"))
	assert.False(t, c.Delete("page:url=a"))

	assert.Equal(t, 1, c.DeleteByPrefix("page:"))
	assert.Equal(t, 1, c.Stats().Size)
	assert.True(t, c.Has("transcript:videoId=x"))
}

func TestClearResetsCounters(t *testing.T) {
	t.Parallel()

	c := New[int](Config{MaxSize: 10, TTL: time.Hour}, clock.NewManual(epoch))
	c.Set("a", 1, "page")
	c.Get("a")
	c.Get("b")

	c.Clear()

	stats := c.Stats()
	assert.Equal(t, Stats{Size: 0, MaxSize: 10}, stats)
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := New[int](Config{MaxSize: 50, TTL: time.Hour}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d-%d", n, j)
				c.Set(key, j, "page")
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Stats().Size, 50)
	assert.Equal(t, int64(800), c.Stats().Hits+c.Stats().Misses)
}
