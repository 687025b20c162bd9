package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/contentrelay/internal/clock"
)

var epoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func TestLimiter_Allow(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(epoch)
	l := New(Config{RequestsPerMinute: 60, Burst: 2}, clk)

	ok, _ := l.Allow("client")
	require.True(t, ok)
	ok, _ = l.Allow("client")
	require.True(t, ok)

	ok, retry := l.Allow("client")
	require.False(t, ok)
	assert.Equal(t, time.Second, retry)

	clk.Advance(time.Second)
	ok, _ = l.Allow("client")
	assert.True(t, ok)
}

func TestLimiter_DifferentClients(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(epoch)
	l := New(Config{RequestsPerMinute: 1, Burst: 1}, clk)

	ok, _ := l.Allow("a")
	require.True(t, ok)
	ok, _ = l.Allow("a")
	require.False(t, ok)

	ok, _ = l.Allow("b")
	assert.True(t, ok, "client b must not be blocked by client a")
}

func TestLimiter_Disabled(t *testing.T) {
	t.Parallel()

	l := New(Config{}, nil)
	assert.False(t, l.Enabled())
	for i := 0; i < 100; i++ {
		ok, _ := l.Allow("client")
		require.True(t, ok)
	}
	assert.Zero(t, l.Clients())
}

func TestLimiter_DropsIdleClients(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(epoch)
	l := New(Config{RequestsPerMinute: 60, Burst: 1, IdleTTL: time.Minute}, clk)

	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Clients())

	clk.Advance(2 * time.Minute)
	l.Allow("c")
	assert.Equal(t, 1, l.Clients())
}
