package page_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/contentrelay/internal/browser"
	"github.com/JakeFAU/contentrelay/internal/browser/browsertest"
	"github.com/JakeFAU/contentrelay/internal/cache"
	"github.com/JakeFAU/contentrelay/internal/clock"
	"github.com/JakeFAU/contentrelay/internal/content"
	"github.com/JakeFAU/contentrelay/internal/page"
)

var articleHTML = `<html><head><title>Story</title><meta name="author" content="Jo"></head><body>
<nav>menu</nav><article><h1>Story</h1><p>` + strings.Repeat("word ", 120) + `</p></article></body></html>`

const shortHTML = `<html><head><title>Tiny</title></head><body><p>Just a few words here.</p></body></html>`

type harness struct {
	fetcher  *page.Fetcher
	pool     *browser.Pool
	launcher *browsertest.Launcher
	cache    *cache.Cache[any]
}

func newHarness(t *testing.T, maxContexts int, cfg page.Config) *harness {
	t.Helper()
	launcher := browsertest.NewLauncher(browsertest.StaticSite(map[string]string{
		"https://example.com/story":      articleHTML,
		"https://example.com/tiny":       shortHTML,
		"https://medium.com/@jo/a-story": articleHTML,
	}))
	pool := browser.NewPool(browser.Config{MaxContexts: maxContexts, PollInterval: 5 * time.Millisecond},
		launcher, browsertest.SequentialIDs(), nil, zap.NewNop())
	t.Cleanup(func() { _ = pool.Cleanup(context.Background()) })

	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c := cache.New[any](cache.Config{MaxSize: 10, TTL: time.Hour}, clk)
	return &harness{
		fetcher:  page.New(cfg, pool, c, clk, zap.NewNop()),
		pool:     pool,
		launcher: launcher,
		cache:    c,
	}
}

func testConfig() page.Config {
	cfg := page.DefaultConfig()
	cfg.SettleDelay = 0
	cfg.ScrollDelay = 0
	cfg.AcquireTimeout = time.Second
	return cfg
}

func TestFetchExtractsAndCaches(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2, testConfig())
	ctx := context.Background()

	res := h.fetcher.Fetch(ctx, page.Request{URL: "https://example.com/story"})
	require.True(t, res.Success, "%+v", res.Failure)
	assert.Nil(t, res.Failure)
	assert.Equal(t, content.MethodBrowser, res.Method)
	assert.Equal(t, "generic", res.Profile)
	assert.Equal(t, "Story", res.Metadata.Title)
	assert.Equal(t, "Jo", res.Metadata.Author)
	assert.Equal(t, 121, res.WordCount)
	assert.Equal(t, "https://example.com/story", res.FinalURL)
	assert.NotContains(t, res.Text, "menu")
	assert.True(t, h.cache.Has(page.CacheKey("https://example.com/story")))

	hit := h.fetcher.Fetch(ctx, page.Request{URL: "https://example.com/story"})
	require.True(t, hit.Success)
	assert.Equal(t, content.SourceCache, hit.Method)
	assert.Equal(t, res.Text, hit.Text)

	assert.Equal(t, 0, h.pool.Status().ActiveContexts)
	assert.Equal(t, int64(0), h.launcher.OpenPages())
}

func TestFetchShortPageIsNotCached(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1, testConfig())
	res := h.fetcher.Fetch(context.Background(), page.Request{URL: "https://example.com/tiny"})
	require.True(t, res.Success)
	assert.Equal(t, 5, res.WordCount)
	assert.False(t, h.cache.Has(page.CacheKey("https://example.com/tiny")))
}

func TestFetchRejectsInvalidURLs(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1, testConfig())
	for _, raw := range []string{"", "not a url", "ftp://example.com/file", "https://", "javascript:alert(1)"} {
		res := h.fetcher.Fetch(context.Background(), page.Request{URL: raw})
		require.False(t, res.Success, raw)
		assert.Equal(t, content.ErrTypeInvalidURL, res.ErrorType, raw)
		assert.Equal(t, 400, res.ErrorType.HTTPStatus())
	}
	assert.Zero(t, h.launcher.Launches())
}

func TestFetchNavigationFailureReleasesSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1, testConfig())
	res := h.fetcher.Fetch(context.Background(), page.Request{URL: "https://example.com/missing"})
	require.False(t, res.Success)
	assert.Equal(t, content.ErrTypeNotFound, res.ErrorType)
	assert.Nil(t, res.Page)

	assert.Equal(t, 0, h.pool.Status().ActiveContexts)
	assert.Equal(t, int64(0), h.launcher.OpenPages())

	// The single session is free again.
	again := h.fetcher.Fetch(context.Background(), page.Request{URL: "https://example.com/story"})
	assert.True(t, again.Success)
}

func TestFetchToleratesMissingWaitSelector(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1, testConfig())
	res := h.fetcher.Fetch(context.Background(), page.Request{
		URL:             "https://example.com/story",
		WaitForSelector: "#never-rendered",
	})
	assert.True(t, res.Success)
}

func TestFetchScrollsForScrollProfiles(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxScrolls = 3
	h := newHarness(t, 1, cfg)

	res := h.fetcher.Fetch(context.Background(), page.Request{URL: "https://medium.com/@jo/a-story"})
	require.True(t, res.Success)
	assert.Equal(t, "medium", res.Profile)
	// Three scroll steps plus the return to top.
	assert.Equal(t, int64(4), h.launcher.Evaluations())
}

func TestFetchTimesOutWhenPoolIsBusy(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.AcquireTimeout = 30 * time.Millisecond
	h := newHarness(t, 1, cfg)

	lease, err := h.pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer lease.Release()

	res := h.fetcher.Fetch(context.Background(), page.Request{URL: "https://example.com/story"})
	require.False(t, res.Success)
	assert.Equal(t, content.ErrTypeTimeout, res.ErrorType)
	assert.Equal(t, 504, res.ErrorType.HTTPStatus())
}
