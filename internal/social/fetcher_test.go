package social_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/contentrelay/internal/browser"
	"github.com/JakeFAU/contentrelay/internal/browser/browsertest"
	"github.com/JakeFAU/contentrelay/internal/cache"
	"github.com/JakeFAU/contentrelay/internal/content"
	"github.com/JakeFAU/contentrelay/internal/social"
)

const mirrorPost = `<html><body><div class="main-tweet">
<a class="fullname">jack</a><a class="username">@jack</a>
<div class="tweet-content">just setting up my twttr</div>
</div></body></html>`

const originPost = `<html><body><article data-testid="tweet">
<div data-testid="User-Name"><span>Jack</span><span>@jack</span></div>
<div data-testid="tweetText">from the origin</div>
</article></body></html>`

const loginWall = `<html><body><h1>Sign in to X</h1></body></html>`

type harness struct {
	fetcher  *social.Fetcher
	launcher *browsertest.Launcher
	cache    *cache.Cache[any]
}

func newHarness(t *testing.T, pages map[string]string) *harness {
	t.Helper()
	launcher := browsertest.NewLauncher(browsertest.StaticSite(pages))
	pool := browser.NewPool(browser.Config{MaxContexts: 1, PollInterval: 5 * time.Millisecond},
		launcher, browsertest.SequentialIDs(), nil, zap.NewNop())
	t.Cleanup(func() { _ = pool.Cleanup(context.Background()) })

	c := cache.New[any](cache.Config{MaxSize: 10, TTL: time.Hour}, nil)
	cfg := social.Config{
		Mirrors:        []string{"https://mirror-a.test", "https://mirror-b.test"},
		DirectBaseURL:  "https://origin.test",
		AcquireTimeout: time.Second,
	}
	return &harness{
		fetcher:  social.New(cfg, pool, c, zap.NewNop()),
		launcher: launcher,
		cache:    c,
	}
}

func TestFetchFallsThroughMirrorsAndCaches(t *testing.T) {
	t.Parallel()

	h := newHarness(t, map[string]string{
		"https://mirror-b.test/jack/status/20": mirrorPost,
	})
	ctx := context.Background()

	res := h.fetcher.Fetch(ctx, "https://twitter.com/jack/status/20")
	require.True(t, res.Success, "%+v", res.Failure)
	assert.Equal(t, "mirror-b.test", res.Source)
	assert.Equal(t, "https://x.com/jack/status/20", res.URL)
	assert.Equal(t, "20", res.PostID)
	assert.Equal(t, "jack", res.Handle)
	assert.Equal(t, "just setting up my twttr", res.Text)
	assert.Zero(t, h.launcher.OpenPages())

	hit := h.fetcher.Fetch(ctx, "https://x.com/JACK/status/20")
	require.True(t, hit.Success)
	assert.Equal(t, content.SourceCache, hit.Source)
	assert.Equal(t, "just setting up my twttr", hit.Text)
}

func TestFetchFallsBackToOrigin(t *testing.T) {
	t.Parallel()

	h := newHarness(t, map[string]string{
		"https://origin.test/jack/status/20": originPost,
	})

	res := h.fetcher.Fetch(context.Background(), "https://x.com/jack/status/20")
	require.True(t, res.Success, "%+v", res.Failure)
	assert.Equal(t, "origin.test", res.Source)
	assert.Equal(t, "from the origin", res.Text)
	assert.Equal(t, "Jack", res.AuthorName)
}

func TestFetchLoginWallIsBlocked(t *testing.T) {
	t.Parallel()

	h := newHarness(t, map[string]string{
		"https://mirror-a.test/jack/status/20": `<html><body><div class="error-panel">Instance has been rate limited</div></body></html>`,
		"https://origin.test/jack/status/20":   loginWall,
	})

	res := h.fetcher.Fetch(context.Background(), "https://x.com/jack/status/20")
	require.False(t, res.Success)
	assert.Nil(t, res.SocialPost)
	assert.Equal(t, content.ErrTypeBlocked, res.ErrorType)
	assert.False(t, h.cache.Has("social:handle=jack&id=20"))
	assert.Zero(t, h.launcher.OpenPages())
}

func TestFetchMissingEverywhereIsNotFound(t *testing.T) {
	t.Parallel()

	h := newHarness(t, map[string]string{})

	res := h.fetcher.Fetch(context.Background(), "https://x.com/jack/status/20")
	require.False(t, res.Success)
	assert.Equal(t, content.ErrTypeNotFound, res.ErrorType)
}

func TestFetchRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	h := newHarness(t, map[string]string{})

	res := h.fetcher.Fetch(context.Background(), "https://x.com/foo")
	require.False(t, res.Success)
	assert.Equal(t, content.ErrTypeInvalidURL, res.ErrorType)
	assert.Zero(t, h.launcher.Launches())
}

func TestFetchReportsLaunchFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, map[string]string{
		"https://origin.test/jack/status/20": originPost,
	})
	h.launcher.FailLaunches(errors.New("chrome missing"))

	res := h.fetcher.Fetch(context.Background(), "https://x.com/jack/status/20")
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "chrome missing")
}
