// Package page renders arbitrary web pages in a pooled browser session and
// extracts their readable content and metadata.
package page

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/contentrelay/internal/browser"
	"github.com/JakeFAU/contentrelay/internal/cache"
	"github.com/JakeFAU/contentrelay/internal/clock"
	"github.com/JakeFAU/contentrelay/internal/content"
	"github.com/JakeFAU/contentrelay/internal/metrics"
	"github.com/JakeFAU/contentrelay/internal/telemetry"
)

// SessionPool is the subset of the browser pool the fetcher needs.
type SessionPool interface {
	Acquire(ctx context.Context, timeout time.Duration) (*browser.Lease, error)
	NewPage(ctx context.Context, session *browser.Session) (browser.Page, error)
}

// Config tunes rendering and extraction.
type Config struct {
	AcquireTimeout      time.Duration
	NavigationTimeout   time.Duration
	WaitSelectorTimeout time.Duration
	SettleDelay         time.Duration
	ScrollDelay         time.Duration
	ScrollStep          int
	MaxScrolls          int
	MinMeaningfulWords  int
	MinContentChars     int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		AcquireTimeout:      30 * time.Second,
		NavigationTimeout:   30 * time.Second,
		WaitSelectorTimeout: 5 * time.Second,
		SettleDelay:         time.Second,
		ScrollDelay:         500 * time.Millisecond,
		ScrollStep:          800,
		MaxScrolls:          5,
		MinMeaningfulWords:  50,
		MinContentChars:     200,
	}
}

// Request describes one page fetch.
type Request struct {
	URL             string        `json:"url"`
	WaitForSelector string        `json:"waitForSelector,omitempty"`
	Timeout         time.Duration `json:"-"`
}

// Fetcher renders and extracts pages.
type Fetcher struct {
	cfg    Config
	pool   SessionPool
	cache  *cache.Cache[any]
	clock  clock.Clock
	logger *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, pool SessionPool, c *cache.Cache[any], clk clock.Clock, logger *zap.Logger) *Fetcher {
	def := DefaultConfig()
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = def.NavigationTimeout
	}
	if cfg.WaitSelectorTimeout <= 0 {
		cfg.WaitSelectorTimeout = def.WaitSelectorTimeout
	}
	if cfg.ScrollStep <= 0 {
		cfg.ScrollStep = def.ScrollStep
	}
	if cfg.MinContentChars <= 0 {
		cfg.MinContentChars = def.MinContentChars
	}
	if cfg.MinMeaningfulWords <= 0 {
		cfg.MinMeaningfulWords = def.MinMeaningfulWords
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, pool: pool, cache: c, clock: clk, logger: logger}
}

// CacheKey returns the cache key for a page URL.
func CacheKey(rawURL string) string {
	return cache.Key(content.KindPage, map[string]string{"url": rawURL})
}

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, content.NewError(content.ErrTypeInvalidURL, fmt.Errorf("invalid url %q: %w", raw, err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, content.Errorf(content.ErrTypeInvalidURL, "invalid url %q: scheme must be http or https", raw)
	}
	if u.Hostname() == "" {
		return nil, content.Errorf(content.ErrTypeInvalidURL, "invalid url %q: missing host", raw)
	}
	return u, nil
}

// Fetch renders req.URL and extracts its content. Failures are classified
// into the result.
func (f *Fetcher) Fetch(ctx context.Context, req Request) content.PageResult {
	ctx, span := telemetry.StartFetch(ctx, content.KindPage, attribute.String("url.full", req.URL))
	result := f.fetch(ctx, req)
	var method string
	if result.Page != nil {
		method = result.Method
	}
	telemetry.EndFetch(span, method, result.Failure)
	return result
}

func (f *Fetcher) fetch(ctx context.Context, req Request) content.PageResult {
	start := time.Now()
	u, err := ValidateURL(req.URL)
	if err != nil {
		return f.fail(start, err)
	}
	rawURL := u.String()
	logger := f.logger.With(zap.String("url", rawURL))

	key := CacheKey(rawURL)
	if cached, ok := f.cache.Get(key); ok {
		if p, ok := cached.(*content.Page); ok {
			metrics.ObserveCache(content.KindPage, true)
			hit := *p
			hit.Method = content.SourceCache
			hit.ElapsedMs = content.ElapsedMs(start)
			return content.PageOK(&hit)
		}
	}
	metrics.ObserveCache(content.KindPage, false)

	result, err := f.render(ctx, u, req, logger)
	if err != nil {
		logger.Warn("page fetch failed", zap.Error(err))
		return f.fail(start, err)
	}
	result.ElapsedMs = content.ElapsedMs(start)

	if result.WordCount < f.cfg.MinMeaningfulWords {
		logger.Warn("page has little readable content",
			zap.Int("word_count", result.WordCount),
			zap.String("profile", result.Profile),
		)
	} else {
		stored := *result
		f.cache.Set(key, &stored, content.KindPage)
	}
	metrics.ObserveFetch(content.KindPage, "success", time.Since(start))
	logger.Info("page fetched",
		zap.String("profile", result.Profile),
		zap.Int("word_count", result.WordCount),
		zap.Int64("elapsed_ms", result.ElapsedMs),
	)
	return content.PageOK(result)
}

func (f *Fetcher) render(ctx context.Context, u *url.URL, req Request, logger *zap.Logger) (*content.Page, error) {
	lease, err := f.pool.Acquire(ctx, f.cfg.AcquireTimeout)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	tab, err := f.pool.NewPage(ctx, lease.Session)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := tab.Close(); cerr != nil {
			logger.Debug("close page", zap.Error(cerr))
		}
	}()

	profile := ProfileFor(u.Hostname())
	rawURL := u.String()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = f.cfg.NavigationTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := tab.Navigate(navCtx, rawURL); err != nil {
		return nil, err
	}

	waitFor := req.WaitForSelector
	if waitFor == "" {
		waitFor = profile.WaitSelector
	}
	if waitFor != "" {
		waitCtx, waitCancel := context.WithTimeout(navCtx, f.cfg.WaitSelectorTimeout)
		if err := tab.WaitVisible(waitCtx, waitFor); err != nil {
			logger.Debug("wait selector not found, continuing",
				zap.String("selector", waitFor), zap.Error(err))
		}
		waitCancel()
	}

	if profile.Scroll {
		f.scroll(navCtx, tab, logger)
	}
	if err := sleep(navCtx, f.cfg.SettleDelay); err != nil {
		return nil, err
	}

	doc, err := tab.HTML(navCtx)
	if err != nil {
		return nil, err
	}
	finalURL, err := tab.Location(navCtx)
	if err != nil || finalURL == "" {
		finalURL = rawURL
	}

	extraction, err := Extract(doc, profile, f.cfg.MinContentChars)
	if err != nil {
		return nil, err
	}

	return &content.Page{
		URL:       rawURL,
		FinalURL:  finalURL,
		Text:      extraction.Text,
		HTML:      extraction.HTML,
		Markdown:  extraction.Markdown,
		Metadata:  extraction.Metadata,
		WordCount: content.CountWords(extraction.Text),
		Profile:   profile.Name,
		Method:    content.MethodBrowser,
		FetchedAt: f.clock.Now(),
	}, nil
}

// scroll nudges lazy-loaded content into the DOM, then returns to the top.
func (f *Fetcher) scroll(ctx context.Context, tab browser.Page, logger *zap.Logger) {
	step := fmt.Sprintf(
		"window.scrollBy(0, %d); (window.innerHeight + window.scrollY) >= document.body.scrollHeight",
		f.cfg.ScrollStep,
	)
	for i := 0; i < f.cfg.MaxScrolls; i++ {
		var atBottom bool
		if err := tab.Evaluate(ctx, step, &atBottom); err != nil {
			logger.Debug("scroll failed", zap.Error(err))
			break
		}
		if err := sleep(ctx, f.cfg.ScrollDelay); err != nil {
			return
		}
		if atBottom {
			break
		}
	}
	var ok bool
	if err := tab.Evaluate(ctx, "window.scrollTo(0, 0); true", &ok); err != nil {
		logger.Debug("scroll to top failed", zap.Error(err))
	}
}

func (f *Fetcher) fail(start time.Time, err error) content.PageResult {
	kind := content.Classify(err)
	metrics.ObserveFetch(content.KindPage, string(kind), time.Since(start))
	return content.PageFailed(err, kind)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("settle: %w", ctx.Err())
	}
}
