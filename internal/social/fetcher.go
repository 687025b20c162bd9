// Package social extracts single posts from the x.com family of sites, trying
// read-only mirrors before the origin.
package social

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/contentrelay/internal/browser"
	"github.com/JakeFAU/contentrelay/internal/cache"
	"github.com/JakeFAU/contentrelay/internal/content"
	"github.com/JakeFAU/contentrelay/internal/metrics"
	"github.com/JakeFAU/contentrelay/internal/telemetry"
)

const (
	mirrorPostSelector = ".main-tweet"
	originPostSelector = `article[data-testid="tweet"]`
)

// SessionPool is the subset of the browser pool the fetcher needs.
type SessionPool interface {
	Acquire(ctx context.Context, timeout time.Duration) (*browser.Lease, error)
	NewPage(ctx context.Context, session *browser.Session) (browser.Page, error)
}

// Config tunes mirror selection and timeouts.
type Config struct {
	// Mirrors are base URLs tried in order before the origin.
	Mirrors []string
	// DirectBaseURL is the origin front-end used as the last resort.
	DirectBaseURL     string
	AcquireTimeout    time.Duration
	NavigationTimeout time.Duration
	// MirrorWaitTimeout bounds the wait for the post container on each attempt.
	MirrorWaitTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Mirrors:           append([]string(nil), DefaultMirrors...),
		DirectBaseURL:     "https://" + CanonicalHost,
		AcquireTimeout:    30 * time.Second,
		NavigationTimeout: 30 * time.Second,
		MirrorWaitTimeout: 10 * time.Second,
	}
}

// Fetcher extracts posts.
type Fetcher struct {
	cfg    Config
	hosts  map[string]bool
	pool   SessionPool
	cache  *cache.Cache[any]
	logger *zap.Logger
}

// New builds a Fetcher. A nil Mirrors slice selects DefaultMirrors; an empty
// non-nil slice disables mirrors.
func New(cfg Config, pool SessionPool, c *cache.Cache[any], logger *zap.Logger) *Fetcher {
	def := DefaultConfig()
	if cfg.Mirrors == nil {
		cfg.Mirrors = def.Mirrors
	}
	if cfg.DirectBaseURL == "" {
		cfg.DirectBaseURL = def.DirectBaseURL
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = def.NavigationTimeout
	}
	if cfg.MirrorWaitTimeout <= 0 {
		cfg.MirrorWaitTimeout = def.MirrorWaitTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:    cfg,
		hosts:  allowedHosts(cfg.Mirrors),
		pool:   pool,
		cache:  c,
		logger: logger,
	}
}

// Parse validates raw against the origin hosts and the configured mirrors.
func (f *Fetcher) Parse(raw string) (PostRef, error) {
	return parsePostURL(raw, f.hosts)
}

// Fetch extracts the post at rawURL. Failures are classified into the result.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) content.SocialPostResult {
	ctx, span := telemetry.StartFetch(ctx, content.KindSocial, attribute.String("url.full", rawURL))
	result := f.fetch(ctx, rawURL)
	var source string
	if result.SocialPost != nil {
		source = result.Source
	}
	telemetry.EndFetch(span, source, result.Failure)
	return result
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) content.SocialPostResult {
	start := time.Now()
	ref, err := f.Parse(rawURL)
	if err != nil {
		return f.fail(start, err)
	}
	logger := f.logger.With(zap.String("handle", ref.Handle), zap.String("post_id", ref.PostID))

	key := ref.CacheKey()
	if cached, ok := f.cache.Get(key); ok {
		if p, ok := cached.(*content.SocialPost); ok {
			metrics.ObserveCache(content.KindSocial, true)
			hit := *p
			hit.Source = content.SourceCache
			hit.ElapsedMs = content.ElapsedMs(start)
			return content.SocialPostOK(&hit)
		}
	}
	metrics.ObserveCache(content.KindSocial, false)

	post, err := f.fetchFromMirrors(ctx, ref, logger)
	if err != nil {
		if ctx.Err() != nil || poolUnavailable(err) {
			return f.fail(start, err)
		}
		post, err = f.fetchDirect(ctx, ref, logger)
	}
	if err != nil {
		logger.Warn("post fetch failed", zap.Error(err))
		return f.fail(start, err)
	}

	post.ElapsedMs = content.ElapsedMs(start)
	stored := *post
	f.cache.Set(key, &stored, content.KindSocial)
	metrics.ObserveFetch(content.KindSocial, "success", time.Since(start))
	logger.Info("post fetched",
		zap.String("source", post.Source),
		zap.Int64("elapsed_ms", post.ElapsedMs),
	)
	return content.SocialPostOK(post)
}

func (f *Fetcher) fetchFromMirrors(ctx context.Context, ref PostRef, logger *zap.Logger) (*content.SocialPost, error) {
	var errs []error
	for _, base := range f.cfg.Mirrors {
		host := hostOf(base)
		post, err := f.attempt(ctx, ref.URLOn(base), mirrorPostSelector, func(doc string) (parsedPost, error) {
			return parseNitter(doc, base)
		}, logger)
		if err == nil {
			return f.assemble(ref, post, host), nil
		}
		logger.Debug("mirror attempt failed", zap.String("mirror", host), zap.Error(err))
		if ctx.Err() != nil || poolUnavailable(err) {
			return nil, err
		}
		errs = append(errs, fmt.Errorf("%s: %w", host, err))
	}
	if len(errs) == 0 {
		return nil, errors.New("no mirrors configured")
	}
	return nil, errors.Join(errs...)
}

func (f *Fetcher) fetchDirect(ctx context.Context, ref PostRef, logger *zap.Logger) (*content.SocialPost, error) {
	post, err := f.attempt(ctx, ref.URLOn(f.cfg.DirectBaseURL), originPostSelector, func(doc string) (parsedPost, error) {
		return parseOrigin(doc, ref.PostID)
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("direct: %w", err)
	}
	return f.assemble(ref, post, hostOf(f.cfg.DirectBaseURL)), nil
}

// attempt renders target in a fresh session, waits for the post container and
// parses the document. The page and session are always given back.
func (f *Fetcher) attempt(
	ctx context.Context,
	target, waitSelector string,
	parse func(doc string) (parsedPost, error),
	logger *zap.Logger,
) (parsedPost, error) {
	lease, err := f.pool.Acquire(ctx, f.cfg.AcquireTimeout)
	if err != nil {
		return parsedPost{}, err
	}
	defer lease.Release()

	tab, err := f.pool.NewPage(ctx, lease.Session)
	if err != nil {
		return parsedPost{}, err
	}
	defer func() {
		if cerr := tab.Close(); cerr != nil {
			logger.Debug("close page", zap.Error(cerr))
		}
	}()

	navCtx, cancel := context.WithTimeout(ctx, f.cfg.NavigationTimeout)
	defer cancel()
	if err := tab.Navigate(navCtx, target); err != nil {
		return parsedPost{}, err
	}

	waitCtx, waitCancel := context.WithTimeout(navCtx, f.cfg.MirrorWaitTimeout)
	if err := tab.WaitVisible(waitCtx, waitSelector); err != nil {
		logger.Debug("post container not visible, parsing anyway",
			zap.String("url", target), zap.Error(err))
	}
	waitCancel()

	doc, err := tab.HTML(navCtx)
	if err != nil {
		return parsedPost{}, err
	}
	post, err := parse(doc)
	if err != nil {
		return parsedPost{}, err
	}
	if post.Text == "" {
		return parsedPost{}, errors.New("post text not found")
	}
	return post, nil
}

func (f *Fetcher) assemble(ref PostRef, p parsedPost, source string) *content.SocialPost {
	handle := p.Handle
	if handle == "" {
		handle = ref.Handle
	}
	return &content.SocialPost{
		URL:        ref.CanonicalURL(),
		PostID:     ref.PostID,
		Handle:     handle,
		AuthorName: p.AuthorName,
		Text:       p.Text,
		Timestamp:  p.Timestamp,
		Engagement: p.Engagement,
		Media:      p.Media,
		Source:     source,
	}
}

func (f *Fetcher) fail(start time.Time, err error) content.SocialPostResult {
	kind := content.Classify(err)
	metrics.ObserveFetch(content.KindSocial, string(kind), time.Since(start))
	return content.SocialPostFailed(err, kind)
}

// poolUnavailable reports failures that another attempt cannot fix.
func poolUnavailable(err error) bool {
	return errors.Is(err, browser.ErrAcquireTimeout) || errors.Is(err, browser.ErrPoolClosed)
}

func hostOf(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return base
	}
	return strings.ToLower(u.Host)
}
