// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/contentrelay/internal/api"
	"github.com/JakeFAU/contentrelay/internal/browser"
	"github.com/JakeFAU/contentrelay/internal/cache"
	"github.com/JakeFAU/contentrelay/internal/clock"
	"github.com/JakeFAU/contentrelay/internal/config"
	"github.com/JakeFAU/contentrelay/internal/id/uuid"
	"github.com/JakeFAU/contentrelay/internal/logging"
	"github.com/JakeFAU/contentrelay/internal/page"
	"github.com/JakeFAU/contentrelay/internal/policy/ratelimit"
	"github.com/JakeFAU/contentrelay/internal/social"
	"github.com/JakeFAU/contentrelay/internal/telemetry"
	"github.com/JakeFAU/contentrelay/internal/transcript"
)

// App holds the shared, long-lived services. It is built once at startup and
// closed once on shutdown.
type App struct {
	Config      config.Config
	Logger      *zap.Logger
	Cache       *cache.Cache[any]
	Pool        *browser.Pool
	Transcripts *transcript.Fetcher
	Pages       *page.Fetcher
	Social      *social.Fetcher
	Limiter     *ratelimit.Limiter
	Tracer      *sdktrace.TracerProvider
}

type options struct {
	launcher browser.Launcher
	runner   transcript.CommandRunner
	clock    clock.Clock
}

// Option overrides a collaborator, mostly for tests.
type Option func(*options)

// WithLauncher replaces the Chrome launcher.
func WithLauncher(l browser.Launcher) Option {
	return func(o *options) { o.launcher = l }
}

// WithCommandRunner replaces the subprocess runner used by yt-dlp.
func WithCommandRunner(r transcript.CommandRunner) Option {
	return func(o *options) { o.runner = r }
}

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New wires every service from cfg. The browser is not started until the
// first session is requested.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{
		launcher: browser.ChromedpLauncher{
			ExecPath:  cfg.Browser.ExecPath,
			NoSandbox: cfg.Browser.NoSandbox,
			Headful:   !cfg.Browser.Headless,
		},
		runner: transcript.ExecRunner{},
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	exporter, err := telemetry.NewExporter(cfg.Telemetry.TraceExporter, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	tp, err := telemetry.InitTracerProvider(context.Background(), logging.ServiceName, exporter)
	if err != nil {
		return nil, fmt.Errorf("tracer provider: %w", err)
	}

	c := cache.New[any](cache.Config{MaxSize: cfg.Cache.MaxSize, TTL: cfg.Cache.TTL}, o.clock)

	pool := browser.NewPool(browser.Config{
		MaxContexts:    cfg.Browser.MaxContexts,
		AcquireTimeout: cfg.Browser.AcquireTimeout,
		PollInterval:   cfg.Browser.PollInterval,
		PageTimeout:    cfg.Browser.OperationTimeout,
		UserAgent:      cfg.Browser.UserAgent,
		Viewport:       browser.Viewport{Width: cfg.Browser.ViewportWidth, Height: cfg.Browser.ViewportHeight},
	}, o.launcher, uuid.New(), o.clock, logging.Component(logger, "pool"))

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Cache:   c,
		Pool:    pool,
		Limiter: ratelimit.New(ratelimit.Config{RequestsPerMinute: cfg.RateLimit.RequestsPerMinute, Burst: cfg.RateLimit.Burst}, o.clock),
		Tracer:  tp,
	}
	backends := transcriptBackends(cfg, o.runner)
	a.Transcripts = transcript.New(c, logging.Component(logger, "transcript"), backends,
		transcript.WithDefaultLanguage(cfg.Transcript.DefaultLanguage))
	a.Pages = page.New(page.Config{
		AcquireTimeout:      cfg.Browser.AcquireTimeout,
		NavigationTimeout:   cfg.Browser.NavigationTimeout,
		WaitSelectorTimeout: cfg.Page.WaitSelectorTimeout,
		SettleDelay:         cfg.Page.SettleDelay,
		ScrollDelay:         cfg.Page.ScrollDelay,
		ScrollStep:          cfg.Page.ScrollStep,
		MaxScrolls:          cfg.Page.MaxScrolls,
		MinMeaningfulWords:  cfg.Page.MinMeaningfulWords,
		MinContentChars:     cfg.Page.MinContentChars,
	}, pool, c, o.clock, logging.Component(logger, "page"))
	a.Social = social.New(social.Config{
		Mirrors:           cfg.Social.Mirrors,
		DirectBaseURL:     cfg.Social.DirectBaseURL(),
		AcquireTimeout:    cfg.Browser.AcquireTimeout,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		MirrorWaitTimeout: cfg.Social.MirrorWaitTimeout,
	}, pool, c, logging.Component(logger, "social"))

	logger.Info("application services initialized",
		zap.Int("max_contexts", cfg.Browser.MaxContexts),
		zap.Int("cache_max_size", cfg.Cache.MaxSize),
		zap.Int("transcript_backends", len(backends)),
		zap.String("trace_exporter", cfg.Telemetry.TraceExporter),
	)
	return a, nil
}

// transcriptBackends orders yt-dlp first and the timed-text scraper second.
func transcriptBackends(cfg config.Config, runner transcript.CommandRunner) []transcript.Backend {
	var backends []transcript.Backend
	if cfg.Transcript.YTDLPPath != "" {
		backends = append(backends, transcript.NewYTDLPBackend(transcript.YTDLPConfig{
			Binary:       cfg.Transcript.YTDLPPath,
			Timeout:      cfg.Transcript.CommandTimeout,
			WatchBaseURL: cfg.Transcript.WatchBaseURL,
		}, runner))
	}
	if cfg.Transcript.FallbackEnabled {
		backends = append(backends, transcript.NewTimedTextBackend(transcript.TimedTextConfig{
			BaseURL:   cfg.Transcript.WatchBaseURL,
			UserAgent: cfg.Browser.UserAgent,
			Timeout:   cfg.Transcript.CommandTimeout,
		}))
	}
	return backends
}

// Server builds the HTTP API over the app's services.
func (a *App) Server() *api.Server {
	return api.NewServer(api.Deps{
		Transcripts: a.Transcripts,
		Pages:       a.Pages,
		Social:      a.Social,
		Browser:     a.Pool,
		Cache:       a.Cache,
		Limiter:     a.Limiter,
	}, a.Config, logging.Component(a.Logger, "api"))
}

// Close stops the browser, flushes spans and syncs the logger.
func (a *App) Close(ctx context.Context) error {
	a.Logger.Info("shutting down application services")
	err := a.Pool.Cleanup(ctx)
	if err != nil {
		a.Logger.Warn("browser cleanup failed", zap.Error(err))
	}
	if a.Tracer != nil {
		if terr := a.Tracer.Shutdown(ctx); terr != nil {
			a.Logger.Warn("tracer shutdown failed", zap.Error(terr))
			err = errors.Join(err, terr)
		}
	}
	_ = a.Logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
	return err
}
