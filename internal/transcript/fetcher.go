// Package transcript fetches timed captions for a video through an ordered
// list of backends, falling through to the next backend only while failures
// are retryable.
package transcript

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/contentrelay/internal/cache"
	"github.com/JakeFAU/contentrelay/internal/content"
	"github.com/JakeFAU/contentrelay/internal/metrics"
	"github.com/JakeFAU/contentrelay/internal/telemetry"
)

// DefaultLanguage is used when the caller does not name one.
const DefaultLanguage = "en"

// Backend is one strategy for obtaining a transcript.
type Backend interface {
	Name() string
	Attempt(ctx context.Context, videoID, lang string) (*content.Transcript, error)
}

// Fetcher serves transcripts from the cache or the configured backends.
type Fetcher struct {
	cache       *cache.Cache[any]
	backends    []Backend
	defaultLang string
	logger      *zap.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithDefaultLanguage overrides DefaultLanguage.
func WithDefaultLanguage(lang string) Option {
	return func(f *Fetcher) {
		if lang != "" {
			f.defaultLang = lang
		}
	}
}

// New builds a Fetcher trying backends in order.
func New(c *cache.Cache[any], logger *zap.Logger, backends []Backend, opts ...Option) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		cache:       c,
		backends:    backends,
		defaultLang: DefaultLanguage,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CacheKey returns the cache key for a video and language.
func CacheKey(videoID, lang string) string {
	return cache.Key(content.KindTranscript, map[string]string{"videoId": videoID, "lang": lang})
}

// Fetch returns the transcript for videoID in lang. It never returns a Go
// error; failures are classified into the result.
func (f *Fetcher) Fetch(ctx context.Context, videoID, lang string) content.TranscriptResult {
	ctx, span := telemetry.StartFetch(ctx, content.KindTranscript,
		attribute.String("video.id", videoID),
		attribute.String("video.lang", lang),
	)
	result := f.fetch(ctx, videoID, lang)
	var source string
	if result.Transcript != nil {
		source = result.Source
	}
	telemetry.EndFetch(span, source, result.Failure)
	return result
}

func (f *Fetcher) fetch(ctx context.Context, videoID, lang string) content.TranscriptResult {
	start := time.Now()
	videoID = strings.TrimSpace(videoID)
	lang = strings.TrimSpace(lang)
	if lang == "" {
		lang = f.defaultLang
	}
	logger := f.logger.With(zap.String("video_id", videoID), zap.String("lang", lang))

	if videoID == "" {
		return f.fail(start, content.Errorf(content.ErrTypeVideoNotFound, "video id is required"))
	}

	key := CacheKey(videoID, lang)
	if cached, ok := f.cache.Get(key); ok {
		if t, ok := cached.(*content.Transcript); ok {
			metrics.ObserveCache(content.KindTranscript, true)
			hit := *t
			hit.Source = content.SourceCache
			hit.ElapsedMs = 0
			return content.TranscriptOK(&hit)
		}
	}
	metrics.ObserveCache(content.KindTranscript, false)

	var lastErr error
	for _, backend := range f.backends {
		transcript, err := backend.Attempt(ctx, videoID, lang)
		if err == nil {
			metrics.ObserveTranscriptBackend(backend.Name(), "success")
			transcript.ElapsedMs = content.ElapsedMs(start)
			stored := *transcript
			f.cache.Set(key, &stored, content.KindTranscript)
			metrics.ObserveFetch(content.KindTranscript, "success", time.Since(start))
			logger.Info("transcript fetched",
				zap.String("backend", backend.Name()),
				zap.Int("segments", len(transcript.Segments)),
				zap.Int64("elapsed_ms", transcript.ElapsedMs),
			)
			return content.TranscriptOK(transcript)
		}

		kind := content.ClassifyTranscript(err)
		metrics.ObserveTranscriptBackend(backend.Name(), string(kind))
		lastErr = content.NewError(kind, err)
		if !kind.Retryable() {
			logger.Info("transcript unavailable", zap.String("backend", backend.Name()),
				zap.String("error_type", string(kind)), zap.Error(err))
			break
		}
		if ctx.Err() != nil {
			break
		}
		logger.Warn("transcript backend failed, trying next",
			zap.String("backend", backend.Name()),
			zap.String("error_type", string(kind)),
			zap.Error(err),
		)
	}
	if lastErr == nil {
		lastErr = errors.New("no transcript backends configured")
	}
	return f.fail(start, lastErr)
}

func (f *Fetcher) fail(start time.Time, err error) content.TranscriptResult {
	kind := content.ClassifyTranscript(err)
	metrics.ObserveFetch(content.KindTranscript, string(kind), time.Since(start))
	return content.TranscriptFailed(err, kind)
}
