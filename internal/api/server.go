package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/contentrelay/internal/browser"
	"github.com/JakeFAU/contentrelay/internal/cache"
	"github.com/JakeFAU/contentrelay/internal/config"
	"github.com/JakeFAU/contentrelay/internal/content"
	"github.com/JakeFAU/contentrelay/internal/metrics"
	"github.com/JakeFAU/contentrelay/internal/page"
	"github.com/JakeFAU/contentrelay/internal/policy/ratelimit"
)

// TranscriptFetcher serves video transcripts.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID, lang string) content.TranscriptResult
}

// PageFetcher renders and extracts web pages.
type PageFetcher interface {
	Fetch(ctx context.Context, req page.Request) content.PageResult
}

// SocialFetcher extracts social posts.
type SocialFetcher interface {
	Fetch(ctx context.Context, rawURL string) content.SocialPostResult
}

// BrowserStatus reports the session pool state.
type BrowserStatus interface {
	Status() browser.Status
}

// CacheAdmin is the operator view of the shared cache.
type CacheAdmin interface {
	Stats() cache.Stats
	DeleteByPrefix(prefix string) int
	Clear()
}

// Deps are the collaborators the server routes to.
type Deps struct {
	Transcripts TranscriptFetcher
	Pages       PageFetcher
	Social      SocialFetcher
	Browser     BrowserStatus
	Cache       CacheAdmin
	Limiter     *ratelimit.Limiter
}

// Server wires HTTP handlers to the fetchers.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	logger *zap.Logger
}

const requestTimeout = 2 * time.Minute

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, cfg: cfg, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(otelhttp.NewMiddleware("contentrelay.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKeys))
		}
		if deps.Limiter != nil && deps.Limiter.Enabled() {
			r.Use(rateLimitMiddleware(deps.Limiter))
		}
		r.Use(timeoutMiddleware(requestTimeout))

		r.Get("/transcripts/{videoID}", s.getTranscript)
		r.Post("/pages", s.postPage)
		r.Post("/social", s.postSocial)
		r.Get("/browser/status", s.browserStatus)
		r.Get("/cache/stats", s.cacheStats)
		r.Delete("/cache", s.clearCache)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz fails only when the browser engine is in an error state.
func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Browser != nil {
		st := s.deps.Browser.Status()
		if st.Status == browser.StatusError {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unavailable",
				"browser": st.Status,
				"error":   st.LastError,
			})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
