package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/contentrelay/internal/clock"
	"github.com/JakeFAU/contentrelay/internal/content"
	"github.com/JakeFAU/contentrelay/internal/metrics"
)

// Defaults applied when Config leaves a field unset.
const (
	DefaultMaxContexts    = 3
	DefaultAcquireTimeout = 30 * time.Second
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultPageTimeout    = 30 * time.Second
	DefaultIdleTimeout    = 10 * time.Second
	DefaultLaunchTimeout  = 60 * time.Second
	DefaultUserAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// DefaultViewport is a common desktop resolution.
var DefaultViewport = Viewport{Width: 1920, Height: 1080}

var (
	// ErrAcquireTimeout is returned when no session frees up within the acquire timeout.
	ErrAcquireTimeout = content.Errorf(content.ErrTypeTimeout, "browser session acquire timeout")
	// ErrPoolClosed is returned once Cleanup has run.
	ErrPoolClosed = errors.New("browser pool closed")
)

// Pool status values.
const (
	StatusReady        = "ready"
	StatusInitializing = "initializing"
	StatusError        = "error"
	StatusStopped      = "stopped"
)

// SessionState is the lifecycle state of a pooled session.
type SessionState string

// Session states.
const (
	StateCreating SessionState = "creating"
	StateIdle     SessionState = "idle"
	StateInUse    SessionState = "in_use"
	StateClosed   SessionState = "closed"
)

// Config tunes the pool.
type Config struct {
	MaxContexts    int
	AcquireTimeout time.Duration
	PollInterval   time.Duration
	PageTimeout    time.Duration
	IdleTimeout    time.Duration
	LaunchTimeout  time.Duration
	UserAgent      string
	Viewport       Viewport
}

func (c Config) withDefaults() Config {
	if c.MaxContexts <= 0 {
		c.MaxContexts = DefaultMaxContexts
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = DefaultPageTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.LaunchTimeout <= 0 {
		c.LaunchTimeout = DefaultLaunchTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		c.Viewport = DefaultViewport
	}
	return c
}

// IDGenerator names sessions.
type IDGenerator interface {
	NewID() (string, error)
}

// Session is one pooled browsing context.
type Session struct {
	ID        string
	CreatedAt time.Time
	LastUsed  time.Time
	State     SessionState
	Pages     int

	browserCtx BrowserContext
}

// Status is a snapshot of pool health.
type Status struct {
	Status            string `json:"status"`
	EngineVersion     string `json:"engineVersion,omitempty"`
	ActiveContexts    int    `json:"activeContexts"`
	MaxContexts       int    `json:"maxContexts"`
	TotalSessions     int    `json:"totalSessions"`
	TotalPagesCreated int64  `json:"totalPagesCreated"`
	LastError         string `json:"lastError,omitempty"`
}

// Lease is a session checked out of the pool. Release must be called exactly
// once the caller is done; extra calls are ignored.
type Lease struct {
	Session *Session

	pool *Pool
	once sync.Once
}

// Release returns the session to the pool.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		l.pool.Release(l.Session.ID)
	})
}

// Pool hands out browser sessions under a concurrency cap.
type Pool struct {
	cfg      Config
	launcher Launcher
	ids      IDGenerator
	clock    clock.Clock
	logger   *zap.Logger
	launches singleflight.Group

	mu         sync.Mutex
	engine     Engine
	launching  bool
	sessions   map[string]*Session
	creating   int
	inUse      int
	totalPages int64
	lastError  string
	closed     bool
	released   chan struct{}
}

// NewPool builds a pool. The engine is launched lazily on first Acquire.
func NewPool(cfg Config, launcher Launcher, ids IDGenerator, clk clock.Clock, logger *zap.Logger) *Pool {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		cfg:      cfg.withDefaults(),
		launcher: launcher,
		ids:      ids,
		clock:    clk,
		logger:   logger,
		sessions: make(map[string]*Session),
		released: make(chan struct{}),
	}
}

// Config returns the effective configuration.
func (p *Pool) Config() Config {
	return p.cfg
}

// Acquire checks out a session, creating one if below the cap, otherwise
// waiting until one is released or timeout elapses. A non-positive timeout
// uses the configured default.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Lease, error) {
	if timeout <= 0 {
		timeout = p.cfg.AcquireTimeout
	}
	start := time.Now()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	engine, err := p.ensureEngine(ctx, deadline.C)
	if errors.Is(err, ErrAcquireTimeout) {
		return nil, p.acquireTimedOut(start, timeout)
	}
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		session, wait, err := p.tryCheckout(ctx, engine)
		if err != nil {
			return nil, err
		}
		if session != nil {
			metrics.ObserveAcquireWait(time.Since(start), false)
			return &Lease{Session: session, pool: p}, nil
		}

		select {
		case <-wait:
		case <-ticker.C:
		case <-deadline.C:
			return nil, p.acquireTimedOut(start, timeout)
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire browser session: %w", ctx.Err())
		}
	}
}

func (p *Pool) acquireTimedOut(start time.Time, timeout time.Duration) error {
	metrics.ObserveAcquireWait(time.Since(start), true)
	p.logger.Warn("browser session acquire timed out",
		zap.Duration("timeout", timeout),
		zap.Int("max_contexts", p.cfg.MaxContexts),
	)
	return ErrAcquireTimeout
}

// tryCheckout returns a session, or the channel to wait on when at capacity.
func (p *Pool) tryCheckout(ctx context.Context, engine Engine) (*Session, <-chan struct{}, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, nil, ErrPoolClosed
	}
	for _, s := range p.sessions {
		if s.State == StateIdle {
			s.State = StateInUse
			s.LastUsed = p.clock.Now()
			p.inUse++
			metrics.SetBrowserActiveContexts(p.inUse)
			p.mu.Unlock()
			return s, nil, nil
		}
	}
	if len(p.sessions)+p.creating >= p.cfg.MaxContexts {
		wait := p.released
		p.mu.Unlock()
		return nil, wait, nil
	}
	p.creating++
	p.mu.Unlock()

	session, err := p.createSession(ctx, engine)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.creating--
	if err != nil {
		p.lastError = err.Error()
		p.broadcastLocked()
		return nil, nil, err
	}
	if p.closed {
		_ = session.browserCtx.Close()
		return nil, nil, ErrPoolClosed
	}
	session.State = StateInUse
	p.sessions[session.ID] = session
	p.inUse++
	metrics.SetBrowserActiveContexts(p.inUse)
	metrics.IncBrowserSessions()
	return session, nil, nil
}

func (p *Pool) createSession(ctx context.Context, engine Engine) (*Session, error) {
	id, err := p.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	bctx, err := engine.NewContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}
	now := p.clock.Now()
	p.logger.Debug("browser session created", zap.String("session_id", id))
	return &Session{
		ID:         id,
		CreatedAt:  now,
		LastUsed:   now,
		State:      StateCreating,
		browserCtx: bctx,
	}, nil
}

// ensureEngine launches the engine at most once at a time. A failed launch is
// recorded and retried by the next caller. A caller whose deadline fires gets
// ErrAcquireTimeout while the launch carries on for later callers.
func (p *Pool) ensureEngine(ctx context.Context, deadline <-chan time.Time) (Engine, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if p.engine != nil {
		engine := p.engine
		p.mu.Unlock()
		return engine, nil
	}
	p.launching = true
	p.mu.Unlock()

	ch := p.launches.DoChan("engine", func() (any, error) {
		launchCtx, cancel := context.WithTimeout(context.Background(), p.cfg.LaunchTimeout)
		defer cancel()

		engine, err := p.launcher.Launch(launchCtx)

		p.mu.Lock()
		defer p.mu.Unlock()
		p.launching = false
		if err != nil {
			p.lastError = err.Error()
			p.logger.Error("browser launch failed", zap.Error(err))
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		if p.closed {
			_ = engine.Close()
			return nil, ErrPoolClosed
		}
		p.engine = engine
		p.lastError = ""
		p.logger.Info("browser launched", zap.String("version", engine.Version()))
		return engine, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Engine), nil
	case <-deadline:
		return nil, ErrAcquireTimeout
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for browser launch: %w", ctx.Err())
	}
}

// Release marks a session idle. Unknown or already idle sessions are ignored.
func (p *Pool) Release(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[sessionID]
	if !ok || s.State != StateInUse {
		return
	}
	s.State = StateIdle
	s.LastUsed = p.clock.Now()
	p.inUse--
	metrics.SetBrowserActiveContexts(p.inUse)
	p.broadcastLocked()
}

// broadcastLocked wakes every waiter. Callers hold mu.
func (p *Pool) broadcastLocked() {
	close(p.released)
	p.released = make(chan struct{})
}

// NewPage opens a page in the leased session with the fixed viewport, user
// agent and per-operation timeout applied.
func (p *Pool) NewPage(ctx context.Context, session *Session) (Page, error) {
	p.mu.Lock()
	if session == nil || session.State != StateInUse {
		p.mu.Unlock()
		return nil, errors.New("session is not checked out")
	}
	bctx := session.browserCtx
	p.mu.Unlock()

	page, err := bctx.NewPage(ctx, PageOptions{
		Viewport:    p.cfg.Viewport,
		UserAgent:   p.cfg.UserAgent,
		Timeout:     p.cfg.PageTimeout,
		IdleTimeout: p.cfg.IdleTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}

	p.mu.Lock()
	session.Pages++
	p.totalPages++
	p.mu.Unlock()
	metrics.IncBrowserPages()
	return page, nil
}

// Status reports pool health.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		ActiveContexts:    p.inUse,
		MaxContexts:       p.cfg.MaxContexts,
		TotalSessions:     len(p.sessions),
		TotalPagesCreated: p.totalPages,
		LastError:         p.lastError,
	}
	switch {
	case p.closed:
		st.Status = StatusStopped
	case p.engine != nil:
		st.Status = StatusReady
		st.EngineVersion = p.engine.Version()
	case p.launching:
		st.Status = StatusInitializing
	case p.lastError != "":
		st.Status = StatusError
	default:
		st.Status = StatusStopped
	}
	return st
}

// Cleanup closes every session and then the engine. Safe to call repeatedly.
func (p *Pool) Cleanup(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		s.State = StateClosed
		sessions = append(sessions, s)
	}
	p.sessions = make(map[string]*Session)
	p.inUse = 0
	engine := p.engine
	p.engine = nil
	metrics.SetBrowserActiveContexts(0)
	p.broadcastLocked()
	p.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.browserCtx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session %s: %w", s.ID, err))
		}
	}
	if engine != nil {
		if err := engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close engine: %w", err))
		}
	}
	p.logger.Info("browser pool cleaned up", zap.Int("sessions", len(sessions)))

	select {
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	default:
	}
	return errors.Join(errs...)
}
