package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromedpLauncher starts headless Chrome through chromedp.
type ChromedpLauncher struct {
	// ExecPath overrides Chrome discovery when set.
	ExecPath string
	// NoSandbox is required when running as root inside containers.
	NoSandbox bool
	// Headful shows the browser window; useful for local debugging.
	Headful bool
}

// Launch implements Launcher. ctx bounds startup only; the browser outlives it.
func (l ChromedpLauncher) Launch(ctx context.Context) (Engine, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if l.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	} else {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}
	if l.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	stopForward := forwardCancel(ctx, browserCancel)
	var product string
	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, prod, _, _, _, err := cdpbrowser.GetVersion().Do(ctx)
		if err != nil {
			return fmt.Errorf("get version: %w", err)
		}
		product = prod
		return nil
	}))
	stopForward()
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &chromedpEngine{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		version:       product,
	}, nil
}

type chromedpEngine struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	version       string
	closeOnce     sync.Once
}

func (e *chromedpEngine) Version() string {
	return e.version
}

// NewContext creates an isolated browser context (separate cookies and storage).
func (e *chromedpEngine) NewContext(ctx context.Context) (BrowserContext, error) {
	sessCtx, sessCancel := chromedp.NewContext(e.browserCtx, chromedp.WithNewBrowserContext())
	stopForward := forwardCancel(ctx, sessCancel)
	err := chromedp.Run(sessCtx)
	stopForward()
	if err != nil {
		sessCancel()
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	return &chromedpContext{ctx: sessCtx, cancel: sessCancel}, nil
}

func (e *chromedpEngine) Close() error {
	e.closeOnce.Do(func() {
		e.browserCancel()
		e.allocCancel()
	})
	return nil
}

type chromedpContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func (c *chromedpContext) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(c.ctx)
	p := &chromedpPage{
		ctx:    tabCtx,
		cancel: tabCancel,
		opts:   opts,
		idle:   make(chan struct{}, 1),
	}
	chromedp.ListenTarget(tabCtx, p.onEvent)

	setupCtx, setupCancel := boundedContext(ctx, opts.Timeout)
	defer setupCancel()
	stopForward := forwardCancel(setupCtx, tabCancel)
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := emulation.SetDeviceMetricsOverride(opts.Viewport.Width, opts.Viewport.Height, 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		if opts.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(opts.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if err := cdppage.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return fmt.Errorf("enable lifecycle events: %w", err)
		}
		return nil
	}))
	stopForward()
	if err != nil {
		tabCancel()
		return nil, fmt.Errorf("page setup: %w", err)
	}
	return p, nil
}

func (c *chromedpContext) Close() error {
	c.once.Do(c.cancel)
	return nil
}

type chromedpPage struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   PageOptions
	idle   chan struct{}
	armed  atomic.Bool
	once   sync.Once
}

// onEvent runs on the chromedp event loop and must not block.
func (p *chromedpPage) onEvent(ev any) {
	lifecycle, ok := ev.(*cdppage.EventLifecycleEvent)
	if !ok {
		return
	}
	switch lifecycle.Name {
	case "init":
		p.armed.Store(true)
	case "networkIdle":
		if p.armed.Load() {
			select {
			case p.idle <- struct{}{}:
			default:
			}
		}
	}
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	opCtx, cancel := p.op(ctx)
	defer cancel()

	p.armed.Store(false)
	select {
	case <-p.idle:
	default:
	}

	if err := chromedp.Run(opCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}

	idleTimer := time.NewTimer(p.opts.IdleTimeout)
	defer idleTimer.Stop()
	select {
	case <-p.idle:
	case <-idleTimer.C:
	case <-opCtx.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("navigate %s: %w", url, err)
		}
	}
	return nil
}

func (p *chromedpPage) WaitVisible(ctx context.Context, selector string) error {
	opCtx, cancel := p.op(ctx)
	defer cancel()
	if err := chromedp.Run(opCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

func (p *chromedpPage) Evaluate(ctx context.Context, expression string, out any) error {
	opCtx, cancel := p.op(ctx)
	defer cancel()
	if err := chromedp.Run(opCtx, chromedp.Evaluate(expression, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (p *chromedpPage) HTML(ctx context.Context) (string, error) {
	opCtx, cancel := p.op(ctx)
	defer cancel()
	var html string
	if err := chromedp.Run(opCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

func (p *chromedpPage) Location(ctx context.Context) (string, error) {
	opCtx, cancel := p.op(ctx)
	defer cancel()
	var loc string
	if err := chromedp.Run(opCtx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

func (p *chromedpPage) Close() error {
	p.once.Do(p.cancel)
	return nil
}

// op derives a context bound to the tab that honours both the caller's
// deadline and the default per-operation timeout.
func (p *chromedpPage) op(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := p.opts.Timeout
	if dl, ok := parent.Deadline(); ok {
		remaining := time.Until(dl)
		if remaining <= 0 {
			remaining = time.Nanosecond
		}
		if timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}
	var (
		opCtx  context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		opCtx, cancel = context.WithTimeout(p.ctx, timeout)
	} else {
		opCtx, cancel = context.WithCancel(p.ctx)
	}
	stopForward := forwardCancel(parent, cancel)
	return opCtx, func() {
		stopForward()
		cancel()
	}
}

func boundedContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
