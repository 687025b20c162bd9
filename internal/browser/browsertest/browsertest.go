// Package browsertest provides an in-memory browser engine for tests. Pages are
// served from a Site function instead of the network and selectors are matched
// against the served markup with goquery.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/contentrelay/internal/browser"
)

// Site returns the rendered markup for url.
type Site func(url string) (string, error)

// StaticSite serves fixed markup per URL; unknown URLs fail with a 404 message.
func StaticSite(pages map[string]string) Site {
	return func(url string) (string, error) {
		html, ok := pages[url]
		if !ok {
			return "", fmt.Errorf("page returned 404 not found: %s", url)
		}
		return html, nil
	}
}

// Launcher is a browser.Launcher that counts launches and open handles.
type Launcher struct {
	Site        Site
	Version     string
	LaunchDelay time.Duration

	mu        sync.Mutex
	launchErr error
	launches  int

	contexts atomic.Int64
	pages    atomic.Int64
	evals    atomic.Int64
}

// NewLauncher returns a launcher serving site.
func NewLauncher(site Site) *Launcher {
	return &Launcher{Site: site, Version: "FakeChrome/1.0"}
}

// FailLaunches makes subsequent launches fail with err until cleared with nil.
func (l *Launcher) FailLaunches(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launchErr = err
}

// Launches returns how many times Launch ran.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// OpenContexts returns the number of browser contexts not yet closed.
func (l *Launcher) OpenContexts() int64 { return l.contexts.Load() }

// OpenPages returns the number of pages not yet closed.
func (l *Launcher) OpenPages() int64 { return l.pages.Load() }

// Evaluations returns the number of scripts evaluated across all pages.
func (l *Launcher) Evaluations() int64 { return l.evals.Load() }

// Launch implements browser.Launcher.
func (l *Launcher) Launch(ctx context.Context) (browser.Engine, error) {
	l.mu.Lock()
	l.launches++
	err := l.launchErr
	delay := l.LaunchDelay
	l.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &engine{launcher: l}, nil
}

type engine struct {
	launcher *Launcher
	closed   atomic.Bool
}

func (e *engine) NewContext(context.Context) (browser.BrowserContext, error) {
	if e.closed.Load() {
		return nil, errors.New("engine closed")
	}
	e.launcher.contexts.Add(1)
	return &browserContext{launcher: e.launcher}, nil
}

func (e *engine) Version() string { return e.launcher.Version }

func (e *engine) Close() error {
	e.closed.Store(true)
	return nil
}

type browserContext struct {
	launcher *Launcher
	once     sync.Once
}

func (c *browserContext) NewPage(context.Context, browser.PageOptions) (browser.Page, error) {
	c.launcher.pages.Add(1)
	return &Page{launcher: c.launcher}, nil
}

func (c *browserContext) Close() error {
	c.once.Do(func() { c.launcher.contexts.Add(-1) })
	return nil
}

// Page is the fake page handed out by the fake engine.
type Page struct {
	launcher *Launcher
	once     sync.Once

	mu   sync.Mutex
	url  string
	html string
}

// Navigate implements browser.Page.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	html, err := p.launcher.Site(url)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.html = html
	p.mu.Unlock()
	return nil
}

// WaitVisible succeeds when selector matches the current markup.
func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	html := p.html
	p.mu.Unlock()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		return fmt.Errorf("waiting for selector %q: timeout", selector)
	}
	return nil
}

// Evaluate counts the call and leaves out untouched.
func (p *Page) Evaluate(ctx context.Context, _ string, _ any) error {
	p.launcher.evals.Add(1)
	return ctx.Err()
}

// HTML implements browser.Page.
func (p *Page) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

// Location implements browser.Page.
func (p *Page) Location(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

// Close implements browser.Page.
func (p *Page) Close() error {
	p.once.Do(func() { p.launcher.pages.Add(-1) })
	return nil
}

// SequentialIDs returns an ID generator producing session-1, session-2, ...
func SequentialIDs() *IDs {
	return &IDs{}
}

// IDs is a deterministic session ID generator.
type IDs struct {
	n atomic.Int64
}

// NewID implements browser.IDGenerator.
func (g *IDs) NewID() (string, error) {
	return fmt.Sprintf("session-%d", g.n.Add(1)), nil
}
