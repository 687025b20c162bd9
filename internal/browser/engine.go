// Package browser owns the headless browser engine and the bounded pool of
// isolated browsing sessions handed out to the page and social extractors.
package browser

import (
	"context"
	"time"
)

// Viewport is the fixed window size applied to every page.
type Viewport struct {
	Width  int64
	Height int64
}

// PageOptions are applied when a page is opened.
type PageOptions struct {
	Viewport  Viewport
	UserAgent string
	// Timeout bounds each page operation that carries no deadline of its own.
	Timeout time.Duration
	// IdleTimeout bounds the wait for network idle after the load event.
	IdleTimeout time.Duration
}

// Page is a single tab inside a browsing session.
type Page interface {
	// Navigate loads url and waits for the load event followed by network idle.
	// A page that never goes idle is not an error once the load event fired.
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	Evaluate(ctx context.Context, expression string, out any) error
	HTML(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
	Close() error
}

// BrowserContext is an isolated browsing context with its own cookies and storage.
type BrowserContext interface {
	NewPage(ctx context.Context, opts PageOptions) (Page, error)
	Close() error
}

// Engine is a running browser process.
type Engine interface {
	NewContext(ctx context.Context) (BrowserContext, error)
	Version() string
	Close() error
}

// Launcher starts the browser process.
type Launcher interface {
	Launch(ctx context.Context) (Engine, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context) (Engine, error)

// Launch implements Launcher.
func (f LauncherFunc) Launch(ctx context.Context) (Engine, error) {
	return f(ctx)
}
