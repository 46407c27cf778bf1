// Package render loads a page in a browser and returns its markup after
// client-side rendering has settled.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("questwatch/internal/render")

// DefaultUserAgent is a desktop Chrome identification, sites tend to serve a
// reduced page to headless or unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const (
	DefaultNavigationTimeout = 30 * time.Second
	DefaultSettleDelay       = 5 * time.Second
)

var (
	// ErrRenderFailure wraps browser launch failures, navigation timeouts and
	// page crashes.
	ErrRenderFailure = errors.New("render failure")
	// ErrScreenshotUnsupported is returned by engines that have no visual page.
	ErrScreenshotUnsupported = errors.New("screenshots are not supported by this engine")
)

func failure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRenderFailure, op, err)
}

type Options struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay is waited after navigation resolves so client-side
	// frameworks can finish populating the DOM.
	SettleDelay time.Duration
	// Headful shows the browser window, useful when debugging selectors.
	Headful bool
	// Sandbox keeps the chromium sandbox on. Containers usually need it off.
	Sandbox        bool
	ViewportWidth  int
	ViewportHeight int
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = DefaultNavigationTimeout
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.ViewportWidth <= 0 {
		o.ViewportWidth = 1280
	}
	if o.ViewportHeight <= 0 {
		o.ViewportHeight = 800
	}
	return o
}

// Renderer opens isolated browser sessions. Sessions are never shared between
// poll cycles.
//
// note: fault injection point
type Renderer interface {
	Open(ctx context.Context) (Session, error)
}

// Session is one isolated browser process (or context) with a single page.
type Session interface {
	// Render navigates to url, waits for network idle (bounded by the
	// navigation timeout), then waits the settle delay and returns the
	// serialized DOM.
	Render(ctx context.Context, url string) (string, error)
	// Screenshot writes a full page PNG of the current page to path,
	// overwriting any existing file.
	Screenshot(path string) error
	// Close releases the browser. It is safe to call more than once.
	Close() error
}

const (
	EnginePlaywright = "playwright"
	EngineRod        = "rod"
	EngineHTTP       = "http"
)

// New returns the renderer for engine, "" selects playwright.
func New(engine string, opts Options) (Renderer, error) {
	opts = opts.withDefaults()
	switch engine {
	case "", EnginePlaywright:
		return Playwright{opts: opts}, nil
	case EngineRod:
		return Rod{opts: opts}, nil
	case EngineHTTP:
		return NewHTTP(opts), nil
	}
	return nil, fmt.Errorf("unknown render engine %q", engine)
}

// settle waits d unless ctx ends first.
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
