package render

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Playwright drives a headless chromium through playwright. The playwright
// driver and browsers must be installed (`playwright install chromium`).
type Playwright struct {
	opts Options
}

func (p Playwright) Open(ctx context.Context) (Session, error) {
	_, span := tracer.Start(ctx, "playwright:Open")
	defer span.End()

	pw, err := playwright.Run()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start playwright")
		return nil, failure("start playwright", err)
	}

	var args []string
	if !p.opts.Sandbox {
		args = append(args, "--no-sandbox")
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(!p.opts.Headful),
		Args:     args,
	})
	if err != nil {
		pw.Stop()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to launch browser")
		return nil, failure("launch browser", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(p.opts.UserAgent),
		Viewport: &playwright.Size{
			Width:  p.opts.ViewportWidth,
			Height: p.opts.ViewportHeight,
		},
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create browser context")
		return nil, failure("new context", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		browser.Close()
		pw.Stop()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create page")
		return nil, failure("new page", err)
	}

	return &playwrightSession{
		opts:    p.opts,
		pw:      pw,
		browser: browser,
		page:    page,
	}, nil
}

type playwrightSession struct {
	opts    Options
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page

	closeOnce sync.Once
	closeErr  error
}

func (s *playwrightSession) Render(ctx context.Context, url string) (string, error) {
	ctx, span := tracer.Start(ctx, "playwright:Render")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(s.opts.NavigationTimeout.Milliseconds())),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to navigate")
		if errors.Is(err, playwright.ErrTimeout) {
			return "", failure("navigate", fmt.Errorf("no network idle within %s: %w", s.opts.NavigationTimeout, err))
		}
		return "", failure("navigate", err)
	}

	if err := settle(ctx, s.opts.SettleDelay); err != nil {
		return "", failure("settle", err)
	}

	html, err := s.page.Content()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read page content")
		return "", failure("content", err)
	}
	span.SetAttributes(attribute.Int("bytes", len(html)))
	return html, nil
}

func (s *playwrightSession) Screenshot(path string) error {
	_, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return err
}

func (s *playwrightSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.browser.Close(), s.pw.Stop())
	})
	return s.closeErr
}
