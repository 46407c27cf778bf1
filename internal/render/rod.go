package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// requestIdle is how long the page must go without network activity before
// navigation counts as settled.
const requestIdle = 500 * time.Millisecond

// Rod drives a local chromium over the devtools protocol, the binary is
// downloaded by the launcher when none is installed.
type Rod struct {
	opts Options
}

func (r Rod) Open(ctx context.Context) (Session, error) {
	_, span := tracer.Start(ctx, "rod:Open")
	defer span.End()

	l := launcher.New().
		Headless(!r.opts.Headful).
		NoSandbox(!r.opts.Sandbox)
	controlURL, err := l.Launch()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to launch browser")
		return nil, failure("launch browser", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to connect to browser")
		return nil, failure("connect", err)
	}

	session := &rodSession{opts: r.opts, launcher: l, browser: browser}

	incognito, err := browser.Incognito()
	if err != nil {
		session.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create incognito context")
		return nil, failure("incognito", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		session.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create page")
		return nil, failure("new page", err)
	}
	err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.opts.UserAgent})
	if err != nil {
		session.Close()
		return nil, failure("user agent", err)
	}
	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             r.opts.ViewportWidth,
		Height:            r.opts.ViewportHeight,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		session.Close()
		return nil, failure("viewport", err)
	}
	session.page = page

	return session, nil
}

type rodSession struct {
	opts     Options
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	closeOnce sync.Once
	closeErr  error
}

func (s *rodSession) Render(ctx context.Context, url string) (string, error) {
	ctx, span := tracer.Start(ctx, "rod:Render")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	navCtx, cancel := context.WithTimeout(ctx, s.opts.NavigationTimeout)
	defer cancel()

	page := s.page.Context(navCtx)
	wait := page.WaitRequestIdle(requestIdle, nil, nil, nil)
	err := page.Navigate(url)
	if err == nil {
		wait()
		err = navCtx.Err()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to navigate")
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", failure("navigate", fmt.Errorf("no network idle within %s: %w", s.opts.NavigationTimeout, err))
		}
		return "", failure("navigate", err)
	}

	if err := settle(ctx, s.opts.SettleDelay); err != nil {
		return "", failure("settle", err)
	}

	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read page content")
		return "", failure("content", err)
	}
	span.SetAttributes(attribute.Int("bytes", len(html)))
	return html, nil
}

func (s *rodSession) Screenshot(path string) error {
	if s.page == nil {
		return failure("screenshot", errors.New("no page open"))
	}
	data, err := s.page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.browser.Close()
		s.launcher.Kill()
		s.launcher.Cleanup()
	})
	return s.closeErr
}
