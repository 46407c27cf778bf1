package render

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// HTTP fetches the raw document without executing scripts. It only finds
// quests on pages that are rendered on the server, in exchange it needs no
// browser.
type HTTP struct {
	opts   Options
	client *http.Client
}

func NewHTTP(opts Options) HTTP {
	return HTTP{opts: opts.withDefaults()}
}

// WithClient makes sessions send requests through client, its transport still
// gets the cloudflare bypass.
func (h HTTP) WithClient(client *http.Client) HTTP {
	h.client = client
	return h
}

func (h HTTP) Open(ctx context.Context) (Session, error) {
	var client *resty.Client
	if h.client != nil {
		client = resty.NewWithClient(h.client)
	} else {
		client = resty.New()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, failure("cookie jar", err)
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", h.opts.UserAgent)
	client.SetTimeout(h.opts.NavigationTimeout)

	return &httpSession{opts: h.opts, client: client}, nil
}

type httpSession struct {
	opts   Options
	client *resty.Client
}

func (s *httpSession) Render(ctx context.Context, url string) (string, error) {
	ctx, span := tracer.Start(ctx, "http:Render")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	res, err := s.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch page")
		return "", failure("fetch", err)
	}
	if res.IsError() {
		err := fmt.Errorf("unexpected status %s", res.Status())
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch page")
		return "", failure("fetch", err)
	}

	if err := settle(ctx, s.opts.SettleDelay); err != nil {
		return "", failure("settle", err)
	}

	html := res.String()
	span.SetAttributes(attribute.Int("bytes", len(html)))
	return html, nil
}

func (s *httpSession) Screenshot(path string) error {
	return ErrScreenshotUnsupported
}

func (s *httpSession) Close() error {
	return nil
}
