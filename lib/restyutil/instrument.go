package restyutil

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/semconv/v1.13.0/httpconv"
	"go.opentelemetry.io/otel/trace"
)

// Output receives a dump of every finished http exchange.
type Output interface {
	Write(id string, contents string)
}

type Options struct {
	// Tracer defaults to otel.Tracer("resty").
	Tracer trace.Tracer
	// Output is optional, exchanges are only dumped when debug logging is on.
	Output Output
	// Secrets are replaced with "<redacted>" in logged urls and dumps.
	Secrets []string
}

type instrument struct {
	opts      Options
	idcounter *uint64
}

// InstrumentClient gives every request of client a span and, at debug level, a
// log line and an optional dump of the exchange.
func InstrumentClient(client *resty.Client, opts Options) {
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("resty")
	}

	var idcounter uint64
	i := instrument{opts: opts, idcounter: &idcounter}
	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

type messageIdKeyType int

var messageIdKey messageIdKeyType

func (i instrument) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	ctx, _ := i.opts.Tracer.Start(req.Context(), req.Method)

	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		messageId := strconv.FormatUint(atomic.AddUint64(i.idcounter, 1), 10)
		slog.DebugContext(
			ctx, "start request",
			"method", req.Method,
			"url", redact(req.URL, i.opts.Secrets),
			"message_id", messageId,
		)
		ctx = context.WithValue(ctx, messageIdKey, messageId)
	}

	req.SetContext(ctx)
	return nil
}

func (i instrument) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	ctx := res.Request.Context()
	span := trace.SpanFromContext(ctx)
	defer span.End()

	// request attributes are set here since res.Request.RawRequest is nil in onBeforeRequest
	span.SetName(fmt.Sprintf("http %s", res.Request.Method))
	if res.RawResponse != nil {
		span.SetAttributes(httpconv.ClientResponse(res.RawResponse)...)
	}
	if res.Request.RawRequest != nil {
		span.SetAttributes(httpconv.ClientRequest(res.Request.RawRequest)...)
	}
	if res.IsError() {
		span.SetStatus(codes.Error, res.Status())
	}

	messageId, ok := ctx.Value(messageIdKey).(string)
	if !ok {
		return nil
	}
	if i.opts.Output != nil {
		i.opts.Output.Write(messageId, redact(formatHttpMessage(res), i.opts.Secrets))
	}
	slog.DebugContext(
		ctx, "request finished",
		"method", res.Request.Method,
		"url", redact(res.Request.URL, i.opts.Secrets),
		"status", res.StatusCode(),
		"message_id", messageId,
	)
	return nil
}

func (i instrument) onError(req *resty.Request, err error) {
	ctx := req.Context()
	span := trace.SpanFromContext(ctx)
	defer span.End()

	span.RecordError(err)
	span.SetStatus(codes.Error, "request failed")
	span.SetName(fmt.Sprintf("http %s", req.Method))
	if req.RawRequest != nil {
		span.SetAttributes(httpconv.ClientRequest(req.RawRequest)...)
	}

	messageId, _ := ctx.Value(messageIdKey).(string)
	slog.DebugContext(
		ctx, "request failed",
		"method", req.Method,
		"url", redact(req.URL, i.opts.Secrets),
		"err", redact(err.Error(), i.opts.Secrets),
		"message_id", messageId,
	)
}
