package notify

import (
	"context"
	"fmt"
	"net/http"
	"questwatch/lib/restyutil"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultTelegramURL = "https://api.telegram.org"

type TelegramOptions struct {
	// BaseURL defaults to DefaultTelegramURL.
	BaseURL string
	// HTTPClient is used instead of a fresh one when set.
	HTTPClient *http.Client
	// Timeout bounds a single request, long polls add their wait on top.
	Timeout time.Duration
	// Dump receives every http exchange when debug logging is on.
	Dump restyutil.Output
}

// Telegram is a Telegram Bot API client.
type Telegram struct {
	client  *resty.Client
	token   string
	timeout time.Duration
}

func NewTelegram(token string, opts TelegramOptions) *Telegram {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultTelegramURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 30
	}

	var client *resty.Client
	if opts.HTTPClient != nil {
		client = resty.NewWithClient(opts.HTTPClient)
	} else {
		client = resty.New()
	}
	client.SetBaseURL(fmt.Sprintf("%s/bot%s", strings.TrimSuffix(opts.BaseURL, "/"), token))
	client.SetHeader("content-type", "application/json")
	restyutil.InstrumentClient(client, restyutil.Options{
		Tracer:  tracer,
		Output:  opts.Dump,
		Secrets: []string{token},
	})

	return &Telegram{client: client, token: token, timeout: opts.Timeout}
}

type apiResponse[T any] struct {
	Ok          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Result      T      `json:"result"`
}

type apiError struct {
	Code        int
	Description string
}

func (e apiError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// redactedError hides the bot token, transport errors carry the request url.
type redactedError struct {
	msg string
	err error
}

func (e redactedError) Error() string { return e.msg }
func (e redactedError) Unwrap() error { return e.err }

func call[T any](ctx context.Context, t *Telegram, timeout time.Duration, method string, body any) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out apiResponse[T]
	res, err := t.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/" + method)
	if err != nil {
		if t.token != "" {
			err = redactedError{msg: strings.ReplaceAll(err.Error(), t.token, "<redacted>"), err: err}
		}
		return out.Result, err
	}
	if !out.Ok {
		code := out.ErrorCode
		if code == 0 {
			code = res.StatusCode()
		}
		return out.Result, apiError{Code: code, Description: out.Description}
	}
	return out.Result, nil
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Send implements Notifier with destination as the chat id.
func (t *Telegram) Send(ctx context.Context, chatID, text string) error {
	ctx, span := tracer.Start(ctx, "telegram:Send")
	defer span.End()

	_, err := call[Message](ctx, t, t.timeout, "sendMessage", sendMessageRequest{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send message")
		return failure("telegram send", err)
	}
	return nil
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// GetUpdates long polls for updates with an id of at least offset, wait is
// rounded down to whole seconds.
func (t *Telegram) GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]Update, error) {
	ctx, span := tracer.Start(ctx, "telegram:GetUpdates")
	defer span.End()
	span.SetAttributes(attribute.Int64("offset", offset))

	updates, err := call[[]Update](ctx, t, t.timeout+wait, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        int(wait / time.Second),
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get updates")
		return nil, failure("telegram get updates", err)
	}
	span.SetAttributes(attribute.Int("updates", len(updates)))
	return updates, nil
}
