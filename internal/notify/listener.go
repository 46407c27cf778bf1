package notify

import (
	"context"
	"fmt"
	"log/slog"
	"questwatch/internal/assert"
	"questwatch/internal/components/telemetry"
	"strconv"
	"time"
)

// Updates is the inbound half of a chat transport.
//
// note: fault injection point
type Updates interface {
	GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]Update, error)
}

type ListenerOptions struct {
	// PollWait is how long the server holds an empty long poll, defaults to 25s.
	PollWait time.Duration
	// RetryDelay is waited after a failed poll, defaults to 5s.
	RetryDelay time.Duration
}

// Listener answers every inbound chat message with the id of the chat it came
// from, so operators can find the value for CHAT_ID.
type Listener struct {
	updates Updates
	replies Notifier
	tel     telemetry.API
	opts    ListenerOptions
}

func NewListener(updates Updates, replies Notifier, tel telemetry.API, opts ListenerOptions) Listener {
	assert.NotNil(updates, "updates")
	assert.NotNil(replies, "replies")
	assert.NotNil(tel, "telemetry")

	if opts.PollWait <= 0 {
		opts.PollWait = time.Second * 25
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second * 5
	}
	return Listener{
		updates: updates,
		replies: replies,
		tel:     telemetry.NewScopedAPI("listener", tel),
		opts:    opts,
	}
}

// EchoReply is the answer to any inbound message.
func EchoReply(chatID int64) string {
	return fmt.Sprintf("Bot is running!\nYour Chat ID: %d", chatID)
}

// Run polls until ctx ends. Poll and reply failures are reported and never
// stop the listener.
func (l Listener) Run(ctx context.Context) {
	var offset int64
	for ctx.Err() == nil {
		updates, err := l.updates.GetUpdates(ctx, offset, l.opts.PollWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.tel.ReportWarning("poll", err)
			select {
			case <-time.After(l.opts.RetryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			l.handle(ctx, u)
		}
	}
}

func (l Listener) handle(ctx context.Context, u Update) {
	if u.Message == nil {
		return
	}
	chatID := u.Message.Chat.ID
	slog.InfoContext(ctx, "inbound message", "chat_id", chatID)

	err := l.replies.Send(ctx, strconv.FormatInt(chatID, 10), EchoReply(chatID))
	if err != nil {
		l.tel.ReportWarning("reply", err, chatID)
	}
}
