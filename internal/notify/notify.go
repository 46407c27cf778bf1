// Package notify delivers quest announcements to chat and mail destinations.
package notify

import (
	"context"
	"errors"
	"fmt"
	"questwatch/internal/quest"
	"strings"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("questwatch/internal/notify")

// ErrNotifyFailure wraps every failed delivery.
var ErrNotifyFailure = errors.New("notify failure")

func failure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrNotifyFailure, op, err)
}

// Notifier sends a plain text message to destination, the meaning of
// destination depends on the transport (a chat id, a mail address).
//
// note: fault injection point
type Notifier interface {
	Send(ctx context.Context, destination, text string) error
}

// FormatQuest renders the announcement of a newly discovered quest.
func FormatQuest(record quest.Record, origin string) string {
	var b strings.Builder
	b.WriteString("🎮 New quest!\n\n")
	b.WriteString("📌 Title: ")
	b.WriteString(record.Title)
	b.WriteString("\n🔗 Link: ")
	b.WriteString(record.URL(origin))
	return b.String()
}

// Target is a notifier bound to a fixed destination. An empty Destination
// means whatever destination the message is sent to.
type Target struct {
	Notifier    Notifier
	Destination string
}

// Multi fans a message out to every target, each target is tried even when an
// earlier one fails and the failures are joined.
type Multi []Target

func (m Multi) Send(ctx context.Context, destination, text string) error {
	var errs []error
	for _, t := range m {
		dest := t.Destination
		if dest == "" {
			dest = destination
		}
		err := t.Notifier.Send(ctx, dest, text)
		if err != nil && !errors.Is(err, ErrNotifyFailure) {
			err = failure("send", err)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
