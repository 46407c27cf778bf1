// Package events publishes what the watcher discovers to NATS subscribers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mazen160/go-random"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("questwatch/internal/events")

const (
	SubjectQuestDiscovered = "questwatch.quest.discovered"
	SubjectCycleCompleted  = "questwatch.cycle.completed"
)

// Envelope wraps every published payload.
type Envelope struct {
	ID      string          `json:"id"`
	Subject string          `json:"subject"`
	Time    time.Time       `json:"time"`
	Data    json.RawMessage `json:"data"`
}

// Sink receives watcher events.
//
// note: fault injection point
type Sink interface {
	Publish(ctx context.Context, subject string, data any) error
	Close() error
}

// Noop drops every event, it is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }
func (Noop) Close() error                               { return nil }

func newEnvelope(subject string, data any, now time.Time) (Envelope, error) {
	id, err := random.String(16)
	if err != nil {
		return Envelope{}, err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{ID: id, Subject: subject, Time: now.UTC(), Data: raw}, nil
}

// publisher is the part of *nats.Conn the sink uses.
type publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATS publishes json envelopes on a nats connection.
type NATS struct {
	conn publisher
	now  func() time.Time
}

// ConnectNATS connects to url and keeps reconnecting for the lifetime of the
// process.
func ConnectNATS(url string) (NATS, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("questwatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second*2),
	)
	if err != nil {
		return NATS{}, fmt.Errorf("connect to nats: %w", err)
	}
	return NATS{conn: conn, now: time.Now}, nil
}

func (n NATS) Publish(ctx context.Context, subject string, data any) error {
	_, span := tracer.Start(ctx, "nats:Publish")
	defer span.End()
	span.SetAttributes(attribute.String("subject", subject))

	env, err := newEnvelope(subject, data, n.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build envelope")
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	err = n.conn.Publish(subject, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish")
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages before closing the connection.
func (n NATS) Close() error {
	return n.conn.Drain()
}
