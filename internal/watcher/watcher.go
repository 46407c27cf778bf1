// Package watcher runs the poll cycle: render the search page, extract quest
// listings, remember the unseen ones and announce them.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"questwatch/internal/assert"
	"questwatch/internal/components/chrono"
	"questwatch/internal/components/telemetry"
	"questwatch/internal/events"
	"questwatch/internal/notify"
	"questwatch/internal/quest"
	"questwatch/internal/render"
	"questwatch/internal/store"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("questwatch/internal/watcher")

const (
	DefaultSchedule       = "@every 10m"
	DefaultCycleTimeout   = 5 * time.Minute
	DefaultScreenshotPath = "error.png"
)

// Extractor turns rendered markup into candidate records.
//
// note: fault injection point
type Extractor interface {
	Extract(ctx context.Context, markup string) []quest.Record
}

// Deps is everything a cycle talks to. It is built once at startup.
type Deps struct {
	Store     store.Store
	Renderer  render.Renderer
	Extractor Extractor
	Notifier  notify.Notifier
	// Events defaults to events.Noop.
	Events events.Sink
	// Telemetry defaults to telemetry.SlogAPI.
	Telemetry telemetry.API
	// Clock defaults to the local system clock.
	Clock chrono.API
}

type Options struct {
	// URL is the page rendered every cycle.
	URL string
	// Origin is prepended to listing hrefs in announcements.
	Origin string
	// Destination is where announcements are sent, the telegram chat id.
	Destination string
	// Schedule is a cron spec, defaults to every 10 minutes.
	Schedule string
	// CycleTimeout bounds a whole cycle so a hung browser cannot hold the
	// guard forever.
	CycleTimeout time.Duration
	// ScreenshotPath is overwritten with the page when a cycle fails.
	ScreenshotPath string
}

func (o Options) withDefaults() Options {
	if o.URL == "" {
		o.URL = quest.DefaultSearchURL
	}
	if o.Origin == "" {
		o.Origin = quest.DefaultOrigin
	}
	if o.Schedule == "" {
		o.Schedule = DefaultSchedule
	}
	if o.CycleTimeout <= 0 {
		o.CycleTimeout = DefaultCycleTimeout
	}
	if o.ScreenshotPath == "" {
		o.ScreenshotPath = DefaultScreenshotPath
	}
	return o
}

// Stats summarizes every cycle since startup.
type Stats struct {
	Cycles   int64   `json:"cycles"`
	Failures int64   `json:"failures"`
	NewTotal int64   `json:"new_total"`
	Last     *Result `json:"last,omitempty"`
}

type Watcher struct {
	deps Deps
	opts Options
	tel  telemetry.API

	guard singleflight.Group

	mutex sync.Mutex
	stats Stats
}

func New(deps Deps, opts Options) *Watcher {
	assert.NotNil(deps.Store, "store")
	assert.NotNil(deps.Renderer, "renderer")
	assert.NotNil(deps.Extractor, "extractor")
	assert.NotNil(deps.Notifier, "notifier")

	if deps.Events == nil {
		deps.Events = events.Noop{}
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.SlogAPI{}
	}
	if deps.Clock == nil {
		deps.Clock = chrono.StandardImpl{}
	}
	return &Watcher{
		deps: deps,
		opts: opts.withDefaults(),
		tel:  telemetry.NewScopedAPI("watcher", deps.Telemetry),
	}
}

// Check runs one cycle. When a cycle is already in flight the call joins it
// and returns its result instead of starting another one.
func (w *Watcher) Check(ctx context.Context) Result {
	v, _, shared := w.guard.Do("cycle", func() (any, error) {
		result := w.cycle(ctx)
		w.observe(ctx, result)
		return result, nil
	})
	if shared {
		w.tel.ReportDebug("cycle shared between overlapping triggers")
	}
	return v.(Result)
}

// Run checks once right away and then on the schedule until ctx ends. It
// returns after the last running cycle has finished.
func (w *Watcher) Run(ctx context.Context, cron chrono.CronAPI) error {
	err := cron.Cron(w.opts.Schedule, func() {
		w.Check(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", w.opts.Schedule, err)
	}
	slog.InfoContext(ctx, "watching for new quests", "url", w.opts.URL, "schedule", w.opts.Schedule)

	w.Check(ctx)

	<-ctx.Done()
	<-cron.Stop().Done()
	return nil
}

// Stats returns a copy of the running totals.
func (w *Watcher) Stats() Stats {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	out := w.stats
	if out.Last != nil {
		last := *out.Last
		out.Last = &last
	}
	return out
}
