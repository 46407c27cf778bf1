package watcher

import (
	"context"
	"errors"
	"log/slog"
	"questwatch/internal/events"
	"questwatch/internal/notify"
	"questwatch/internal/quest"
	"questwatch/internal/render"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Stage names the step a cycle failed in.
type Stage string

const (
	StageRender Stage = "render"
	StageDiff   Stage = "diff"
	StageNotify Stage = "notify"
)

// connector is implemented by stores that connect lazily, the handle is
// acquired at the start of every cycle.
type connector interface {
	Connect(ctx context.Context) error
}

// Result is the outcome of one cycle.
type Result struct {
	ID       string        `json:"id"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"-"`
	// DurationMs mirrors Duration for json consumers.
	DurationMs int64 `json:"duration_ms"`
	// Candidates is the number of valid listings on the page.
	Candidates int `json:"candidates"`
	// New holds the records inserted by this cycle in page order.
	New      []quest.Record `json:"new"`
	Notified int            `json:"notified"`

	// FailedStage is empty for a successful cycle.
	FailedStage Stage  `json:"failed_stage,omitempty"`
	Err         error  `json:"-"`
	Error       string `json:"error,omitempty"`
	// Screenshot is the path written after a failure, empty when none was taken.
	Screenshot string `json:"screenshot,omitempty"`
}

func (r Result) Failed() bool {
	return r.Err != nil
}

func (r *Result) fail(stage Stage, err error) {
	r.FailedStage = stage
	r.Err = err
	r.Error = err.Error()
}

func (w *Watcher) cycle(ctx context.Context) (result Result) {
	result = Result{
		ID:    uuid.NewString(),
		Start: w.deps.Clock.Now(),
		New:   []quest.Record{},
	}
	started := time.Now()
	defer func() {
		result.Duration = time.Since(started)
		result.DurationMs = result.Duration.Milliseconds()
	}()

	ctx, cancel := context.WithTimeout(ctx, w.opts.CycleTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "cycle")
	defer span.End()
	span.SetAttributes(attribute.String("cycle_id", result.ID))
	defer func() {
		if result.Err != nil {
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, "cycle failed")
		}
	}()

	if c, ok := w.deps.Store.(connector); ok {
		err := c.Connect(ctx)
		if err != nil {
			result.fail(StageDiff, err)
			return result
		}
	}

	session, err := w.deps.Renderer.Open(ctx)
	if err != nil {
		result.fail(StageRender, err)
		return result
	}
	defer func() {
		if result.Err != nil {
			w.screenshot(ctx, session, &result)
		}
		err := session.Close()
		if err != nil {
			w.tel.ReportWarning("close-session", err)
		}
	}()

	markup, err := session.Render(ctx, w.opts.URL)
	if err != nil {
		result.fail(StageRender, err)
		return result
	}

	candidates := w.deps.Extractor.Extract(ctx, markup)
	result.Candidates = len(candidates)
	slog.InfoContext(ctx, "quests found", "count", len(candidates), "cycle_id", result.ID)

	stage, err := w.diff(ctx, candidates, &result)
	if err != nil {
		result.fail(stage, err)
	}
	return result
}

// diff inserts every unseen candidate in page order and announces it right
// after its insert. The first failure aborts the rest of the list, records
// inserted before it stay inserted.
func (w *Watcher) diff(ctx context.Context, candidates []quest.Record, result *Result) (Stage, error) {
	for _, candidate := range candidates {
		if !candidate.Valid() {
			continue
		}

		inserted, err := w.deps.Store.InsertIfAbsent(ctx, candidate)
		if err != nil {
			return StageDiff, err
		}
		if !inserted {
			continue
		}
		result.New = append(result.New, candidate)
		slog.InfoContext(ctx, "new quest", "id", candidate.ID, "title", candidate.Title)

		err = w.deps.Events.Publish(ctx, events.SubjectQuestDiscovered, candidate)
		if err != nil {
			w.tel.ReportWarning("publish", err, candidate.ID)
		}

		err = w.deps.Notifier.Send(ctx, w.opts.Destination, notify.FormatQuest(candidate, w.opts.Origin))
		if err != nil {
			return StageNotify, err
		}
		result.Notified++
	}
	return "", nil
}

// screenshot is best effort, its own failure only produces a warning.
func (w *Watcher) screenshot(ctx context.Context, session render.Session, result *Result) {
	err := session.Screenshot(w.opts.ScreenshotPath)
	if errors.Is(err, render.ErrScreenshotUnsupported) {
		return
	}
	if err != nil {
		w.tel.ReportWarning("screenshot", err)
		return
	}
	result.Screenshot = w.opts.ScreenshotPath
	slog.InfoContext(ctx, "saved error screenshot", "path", w.opts.ScreenshotPath)
}
