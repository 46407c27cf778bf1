package watcher

import (
	"context"
	"log/slog"
	"questwatch/internal/events"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("questwatch/internal/watcher")

var (
	cyclesCounter, _ = meter.Int64Counter(
		"questwatch.cycles",
		metric.WithDescription("Poll cycles run."),
	)
	newQuestsCounter, _ = meter.Int64Counter(
		"questwatch.quests.new",
		metric.WithDescription("Quests seen for the first time."),
	)
	failuresCounter, _ = meter.Int64Counter(
		"questwatch.cycle.failures",
		metric.WithDescription("Poll cycles that failed, by stage."),
	)
	durationHistogram, _ = meter.Float64Histogram(
		"questwatch.cycle.duration",
		metric.WithDescription("Wall time of a poll cycle."),
		metric.WithUnit("s"),
	)
)

// observe hands a finished cycle to logs, telemetry, metrics, the event sink
// and the status stats.
func (w *Watcher) observe(ctx context.Context, result Result) {
	w.mutex.Lock()
	w.stats.Cycles++
	w.stats.NewTotal += int64(len(result.New))
	if result.Failed() {
		w.stats.Failures++
	}
	last := result
	w.stats.Last = &last
	w.mutex.Unlock()

	cyclesCounter.Add(ctx, 1)
	newQuestsCounter.Add(ctx, int64(len(result.New)))
	durationHistogram.Record(ctx, result.Duration.Seconds())
	w.tel.ReportCount("candidates", int64(result.Candidates))

	if result.Failed() {
		failuresCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(result.FailedStage))))
		w.tel.ReportBroken("cycle", result.Err, string(result.FailedStage), result.ID)
	} else {
		slog.InfoContext(
			ctx, "cycle finished",
			"cycle_id", result.ID,
			"candidates", result.Candidates,
			"new", len(result.New),
			"notified", result.Notified,
			"duration", result.Duration,
		)
	}

	// ctx is already cancelled when the cycle was cut short by shutdown
	err := w.deps.Events.Publish(context.WithoutCancel(ctx), events.SubjectCycleCompleted, result)
	if err != nil {
		w.tel.ReportWarning("publish", err, result.ID)
	}
}
