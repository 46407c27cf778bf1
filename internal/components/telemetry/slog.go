package telemetry

import (
	"fmt"
	"log/slog"
)

// SlogAPI implements API using the default slog logger.
type SlogAPI struct{}

func (SlogAPI) formatParams(out *[]any, params []any) {
	for i, p := range params {
		if err, ok := p.(error); ok {
			*out = append(*out, "err", err)
			continue
		}
		*out = append(
			*out,
			fmt.Sprintf("params.%d", i),
			p,
		)
	}
}

func (s SlogAPI) ReportBroken(id string, params ...any) {
	attrs := []any{"id", id}
	s.formatParams(&attrs, params)
	slog.Error("broken component", attrs...)
}

func (s SlogAPI) ReportWarning(id string, params ...any) {
	attrs := []any{"id", id}
	s.formatParams(&attrs, params)
	slog.Warn("warning", attrs...)
}

func (s SlogAPI) ReportDebug(message string, params ...any) {
	attrs := []any{}
	s.formatParams(&attrs, params)
	slog.Debug(message, attrs...)
}

func (s SlogAPI) ReportCount(id string, count int64) {
	slog.Info("count", "id", id, "n", count)
}
