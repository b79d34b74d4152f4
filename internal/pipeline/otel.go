package pipeline

import (
	"context"
	"reflect"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mullenkamp/nz-allo-usage-tools/internal/catalog"
)

// TracerName is the instrumentation scope of pipeline spans
const TracerName = "nz-allo-usage-tools.pipeline"

// Data-quality event names reported to the Recorder
const (
	EventNegativeClipped = "negative_clipped"
	EventSpikeSuppressed = "spike_suppressed"
	EventMissingReading  = "missing_reading"
	EventUsageOutlier    = "usage_outlier"
	EventMissingDonor    = "missing_donor"
)

// Recorder receives stage and data-quality measurements
type Recorder interface {
	RecordStage(ctx context.Context, stage, frequency string, duration time.Duration, rows int, err error)
	RecordQuality(ctx context.Context, event string, count int)
}

type nopRecorder struct{}

func (nopRecorder) RecordStage(context.Context, string, string, time.Duration, int, error) {}
func (nopRecorder) RecordQuality(context.Context, string, int)                          {}

// Recorders fans measurements out to every non-nil recorder in order
func Recorders(rs ...Recorder) Recorder {
	var out multiRecorder
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multiRecorder []Recorder

func (m multiRecorder) RecordStage(ctx context.Context, stage, frequency string, d time.Duration, rows int, err error) {
	for _, r := range m {
		r.RecordStage(ctx, stage, frequency, d, rows, err)
	}
}

func (m multiRecorder) RecordQuality(ctx context.Context, event string, n int) {
	for _, r := range m {
		r.RecordQuality(ctx, event, n)
	}
}

// instrument runs one stage computation inside a span and reports it
func (s *Session) instrument(ctx context.Context, key stageKey, fn func(context.Context) (int, error)) error {
	ctx, span := s.tracer.Start(ctx, "pipeline.stage."+key.stage,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("stage.name", key.stage),
			attribute.String("stage.variant", key.variant),
			attribute.String("stage.frequency", string(key.freq)),
			attribute.Int64("catalog.version", int64(key.version)),
		),
	)
	defer span.End()

	start := time.Now()
	rows, err := fn(ctx)
	elapsed := time.Since(start)

	span.SetAttributes(
		attribute.Int("stage.rows", rows),
		attribute.Float64("stage.duration_seconds", elapsed.Seconds()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	s.recorder.RecordStage(ctx, key.stage, string(key.freq), elapsed, rows, err)

	if err != nil {
		s.logger.WarnContext(ctx, "stage failed", "stage", key.String(), "error", err)
		return err
	}
	s.logger.DebugContext(ctx, "stage computed",
		"stage", key.String(),
		"rows", rows,
		"duration", elapsed,
	)
	return nil
}

// quality reports a data-quality event count; zero counts are dropped
func (s *Session) quality(ctx context.Context, event string, n int) {
	if n <= 0 {
		return
	}
	trace.SpanFromContext(ctx).AddEvent("quality."+event, trace.WithAttributes(attribute.Int("count", n)))
	s.recorder.RecordQuality(ctx, event, n)
	s.logger.DebugContext(ctx, "data quality event", "event", event, "count", n)
}

func defaultTracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

func rowCount(v any) int {
	switch t := v.(type) {
	case catalog.Table:
		return len(t.Permits)
	case estimateResult:
		return len(t.rows)
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
		return rv.Len()
	}
	return 0
}
