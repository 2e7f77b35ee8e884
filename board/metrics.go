package board

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName       = "taskboard/board"
	fetchSpanName    = "board.fetch"
	fetchMetricsMsg  = "board.fetch.metrics"
	sourceCache      = "cache"
	sourceRemote     = "remote"
	sourceStaleCache = "stale_cache"
	sourceNone       = "none"
)

type fetchMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	cacheDuration  time.Duration
	remoteDuration time.Duration
	attempts       int
	source         string
	tasksLoaded    int
}

func newFetchMetrics(ctx context.Context, tracer trace.Tracer, logger *log.Logger) (*fetchMetrics, context.Context) {
	ctx, span := tracer.Start(ctx, fetchSpanName, trace.WithSpanKind(trace.SpanKindInternal))
	return &fetchMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, ctx
}

func (m *fetchMetrics) ObserveCache(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.cacheDuration = duration
}

// ObserveRemote accumulates time spent across all remote attempts.
func (m *fetchMetrics) ObserveRemote(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.remoteDuration += duration
}

func (m *fetchMetrics) ObserveAttempt() {
	m.attempts++
}

func (m *fetchMetrics) SetSource(source string) {
	if source == "" {
		return
	}
	m.source = source
}

func (m *fetchMetrics) SetTasksLoaded(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksLoaded = count
}

func (m *fetchMetrics) Finish(err error) {
	if m == nil {
		return
	}
	total := time.Since(m.start)

	attrs := []attribute.KeyValue{
		attribute.String("taskboard.fetch.source", m.source),
		attribute.Int("taskboard.fetch.attempts", m.attempts),
		attribute.Int("taskboard.fetch.tasks_loaded", m.tasksLoaded),
		attribute.Float64("taskboard.fetch.total_ms", durationToMillis(total)),
	}
	fields := log.Fields{
		"source":       m.source,
		"attempts":     m.attempts,
		"tasks_loaded": m.tasksLoaded,
		"total_ms":     durationToMillis(total),
	}
	if m.cacheDuration > 0 {
		fields["cache_ms"] = durationToMillis(m.cacheDuration)
		attrs = append(attrs, attribute.Float64("taskboard.fetch.cache_ms", durationToMillis(m.cacheDuration)))
	}
	if m.remoteDuration > 0 {
		fields["remote_ms"] = durationToMillis(m.remoteDuration)
		attrs = append(attrs, attribute.Float64("taskboard.fetch.remote_ms", durationToMillis(m.remoteDuration)))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		if err != nil {
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	entry := m.logger.WithFields(fields)
	if err != nil {
		entry.WithError(err).Error(fetchMetricsMsg)
		return
	}
	entry.Info(fetchMetricsMsg)
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
