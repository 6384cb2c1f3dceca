package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName       = "onboarding-board/api"
	boardSpanName    = "board.request"
	boardEventName   = "board.request"
	boardEventDomain = "onboarding.board"
	observabilityMsg = "observability.event"
)

// boardRequestMetrics times one board request. Log emits a single structured
// observability.event entry and closes the request span.
type boardRequestMetrics struct {
	logger *log.Logger
	route  string
	start  time.Time
	span   trace.Span

	authDuration    time.Duration
	backendDuration time.Duration
	userID          string
	taskID          string
	outcome         string
	tasksReturned   int
	errorStage      string
	failure         error
}

func newBoardRequestMetrics(ctx context.Context, logger *log.Logger, route string) (*boardRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, boardSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("http.route", route)),
	)
	return &boardRequestMetrics{
		logger: logger,
		route:  route,
		start:  time.Now(),
		span:   span,
	}, spanCtx
}

func (m *boardRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *boardRequestMetrics) ObserveBackend(d time.Duration) {
	if d > 0 {
		m.backendDuration += d
	}
}

func (m *boardRequestMetrics) SetUser(id string)   { m.userID = id }
func (m *boardRequestMetrics) SetTask(id string)   { m.taskID = id }
func (m *boardRequestMetrics) SetOutcome(o string) { m.outcome = o }

func (m *boardRequestMetrics) SetTasksReturned(n int) {
	if n < 0 {
		n = 0
	}
	m.tasksReturned = n
}

func (m *boardRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Fail records why the request did not succeed.
func (m *boardRequestMetrics) Fail(stage string, err error) {
	m.SetErrorStage(stage)
	m.failure = err
}

func (m *boardRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	severityText, severityNumber := severityForStatus(status, err)

	attrs := map[string]any{
		"http.route":           m.route,
		"http.status_code":     status,
		"board.total_ms":       durationToMillis(time.Since(m.start)),
		"board.tasks_returned": m.tasksReturned,
	}
	kvs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.Int("http.status_code", status),
		attribute.Float64("board.total_ms", attrs["board.total_ms"].(float64)),
		attribute.Int("board.tasks_returned", m.tasksReturned),
	}
	if m.authDuration > 0 {
		ms := durationToMillis(m.authDuration)
		attrs["board.auth_ms"] = ms
		kvs = append(kvs, attribute.Float64("board.auth_ms", ms))
	}
	if m.backendDuration > 0 {
		ms := durationToMillis(m.backendDuration)
		attrs["board.backend_ms"] = ms
		kvs = append(kvs, attribute.Float64("board.backend_ms", ms))
	}
	if m.userID != "" {
		attrs["enduser.id"] = m.userID
		kvs = append(kvs, attribute.String("enduser.id", m.userID))
	}
	if m.taskID != "" {
		attrs["board.task_id"] = m.taskID
		kvs = append(kvs, attribute.String("board.task_id", m.taskID))
	}
	if m.outcome != "" {
		attrs["board.outcome"] = m.outcome
		kvs = append(kvs, attribute.String("board.outcome", m.outcome))
	}
	if m.errorStage != "" {
		attrs["board.error_stage"] = m.errorStage
		kvs = append(kvs, attribute.String("board.error_stage", m.errorStage))
	}
	if err != nil {
		attrs["error.message"] = err.Error()
		kvs = append(kvs, attribute.String("error.message", err.Error()))
	}

	if m.span != nil {
		m.span.SetAttributes(kvs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", boardEventName),
			attribute.String("event.domain", boardEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}, kvs...)
		m.span.AddEvent(observabilityMsg, trace.WithAttributes(eventAttrs...))
		if severityText == "ERROR" {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
				m.span.RecordError(err)
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      boardEventName,
		"event.domain":    boardEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attrs,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error(observabilityMsg)
	case "WARN":
		entry.Warn(observabilityMsg)
	default:
		entry.Info(observabilityMsg)
	}
}

// severityForStatus maps a response to OpenTelemetry log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	case err != nil:
		return "ERROR", 17
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
