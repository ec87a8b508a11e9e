package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName         = "github.com/mabroukmoatez/formly-saas-sub017/api"
	boardSpanName      = "board.request"
	boardEventName     = "board.request.metrics"
	boardEventDomain   = "board"
	observabilityEvent = "observability.event"
	metricsContextKey  = "board.metrics"
)

type requestMetrics struct {
	logger          *log.Logger
	span            trace.Span
	route           string
	method          string
	start           time.Time
	decodeDuration  time.Duration
	storageDuration time.Duration
	items           int
	errorStage      string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, boardSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.route", route),
			attribute.String("http.method", method),
		),
	)
	return &requestMetrics{
		logger: logger,
		span:   span,
		route:  route,
		method: method,
		start:  time.Now(),
	}, ctx
}

// metricsFrom returns the metrics attached to the request, or nil. All
// methods accept a nil receiver.
func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsContextKey).(*requestMetrics)
	return m
}

func (m *requestMetrics) ObserveDecode(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.decodeDuration = d
}

func (m *requestMetrics) ObserveStorage(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.storageDuration += d
}

func (m *requestMetrics) SetItems(n int) {
	if m == nil {
		return
	}
	if n < 0 {
		n = 0
	}
	m.items = n
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" {
		return
	}
	m.errorStage = stage
}

// Log ends the span and writes one structured entry describing the request.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	severityText, severityNumber := severityForStatus(status, err)

	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.String("http.method", m.method),
		attribute.Int("http.status_code", status),
		attribute.Float64("board.request.total_ms", durationToMillis(time.Since(m.start))),
		attribute.Int("board.request.items", m.items),
	}
	if m.decodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.request.decode_ms", durationToMillis(m.decodeDuration)))
	}
	if m.storageDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.request.storage_ms", durationToMillis(m.storageDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("board.request.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", boardEventName),
		attribute.String("event.domain", boardEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, attrs...)

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
		switch {
		case severityText == "ERROR":
			desc := http.StatusText(status)
			if err != nil {
				m.span.RecordError(err)
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		case status < http.StatusBadRequest:
			m.span.SetStatus(codes.Ok, "")
		}
	}

	if m.logger != nil {
		fields := log.Fields{
			"event.name":      boardEventName,
			"event.domain":    boardEventDomain,
			"severity_text":   severityText,
			"severity_number": severityNumber,
			"attributes":      attributesMap(attrs),
		}
		if m.span != nil {
			if sc := m.span.SpanContext(); sc.IsValid() {
				fields["trace_id"] = sc.TraceID().String()
				fields["span_id"] = sc.SpanID().String()
			}
		}
		entry := m.logger.WithFields(fields)
		switch severityText {
		case "ERROR":
			entry.Error(observabilityEvent)
		case "WARN":
			entry.Warn(observabilityEvent)
		default:
			entry.Info(observabilityEvent)
		}
	}

	if m.span != nil {
		m.span.End()
	}
}

// severityForStatus follows the OpenTelemetry log severity numbers.
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

func attributesMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

// RequestMetrics wraps a route with a span and a metrics log entry.
func RequestMetrics(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			m, ctx := newRequestMetrics(c.Request().Context(), logger, c.Request().Method, c.Path())
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(metricsContextKey, m)
			defer func() {
				status := c.Response().Status
				if err != nil && !c.Response().Committed {
					status, _ = classifyError(err)
				}
				m.Log(status, err)
			}()
			return next(c)
		}
	}
}
