package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Response headers set on every ops request.
const (
	HeaderSessionID = "X-Session-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// quietPaths are polled by probes and scrapers; successful requests to them
// log at debug.
var quietPaths = map[string]bool{"/healthz": true, "/readyz": true, "/metrics": true}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

type opsHandler struct {
	next      http.Handler
	m         *Metrics
	sessionID string
	prop      propagation.TraceContext
}

// Middleware wraps the ops endpoints of the call identified by sessionID.
// Each request continues an incoming W3C trace or starts one, carries the
// session in its context, gets X-Session-ID and X-Trace-ID response headers,
// and is recorded in [Metrics.HTTPRequestDuration].
func Middleware(m *Metrics, sessionID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &opsHandler{next: next, m: m, sessionID: sessionID}
	}
}

func (h *opsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ctx := h.prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx = WithSession(ctx, h.sessionID)
	ctx, span := StartSpan(ctx, r.Method+" "+r.URL.Path,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(r.Method),
			semconv.URLPath(r.URL.Path),
		),
	)
	defer span.End()

	if h.sessionID != "" {
		w.Header().Set(HeaderSessionID, h.sessionID)
	}
	traceID := TraceID(ctx)
	if traceID != "" {
		w.Header().Set(HeaderTraceID, traceID)
	}
	h.prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	h.next.ServeHTTP(sw, r.WithContext(ctx))

	elapsed := time.Since(start)
	h.m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(Attr("method", r.Method), Attr("path", r.URL.Path)))
	span.SetAttributes(semconv.HTTPResponseStatusCode(sw.status))

	level := slog.LevelInfo
	if quietPaths[r.URL.Path] && sw.status < http.StatusInternalServerError {
		level = slog.LevelDebug
	}
	Logger(ctx).LogAttrs(ctx, level, "ops request",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", sw.status),
		slog.Duration("elapsed", elapsed),
	)
}
