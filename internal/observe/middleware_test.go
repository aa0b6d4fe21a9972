package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func serveOps(t *testing.T, m *Metrics, req *http.Request, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	Middleware(m, "call-42")(h).ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_Headers(t *testing.T) {
	installTracer(t)
	m, _ := newTestMetrics(t)

	var session, traceID string
	rec := serveOps(t, m, httptest.NewRequest(http.MethodGet, "/readyz", nil), func(w http.ResponseWriter, r *http.Request) {
		session = SessionID(r.Context())
		traceID = TraceID(r.Context())
	})

	if session != "call-42" {
		t.Errorf("handler saw session %q, want call-42", session)
	}
	if len(traceID) != 32 {
		t.Errorf("trace ID %q, want 32 hex chars", traceID)
	}
	if got := rec.Header().Get(HeaderSessionID); got != "call-42" {
		t.Errorf("%s = %q", HeaderSessionID, got)
	}
	if got := rec.Header().Get(HeaderTraceID); got != traceID {
		t.Errorf("%s = %q, want %q", HeaderTraceID, got, traceID)
	}
	if rec.Header().Get("traceparent") == "" {
		t.Error("traceparent not injected into the response")
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	installTracer(t)
	m, _ := newTestMetrics(t)

	const incoming = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("traceparent", "00-"+incoming+"-00f067aa0ba902b7-01")

	rec := serveOps(t, m, req, func(http.ResponseWriter, *http.Request) {})
	if got := rec.Header().Get(HeaderTraceID); got != incoming {
		t.Errorf("%s = %q, want %q", HeaderTraceID, got, incoming)
	}
}

func TestMiddleware_SpanAndStatus(t *testing.T) {
	exp := installTracer(t)
	m, _ := newTestMetrics(t)

	rec := serveOps(t, m, httptest.NewRequest(http.MethodGet, "/readyz", nil), func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "GET /readyz" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	attrs := map[string]bool{}
	for _, a := range spans[0].Attributes {
		switch {
		case a.Key == "http.response.status_code" && a.Value.AsInt64() == 503:
			attrs["status"] = true
		case a.Key == "session.id" && a.Value.AsString() == "call-42":
			attrs["session"] = true
		}
	}
	if !attrs["status"] || !attrs["session"] {
		t.Errorf("span attributes %v lack status or session", spans[0].Attributes)
	}
}

func TestMiddleware_RecordsDuration(t *testing.T) {
	installTracer(t)
	m, reader := newTestMetrics(t)

	serveOps(t, m, httptest.NewRequest(http.MethodGet, "/healthz", nil), func(http.ResponseWriter, *http.Request) {})
	serveOps(t, m, httptest.NewRequest(http.MethodGet, "/healthz", nil), func(http.ResponseWriter, *http.Request) {})

	met := findMetric(collect(t, reader), "frontdesk.http.request.duration")
	if met == nil {
		t.Fatal("frontdesk.http.request.duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("data = %#v, want one histogram point", met.Data)
	}
	dp := hist.DataPoints[0]
	if dp.Count != 2 {
		t.Errorf("count = %d, want 2", dp.Count)
	}
	if v, ok := dp.Attributes.Value("path"); !ok || v.AsString() != "/healthz" {
		t.Errorf("path attribute = %v", v)
	}
}
