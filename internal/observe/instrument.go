package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/frontdesk/pkg/provider/calendar"
	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	"github.com/MrWong99/frontdesk/pkg/provider/tts"
)

// Collaborator kinds used as the "kind" attribute.
const (
	KindLLM      = "llm"
	KindTTS      = "tts"
	KindCalendar = "calendar"
)

// observeCall wraps one collaborator call in a span and records duration,
// request, and error metrics.
func observeCall(ctx context.Context, m *Metrics, kind, provider string, fn func(context.Context) error) error {
	ctx, span := StartSpan(ctx, kind+"."+provider, trace.WithAttributes(Attr("kind", kind), Attr("provider", provider)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	m.ProviderDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(Attr("kind", kind), Attr("provider", provider)))

	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, provider, kind)
		Fail(span, err)
	}
	m.RecordProviderRequest(ctx, provider, kind, status)
	return err
}

// ─── LLM ─────────────────────────────────────────────────────────────────────

type instrumentedLLM struct {
	inner llm.Provider
	name  string
	m     *Metrics
}

// InstrumentLLM returns p wrapped with tracing and metrics under name.
func InstrumentLLM(p llm.Provider, name string, m *Metrics) llm.Provider {
	return &instrumentedLLM{inner: p, name: name, m: m}
}

func (i *instrumentedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var resp *llm.CompletionResponse
	err := observeCall(ctx, i.m, KindLLM, i.name, func(ctx context.Context) error {
		var err error
		resp, err = i.inner.Complete(ctx, req)
		return err
	})
	return resp, err
}

// ─── TTS ─────────────────────────────────────────────────────────────────────

type instrumentedTTS struct {
	inner tts.Provider
	name  string
	m     *Metrics
}

// InstrumentTTS returns p wrapped with tracing and metrics under name.
func InstrumentTTS(p tts.Provider, name string, m *Metrics) tts.Provider {
	return &instrumentedTTS{inner: p, name: name, m: m}
}

func (i *instrumentedTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var wav []byte
	err := observeCall(ctx, i.m, KindTTS, i.name, func(ctx context.Context) error {
		var err error
		wav, err = i.inner.Synthesize(ctx, text)
		return err
	})
	return wav, err
}

// ─── Calendar ────────────────────────────────────────────────────────────────

type instrumentedScheduler struct {
	inner calendar.Scheduler
	name  string
	m     *Metrics
}

// InstrumentScheduler returns s wrapped with tracing and metrics under name.
func InstrumentScheduler(s calendar.Scheduler, name string, m *Metrics) calendar.Scheduler {
	return &instrumentedScheduler{inner: s, name: name, m: m}
}

func (i *instrumentedScheduler) CreateEvent(ctx context.Context, ev calendar.Event) (string, error) {
	var link string
	err := observeCall(ctx, i.m, KindCalendar, i.name, func(ctx context.Context) error {
		var err error
		link, err = i.inner.CreateEvent(ctx, ev)
		return err
	})
	return link, err
}
