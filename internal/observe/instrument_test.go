package observe

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/frontdesk/pkg/provider/calendar"
	calmock "github.com/MrWong99/frontdesk/pkg/provider/calendar/mock"
	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	llmmock "github.com/MrWong99/frontdesk/pkg/provider/llm/mock"
	ttsmock "github.com/MrWong99/frontdesk/pkg/provider/tts/mock"
)

func TestInstrumentLLM(t *testing.T) {
	m, reader := newTestMetrics(t)
	inner := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "hi"}}
	p := InstrumentLLM(inner, "groq", m)

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil || resp.Content != "hi" {
		t.Fatalf("Complete = %v, %v", resp, err)
	}
	inner.CompleteErr = errors.New("quota")
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Fatal("error not propagated")
	}

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "frontdesk.provider.requests", Attr("kind", KindLLM), Attr("status", "ok")); got != 1 {
		t.Errorf("ok = %d", got)
	}
	if got := sumWhere(t, rm, "frontdesk.provider.errors", Attr("kind", KindLLM), Attr("provider", "groq")); got != 1 {
		t.Errorf("errors = %d", got)
	}
}

func TestInstrumentTTS(t *testing.T) {
	m, reader := newTestMetrics(t)
	inner := &ttsmock.Provider{SynthesizeResult: []byte("RIFF")}
	p := InstrumentTTS(inner, "mimic3", m)

	wav, err := p.Synthesize(context.Background(), "hello")
	if err != nil || string(wav) != "RIFF" {
		t.Fatalf("Synthesize = %q, %v", wav, err)
	}
	if texts := inner.Texts(); len(texts) != 1 || texts[0] != "hello" {
		t.Errorf("inner saw %v", texts)
	}

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "frontdesk.provider.requests", Attr("provider", "mimic3"), Attr("kind", KindTTS)); got != 1 {
		t.Errorf("requests = %d", got)
	}
}

func TestInstrumentScheduler(t *testing.T) {
	m, reader := newTestMetrics(t)
	inner := &calmock.Scheduler{Err: errors.New("403")}
	s := InstrumentScheduler(inner, "google", m)

	if _, err := s.CreateEvent(context.Background(), calendar.Event{Summary: "x"}); err == nil {
		t.Fatal("error not propagated")
	}
	if len(inner.Events()) != 1 {
		t.Error("inner scheduler not called")
	}

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "frontdesk.provider.errors", Attr("provider", "google"), Attr("kind", KindCalendar)); got != 1 {
		t.Errorf("errors = %d", got)
	}
}
