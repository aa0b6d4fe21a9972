package turn

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/frontdesk/internal/booking"
	"github.com/MrWong99/frontdesk/internal/ledger"
	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/internal/segment"
	"github.com/MrWong99/frontdesk/pkg/audio"
	audiomock "github.com/MrWong99/frontdesk/pkg/audio/mock"
	calmock "github.com/MrWong99/frontdesk/pkg/provider/calendar/mock"
	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	llmmock "github.com/MrWong99/frontdesk/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/frontdesk/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/frontdesk/pkg/provider/tts/mock"
	"github.com/MrWong99/frontdesk/pkg/types"
)

// scriptedUtterances returns Texts in order, then End.
type scriptedUtterances struct {
	Texts []string
	End   error
}

func (s *scriptedUtterances) Next(ctx context.Context) (types.Utterance, error) {
	if err := ctx.Err(); err != nil {
		return types.Utterance{}, err
	}
	if len(s.Texts) == 0 {
		return types.Utterance{}, s.End
	}
	text := s.Texts[0]
	s.Texts = s.Texts[1:]
	return types.Utterance{Text: text, Audio: time.Second}, nil
}

// fakeDispatcher replays Turns in order and records the texts it was given.
type fakeDispatcher struct {
	Turns []booking.Turn
	got   []string
}

func (d *fakeDispatcher) Dispatch(_ context.Context, text string) booking.Turn {
	d.got = append(d.got, text)
	if len(d.Turns) == 0 {
		return booking.Turn{Utterance: text}
	}
	t := d.Turns[0]
	d.Turns = d.Turns[1:]
	t.Utterance = text
	return t
}

type recordingSpeaker struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (s *recordingSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return s.err
}

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func counter(t *testing.T, reader *sdkmetric.ManualReader, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not an int64 sum", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				match := true
				for _, a := range attrs {
					if v, ok := dp.Attributes.Value(a.Key); !ok || v != a.Value {
						match = false
					}
				}
				if match {
					total += dp.Value
				}
			}
			return total
		}
	}
	return 0
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, &fakeDispatcher{}, &recordingSpeaker{}); err == nil {
		t.Error("expected error for nil utterance source")
	}
	l, err := New(&scriptedUtterances{}, &fakeDispatcher{}, &recordingSpeaker{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.SessionID() == "" {
		t.Error("SessionID should default to a generated id")
	}
}

func TestLoop_RunSpeaksAndRecords(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	rec := &ledger.Memory{}
	speaker := &recordingSpeaker{}
	disp := &fakeDispatcher{Turns: []booking.Turn{
		{Reply: "Hello!", From: booking.StageIdle, To: booking.StageIdle},
		{}, // recognition gap: no reply
		{Reply: "What date?", From: booking.StageIdle, To: booking.StageAwaitingDateTime},
		{
			Reply: "Event failed.", From: booking.StageAwaitingEmail, To: booking.StageIdle,
			Outcome: booking.OutcomeScheduleFailed,
			Attempt: &booking.Attempt{
				Date: "2026-03-02", StartTime: "10:00", Email: "a@b.co",
				Outcome: booking.OutcomeScheduleFailed, Err: errors.New("quota"),
			},
		},
	}}
	in := &scriptedUtterances{Texts: []string{"hi", "", "book a meeting", "a at b dot c o"}, End: audio.ErrQueueClosed}

	l, err := New(in, disp, speaker, WithRecorder(rec), WithMetrics(m), WithSessionID("call-1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if want := []string{"Hello!", "What date?", "Event failed."}; !slices.Equal(speaker.texts, want) {
		t.Errorf("spoken = %v, want %v", speaker.texts, want)
	}
	if l.Turns() != 3 {
		t.Errorf("Turns = %d, want 3", l.Turns())
	}

	turns := rec.Turns()
	if len(turns) != 3 {
		t.Fatalf("recorded %d turns, want 3", len(turns))
	}
	for i, tr := range turns {
		if tr.SessionID != "call-1" || tr.Seq != i+1 {
			t.Errorf("turn[%d] = %+v", i, tr)
		}
	}
	if turns[1].StageBefore != "IDLE" || turns[1].StageAfter != "AWAITING_DATETIME" {
		t.Errorf("turn[1] stages = %s -> %s", turns[1].StageBefore, turns[1].StageAfter)
	}

	bookings := rec.Bookings()
	if len(bookings) != 1 {
		t.Fatalf("recorded %d bookings, want 1", len(bookings))
	}
	if b := bookings[0]; b.Outcome != "schedule_failed" || b.Error != "quota" || b.Seq != 3 {
		t.Errorf("booking = %+v", b)
	}

	if got := counter(t, reader, "frontdesk.booking.transitions",
		attribute.String("from", "IDLE"), attribute.String("to", "AWAITING_DATETIME")); got != 1 {
		t.Errorf("IDLE->AWAITING_DATETIME transitions = %d, want 1", got)
	}
	if got := counter(t, reader, "frontdesk.booking.outcomes", attribute.String("outcome", "schedule_failed")); got != 1 {
		t.Errorf("schedule_failed outcomes = %d, want 1", got)
	}
}

func TestLoop_SurvivesSpeakAndLedgerFailures(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)
	speaker := &recordingSpeaker{err: errors.New("ffplay missing")}
	rec := &ledger.Memory{Err: errors.New("db down")}
	disp := &fakeDispatcher{Turns: []booking.Turn{{Reply: "one"}, {Reply: "two"}}}
	in := &scriptedUtterances{Texts: []string{"a", "b"}, End: audio.ErrQueueClosed}

	l, err := New(in, disp, speaker, WithRecorder(rec), WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(speaker.texts) != 2 {
		t.Errorf("spoke %d replies, want 2", len(speaker.texts))
	}
}

func TestLoop_RunExit(t *testing.T) {
	t.Parallel()
	decoderDown := errors.New("segment: decoder: stt: decoder is closed")
	tests := []struct {
		name    string
		end     error
		cancel  bool
		wantErr error
	}{
		{name: "queue closed", end: audio.ErrQueueClosed},
		{name: "context cancelled", end: context.Canceled, cancel: true},
		{name: "source failure", end: decoderDown, wantErr: decoderDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, _ := newTestMetrics(t)
			l, err := New(&scriptedUtterances{End: tt.end}, &fakeDispatcher{}, &recordingSpeaker{}, WithMetrics(m))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancel {
				cancel()
			}
			err = l.Run(ctx)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Run = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVoice_Speak(t *testing.T) {
	t.Parallel()
	synth := &ttsmock.Provider{SynthesizeResult: audio.EncodeWAV(make([]byte, 320), 16000, 1)}
	sink := &audiomock.Sink{}
	v := &Voice{TTS: synth, Sink: sink}

	if err := v.Speak(context.Background(), "Hello"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := synth.Texts(); !slices.Equal(got, []string{"Hello"}) {
		t.Errorf("synthesized = %v", got)
	}
	if len(sink.Played()) != 1 {
		t.Errorf("played %d clips, want 1", len(sink.Played()))
	}

	synth.SynthesizeErr = errors.New("mimic3 down")
	err := v.Speak(context.Background(), "Again")
	if err == nil || !strings.Contains(err.Error(), "synthesize") {
		t.Errorf("Speak = %v, want synthesize error", err)
	}
	if len(sink.Played()) != 1 {
		t.Error("nothing should be played when synthesis fails")
	}
}

// TestLoop_EndToEndBooking drives captured chunks through the queue,
// segmenter, booking machine, and voice.
func TestLoop_EndToEndBooking(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)

	model := &llmmock.Provider{CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		if strings.Contains(req.Messages[0].Content, "extract date and start_time") {
			return &llm.CompletionResponse{Content: "```json\n{\"date\": \"2026-03-02\", \"start_time\": \"14:30\"}\n```"}, nil
		}
		return &llm.CompletionResponse{Content: "Happy to help."}, nil
	}}
	sched := &calmock.Scheduler{Link: "https://calendar.example/evt1"}
	machine, err := booking.NewMachine(model, sched)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}

	q := audio.NewChunkQueue()
	chunk := make([]byte, 16000)
	for range 6 {
		q.Push(chunk)
	}
	q.Close()
	dec := &sttmock.Decoder{Steps: []sttmock.Step{
		{Final: true, Text: "I'd like to book a meeting"},
		{},
		{Final: true, Text: "next monday at half past two"},
		{Final: true, Text: ""},
		{},
		{Final: true, Text: "d e v at g m a i l dot c o m"},
	}}
	seg, err := segment.New(q, dec, 16000)
	if err != nil {
		t.Fatalf("segment.New: %v", err)
	}

	synth := &ttsmock.Provider{SynthesizeResult: []byte("RIFF")}
	sink := &audiomock.Sink{}
	rec := &ledger.Memory{}
	l, err := New(seg, machine, &Voice{TTS: synth, Sink: sink}, WithRecorder(rec), WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	spoken := synth.Texts()
	if len(spoken) != 3 {
		t.Fatalf("spoken = %q, want 3 replies", spoken)
	}
	if !strings.Contains(spoken[1], "2026-03-02") || !strings.Contains(spoken[1], "14:30") {
		t.Errorf("email prompt = %q", spoken[1])
	}

	events := sched.Events()
	if len(events) != 1 {
		t.Fatalf("created %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Start != "2026-03-02T14:30:00" || ev.End != "2026-03-02T15:00:00" {
		t.Errorf("event window = %s .. %s", ev.Start, ev.End)
	}
	if !slices.Equal(ev.Attendees, []string{"dev@gmail.com"}) {
		t.Errorf("attendees = %v", ev.Attendees)
	}
	if machine.State().Stage != booking.StageIdle || !machine.State().Slots.IsZero() {
		t.Errorf("machine not reset: %+v", machine.State())
	}

	bookings := rec.Bookings()
	if len(bookings) != 1 || bookings[0].Outcome != "scheduled" || bookings[0].Link != "https://calendar.example/evt1" {
		t.Errorf("bookings = %+v", bookings)
	}
	if got := counter(t, reader, "frontdesk.booking.outcomes", attribute.String("outcome", "scheduled")); got != 1 {
		t.Errorf("scheduled outcomes = %d, want 1", got)
	}
}
