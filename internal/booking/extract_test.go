package booking

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	llmmock "github.com/MrWong99/frontdesk/pkg/provider/llm/mock"
	"github.com/MrWong99/frontdesk/pkg/types"
)

func TestParseExtraction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want Extraction
	}{
		{"plain", `{"date":"2024-06-01","start_time":"10:00"}`, Extracted{Date: "2024-06-01", StartTime: "10:00"}},
		{"fenced", "```json\n{\"date\": \"2024-06-01\", \"start_time\": \"14:30\"}\n```", Extracted{Date: "2024-06-01", StartTime: "14:30"}},
		{"prose around", `Sure! {"date":"2024-12-25","start_time":"09:05"} Hope that helps.`, Extracted{Date: "2024-12-25", StartTime: "09:05"}},
		{"single digit hour normalised", `{"date":"2024-06-01","start_time":"9:00"}`, Extracted{Date: "2024-06-01", StartTime: "09:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ParseExtraction(tt.raw); got != tt.want {
				t.Errorf("ParseExtraction(%q) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseExtraction_Failures(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"",
		"I could not find a date.",
		`{"date":"2024-06-01"}`,
		`{"start_time":"10:00"}`,
		`{"date":"tomorrow","start_time":"10:00"}`,
		`{"date":"2024-06-01","start_time":"10am"}`,
		`{"date":"2024-02-30","start_time":"10:00"}`,
		`{"date":20240601,"start_time":"10:00"}`,
		`{"date":"2024-06-01","start_time":"24:00"}`,
	} {
		got, ok := ParseExtraction(raw).(ExtractionFailed)
		if !ok {
			t.Errorf("ParseExtraction(%q) = %#v, want ExtractionFailed", raw, got)
			continue
		}
		if !errors.Is(got.Reason, ErrExtraction) {
			t.Errorf("ParseExtraction(%q) reason %v does not wrap ErrExtraction", raw, got.Reason)
		}
	}
}

func TestExtractor_RequestShape(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"date":"2024-06-01","start_time":"10:00"}`}}
	ex := NewExtractor(p, GenParams{Temperature: 0, MaxTokens: 50})

	got := ex.Extract(context.Background(), "June first at ten")
	if _, ok := got.(Extracted); !ok {
		t.Fatalf("Extract = %#v, want Extracted", got)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if req.Temperature != 0 || req.MaxTokens != 50 {
		t.Errorf("params = %v/%d, want 0/50", req.Temperature, req.MaxTokens)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != types.RoleSystem || req.Messages[0].Content != "You extract date and start_time from text." {
		t.Fatalf("messages = %+v", req.Messages)
	}
	if !strings.HasSuffix(req.Messages[1].Content, `User reply: "June first at ten"`) {
		t.Errorf("prompt = %q", req.Messages[1].Content)
	}
}

func TestExtractor_TransportError(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	got, ok := NewExtractor(p, GenParams{}).Extract(context.Background(), "tomorrow at 5").(ExtractionFailed)
	if !ok {
		t.Fatal("want ExtractionFailed on transport error")
	}
	if !errors.Is(got.Reason, ErrExtraction) {
		t.Errorf("reason %v does not wrap ErrExtraction", got.Reason)
	}
}

func TestHasBookingIntent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"I want to book a meeting", true},
		{"Can we SCHEDULE something", true},
		{"I'd like an appointment", true},
		{"could you set up a call", true},
		{"What services do you offer?", false},
		{"setup is hard", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := HasBookingIntent(tt.in, DefaultKeywords); got != tt.want {
			t.Errorf("HasBookingIntent(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
