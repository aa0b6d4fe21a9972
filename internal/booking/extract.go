package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	"github.com/MrWong99/frontdesk/pkg/types"
)

// ErrExtraction is wrapped by every [ExtractionFailed] reason.
var ErrExtraction = errors.New("booking: date/time extraction failed")

// Extraction is the result of asking the model for a meeting date and start
// time. It is either [Extracted] or [ExtractionFailed].
type Extraction interface {
	extraction()
}

// Extracted holds a validated date (YYYY-MM-DD) and start time (HH:MM, 24h).
type Extracted struct {
	Date      string
	StartTime string
}

// ExtractionFailed means the reply could not be turned into a date and time.
type ExtractionFailed struct {
	Reason error
}

func (Extracted) extraction()        {}
func (ExtractionFailed) extraction() {}

// Extractor asks a language model for structured booking slots.
type Extractor struct {
	llm    llm.Provider
	params GenParams
}

// NewExtractor returns an Extractor using params for every request.
func NewExtractor(p llm.Provider, params GenParams) *Extractor {
	return &Extractor{llm: p, params: params}
}

// Extract requests a date and start time for text. Transport errors and
// unusable replies both yield [ExtractionFailed].
func (e *Extractor) Extract(ctx context.Context, text string) Extraction {
	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []types.Message{
			{Role: types.RoleSystem, Content: extractionSystemPrompt},
			{Role: types.RoleUser, Content: extractionPrompt(text)},
		},
		Temperature: e.params.Temperature,
		MaxTokens:   e.params.MaxTokens,
	})
	if err != nil {
		return ExtractionFailed{Reason: fmt.Errorf("%w: %w", ErrExtraction, err)}
	}
	return ParseExtraction(resp.Content)
}

// ParseExtraction decodes a model reply of the form
// {"date":"2024-06-01","start_time":"10:00"}. The object may be wrapped in a
// markdown code fence or surrounded by prose. Both keys must be present and
// parse as a calendar date and a 24-hour clock time; values are returned in
// canonical zero-padded form.
func ParseExtraction(raw string) Extraction {
	obj, ok := jsonObject(raw)
	if !ok {
		return ExtractionFailed{Reason: fmt.Errorf("%w: no JSON object in reply %q", ErrExtraction, raw)}
	}

	var fields struct {
		Date      *string `json:"date"`
		StartTime *string `json:"start_time"`
	}
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return ExtractionFailed{Reason: fmt.Errorf("%w: %w", ErrExtraction, err)}
	}
	if fields.Date == nil || fields.StartTime == nil {
		return ExtractionFailed{Reason: fmt.Errorf("%w: reply is missing date or start_time", ErrExtraction)}
	}

	day, err := time.Parse(dateLayout, strings.TrimSpace(*fields.Date))
	if err != nil {
		return ExtractionFailed{Reason: fmt.Errorf("%w: date %q: %w", ErrExtraction, *fields.Date, err)}
	}
	clock, err := time.Parse(clockLayout, strings.TrimSpace(*fields.StartTime))
	if err != nil {
		return ExtractionFailed{Reason: fmt.Errorf("%w: start_time %q: %w", ErrExtraction, *fields.StartTime, err)}
	}
	return Extracted{Date: day.Format(dateLayout), StartTime: clock.Format(clockLayout)}
}

// jsonObject returns the outermost {...} span of s after stripping a
// markdown code fence, if any.
func jsonObject(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(rest), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}
