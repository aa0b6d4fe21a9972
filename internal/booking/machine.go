// Package booking implements the receptionist's dialogue: free conversation
// about the business, and a three-stage slot-filling flow that books a
// calendar appointment.
//
// The [Machine] owns a single [ConversationState] and advances it one
// utterance at a time through [Machine.Dispatch]. Every collaborator call
// (language model, calendar) is fallible; each failure maps to a spoken
// recovery reply so that Dispatch always produces a [Turn] and never returns
// an error.
//
// A Machine is not safe for concurrent use. The turn loop that owns it is the
// only caller.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/frontdesk/pkg/provider/calendar"
	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	"github.com/MrWong99/frontdesk/pkg/types"
)

// Stage is the position in the booking flow.
type Stage int

const (
	StageIdle Stage = iota
	StageAwaitingDateTime
	StageAwaitingEmail
)

// String returns the stage name as used in logs, metrics, and the ledger.
func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "IDLE"
	case StageAwaitingDateTime:
		return "AWAITING_DATETIME"
	case StageAwaitingEmail:
		return "AWAITING_EMAIL"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Slots is the in-progress appointment. Date and StartTime are filled
// together, then AttendeeEmail. The zero value is an empty record.
type Slots struct {
	Date            string
	StartTime       string
	DurationMinutes int
	AttendeeEmail   string
}

// IsZero reports whether no slot is set.
func (s Slots) IsZero() bool { return s == Slots{} }

// ConversationState is everything the dialogue remembers between turns.
type ConversationState struct {
	// History is the ordered chat log sent to the model. The first entry is
	// the system prompt.
	History []types.Message

	Stage Stage
	Slots Slots

	// Attempts counts consecutive failed answers in the current stage.
	Attempts int
}

// NewConversationState returns an idle state whose history holds only
// systemPrompt.
func NewConversationState(systemPrompt string) *ConversationState {
	return &ConversationState{
		History: []types.Message{{Role: types.RoleSystem, Content: systemPrompt}},
		Stage:   StageIdle,
	}
}

func (s *ConversationState) reset() {
	s.Stage = StageIdle
	s.Slots = Slots{}
	s.Attempts = 0
}

func (s *ConversationState) say(role types.Role, content string) {
	s.History = append(s.History, types.Message{Role: role, Content: content})
}

// Outcome classifies how a booking attempt ended.
type Outcome string

const (
	OutcomeNone           Outcome = ""
	OutcomeScheduled      Outcome = "scheduled"
	OutcomeScheduleFailed Outcome = "schedule_failed"
	OutcomeAbandoned      Outcome = "abandoned"
)

// Attempt describes a booking that reached a terminal outcome.
type Attempt struct {
	Date      string
	StartTime string
	Start     string
	End       string
	Email     string
	Link      string
	Outcome   Outcome
	Err       error
}

// Turn is the result of dispatching one utterance.
type Turn struct {
	Utterance string

	// Reply is the text to speak. Empty only for a dropped utterance.
	Reply string

	From, To Stage

	// Outcome is set when this turn ended a booking attempt.
	Outcome Outcome

	// Attempt is non-nil whenever Outcome is set.
	Attempt *Attempt
}

// GenParams are per-request generation settings.
type GenParams struct {
	Temperature float64
	MaxTokens   int
}

// Config tunes the Machine.
type Config struct {
	Keywords        []string
	DurationMinutes int
	TimeZone        string
	Summary         string
	Rollover        Rollover

	// MaxDateTimeAttempts and MaxEmailAttempts bound consecutive failed answers
	// per stage. The attempt that reaches the limit abandons the booking.
	// Zero means unlimited.
	MaxDateTimeAttempts int
	MaxEmailAttempts    int

	Reply      GenParams
	Extraction GenParams
}

// DefaultConfig returns the settings of a stock BuildABrand receptionist.
func DefaultConfig() Config {
	return Config{
		Keywords:        append([]string(nil), DefaultKeywords...),
		DurationMinutes: 30,
		TimeZone:        "Asia/Kolkata",
		Summary:         "Meeting with " + DefaultBusinessName,
		Rollover:        RolloverSameDate,
		Reply:           GenParams{Temperature: 0.7, MaxTokens: 100},
		Extraction:      GenParams{Temperature: 0.0, MaxTokens: 50},
	}
}

// Option is a functional option for NewMachine.
type Option func(*Machine)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(m *Machine) { m.cfg = cfg }
}

// WithState resumes from an existing state instead of a fresh one.
func WithState(s *ConversationState) Option {
	return func(m *Machine) { m.state = s }
}

// WithSystemPrompt seeds a fresh state with prompt. Ignored with [WithState].
func WithSystemPrompt(prompt string) Option {
	return func(m *Machine) { m.systemPrompt = prompt }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// Machine drives the booking dialogue.
type Machine struct {
	llm          llm.Provider
	scheduler    calendar.Scheduler
	extractor    *Extractor
	cfg          Config
	state        *ConversationState
	systemPrompt string
	log          *slog.Logger
}

// NewMachine builds a Machine over the given collaborators.
func NewMachine(model llm.Provider, scheduler calendar.Scheduler, opts ...Option) (*Machine, error) {
	if model == nil {
		return nil, errors.New("booking: llm provider is required")
	}
	if scheduler == nil {
		return nil, errors.New("booking: scheduler is required")
	}
	m := &Machine{
		llm:       model,
		scheduler: scheduler,
		cfg:       DefaultConfig(),
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	if m.cfg.DurationMinutes <= 0 {
		return nil, fmt.Errorf("booking: duration must be positive, got %d", m.cfg.DurationMinutes)
	}
	if len(m.cfg.Keywords) == 0 {
		return nil, errors.New("booking: at least one intent keyword is required")
	}
	if m.state == nil {
		prompt := m.systemPrompt
		if prompt == "" {
			prompt = DefaultSystemPrompt(DefaultBusinessName)
		}
		m.state = NewConversationState(prompt)
	}
	m.extractor = NewExtractor(model, m.cfg.Extraction)
	return m, nil
}

// State returns the live conversation state. Callers must not modify it
// while the Machine is in use.
func (m *Machine) State() *ConversationState { return m.state }

// Dispatch advances the dialogue by one utterance. Blank text is a
// recognition gap: no reply, no state change.
func (m *Machine) Dispatch(ctx context.Context, text string) Turn {
	text = strings.TrimSpace(text)
	t := Turn{Utterance: text, From: m.state.Stage}
	if text == "" {
		t.To = t.From
		return t
	}

	switch m.state.Stage {
	case StageAwaitingDateTime:
		m.onDateTime(ctx, &t)
	case StageAwaitingEmail:
		m.onEmail(ctx, &t)
	default:
		m.onIdle(ctx, &t)
	}

	t.To = m.state.Stage
	if t.From != t.To {
		m.log.Info("booking stage transition", "from", t.From.String(), "to", t.To.String())
	}
	return t
}

func (m *Machine) onIdle(ctx context.Context, t *Turn) {
	s := m.state
	s.say(types.RoleUser, t.Utterance)
	t.Reply = m.generateOr(ctx, s.History, generationDown)
	s.say(types.RoleAssistant, t.Reply)

	if HasBookingIntent(t.Utterance, m.cfg.Keywords) {
		s.Stage = StageAwaitingDateTime
		s.Attempts = 0
	}
}

func (m *Machine) onDateTime(ctx context.Context, t *Turn) {
	s := m.state
	switch ex := m.extractor.Extract(ctx, t.Utterance).(type) {
	case Extracted:
		s.Slots = Slots{Date: ex.Date, StartTime: ex.StartTime, DurationMinutes: m.cfg.DurationMinutes}
		s.Stage = StageAwaitingEmail
		s.Attempts = 0
		t.Reply = emailPrompt(ex.Date, ex.StartTime)
		s.say(types.RoleUser, t.Utterance)
		s.say(types.RoleAssistant, t.Reply)

	case ExtractionFailed:
		m.log.Info("booking: could not extract date/time", "err", ex.Reason)
		s.say(types.RoleUser, t.Utterance)
		s.Attempts++
		if m.exhausted(m.cfg.MaxDateTimeAttempts) {
			m.abandon(t)
			return
		}
		hinted := append(s.History[:len(s.History):len(s.History)], types.Message{Role: types.RoleAssistant, Content: dateTimeHint})
		t.Reply = m.generateOr(ctx, hinted, dateTimeHint)
		s.say(types.RoleAssistant, t.Reply)
	}
}

func (m *Machine) onEmail(ctx context.Context, t *Turn) {
	s := m.state
	s.say(types.RoleUser, t.Utterance)

	email := ParseSpelledEmail(normalizeSpelling(t.Utterance))
	if !ValidEmail(email) {
		m.log.Info("booking: rejected spelled email", "parsed", email)
		s.Attempts++
		if m.exhausted(m.cfg.MaxEmailAttempts) {
			m.abandon(t)
			return
		}
		t.Reply = invalidEmail
		s.say(types.RoleAssistant, t.Reply)
		return
	}
	s.Slots.AttendeeEmail = email

	slots := s.Slots
	attempt := &Attempt{Date: slots.Date, StartTime: slots.StartTime, Email: email}
	t.Attempt = attempt

	start, end, err := EventWindow(slots.Date, slots.StartTime, slots.DurationMinutes, m.cfg.Rollover)
	if err == nil {
		attempt.Start, attempt.End = start, end
		attempt.Link, err = m.scheduler.CreateEvent(ctx, calendar.Event{
			Summary:   m.cfg.Summary,
			Start:     start,
			End:       end,
			TimeZone:  m.cfg.TimeZone,
			Attendees: []string{email},
		})
	}
	if err != nil {
		m.log.Warn("booking: failed to create calendar event", "err", err)
		attempt.Outcome, attempt.Err = OutcomeScheduleFailed, err
		t.Outcome = OutcomeScheduleFailed
		t.Reply = scheduleFailed
		s.say(types.RoleAssistant, t.Reply)
		s.reset()
		return
	}

	attempt.Outcome = OutcomeScheduled
	t.Outcome = OutcomeScheduled
	s.say(types.RoleUser, bookingFacts(slots.Date, slots.StartTime, email, attempt.Link))
	hinted := append(s.History[:len(s.History):len(s.History)], types.Message{Role: types.RoleAssistant, Content: confirmHint})
	t.Reply = m.generateOr(ctx, hinted, fallbackConfirmation(slots.Date, slots.StartTime, email))
	s.say(types.RoleAssistant, t.Reply)
	s.reset()
}

func (m *Machine) exhausted(limit int) bool {
	return limit > 0 && m.state.Attempts >= limit
}

// abandon ends the current attempt after too many failed answers. The user
// utterance must already be in the history.
func (m *Machine) abandon(t *Turn) {
	s := m.state
	m.log.Info("booking: giving up after repeated failed answers", "stage", s.Stage.String(), "attempts", s.Attempts)
	t.Reply = giveUp
	t.Outcome = OutcomeAbandoned
	t.Attempt = &Attempt{
		Date:      s.Slots.Date,
		StartTime: s.Slots.StartTime,
		Outcome:   OutcomeAbandoned,
	}
	s.say(types.RoleAssistant, t.Reply)
	s.reset()
}

// generateOr asks the model for a reply to msgs and returns fallback if the
// call fails or the reply is blank.
func (m *Machine) generateOr(ctx context.Context, msgs []types.Message, fallback string) string {
	resp, err := m.llm.Complete(ctx, llm.CompletionRequest{
		Messages:    msgs,
		Temperature: m.cfg.Reply.Temperature,
		MaxTokens:   m.cfg.Reply.MaxTokens,
	})
	if err != nil {
		m.log.Warn("booking: reply generation failed", "err", err)
		return fallback
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		m.log.Warn("booking: reply generation returned empty content")
		return fallback
	}
	return reply
}
