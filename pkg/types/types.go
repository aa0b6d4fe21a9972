// Package types defines the small set of values shared between the providers,
// the booking machine, and the turn loop.
//
// Each package owns its own domain types; only data that crosses package
// boundaries in both directions lives here to avoid import cycles.
package types

import "time"

// Role identifies the author of a [Message] in a chat history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid reports whether r is one of the three recognised roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is one entry of the ordered conversation history sent to a
// language model.
type Message struct {
	// Role is the author of the message.
	Role Role

	// Content is the message text.
	Content string
}

// Utterance is the recognised text of one finalized speech segment.
// Utterances are values; nothing downstream of the segmenter mutates them.
type Utterance struct {
	// Text is the recognised speech with surrounding whitespace removed.
	Text string

	// At is the wall-clock time the decoder finalized the segment.
	At time.Time

	// Audio is the amount of captured audio fed to the decoder for this segment.
	Audio time.Duration
}
