package booking

import "strings"

// DefaultKeywords is the vocabulary that marks an utterance as a booking request.
var DefaultKeywords = []string{"book", "schedule", "appointment", "meeting", "set up"}

// HasBookingIntent reports whether text contains any of keywords,
// case-insensitively. Matching is by substring, so "booking" and
// "rescheduling" also count.
func HasBookingIntent(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
