package booking

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// ParseSpelledEmail assembles an address from letter-by-letter speech such as
// "d e v a n s h at g m a i l dot c o m". "at" becomes '@', "dot" becomes '.',
// and a lone letter or digit becomes itself. Every other token is skipped.
//
// The function is total: it never fails, and the result may be empty or
// malformed. Use [ValidEmail] before acting on it.
func ParseSpelledEmail(text string) string {
	var b strings.Builder
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		switch {
		case tok == "at":
			b.WriteByte('@')
		case tok == "dot":
			b.WriteByte('.')
		case utf8.RuneCountInString(tok) == 1:
			r, _ := utf8.DecodeRuneInString(tok)
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// normalizeSpelling prepares a recognizer transcript for [ParseSpelledEmail].
// Recognizers punctuate their output ("D, E, V. At gmail dot com."), so
// every rune that is not a letter, digit or space becomes a space. A literal
// '@' becomes the word "at".
func normalizeSpelling(text string) string {
	text = strings.ReplaceAll(strings.ToLower(text), "@", " at ")
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, text)
}

// ValidEmail reports whether s looks like a deliverable address: an allowed
// local part, '@', at least one dotted domain label, and a top-level label of
// two or more letters.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}
