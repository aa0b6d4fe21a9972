package booking

import "testing"

func TestParseSpelledEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"canonical", "d e v a n s h at g m a i l dot c o m", "devansh@gmail.com"},
		{"digits", "j o h n 4 2 at x dot i o", "john42@x.io"},
		{"filler skipped", "d e v underscore a n s h at g m a i l dot c o m", "devansh@gmail.com"},
		{"filler words around", "um my email is a at b dot c o thanks", "a@b.co"},
		{"uppercase normalised", "D E V AT G M A I L DOT C O M", "dev@gmail.com"},
		{"punctuation token skipped", "a - b at c dot d e", "ab@c.de"},
		{"only fillers", "hello there", ""},
		{"empty", "", ""},
		{"extra whitespace", "  a   at  b  dot  c o  ", "a@b.co"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ParseSpelledEmail(tt.in); got != tt.want {
				t.Errorf("ParseSpelledEmail(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseSpelledEmail_FillerDoesNotShiftNeighbours(t *testing.T) {
	t.Parallel()

	base := "a b at c dot d e"
	withFiller := "a banana b at c potato dot d e"
	if ParseSpelledEmail(base) != ParseSpelledEmail(withFiller) {
		t.Errorf("filler changed output: %q vs %q", ParseSpelledEmail(base), ParseSpelledEmail(withFiller))
	}
}

func TestValidEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"devansh@gmail.com", true},
		{"first.last+tag@sub.example.co", true},
		{"devanshgmail.com", false},
		{"devansh@gmailcom", false},
		{"devansh@gmail.c", false},
		{"@gmail.com", false},
		{"", false},
		{"dev ansh@gmail.com", false},
	}
	for _, tt := range tests {
		if got := ValidEmail(tt.in); got != tt.want {
			t.Errorf("ValidEmail(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseSpelledEmail_RecognizerPunctuation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trailing full stop", "D E V A N S H at G M A I L dot C O M.", "devansh@gmail.com"},
		{"comma separated", "D, E, V, A, N, S, H, at G, M, A, I, L, dot C, O, M.", "devansh@gmail.com"},
		{"hyphenated letters", "D-E-V at X dot I-O!", "dev@x.io"},
		{"literal at sign", "a b@c dot d e", "ab@c.de"},
		{"question mark", "Is it j o at x dot c o?", "jo@x.co"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ParseSpelledEmail(normalizeSpelling(tt.in)); got != tt.want {
				t.Errorf("ParseSpelledEmail(normalizeSpelling(%q)) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
