package phone_test

import (
	"testing"

	"github.com/MrWong99/phonescan/internal/phone"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{name: "plain hyphenated", text: "Call 555-123-4567 now", want: "5551234567", wantOK: true},
		{name: "one and two hop corrections", text: "call 5S5-l23-4567", want: "5551234567", wantOK: true},
		{name: "parenthesised area code", text: "(555) 123-4567", want: "5551234567", wantOK: true},
		{name: "international prefix", text: "+1-555-123-4567", want: "5551234567", wantOK: true},
		{name: "dots", text: "tel 555.123.4567", want: "5551234567", wantOK: true},
		{name: "slash separator", text: "555/123/4567", want: "5551234567", wantOK: true},
		{name: "no separators", text: "5551234567", want: "5551234567", wantOK: true},
		{name: "spaces", text: "555 123 4567", want: "5551234567", wantOK: true},
		{name: "lowercase s and o chains", text: "sss-ooo-QQQQ", want: "5550000000", wantOK: true},
		{name: "B reads as 8", text: "555-B23-4567", want: "5558234567", wantOK: true},
		{name: "underscores are allowed", text: "___-___-____", want: "__________", wantOK: true},
		{name: "unresolvable letter", text: "555-12x-4567", wantOK: false},
		{name: "lowercase b has no entry", text: "555-123-456b", wantOK: false},
		{name: "plain words", text: "hello world", wantOK: false},
		{name: "empty", text: "", wantOK: false},
		{name: "too short", text: "555-1234", wantOK: false},
		{name: "digit run too long", text: "5551234567890", wantOK: false},
		{name: "double separator", text: "555 / 123.4567", wantOK: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := phone.Extract(tc.text)
			if ok != tc.wantOK {
				t.Fatalf("Extract(%q) ok = %v, want %v (number %q)", tc.text, ok, tc.wantOK, got.Number)
			}
			if got.Number != tc.want {
				t.Errorf("Extract(%q) = %q, want %q", tc.text, got.Number, tc.want)
			}
		})
	}
}

// Word characters and boundaries are ASCII-only, so letters outside ASCII
// act as separators next to a number.
func TestExtract_NonASCIINeighbours(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"é555-123-4567", "555-123-4567ß", "Tél:555.123.4567"} {
		c, ok := phone.Extract(text)
		if !ok || c.Number != "5551234567" {
			t.Errorf("Extract(%q) = %q, %v; want 5551234567, true", text, c.Number, ok)
		}
	}
	if _, ok := phone.Extract("x555-123-4567"); ok {
		t.Error(`Extract("x555-123-4567") matched an ASCII letter run`)
	}
}

func TestExtract_Span(t *testing.T) {
	t.Parallel()

	text := "Call 555-123-4567 now"
	c, ok := phone.Extract(text)
	if !ok {
		t.Fatalf("Extract(%q): ok = false", text)
	}
	if c.Start != 5 || c.End != 17 {
		t.Errorf("span = [%d, %d), want [5, 17)", c.Start, c.End)
	}
	if got := text[c.Start:c.End]; got != "555-123-4567" {
		t.Errorf("matched text = %q, want %q", got, "555-123-4567")
	}
}

func TestExtract_FirstMatchWins(t *testing.T) {
	t.Parallel()

	c, ok := phone.Extract("555-123-4567 or 555-987-6543")
	if !ok {
		t.Fatal("ok = false, want true")
	}
	if c.Number != "5551234567" {
		t.Errorf("Number = %q, want first number %q", c.Number, "5551234567")
	}
}

func TestExtract_FirstShapeUnresolvable(t *testing.T) {
	t.Parallel()

	// Only the first shape match is considered even when a later one would
	// have been valid.
	if c, ok := phone.Extract("abc-def-ghij then 555-123-4567"); ok {
		t.Errorf("Extract() = %q, want no candidate", c.Number)
	}
}

func TestExtract_Idempotent(t *testing.T) {
	t.Parallel()

	text := "call 5S5-l23-4567"
	first, ok1 := phone.Extract(text)
	second, ok2 := phone.Extract(text)
	if first != second || ok1 != ok2 {
		t.Errorf("Extract not idempotent: (%+v, %v) vs (%+v, %v)", first, ok1, second, ok2)
	}
}

func TestClassify_Outcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want phone.Outcome
	}{
		{"Call 555-123-4567", phone.OutcomeMatched},
		{"nothing to see", phone.OutcomeNoShapeMatch},
		{"555-12x-4567", phone.OutcomeUnresolvable},
	}
	for _, tc := range tests {
		_, got := phone.Classify(tc.text)
		if got != tc.want {
			t.Errorf("Classify(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestOutcome_String(t *testing.T) {
	t.Parallel()

	if got := phone.OutcomeNoShapeMatch.String(); got != "no_shape_match" {
		t.Errorf("String() = %q, want %q", got, "no_shape_match")
	}
	if got := phone.Outcome(42).String(); got != "unknown" {
		t.Errorf("String() = %q, want %q", got, "unknown")
	}
}

func TestConfusable_Directional(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     rune
		want   rune
		wantOK bool
	}{
		{'s', 'S', true},
		{'S', '5', true},
		{'5', 'S', true},
		{'O', '0', true},
		{'0', 'O', true},
		{'l', 'I', true},
		{'I', '1', true},
		{'1', 'I', true},
		{'B', '8', true},
		{'8', 'B', true},
		{'Q', 'O', true},
		{'o', 'O', true},
		// No inverse entries.
		{'x', 0, false},
		{'b', 0, false},
	}
	for _, tc := range tests {
		got, ok := phone.Confusable(tc.in)
		if ok != tc.wantOK || got != tc.want {
			t.Errorf("Confusable(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}
