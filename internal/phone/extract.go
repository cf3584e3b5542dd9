// Package phone locates US-style phone numbers in noisy OCR text.
//
// Recognizers frequently report digit-shaped glyphs as letters (5/S, 0/O,
// 1/I/l, 8/B). The shape pattern therefore accepts word characters, not just
// digits, and validity is enforced afterwards: every character of the match
// must land in the allowed alphabet, directly or through at most two
// confusion-table substitutions.
//
// All functions are pure and safe for concurrent use.
package phone

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// shapePattern matches, among others:
//
//	xxx-xxx-xxxx
//	xxx xxx xxxx
//	(xxx) xxx-xxxx
//	xxx.xxx.xxxx
//	+1-xxx-xxx-xxxx
//
// Parts, in order: optional +1 prefix with optional hyphen, optional "(",
// three word characters, optional ")", optional separator, three word
// characters, optional separator, four word characters.
var shapePattern = regexp.MustCompile(
	`(?:\+1-?)?` +
		`\(?` +
		`\b(\w{3})` +
		`\)?` +
		`[ ./-]?` +
		`(\w{3})` +
		`[ ./-]?` +
		`(\w{4})\b`,
)

// numberLength is the length of a North American number without country code.
const numberLength = 10

// Outcome classifies the result of a [Classify] call.
type Outcome int

const (
	// OutcomeMatched means a corrected 10-character candidate was produced.
	OutcomeMatched Outcome = iota

	// OutcomeNoShapeMatch means the text contains nothing shaped like a
	// phone number.
	OutcomeNoShapeMatch

	// OutcomeUnresolvable means a shape matched but at least one character
	// could not be coerced into the allowed alphabet, or the groups did not
	// add up to 10 characters.
	OutcomeUnresolvable
)

// String returns the metric label for o.
func (o Outcome) String() string {
	switch o {
	case OutcomeMatched:
		return "matched"
	case OutcomeNoShapeMatch:
		return "no_shape_match"
	case OutcomeUnresolvable:
		return "unresolvable"
	default:
		return "unknown"
	}
}

// Candidate is a normalised phone number proposed by [Extract].
type Candidate struct {
	// Number is the corrected 10-character string, drawn only from
	// 0-9, "(", ")", "-" and "_". It is not formatted.
	Number string

	// Start and End are the byte offsets of the whole shape match in the
	// source text. Only callers that highlight the match need them.
	Start, End int
}

// Extract returns the first phone-number candidate found in text. ok is false
// when nothing usable was found.
func Extract(text string) (c Candidate, ok bool) {
	c, outcome := Classify(text)
	return c, outcome == OutcomeMatched
}

// Classify behaves like [Extract] but reports why extraction failed.
func Classify(text string) (Candidate, Outcome) {
	m := shapePattern.FindStringSubmatchIndex(text)
	if m == nil {
		return Candidate{}, OutcomeNoShapeMatch
	}

	var raw strings.Builder
	for g := 1; g <= 3; g++ {
		start, end := m[2*g], m[2*g+1]
		if start < 0 {
			continue
		}
		raw.WriteString(text[start:end])
	}
	if utf8.RuneCountInString(raw.String()) != numberLength {
		return Candidate{}, OutcomeUnresolvable
	}

	var out strings.Builder
	out.Grow(numberLength)
	for _, r := range raw.String() {
		fixed, ok := resolve(r)
		if !ok {
			return Candidate{}, OutcomeUnresolvable
		}
		out.WriteRune(fixed)
	}

	return Candidate{Number: out.String(), Start: m[0], End: m[1]}, OutcomeMatched
}
