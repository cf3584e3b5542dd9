// Package display turns a stable candidate into something a person can read.
//
// Candidates are normalised but unformatted 10-character strings that may
// still contain "(", ")", "-" or "_". Formatting and numbering-plan
// validation use the libphonenumber port for region US.
package display

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Region is the numbering region every candidate is parsed in.
const Region = "US"

// Formatted is a candidate prepared for presentation.
type Formatted struct {
	// Raw is the candidate as reported.
	Raw string `json:"raw"`

	// Digits is Raw with everything but 0-9 removed.
	Digits string `json:"digits"`

	// National is the human-readable form, e.g. "(650) 253-0000". Falls back
	// to Raw when the candidate cannot be parsed.
	National string `json:"national"`

	// E164 is the international form, e.g. "+16502530000". Empty unless
	// Valid.
	E164 string `json:"e164,omitempty"`

	// Valid reports whether the number is assignable under the North
	// American Numbering Plan. Fictional 555 numbers are not.
	Valid bool `json:"valid"`
}

// Format prepares candidate for presentation. It never fails: an unparsable
// candidate is returned with Valid false and National set to Raw.
func Format(candidate string) Formatted {
	f := Formatted{Raw: candidate, Digits: digitsOnly(candidate), National: candidate}
	if len(f.Digits) != 10 {
		return f
	}

	num, err := phonenumbers.Parse(f.Digits, Region)
	if err != nil {
		return f
	}
	f.National = phonenumbers.Format(num, phonenumbers.NATIONAL)
	if phonenumbers.IsValidNumber(num) {
		f.Valid = true
		f.E164 = phonenumbers.Format(num, phonenumbers.E164)
	}
	return f
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
