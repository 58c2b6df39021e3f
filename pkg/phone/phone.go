// Package phone normalizes caller phone numbers to strict E.164 for use as
// identity material. Numbers that cannot be normalized yield the empty
// string so callers fall through to other identifiers.
package phone

import (
	"regexp"
	"strings"
)

// Placeholder is the all-zero number some telephony providers send when the
// caller ID is withheld. It must never become an identity.
const Placeholder = "+10000000000"

var digitsOnly = regexp.MustCompile(`^[0-9]+$`)

// Result reports the outcome of validating a raw phone input.
type Result struct {
	Input      string `json:"input"`
	Normalized string `json:"normalized,omitempty"`
	Valid      bool   `json:"valid"`
	Reason     string `json:"reason,omitempty"`
}

// Normalize converts a raw phone string to E.164, or "" if it cannot.
// Ten-digit inputs are assumed to be NANP and get a +1 prefix. The withheld
// caller placeholder normalizes to "".
func Normalize(raw string) string {
	r := Validate(raw)
	if !r.Valid {
		return ""
	}
	return r.Normalized
}

// Validate normalizes and classifies a raw phone input.
func Validate(raw string) Result {
	res := Result{Input: raw}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		res.Reason = "empty"
		return res
	}

	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.', '\t':
			return -1
		}
		return r
	}, trimmed)

	hasPlus := strings.HasPrefix(cleaned, "+")
	digits := strings.TrimPrefix(cleaned, "+")
	if digits == "" || !digitsOnly.MatchString(digits) {
		res.Reason = "not_a_number"
		return res
	}

	var e164 string
	switch {
	case hasPlus:
		e164 = "+" + digits
	case len(digits) == 10:
		// NANP without country code.
		e164 = "+1" + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		e164 = "+" + digits
	default:
		res.Reason = "missing_country_code"
		return res
	}

	if e164 == Placeholder {
		res.Reason = "placeholder"
		return res
	}
	if n := len(e164); n < 9 || n > 16 {
		res.Reason = "bad_length"
		return res
	}

	res.Normalized = e164
	res.Valid = true
	return res
}
