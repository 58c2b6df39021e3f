// Package email validates and normalizes email addresses used as subject
// identities, and derives display names from the local part.
package email

import (
	"regexp"
	"strings"
	"unicode"
)

var addressPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)

// Domains we suggest corrections toward when the input is one edit away.
var commonDomains = []string{
	"gmail.com",
	"yahoo.com",
	"hotmail.com",
	"outlook.com",
	"icloud.com",
	"aol.com",
	"proton.me",
}

// Result reports the outcome of validating a raw email input.
type Result struct {
	Input      string `json:"input"`
	Normalized string `json:"normalized,omitempty"`
	Valid      bool   `json:"valid"`
	Reason     string `json:"reason,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Normalize lowercases and trims an email, returning "" when invalid.
func Normalize(raw string) string {
	r := Validate(raw)
	if !r.Valid {
		return ""
	}
	return r.Normalized
}

// Validate normalizes a raw email and, for near-miss domains, proposes a
// corrected address without applying it.
func Validate(raw string) Result {
	res := Result{Input: raw}

	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		res.Reason = "empty"
		return res
	}
	if !addressPattern.MatchString(normalized) {
		res.Reason = "malformed"
		return res
	}

	res.Normalized = normalized
	res.Valid = true

	at := strings.LastIndexByte(normalized, '@')
	domain := normalized[at+1:]
	for _, known := range commonDomains {
		if domain == known {
			return res
		}
	}
	for _, known := range commonDomains {
		// Distance 2 catches transpositions like gmial.com.
		if len(domain) >= 5 && levenshtein(domain, known) <= 2 {
			res.Suggestion = normalized[:at+1] + known
			break
		}
	}
	return res
}

// DeriveNameFromEmail splits the local part into a first/last name pair,
// falling back to "User" when nothing usable remains.
func DeriveNameFromEmail(email string) (string, string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "User", "User"
	}

	first := capitalize(parts[0])
	last := "User"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
