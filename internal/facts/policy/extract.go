package policy

import (
	"regexp"
	"strings"

	"recall/internal/facts/models"
	phonepkg "recall/pkg/phone"
)

// extractLimit caps how many facts one transcript may yield.
const extractLimit = 25

var (
	emailExtract  = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
	phoneExtract  = regexp.MustCompile(`\+?\d[\d\-()\s]{9,}`)
	urlExtract    = regexp.MustCompile(`(?i)https?://\S+|\b[a-z0-9.-]+\.(?:com|net|org|io|ai|co)\b`)
	budgetExtract = regexp.MustCompile(`\$\s?\d[\d,]*`)
)

// ExtractFromTranscript pulls structured facts out of a raw transcript:
// emails, phone numbers, URLs, and budget mentions. Freeform sentence
// grabbing is deliberately absent; it stored agent dialogue as facts.
func ExtractFromTranscript(transcript string, policies Map) []models.IncomingFact {
	var results []models.IncomingFact
	seen := make(map[string]bool)

	push := func(text, factType string, confidence float64) {
		text = strings.TrimSpace(text)
		if text == "" || len(results) >= extractLimit {
			return
		}
		key := factType + "::" + strings.ToLower(text)
		if seen[key] {
			return
		}
		seen[key] = true
		if !policies.Allowed(factType) {
			return
		}
		results = append(results, models.IncomingFact{Text: text, Type: factType, Confidence: confidence})
	}

	if policies.Allowed("contact_email") {
		for _, match := range emailExtract.FindAllString(transcript, -1) {
			push(strings.ToLower(match), "contact_email", 0.9)
		}
	}

	if policies.Allowed("contact_phone") {
		for _, match := range phoneExtract.FindAllString(transcript, -1) {
			if normalized := phonepkg.Normalize(match); normalized != "" {
				push(normalized, "contact_phone", 0.85)
			}
		}
	}

	if policies.Allowed("website") {
		for _, match := range urlExtract.FindAllString(transcript, -1) {
			push(match, "website", 0.82)
		}
	}

	if policies.Allowed("budget") {
		for _, match := range budgetExtract.FindAllString(transcript, -1) {
			push("Budget mentioned: "+match, "budget", 0.8)
		}
	}

	return results
}
