// Package policy decides which facts may be stored and which may be
// disclosed: type classification, workspace overrides, verification
// gating, and the knowledge-base trim budget.
package policy

import (
	"regexp"
	"strings"

	"recall/internal/facts/models"
)

const (
	// TypeGeneral is the fallback bucket for unclassifiable facts.
	TypeGeneral = "general"

	// KBSentenceLimit and KBCharLimit bound kb_summary facts at read time.
	KBSentenceLimit = 2
	KBCharLimit     = 320
)

// Policy governs one fact type.
type Policy struct {
	FactType      string
	Enabled       bool
	MaxPerSubject int
	Keywords      []string
	Regex         string
}

// Map indexes policies by fact type.
type Map map[string]Policy

// Override is a workspace_fact_policies row merged over the defaults.
type Override struct {
	FactType      string
	Enabled       bool
	MaxPerSubject int
	Keywords      []string
	Regex         string
}

// Defaults returns the built-in policy table. Callers own the copy.
func Defaults() Map {
	defaults := []Policy{
		{FactType: "contact_phone", Enabled: true, MaxPerSubject: 3, Keywords: []string{"phone", "number", "call back"}},
		{FactType: "contact_email", Enabled: true, MaxPerSubject: 3, Keywords: []string{"email", "inbox", "send over"}},
		{FactType: "website", Enabled: true, MaxPerSubject: 3, Keywords: []string{"website", "site", "url"}},
		{FactType: "conversation_recap", Enabled: true, MaxPerSubject: 5, Keywords: []string{"talked", "discussed", "asked about", "call about", "recap"}},
		{FactType: "kb_summary", Enabled: true, MaxPerSubject: 5, Keywords: []string{"feature", "pricing", "plan", "demo outline", "knowledge base"}},
		{FactType: "business_focus", Enabled: true, MaxPerSubject: 5, Keywords: []string{"business", "company", "niche", "industry"}},
		{FactType: "scheduling_preference", Enabled: true, MaxPerSubject: 5, Keywords: []string{"prefer", "available", "schedule", "morning", "afternoon"}},
		{FactType: "integration_interest", Enabled: true, MaxPerSubject: 5, Keywords: []string{"integration", "crm", "twilio", "sip", "api"}},
		{FactType: "budget", Enabled: true, MaxPerSubject: 3, Keywords: []string{"budget", "price", "cost", "spend", "$"}},
		{FactType: "family_detail", Enabled: true, MaxPerSubject: 3, Keywords: []string{"wife", "husband", "spouse", "partner", "daughter", "son", "kid", "family"}},
		{FactType: "pet_details", Enabled: true, MaxPerSubject: 2, Keywords: []string{"dog", "cat", "pet"}},
		{FactType: "hobby_detail", Enabled: true, MaxPerSubject: 3, Keywords: []string{"hobby", "enjoy", "love to", "ride", "golf", "ski", "motorcycle"}},
		{FactType: "vehicle_detail", Enabled: true, MaxPerSubject: 2, Keywords: []string{"car", "truck", "vehicle", "motorcycle", "bike"}},
		{FactType: "address_detail", Enabled: true, MaxPerSubject: 2, Keywords: []string{"address", "street", "road", "avenue", "suite"}},
		{FactType: "payment_history", Enabled: true, MaxPerSubject: 3, Keywords: []string{"invoice", "payment", "charged", "card", "paid"}},
		{FactType: TypeGeneral, Enabled: true, MaxPerSubject: 15},
	}

	m := make(Map, len(defaults))
	for _, p := range defaults {
		m[p.FactType] = p
	}
	return m
}

// Merge layers workspace overrides over the defaults. Override fields left
// empty inherit the default for that type.
func Merge(defaults Map, overrides []Override) Map {
	if len(overrides) == 0 {
		return defaults
	}
	merged := make(Map, len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}
	for _, o := range overrides {
		factType := NormalizeType(o.FactType)
		if factType == "" {
			factType = TypeGeneral
		}
		base := merged[factType]
		p := Policy{
			FactType:      factType,
			Enabled:       o.Enabled,
			MaxPerSubject: o.MaxPerSubject,
			Keywords:      o.Keywords,
			Regex:         o.Regex,
		}
		if p.MaxPerSubject <= 0 {
			p.MaxPerSubject = base.MaxPerSubject
			if p.MaxPerSubject <= 0 {
				p.MaxPerSubject = 10
			}
		}
		if len(p.Keywords) == 0 {
			p.Keywords = base.Keywords
		}
		if p.Regex == "" {
			p.Regex = base.Regex
		}
		merged[factType] = p
	}
	return merged
}

var typeCleaner = regexp.MustCompile(`[^a-z0-9_]+`)

// NormalizeType lowercases a raw type name and collapses everything
// outside [a-z0-9_] to underscores. Empty stays empty.
func NormalizeType(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	return typeCleaner.ReplaceAllString(s, "_")
}

// Allowed reports whether facts of this type may be stored. Unknown types
// are allowed; only an explicit disabled policy blocks.
func (m Map) Allowed(factType string) bool {
	key := factType
	if key == "" {
		key = TypeGeneral
	}
	p, ok := m[key]
	if !ok {
		return true
	}
	return p.Enabled
}

// MaxFor returns the per-subject cap for a type, 0 meaning uncapped.
func (m Map) MaxFor(factType string) int {
	key := factType
	if key == "" {
		key = TypeGeneral
	}
	return m[key].MaxPerSubject
}

var (
	emailClass  = regexp.MustCompile(`@`)
	budgetClass = regexp.MustCompile(`\$\s?\d`)
	urlClass    = regexp.MustCompile(`(?i)https?://|\b[a-z0-9.-]+\.(?:com|net|org|io|ai|co)\b`)
	phoneClass  = regexp.MustCompile(`\+?\d[\d\s\-()]{9,}`)
)

// keyword groups checked in order after the regex classes.
var keywordClasses = []struct {
	factType string
	words    []string
}{
	{"conversation_recap", []string{"discussed", "talked", "recap", "asked about"}},
	{"kb_summary", []string{"knowledge base", "kb summary", "feature rundown", "demo outline"}},
	{"scheduling_preference", []string{"prefer", "available", "schedule"}},
	{"integration_interest", []string{"integration", "crm", "twilio", "sip"}},
	{"family_detail", []string{"wife", "husband", "spouse", "partner", "daughter", "son", "kids", "family"}},
	{"pet_details", []string{"dog", "cat", "pet"}},
	{"hobby_detail", []string{"hobby", "enjoy", "love to", "ride", "golf"}},
	{"vehicle_detail", []string{"car", "truck", "motorcycle", "vehicle", "bike"}},
	{"address_detail", []string{"address", "street", "road", "avenue", "suite"}},
	{"payment_history", []string{"invoice", "payment", "charged", "card", "paid"}},
	{"business_focus", []string{"business", "company", "niche", "industry"}},
}

// Classify infers the fact type from its text. Regex classes win over
// keyword classes; anything unmatched is general.
func Classify(text string) string {
	lower := strings.ToLower(text)

	if emailClass.MatchString(text) {
		return "contact_email"
	}
	if budgetClass.MatchString(text) || strings.Contains(lower, "budget") {
		return "budget"
	}
	if urlClass.MatchString(text) {
		return "website"
	}
	if phoneClass.MatchString(text) || strings.Contains(lower, "phone") {
		return "contact_phone"
	}

	for _, class := range keywordClasses {
		for _, word := range class.words {
			if strings.Contains(lower, word) {
				return class.factType
			}
		}
	}
	return TypeGeneral
}

// ResolveType returns the submitted type normalized, or classifies the
// text when no type was submitted.
func ResolveType(submitted, text string) string {
	if t := NormalizeType(submitted); t != "" {
		return t
	}
	return Classify(text)
}

// FilterForDisclosure gates stored facts behind verification: unverified
// sessions get nothing back, only a count of what they are missing.
func FilterForDisclosure(facts []models.Fact, verified bool) ([]models.Fact, int) {
	if verified {
		return facts, 0
	}
	return []models.Fact{}, len(facts)
}

// FilterSummaries gates call summaries the same way.
func FilterSummaries(summaries []models.CallSummary, verified bool) []models.CallSummary {
	if verified {
		return summaries
	}
	return []models.CallSummary{}
}

// DedupeIncoming drops blank and case-insensitive duplicate facts,
// preserving first-seen order.
func DedupeIncoming(facts []models.IncomingFact) []models.IncomingFact {
	seen := make(map[string]bool, len(facts))
	out := make([]models.IncomingFact, 0, len(facts))
	for _, f := range facts {
		text := strings.TrimSpace(f.Text)
		if text == "" {
			continue
		}
		key := strings.ToLower(text)
		if seen[key] {
			continue
		}
		seen[key] = true
		f.Text = text
		out = append(out, f)
	}
	return out
}

// TrimKnowledgeBase applies the sentence and character budget to
// kb_summary facts at read time; other types pass through.
func TrimKnowledgeBase(facts []models.Fact) []models.Fact {
	for i, f := range facts {
		if NormalizeType(f.Type) != "kb_summary" || f.Text == "" {
			continue
		}
		facts[i].Text = TrimKnowledgeBaseText(f.Text)
	}
	return facts
}

// TrimKnowledgeBaseText keeps the first KBSentenceLimit sentences and at
// most KBCharLimit characters, appending an ellipsis when cut mid-thought.
func TrimKnowledgeBaseText(text string) string {
	normalized := strings.TrimSpace(text)
	if normalized == "" {
		return normalized
	}

	sentences := SplitSentences(normalized)
	if len(sentences) == 0 {
		if len([]rune(normalized)) > KBCharLimit {
			return strings.TrimRight(string([]rune(normalized)[:KBCharLimit]), " ") + "…"
		}
		return normalized
	}

	if len(sentences) > KBSentenceLimit {
		sentences = sentences[:KBSentenceLimit]
	}
	result := strings.Join(sentences, " ")
	if runes := []rune(result); len(runes) > KBCharLimit {
		result = strings.TrimRight(string(runes[:KBCharLimit]), " ")
		if !strings.HasSuffix(result, ".") && !strings.HasSuffix(result, "!") &&
			!strings.HasSuffix(result, "?") && !strings.HasSuffix(result, "…") {
			result += "…"
		}
	}
	return result
}

var sentenceSplit = regexp.MustCompile(`[.!?\n]+`)

// SplitSentences breaks text on sentence punctuation and newlines,
// keeping the terminator on each sentence where one existed.
func SplitSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var sentences []string
	rest := text
	for {
		loc := sentenceSplit.FindStringIndex(rest)
		if loc == nil {
			if s := strings.TrimSpace(rest); s != "" {
				sentences = append(sentences, s)
			}
			return sentences
		}
		if s := strings.TrimSpace(rest[:loc[1]]); s != "" {
			sentences = append(sentences, strings.TrimRight(s, "\n"))
		}
		rest = rest[loc[1]:]
	}
}
