// Package extract pulls an X handle and a confidence level out of free-form
// response text. Rules are evaluated in slice order and the first match wins.
package extract

import (
	"regexp"
	"strings"

	"wallet-x-search/internal/model"
)

// HandleRule is one prioritised pattern whose first capture group is the handle.
type HandleRule struct {
	Name    string
	Pattern *regexp.Regexp
}

// ConfidenceRule maps a pattern to the level it implies.
type ConfidenceRule struct {
	Level   model.Confidence
	Pattern *regexp.Regexp
}

// ExplicitRule captures a level word that is resolved through Synonyms.
type ExplicitRule struct {
	Name    string
	Pattern *regexp.Regexp
}

var validHandle = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// HandleRules are tried in order.
var HandleRules = []HandleRule{
	{Name: "username", Pattern: regexp.MustCompile(`(?i)username\s*:\s*@?([A-Za-z0-9_]{1,15})\b`)},
	{Name: "mention", Pattern: regexp.MustCompile(`(?:^|[^A-Za-z0-9_@])@([A-Za-z0-9_]{1,15})\b`)},
	{Name: "handle", Pattern: regexp.MustCompile(`(?i)handle\s*:\s*@?([A-Za-z0-9_]{1,15})\b`)},
	{Name: "twitter", Pattern: regexp.MustCompile(`(?i)twitter\s*:\s*@?([A-Za-z0-9_]{1,15})\b`)},
}

// ConfidenceKeywordRules are scanned against lower-cased text, High first.
var ConfidenceKeywordRules = []ConfidenceRule{
	{Level: model.ConfidenceHigh, Pattern: regexp.MustCompile(`\b(high|strong|clear|definite|certain)\b`)},
	{Level: model.ConfidenceMedium, Pattern: regexp.MustCompile(`\b(medium|moderate|somewhat|partial)\b`)},
	{Level: model.ConfidenceLow, Pattern: regexp.MustCompile(`\b(low|weak|minimal|uncertain)\b`)},
	{Level: model.ConfidenceNone, Pattern: regexp.MustCompile(`\b(none|no|false|not found)\b`)},
}

// ExplicitConfidenceRules are the "confidence: <level>" fallbacks.
var ExplicitConfidenceRules = []ExplicitRule{
	{Name: "confidence", Pattern: regexp.MustCompile(`confidence[:\s]+(high|medium|low|none)`)},
	{Name: "confidence_synonym", Pattern: regexp.MustCompile(`confidence[:\s]+(strong|moderate|weak|none)`)},
	{Name: "level", Pattern: regexp.MustCompile(`level[:\s]+(high|medium|low|none)`)},
}

// Synonyms resolves level words captured by ExplicitConfidenceRules.
var Synonyms = map[string]model.Confidence{
	"high":     model.ConfidenceHigh,
	"strong":   model.ConfidenceHigh,
	"medium":   model.ConfidenceMedium,
	"moderate": model.ConfidenceMedium,
	"low":      model.ConfidenceLow,
	"weak":     model.ConfidenceLow,
	"none":     model.ConfidenceNone,
}

// Handle returns the first validly shaped handle found by HandleRules,
// without the leading "@".
func Handle(text string) (string, bool) {
	for _, rule := range HandleRules {
		for _, m := range rule.Pattern.FindAllStringSubmatch(text, -1) {
			if len(m) > 1 && validHandle.MatchString(m[1]) {
				return m[1], true
			}
		}
	}
	return "", false
}

// Confidence returns the level implied by text. Keyword families are checked
// before explicit "confidence:" patterns.
func Confidence(text string) (model.Confidence, bool) {
	lower := strings.ToLower(text)
	for _, rule := range ConfidenceKeywordRules {
		if rule.Pattern.MatchString(lower) {
			return rule.Level, true
		}
	}
	for _, rule := range ExplicitConfidenceRules {
		m := rule.Pattern.FindStringSubmatch(lower)
		if len(m) < 2 {
			continue
		}
		if level, ok := Synonyms[m[1]]; ok {
			return level, true
		}
	}
	return model.ConfidenceNone, false
}
