package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"wallet-x-search/internal/model"
)

func TestHandle(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{name: "username label", text: "Username: @abcXYZ_1 posted it", want: "abcXYZ_1", ok: true},
		{name: "no handle", text: "no handle mentioned here"},
		{name: "bare mention", text: "it was posted by @holder99 in a thread", want: "holder99", ok: true},
		{name: "handle label", text: "Handle: crypto_dev", want: "crypto_dev", ok: true},
		{name: "twitter label", text: "twitter: @satoshi", want: "satoshi", ok: true},
		{name: "username wins over mention", text: "see @other. Username: @first", want: "first", ok: true},
		{name: "email is not a mention", text: "contact me at owner@example.com"},
		{name: "overlong handle rejected", text: "@abcdefghijklmnopqrstuvwxyz"},
		{name: "later valid mention", text: "@abcdefghijklmnopqrstuvwxyz and @short", want: "short", ok: true},
		{name: "empty", text: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Handle(tc.text)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestConfidence(t *testing.T) {
	cases := []struct {
		name string
		text string
		want model.Confidence
		ok   bool
	}{
		{name: "high beats somewhat", text: "this is a high confidence, though somewhat unclear, match", want: model.ConfidenceHigh, ok: true},
		{name: "explicit format", text: "Username: @holder99\nConfidence: high", want: model.ConfidenceHigh, ok: true},
		{name: "medium synonym", text: "moderate indication", want: model.ConfidenceMedium, ok: true},
		{name: "low beats none", text: "weak signal, no bio", want: model.ConfidenceLow, ok: true},
		{name: "not found", text: "the wallet was not found", want: model.ConfidenceNone, ok: true},
		{name: "case insensitive", text: "CERTAIN ownership", want: model.ConfidenceHigh, ok: true},
		{name: "word boundary", text: "highway knowledge", ok: false},
		{name: "nothing", text: "the poster shared it", ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Confidence(tc.text)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestRuleTablesAreOrdered(t *testing.T) {
	names := make([]string, 0, len(HandleRules))
	for _, r := range HandleRules {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"username", "mention", "handle", "twitter"}, names)

	levels := make([]model.Confidence, 0, len(ConfidenceKeywordRules))
	for _, r := range ConfidenceKeywordRules {
		levels = append(levels, r.Level)
	}
	assert.Equal(t, []model.Confidence{model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow, model.ConfidenceNone}, levels)
}

func TestExplicitSynonymsResolve(t *testing.T) {
	for _, rule := range ExplicitConfidenceRules {
		m := rule.Pattern.FindStringSubmatch("confidence: none level: none")
		if m == nil {
			continue
		}
		_, ok := Synonyms[m[1]]
		assert.True(t, ok, rule.Name)
	}
}
