package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mchmarny/veracity/pkg/feature"
)

func TestKeywordMisspellingGates(t *testing.T) {
	d := keywordMisspelling{}
	doc := map[string]string{feature.KeyVocabulary: "invoise total"}

	mixed := profileUS()
	mixed.Language = feature.LanguageMixed
	assert.Equal(t, OutcomeSkipped, d.Evaluate(features(doc), mixed).Outcome)

	hesitant := profileUS()
	hesitant.LanguageConfidence = 0.4
	assert.Equal(t, OutcomeSkipped, d.Evaluate(features(doc), hesitant).Outcome)

	unsupported := profileUS()
	unsupported.Language = "pt"
	assert.Equal(t, OutcomeSkipped, d.Evaluate(features(doc), unsupported).Outcome)

	assert.Equal(t, OutcomeSkipped, d.Evaluate(features(map[string]string{}), profileUS()).Outcome)
}

func TestKeywordMisspelling(t *testing.T) {
	d := keywordMisspelling{}

	assert.Equal(t, OutcomePassed, d.Evaluate(features(map[string]string{
		feature.KeyVocabulary: "invoice subtotal total payment",
	}), profileUS()).Outcome)

	// One substitution
	r := d.Evaluate(features(map[string]string{
		feature.KeyVocabulary: "invoise total",
	}), profileUS())
	require.True(t, r.Fired())
	assert.Equal(t, SeverityWarning, r.Severity)
	assert.InDelta(t, 0.18, r.Score, 1e-9)

	// Transposition and insertion both count
	r = d.Evaluate(features(map[string]string{
		feature.KeyVocabulary: "recepit invvoice",
	}), profileUS())
	require.True(t, r.Fired())
	assert.InDelta(t, 0.36, r.Score, 1e-9)

	// Piling on misspellings saturates at the heuristic cap
	r = d.Evaluate(features(map[string]string{
		feature.KeyVocabulary: "invoise recepit totol",
	}), profileUS())
	require.True(t, r.Fired())
	assert.Equal(t, heuristicScoreCap, r.Score)
}

func TestKeywordMisspellingCrossLanguage(t *testing.T) {
	d := keywordMisspelling{}

	// A correct Spanish term on an English document is vocabulary reuse,
	// not a typo
	assert.Equal(t, OutcomePassed, d.Evaluate(features(map[string]string{
		feature.KeyVocabulary: "factura total",
	}), profileUS()).Outcome)
}

func TestKeywordMisspellingShortTokens(t *testing.T) {
	d := keywordMisspelling{}

	// Tokens under the length floor never match
	assert.Equal(t, OutcomePassed, d.Evaluate(features(map[string]string{
		feature.KeyVocabulary: "tot al due",
	}), profileUS()).Outcome)
}

func TestNearMiss(t *testing.T) {
	assert.True(t, nearMiss("invoise", "invoice"))
	assert.True(t, nearMiss("recepit", "receipt"))
	assert.True(t, nearMiss("invvoice", "invoice"))
	assert.True(t, nearMiss("invoic", "invoice"))
	assert.False(t, nearMiss("invoice", "invoice"))
	assert.False(t, nearMiss("inverse", "invoice"))
	assert.False(t, nearMiss("total", "receipt"))
}
