package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mchmarny/veracity/pkg/feature"
)

func TestMerchantConsistency(t *testing.T) {
	d := merchantConsistency{}

	doc := map[string]string{
		feature.KeyMerchantTaxID: "DE123456789",
	}

	unknown := profileIN()
	unknown.Country = feature.CountryUnknown
	assert.Equal(t, OutcomeSkipped, d.Evaluate(features(doc), unknown.Normalize()).Outcome)

	hesitant := profileIN()
	hesitant.CountryConfidence = 0.4
	assert.Equal(t, OutcomeSkipped, d.Evaluate(features(doc), hesitant).Outcome)

	// Nothing to cross-check
	assert.Equal(t, OutcomeSkipped, d.Evaluate(features(map[string]string{
		feature.KeyMerchantName: "ACME Stores",
	}), profileIN()).Outcome)

	// Signals agreeing with the geo profile pass
	assert.Equal(t, OutcomePassed, d.Evaluate(features(map[string]string{
		feature.KeyMerchantTaxID: "22AAAAA0000A1ZC",
		feature.KeyMerchantPhone: "+91 98765 43210",
	}), profileIN()).Outcome)
}

func TestMerchantConsistencyConflicts(t *testing.T) {
	d := merchantConsistency{}

	// German VAT id on a confidently Indian document
	r := d.Evaluate(features(map[string]string{
		feature.KeyMerchantTaxID: "DE123456789",
	}), profileIN())
	require.True(t, r.Fired())
	assert.Equal(t, SeverityWarning, r.Severity)
	assert.Equal(t, 0.25, r.Score)
	assert.Equal(t, "DE", r.Evidence["tax_id_country"])

	// Foreign dialing prefix alone
	r = d.Evaluate(features(map[string]string{
		feature.KeyMerchantPhone: "+49-30-901820",
	}), profileIN())
	require.True(t, r.Fired())
	assert.Equal(t, 0.25, r.Score)

	// Two independent conflicts saturate at the heuristic cap
	r = d.Evaluate(features(map[string]string{
		feature.KeyMerchantTaxID: "DE123456789",
		feature.KeyMerchantPhone: "+49-30-901820",
	}), profileIN())
	require.True(t, r.Fired())
	assert.Equal(t, heuristicScoreCap, r.Score)
}

func TestMerchantConsistencyNANPException(t *testing.T) {
	d := merchantConsistency{}

	// US and Canada share the +1 prefix; a Canadian document with a +1
	// number is not a conflict
	p := profileUS()
	p.Country = "CA"
	assert.Equal(t, OutcomePassed, d.Evaluate(features(map[string]string{
		feature.KeyMerchantPhone: "+1 416 555 0188",
	}), p).Outcome)
}

func TestTaxIDCountry(t *testing.T) {
	c, ok := taxIDCountry("22AAAAA0000A1ZC")
	require.True(t, ok)
	assert.Equal(t, "IN", c)

	c, ok = taxIDCountry("de 1234 5678 9")
	require.True(t, ok)
	assert.Equal(t, "DE", c)

	_, ok = taxIDCountry("12-3456789")
	assert.False(t, ok)
}

func TestPhoneCountryOf(t *testing.T) {
	c, ok := phoneCountryOf("+91 98765 43210")
	require.True(t, ok)
	assert.Equal(t, "IN", c)

	// Longest prefix wins: +971 is AE, not +9xx noise
	c, ok = phoneCountryOf("+971 4 123 4567")
	require.True(t, ok)
	assert.Equal(t, "AE", c)

	_, ok = phoneCountryOf("98765 43210")
	assert.False(t, ok)
}

func TestTaxIDChecksum(t *testing.T) {
	d := taxIDChecksum{}

	// Out of jurisdiction or structurally foreign ids skip
	assert.Equal(t, OutcomeSkipped, d.Evaluate(features(map[string]string{
		feature.KeyMerchantTaxID: "22AAAAA0000A1ZC",
	}), profileUS()).Outcome)
	assert.Equal(t, OutcomeSkipped, d.Evaluate(features(map[string]string{
		feature.KeyMerchantTaxID: "DE123456789",
	}), profileIN()).Outcome)
	assert.Equal(t, OutcomeSkipped, d.Evaluate(features(map[string]string{}), profileIN()).Outcome)

	// Internally consistent ids pass, normalization included
	for _, id := range []string{"22AAAAA0000A1ZC", "29ABCDE1234F1ZW", "07AABCU9603R1ZP"} {
		assert.Equal(t, OutcomePassed, d.Evaluate(features(map[string]string{
			feature.KeyMerchantTaxID: id,
		}), profileIN()).Outcome, "id %s", id)
	}
	assert.Equal(t, OutcomePassed, d.Evaluate(features(map[string]string{
		feature.KeyMerchantTaxID: " 22 aaaaa 0000 a1zc ",
	}), profileIN()).Outcome)
}

func TestTaxIDChecksumFires(t *testing.T) {
	d := taxIDChecksum{}

	// One altered digit breaks the check character
	r := d.Evaluate(features(map[string]string{
		feature.KeyMerchantTaxID: "12AAAAA0000A1ZC",
	}), profileIN())
	require.True(t, r.Fired())
	assert.Equal(t, SeverityHardFail, r.Severity)
	assert.Equal(t, 0.90, r.Score)
	assert.Equal(t, "C", r.Evidence["actual"])
	assert.NotEqual(t, r.Evidence["expected"], r.Evidence["actual"])
}

func TestGSTINCheckChar(t *testing.T) {
	assert.Equal(t, byte('C'), gstinCheckChar("22AAAAA0000A1Z"))
	assert.Equal(t, byte('W'), gstinCheckChar("29ABCDE1234F1Z"))
	assert.Equal(t, byte('P'), gstinCheckChar("07AABCU9603R1Z"))
}
