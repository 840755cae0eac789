package feature

import "strings"

// Family is the document-taxonomy bucket controlling which rules may
// apply. The set is closed: extending it is a policy change carried by a
// new rule-matrix version, not an ad hoc string.
type Family string

const (
	FamilyPOSReceipt   Family = "pos_receipt"
	FamilyTaxInvoice   Family = "tax_invoice"
	FamilyUtilityBill  Family = "utility_bill"
	FamilySubscription Family = "subscription"
	FamilyTravel       Family = "travel"
	FamilyHospitality  Family = "hospitality"
	FamilyFuel         Family = "fuel"
	FamilyUnknown      Family = "unknown"
)

// CountryUnknown is the placeholder when geo classification abstained.
const CountryUnknown = "ZZ"

// LanguageMixed marks documents without a single dominant language.
const LanguageMixed = "mixed"

// Families enumerates the closed taxonomy, unknown last.
func Families() []Family {
	return []Family{
		FamilyPOSReceipt,
		FamilyTaxInvoice,
		FamilyUtilityBill,
		FamilySubscription,
		FamilyTravel,
		FamilyHospitality,
		FamilyFuel,
		FamilyUnknown,
	}
}

// ParseFamily normalizes classifier output to the closed set. Anything
// unrecognized maps to unknown rather than erroring, so a drifting
// upstream label degrades to the most restricted policy row.
func ParseFamily(s string) Family {
	f := Family(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Families() {
		if f == known {
			return known
		}
	}
	return FamilyUnknown
}

// Profile is the classifier's read-only description of the document:
// taxonomy family, geo and language guesses, each with the classifier's
// own confidence. The profile is authoritative; the engine never
// re-derives geo or language from raw text.
type Profile struct {
	Family             Family  `json:"family" yaml:"family"`
	FamilyConfidence   float64 `json:"family_confidence" yaml:"familyConfidence"`
	Country            string  `json:"country" yaml:"country"`
	CountryConfidence  float64 `json:"country_confidence" yaml:"countryConfidence"`
	Language           string  `json:"language" yaml:"language"`
	LanguageConfidence float64 `json:"language_confidence" yaml:"languageConfidence"`
}

// Normalize maps free-form classifier output onto the closed vocabulary
// and clamps confidences into [0,1]. Empty geo and language collapse to
// their explicit unknown markers.
func (p Profile) Normalize() Profile {
	p.Family = ParseFamily(string(p.Family))
	p.FamilyConfidence = clamp01(p.FamilyConfidence)
	p.CountryConfidence = clamp01(p.CountryConfidence)
	p.LanguageConfidence = clamp01(p.LanguageConfidence)
	p.Country = strings.ToUpper(strings.TrimSpace(p.Country))
	if p.Country == "" {
		p.Country = CountryUnknown
	}
	p.Language = strings.ToLower(strings.TrimSpace(p.Language))
	if p.Language == "" {
		p.Language = LanguageMixed
	}
	return p
}
