package detect

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/mchmarny/veracity/pkg/feature"
)

// phoneCountry maps international dialing prefixes to ISO country codes.
// Longest prefix wins.
var phoneCountry = map[string]string{
	"+1":   "US",
	"+33":  "FR",
	"+34":  "ES",
	"+39":  "IT",
	"+44":  "GB",
	"+49":  "DE",
	"+61":  "AU",
	"+65":  "SG",
	"+91":  "IN",
	"+971": "AE",
}

// vatCountries are the two-letter prefixes of European-style VAT ids.
var vatCountries = map[string]bool{
	"AT": true, "BE": true, "DE": true, "DK": true, "ES": true,
	"FI": true, "FR": true, "GB": true, "IE": true, "IT": true,
	"NL": true, "PL": true, "PT": true, "SE": true,
}

// gstinShape is the structural pattern of an Indian GSTIN.
var gstinShape = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)

// merchantConsistency cross-checks independent merchant signals against
// the document's geo profile: a tax id carrying another country's scheme
// or a phone number with a foreign dialing prefix on a confidently
// geo-classified document points at template reuse.
type merchantConsistency struct{}

func (d merchantConsistency) ID() string {
	return RuleMerchantConsistency
}

func (d merchantConsistency) Evaluate(fs feature.Set, p feature.Profile) Result {
	if p.Country == feature.CountryUnknown || p.CountryConfidence < geoConfidenceFloor {
		return Skip()
	}

	taxID, hasTaxID := textField(fs, feature.KeyMerchantTaxID)
	phone, hasPhone := textField(fs, feature.KeyMerchantPhone)
	if !hasTaxID && !hasPhone {
		return Skip()
	}

	conflicts := make([]string, 0, 2)
	ev := Evidence{"country": p.Country}

	if hasTaxID {
		if implied, ok := taxIDCountry(taxID); ok {
			ev["tax_id_country"] = implied
			if implied != p.Country {
				conflicts = append(conflicts, fmt.Sprintf("tax id follows the %s scheme", implied))
			}
		}
	}
	if hasPhone {
		if implied, ok := phoneCountryOf(phone); ok {
			ev["phone_country"] = implied
			if implied != p.Country && !(implied == "US" && p.Country == "CA") {
				conflicts = append(conflicts, fmt.Sprintf("phone number dials into %s", implied))
			}
		}
	}

	if len(conflicts) == 0 {
		return Pass()
	}

	score := math.Min(heuristicScoreCap, 0.25*float64(len(conflicts)))
	ev["conflicts"] = conflicts
	note := fmt.Sprintf("merchant details conflict with %s geo: %s", p.Country, conflicts[0])
	return Finding(score, SeverityWarning, note, ev)
}

// taxIDCountry infers which country's tax-id scheme the value follows.
func taxIDCountry(taxID string) (string, bool) {
	id := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(taxID), " ", ""))
	if gstinShape.MatchString(id) {
		return "IN", true
	}
	if len(id) >= 4 && vatCountries[id[:2]] {
		return id[:2], true
	}
	return "", false
}

// phoneCountryOf resolves the dialing prefix, longest first.
func phoneCountryOf(phone string) (string, bool) {
	normalized := strings.ReplaceAll(strings.TrimSpace(phone), " ", "")
	normalized = strings.ReplaceAll(normalized, "-", "")
	if !strings.HasPrefix(normalized, "+") {
		return "", false
	}
	prefixes := make([]string, 0, len(phoneCountry))
	for prefix := range phoneCountry {
		prefixes = append(prefixes, prefix)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		return len(prefixes[i]) > len(prefixes[j])
	})
	for _, prefix := range prefixes {
		if strings.HasPrefix(normalized, prefix) {
			return phoneCountry[prefix], true
		}
	}
	return "", false
}

// gstinAlphabet is the base-36 digit set of the GSTIN check character.
const gstinAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// taxIDChecksum recomputes the Indian GSTIN check character from the
// first fourteen characters. A mismatch is not a heuristic: the printed
// id is internally impossible, which no legitimate issuing system
// produces. Verification stays local; there is no registry lookup.
type taxIDChecksum struct{}

func (d taxIDChecksum) ID() string {
	return RuleTaxIDChecksum
}

func (d taxIDChecksum) Evaluate(fs feature.Set, p feature.Profile) Result {
	if p.Country != "IN" || p.CountryConfidence < geoConfidenceFloor {
		return Skip()
	}
	taxID, ok := textField(fs, feature.KeyMerchantTaxID)
	if !ok {
		return Skip()
	}
	id := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(taxID), " ", ""))
	if !gstinShape.MatchString(id) {
		return Skip()
	}

	expected := gstinCheckChar(id[:14])
	actual := id[14]
	if expected == actual {
		return Pass()
	}

	note := fmt.Sprintf("GSTIN %s fails its own checksum", id)
	return Finding(0.90, SeverityHardFail, note, Evidence{
		"gstin":    id,
		"expected": string(expected),
		"actual":   string(actual),
	})
}

// gstinCheckChar computes the mod-36 check character over the first 14
// characters: weights alternate 1 and 2, each product contributes its
// base-36 digit sum.
func gstinCheckChar(prefix string) byte {
	sum := 0
	for i := 0; i < len(prefix); i++ {
		value := strings.IndexByte(gstinAlphabet, prefix[i])
		factor := 1
		if i%2 == 1 {
			factor = 2
		}
		product := value * factor
		sum += product/36 + product%36
	}
	return gstinAlphabet[(36-sum%36)%36]
}
