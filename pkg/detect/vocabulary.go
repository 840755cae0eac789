package detect

import (
	"fmt"
	"math"
	"strings"

	"github.com/mchmarny/veracity/pkg/feature"
)

// billingVocabulary holds the canonical billing terms per language.
// Misspellings of these are a strong template-forgery tell: genuine
// billing systems render them from fixed templates and do not typo them.
var billingVocabulary = map[string][]string{
	"en": {"invoice", "receipt", "total", "subtotal", "amount", "payment", "balance", "quantity", "description"},
	"de": {"rechnung", "quittung", "summe", "betrag", "zahlung", "steuer", "gesamt", "menge", "beschreibung"},
	"fr": {"facture", "montant", "paiement", "taxe", "total", "quantité", "solde", "description"},
	"es": {"factura", "recibo", "importe", "pago", "impuesto", "total", "cantidad", "saldo"},
}

// minMisspellingLength guards against near-miss noise on short tokens.
const minMisspellingLength = 4

// keywordMisspelling scans the extracted vocabulary for near-miss
// spellings of canonical billing terms in the document's language.
// Requires a confident single-language classification; mixed-language
// documents skip.
type keywordMisspelling struct{}

func (d keywordMisspelling) ID() string {
	return RuleKeywordMisspelling
}

func (d keywordMisspelling) Evaluate(fs feature.Set, p feature.Profile) Result {
	if p.Language == feature.LanguageMixed || p.LanguageConfidence < langConfidenceFloor {
		return Skip()
	}
	vocabulary, ok := billingVocabulary[p.Language]
	if !ok {
		return Skip()
	}
	raw, ok := textField(fs, feature.KeyVocabulary)
	if !ok || strings.TrimSpace(raw) == "" {
		return Skip()
	}

	hits := make([]Evidence, 0)
	for _, token := range strings.Fields(strings.ToLower(raw)) {
		if len([]rune(token)) < minMisspellingLength || canonicalSpelling(token) {
			continue
		}
		for _, term := range vocabulary {
			if nearMiss(token, term) {
				hits = append(hits, Evidence{"token": token, "expected": term})
				break
			}
		}
	}
	if len(hits) == 0 {
		return Pass()
	}

	score := math.Min(heuristicScoreCap, 0.18*float64(len(hits)))
	note := fmt.Sprintf("%d billing keyword(s) misspelled, first: %v", len(hits), hits[0]["token"])
	return Finding(score, SeverityWarning, note, Evidence{
		"language": p.Language,
		"hits":     hits,
	})
}

// canonicalSpelling reports whether the token is a correct billing term
// in any supported language. Cross-language correct spellings are never
// treated as misspellings.
func canonicalSpelling(token string) bool {
	for _, vocabulary := range billingVocabulary {
		for _, term := range vocabulary {
			if token == term {
				return true
			}
		}
	}
	return false
}

// nearMiss reports whether two words differ by a single edit or one
// adjacent transposition.
func nearMiss(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	switch {
	case la == lb:
		diffs := make([]int, 0, 2)
		for i := 0; i < la; i++ {
			if ra[i] != rb[i] {
				diffs = append(diffs, i)
				if len(diffs) > 2 {
					return false
				}
			}
		}
		if len(diffs) == 1 {
			return true
		}
		if len(diffs) == 2 && diffs[1] == diffs[0]+1 {
			i, j := diffs[0], diffs[1]
			return ra[i] == rb[j] && ra[j] == rb[i]
		}
		return false
	case la+1 == lb:
		return oneInsertion(ra, rb)
	case lb+1 == la:
		return oneInsertion(rb, ra)
	}
	return false
}

// oneInsertion reports whether long equals short with one extra rune.
func oneInsertion(short, long []rune) bool {
	i, j, edits := 0, 0, 0
	for i < len(short) && j < len(long) {
		if short[i] == long[j] {
			i++
			j++
			continue
		}
		edits++
		if edits > 1 {
			return false
		}
		j++
	}
	return true
}
