package feature

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Well-known feature keys produced by the extraction layer. Detectors
// address document fields only through these constants; unrecognized keys
// are carried but never interpreted.
const (
	KeyTotal    = "amount.total"
	KeySubtotal = "amount.subtotal"
	KeyTaxTotal = "amount.tax_total"
	KeyCGST     = "amount.cgst"
	KeySGST     = "amount.sgst"
	KeyIGST     = "amount.igst"
	KeyLineSum  = "amount.line_sum"

	KeyIssuedDate = "date.issued"
	KeyDueDate    = "date.due"
	KeyPaidDate   = "date.paid"

	KeyProducer     = "doc.producer"
	KeySpacingRatio = "text.char_spacing_ratio"
	KeyVocabulary   = "text.vocabulary"

	KeyMerchantName  = "merchant.name"
	KeyMerchantTaxID = "merchant.tax_id"
	KeyMerchantPhone = "merchant.phone"

	KeyTamperFlag  = "image.tamper_flag"
	KeyTamperScore = "image.tamper_score"
)

// AmountPrefix namespaces all monetary features.
const AmountPrefix = "amount."

// dateLayouts accepted by Date, tried in order. The extraction layer
// normalizes dates to ISO 8601; RFC3339 covers timestamped fields.
var dateLayouts = []string{"2006-01-02", time.RFC3339}

// Set is the extracted-feature mapping for one document: flat string
// values plus per-field extraction confidence. Built once by upstream
// extraction, read-only afterwards.
type Set struct {
	values     map[string]string
	confidence map[string]float64
}

// NewSet copies both maps so later caller mutations cannot leak in.
// Fields without a reported confidence default to 1.0.
func NewSet(values map[string]string, confidence map[string]float64) Set {
	s := Set{
		values:     make(map[string]string, len(values)),
		confidence: make(map[string]float64, len(confidence)),
	}
	for k, v := range values {
		s.values[k] = v
	}
	for k, c := range confidence {
		s.confidence[k] = clamp01(c)
	}
	return s
}

// Has reports whether the field was extracted, regardless of confidence.
func (s Set) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Text returns the raw extracted value.
func (s Set) Text(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Float parses a numeric field. Thousands separators are tolerated;
// anything else non-numeric fails the parse.
func (s Set) Float(key string) (float64, bool) {
	raw, ok := s.values[key]
	if !ok {
		return 0, false
	}
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Amount parses a monetary field.
func (s Set) Amount(key string) (float64, bool) {
	return s.Float(key)
}

// Date parses a date field against the accepted layouts.
func (s Set) Date(key string) (time.Time, bool) {
	raw, ok := s.values[key]
	if !ok {
		return time.Time{}, false
	}
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Flag interprets a boolean field. Absent or unrecognized values are false.
func (s Set) Flag(key string) bool {
	switch strings.ToLower(strings.TrimSpace(s.values[key])) {
	case "true", "yes", "1":
		return true
	}
	return false
}

// Confidence returns the extraction confidence for a field.
// Unreported confidence is 1.0: an extractor that does not score its
// fields is taken at face value.
func (s Set) Confidence(key string) float64 {
	if c, ok := s.confidence[key]; ok {
		return c
	}
	return 1.0
}

// Keys lists extracted field names in sorted order.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len is the number of extracted fields.
func (s Set) Len() int {
	return len(s.values)
}

// Values returns a copy of the raw field mapping, for serialization.
func (s Set) Values() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Confidences returns a copy of the reported confidence mapping.
func (s Set) Confidences() map[string]float64 {
	out := make(map[string]float64, len(s.confidence))
	for k, c := range s.confidence {
		out[k] = c
	}
	return out
}

// AmountKeys lists the monetary fields present, sorted.
func (s Set) AmountKeys() []string {
	keys := make([]string, 0)
	for k := range s.values {
		if strings.HasPrefix(k, AmountPrefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
