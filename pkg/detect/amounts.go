package detect

import (
	"fmt"
	"math"

	"github.com/mchmarny/veracity/pkg/feature"
)

// totalsReconciliation checks that the printed grand total equals the
// printed subtotal plus tax. Tax is the printed tax total when extracted,
// otherwise the sum of extracted jurisdiction components. Without any tax
// figure the reconstruction is incomplete and the check skips.
type totalsReconciliation struct {
	tol Tolerances
}

func (d totalsReconciliation) ID() string {
	return RuleTotalsReconciliation
}

func (d totalsReconciliation) Evaluate(fs feature.Set, p feature.Profile) Result {
	total, ok := amount(fs, feature.KeyTotal)
	if !ok {
		return Skip()
	}
	subtotal, ok := amount(fs, feature.KeySubtotal)
	if !ok {
		return Skip()
	}
	tax, ok := taxFigure(fs)
	if !ok {
		return Skip()
	}

	expected := subtotal + tax
	gap := relativeGap(total, expected)
	tolerance := d.tol.For(p.Family)
	if gap <= tolerance {
		return Pass()
	}

	severity := SeverityWarning
	if gap > 0.10 {
		severity = SeverityCritical
	}
	score := math.Min(0.55, 0.25+gap)
	note := fmt.Sprintf("printed total %.2f does not reconcile with subtotal %.2f + tax %.2f", total, subtotal, tax)
	return Finding(score, severity, note, Evidence{
		"total":     total,
		"subtotal":  subtotal,
		"tax":       tax,
		"expected":  expected,
		"gap":       gap,
		"tolerance": tolerance,
	})
}

// taxFigure resolves the document's tax amount: the printed tax total
// when present, else the sum of extracted components.
func taxFigure(fs feature.Set) (float64, bool) {
	if tax, ok := amount(fs, feature.KeyTaxTotal); ok {
		return tax, true
	}
	sum := 0.0
	found := false
	for _, key := range []string{feature.KeyCGST, feature.KeySGST, feature.KeyIGST} {
		if v, ok := amount(fs, key); ok {
			sum += v
			found = true
		}
	}
	return sum, found
}

// lineItemSum checks the extracted line-item sum against the printed
// subtotal, falling back to the grand total on documents that print no
// subtotal.
type lineItemSum struct {
	tol Tolerances
}

func (d lineItemSum) ID() string {
	return RuleLineItemSum
}

func (d lineItemSum) Evaluate(fs feature.Set, p feature.Profile) Result {
	lines, ok := amount(fs, feature.KeyLineSum)
	if !ok {
		return Skip()
	}
	printed, ok := amount(fs, feature.KeySubtotal)
	if !ok {
		printed, ok = amount(fs, feature.KeyTotal)
		if !ok {
			return Skip()
		}
	}

	gap := relativeGap(lines, printed)
	tolerance := d.tol.For(p.Family)
	if gap <= tolerance {
		return Pass()
	}

	severity := SeverityWarning
	if gap > 0.15 {
		severity = SeverityCritical
	}
	score := math.Min(0.50, 0.20+gap)
	note := fmt.Sprintf("line items sum to %.2f but document prints %.2f", lines, printed)
	return Finding(score, severity, note, Evidence{
		"line_sum":  lines,
		"printed":   printed,
		"gap":       gap,
		"tolerance": tolerance,
	})
}

// gstSplitMismatch verifies the CGST/SGST symmetry on Indian intra-state
// documents: the two components are equal halves of the same levy, so any
// split beyond rounding is an alteration signal. Applies only when the
// geo classifier is confident the document is from IN.
type gstSplitMismatch struct{}

func (d gstSplitMismatch) ID() string {
	return RuleGSTSplitMismatch
}

func (d gstSplitMismatch) Evaluate(fs feature.Set, p feature.Profile) Result {
	if p.Country != "IN" || p.CountryConfidence < geoConfidenceFloor {
		return Skip()
	}
	cgst, ok := amount(fs, feature.KeyCGST)
	if !ok {
		return Skip()
	}
	sgst, ok := amount(fs, feature.KeySGST)
	if !ok {
		return Skip()
	}

	// Tolerate a paisa of print rounding on the absolute difference
	// before the relative check applies.
	diff := math.Abs(cgst - sgst)
	if diff <= 0.01 || relativeGap(cgst, sgst) <= 0.01 {
		return Pass()
	}

	note := fmt.Sprintf("CGST %.2f and SGST %.2f should match on an intra-state document", cgst, sgst)
	return Finding(0.30, SeverityWarning, note, Evidence{
		"cgst": cgst,
		"sgst": sgst,
		"diff": diff,
	})
}

// taxComponentSum cross-checks the printed tax total against the sum of
// its jurisdiction components on IN-geo documents.
type taxComponentSum struct {
	tol Tolerances
}

func (d taxComponentSum) ID() string {
	return RuleTaxComponentSum
}

func (d taxComponentSum) Evaluate(fs feature.Set, p feature.Profile) Result {
	if p.Country != "IN" || p.CountryConfidence < geoConfidenceFloor {
		return Skip()
	}
	taxTotal, ok := amount(fs, feature.KeyTaxTotal)
	if !ok {
		return Skip()
	}

	sum := 0.0
	parts := Evidence{}
	found := false
	for _, key := range []string{feature.KeyCGST, feature.KeySGST, feature.KeyIGST} {
		if v, ok := amount(fs, key); ok {
			sum += v
			parts[key] = v
			found = true
		}
	}
	if !found {
		return Skip()
	}

	gap := relativeGap(taxTotal, sum)
	tolerance := d.tol.For(p.Family)
	if gap <= tolerance {
		return Pass()
	}

	severity := SeverityWarning
	if gap > 0.20 {
		severity = SeverityCritical
	}
	score := math.Min(0.45, 0.20+gap)
	parts["tax_total"] = taxTotal
	parts["component_sum"] = sum
	parts["gap"] = gap
	note := fmt.Sprintf("tax components sum to %.2f but document prints tax total %.2f", sum, taxTotal)
	return Finding(score, severity, note, parts)
}

// amountRounding flags documents where every monetary figure is a round
// integer. Legitimate receipts nearly always carry fractional amounts
// once tax applies; a fully round document is a weak fabrication tell.
type amountRounding struct{}

func (d amountRounding) ID() string {
	return RuleAmountRounding
}

func (d amountRounding) Evaluate(fs feature.Set, p feature.Profile) Result {
	keys := fs.AmountKeys()
	// A single round figure proves nothing; require a populated document.
	if len(keys) < 3 {
		return Skip()
	}

	values := make([]float64, 0, len(keys))
	for _, key := range keys {
		v, ok := amount(fs, key)
		if !ok {
			return Skip()
		}
		if v != math.Trunc(v) {
			return Pass()
		}
		values = append(values, v)
	}

	note := fmt.Sprintf("all %d monetary amounts are round integers", len(values))
	return Finding(0.08, SeverityInfo, note, Evidence{
		"keys":   keys,
		"values": values,
	})
}
