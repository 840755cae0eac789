package detect

import (
	"math"
	"time"

	"github.com/mchmarny/veracity/pkg/feature"
)

// Rule identifiers. Each names exactly one detector; the execution-mode
// matrix and the audit trail refer to detectors only through these.
const (
	RuleTotalsReconciliation = "totals_reconciliation"
	RuleLineItemSum          = "line_item_sum"
	RuleGSTSplitMismatch     = "gst_split_mismatch"
	RuleTaxComponentSum      = "tax_component_sum"
	RuleProducerFingerprint  = "producer_fingerprint"
	RuleCharSpacing          = "char_spacing"
	RuleKeywordMisspelling   = "keyword_misspelling"
	RuleDateLogic            = "date_logic"
	RuleMerchantConsistency  = "merchant_consistency"
	RuleAmountRounding       = "amount_rounding"
	RuleTaxIDChecksum        = "tax_id_checksum"
	RuleImageTamper          = "image_tamper"
)

// Severity tags a fired rule. The order matters: governance caps compare
// severities by rank.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
	SeverityHardFail Severity = "HARD_FAIL"
)

// Rank orders severities for capping and sorting. Unknown values rank
// below INFO so a malformed severity can never escalate.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityCritical:
		return 3
	case SeverityHardFail:
		return 4
	}
	return 0
}

// Valid reports whether s is one of the declared severities.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// Min returns the lower-ranked of the two severities.
func (s Severity) Min(other Severity) Severity {
	if other.Rank() < s.Rank() {
		return other
	}
	return s
}

// Evidence is the detector-specific payload attached to a finding. It is
// audit material only: downstream logic never re-interprets it.
type Evidence map[string]any

// Outcome states what a detector run concluded. Skipped and passed are
// distinct on purpose: a skip means the check could not be made, a pass
// means it was made and came back clean. Collapsing the two would hide
// unchecked documents from the audit trail.
type Outcome string

const (
	OutcomeSkipped Outcome = "skipped"
	OutcomePassed  Outcome = "passed"
	OutcomeFired   Outcome = "fired"
)

// Result is one detector outcome. Score, severity, note, and evidence
// are populated only for fired results.
type Result struct {
	Outcome  Outcome
	Score    float64
	Severity Severity
	Note     string
	Evidence Evidence
}

// Skip is the result for unmet preconditions: required field absent,
// extraction confidence below the detector's floor, unparsable operand.
// Never used for a clean check.
func Skip() Result {
	return Result{Outcome: OutcomeSkipped}
}

// Pass is the result of a check that ran and found nothing.
func Pass() Result {
	return Result{Outcome: OutcomePassed}
}

// Finding builds a fired result. Negative deltas are clamped to zero:
// detectors report risk, they never subtract it.
func Finding(score float64, severity Severity, note string, ev Evidence) Result {
	if score < 0 {
		score = 0
	}
	return Result{
		Outcome:  OutcomeFired,
		Score:    score,
		Severity: severity,
		Note:     note,
		Evidence: ev,
	}
}

// Fired reports whether the detector produced a finding.
func (r Result) Fired() bool {
	return r.Outcome == OutcomeFired
}

// Detector inspects one document and reports at most one finding.
// Implementations are pure functions of their inputs: no shared state,
// no ordering dependency on other detectors, no panics across the
// boundary. Anything that would be an error is a Skip.
type Detector interface {
	ID() string
	Evaluate(fs feature.Set, p feature.Profile) Result
}

// Tolerances configures how far numeric reconciliations may drift before
// firing, as a relative fraction. Families without an override use the
// default; looser for prorated statements, tighter for tax documents.
type Tolerances struct {
	Default  float64
	Families map[feature.Family]float64
}

// For resolves the tolerance for a family.
func (t Tolerances) For(f feature.Family) float64 {
	if tol, ok := t.Families[f]; ok {
		return tol
	}
	return t.Default
}

// DefaultTolerances returns the shipped reconciliation tolerances.
// These are tuning values, not invariants; operators adjust them per
// corpus through configuration.
func DefaultTolerances() Tolerances {
	return Tolerances{
		Default: 0.02,
		Families: map[feature.Family]float64{
			feature.FamilyTaxInvoice:   0.01,
			feature.FamilyUtilityBill:  0.015,
			feature.FamilySubscription: 0.05,
			feature.FamilyFuel:         0.02,
		},
	}
}

// confidence floors detectors apply before trusting an operand or a
// profile dimension. A value below its floor is an unmet precondition.
const (
	fieldConfidenceFloor = 0.35
	geoConfidenceFloor   = 0.60
	langConfidenceFloor  = 0.60
)

// heuristicScoreCap bounds every heuristic detector's raw delta so no
// single pattern match can dominate an aggregate on its own.
const heuristicScoreCap = 0.4

// All returns the closed detector set in registry order. One entry per
// rule identifier; adding a detector means adding it here and giving it
// a row in the execution-mode matrix.
func All(tol Tolerances) []Detector {
	return []Detector{
		totalsReconciliation{tol: tol},
		lineItemSum{tol: tol},
		gstSplitMismatch{},
		taxComponentSum{tol: tol},
		producerFingerprint{},
		charSpacing{},
		keywordMisspelling{},
		dateLogic{now: time.Now},
		merchantConsistency{},
		amountRounding{},
		taxIDChecksum{},
		imageTamper{},
	}
}

// amount reads a monetary operand, enforcing the field confidence floor.
func amount(fs feature.Set, key string) (float64, bool) {
	if fs.Confidence(key) < fieldConfidenceFloor {
		return 0, false
	}
	return fs.Amount(key)
}

// floatField reads a numeric operand, enforcing the field confidence floor.
func floatField(fs feature.Set, key string) (float64, bool) {
	if fs.Confidence(key) < fieldConfidenceFloor {
		return 0, false
	}
	return fs.Float(key)
}

// textField reads a string operand, enforcing the field confidence floor.
func textField(fs feature.Set, key string) (string, bool) {
	if fs.Confidence(key) < fieldConfidenceFloor {
		return "", false
	}
	return fs.Text(key)
}

// dateField reads a date operand, enforcing the field confidence floor.
func dateField(fs feature.Set, key string) (time.Time, bool) {
	if fs.Confidence(key) < fieldConfidenceFloor {
		return time.Time{}, false
	}
	return fs.Date(key)
}

// relativeGap is |a-b| scaled by the larger magnitude. Zero when both
// operands are zero.
func relativeGap(a, b float64) float64 {
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return 0
	}
	return diff / scale
}
