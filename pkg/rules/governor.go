package rules

import (
	"errors"
	"fmt"

	"github.com/mchmarny/veracity/pkg/detect"
	"github.com/mchmarny/veracity/pkg/feature"
)

// Governor defaults, used when configuration does not override them.
const (
	SoftFactorDefault            = 0.3
	FamilyConfidenceFloorDefault = 0.55
)

// GovernorConfig tunes the two governance dials that are configuration
// rather than policy: the SOFT damping factor and the global
// family-confidence floor.
type GovernorConfig struct {
	SoftFactor            float64
	FamilyConfidenceFloor float64
}

// Validate rejects dials outside their domains.
func (c GovernorConfig) Validate() error {
	if c.SoftFactor <= 0 || c.SoftFactor > 1 {
		return fmt.Errorf("soft factor must be in (0,1], got %f", c.SoftFactor)
	}
	if c.FamilyConfidenceFloor < 0 || c.FamilyConfidenceFloor > 1 {
		return fmt.Errorf("family confidence floor must be in [0,1], got %f", c.FamilyConfidenceFloor)
	}
	return nil
}

// Contribution is a governed finding: what a fired rule is allowed to
// add to the aggregate after its mode transform and severity ceiling.
type Contribution struct {
	RuleID   string
	Mode     Mode
	Demoted  bool
	RawScore float64
	Score    float64
	Severity detect.Severity
	Note     string
	Evidence detect.Evidence
}

// Governor resolves execution modes and applies their transforms. It is
// the only component that derives severity ceilings and score
// multipliers; detectors never self-cap.
type Governor struct {
	matrix      *Matrix
	softFactor  float64
	familyFloor float64
}

// NewGovernor builds a governor over an immutable matrix.
func NewGovernor(m *Matrix, c GovernorConfig) (*Governor, error) {
	if m == nil {
		return nil, errors.New("matrix is required")
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid governor config: %w", err)
	}
	return &Governor{
		matrix:      m,
		softFactor:  c.SoftFactor,
		familyFloor: c.FamilyConfidenceFloor,
	}, nil
}

// Matrix exposes the policy table the governor runs.
func (g *Governor) Matrix() *Matrix {
	return g.matrix
}

// EffectiveMode resolves the matrix mode for the profile, then applies
// the global confidence gate: when the classifier is not confident in
// the family, BLOCK runs demoted to SOFT. The gate only ever weakens a
// mode; SOFT and AUDIT stay as they are, FORBIDDEN stays forbidden.
func (g *Governor) EffectiveMode(ruleID string, p feature.Profile) (Mode, bool) {
	mode := g.matrix.Mode(ruleID, p.Family)
	if mode == ModeBlock && p.FamilyConfidence < g.familyFloor {
		return ModeSoft, true
	}
	return mode, false
}

// Allowed reports whether the detector may be invoked at all for the
// profile. FORBIDDEN detectors are skipped before evaluation: they leave
// no trace of any kind.
func (g *Governor) Allowed(ruleID string, p feature.Profile) bool {
	return g.matrix.Mode(ruleID, p.Family) != ModeForbidden
}

// Govern transforms a fired detector result into its admissible
// contribution. Returns false for results that carry nothing to govern
// and for forbidden pairs, which can reach here only through caller
// error and still must not count.
func (g *Governor) Govern(ruleID string, p feature.Profile, r detect.Result) (Contribution, bool) {
	if !r.Fired() {
		return Contribution{}, false
	}

	mode, demoted := g.EffectiveMode(ruleID, p)
	if mode == ModeForbidden {
		return Contribution{}, false
	}

	c := Contribution{
		RuleID:   ruleID,
		Mode:     mode,
		Demoted:  demoted,
		RawScore: r.Score,
		Note:     r.Note,
		Evidence: r.Evidence,
	}

	switch mode {
	case ModeBlock:
		c.Score = r.Score
		c.Severity = r.Severity
	case ModeSoft:
		c.Score = r.Score * g.softFactor
		c.Severity = r.Severity.Min(detect.SeverityWarning)
	case ModeAudit:
		c.Score = 0
		c.Severity = detect.SeverityInfo
	}

	if d, ok := g.matrix.Descriptor(ruleID); ok {
		c.Severity = c.Severity.Min(d.MaxSeverity)
	}

	return c, true
}
