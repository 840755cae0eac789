package rules

import (
	"errors"
	"fmt"

	"github.com/mchmarny/veracity/pkg/detect"
	"github.com/mchmarny/veracity/pkg/feature"
)

// Mode governs whether and how a rule's finding counts for a document
// family.
type Mode string

const (
	// ModeBlock passes the finding through untouched. Only BLOCK-mode
	// findings can reach CRITICAL or HARD_FAIL and push a label to fake
	// on their own.
	ModeBlock Mode = "BLOCK"
	// ModeSoft damps the score by the configured factor and caps
	// severity at WARNING.
	ModeSoft Mode = "SOFT"
	// ModeAudit records the finding with zero score and INFO severity.
	// Used to trial detectors on a family before promoting them.
	ModeAudit Mode = "AUDIT"
	// ModeForbidden suppresses the detector entirely for the family:
	// not invoked, no trace.
	ModeForbidden Mode = "FORBIDDEN"
)

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeBlock, ModeSoft, ModeAudit, ModeForbidden:
		return true
	}
	return false
}

// Descriptor is the static policy record for one rule: which families it
// may fire on and in which mode, plus the severity it may never exceed.
// Descriptors are append-only; changing a family's mode ships as a new
// descriptor version in a new matrix, never as an in-place edit.
type Descriptor struct {
	ID          string                  `json:"id" yaml:"id"`
	Version     int                     `json:"version" yaml:"version"`
	Families    map[feature.Family]Mode `json:"families" yaml:"families"`
	MaxSeverity detect.Severity         `json:"max_severity" yaml:"maxSeverity"`
}

// Validate checks the descriptor's internal consistency.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return errors.New("descriptor id is required")
	}
	if d.Version < 1 {
		return fmt.Errorf("descriptor %s: version must be positive, got %d", d.ID, d.Version)
	}
	if len(d.Families) == 0 {
		return fmt.Errorf("descriptor %s: at least one family entry is required", d.ID)
	}
	if !d.MaxSeverity.Valid() {
		return fmt.Errorf("descriptor %s: invalid max severity %q", d.ID, d.MaxSeverity)
	}
	known := make(map[feature.Family]bool)
	for _, f := range feature.Families() {
		known[f] = true
	}
	for f, m := range d.Families {
		if !known[f] {
			return fmt.Errorf("descriptor %s: unknown family %q", d.ID, f)
		}
		if !m.Valid() {
			return fmt.Errorf("descriptor %s: invalid mode %q for family %s", d.ID, m, f)
		}
	}
	return nil
}

// ModeFor resolves the family's execution mode. Families without an
// entry are FORBIDDEN: there is no implicit applies-everywhere.
func (d Descriptor) ModeFor(f feature.Family) Mode {
	if m, ok := d.Families[f]; ok {
		return m
	}
	return ModeForbidden
}
