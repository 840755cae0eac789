package rules

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mchmarny/veracity/pkg/detect"
	"github.com/mchmarny/veracity/pkg/feature"
)

// Matrix is the immutable execution-mode table for one policy version.
// It is built once at startup and only ever read afterwards; a policy
// change is a new matrix with a new version, not a mutation.
type Matrix struct {
	version string
	rules   map[string]Descriptor
}

// NewMatrix validates the descriptor list and builds the lookup table.
func NewMatrix(version string, descriptors []Descriptor) (*Matrix, error) {
	if version == "" {
		return nil, errors.New("matrix version is required")
	}
	rules := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("invalid descriptor: %w", err)
		}
		if _, ok := rules[d.ID]; ok {
			return nil, fmt.Errorf("duplicate descriptor id %q", d.ID)
		}
		rules[d.ID] = d
	}
	return &Matrix{version: version, rules: rules}, nil
}

// MustMatrix builds a matrix from literals known at compile time.
func MustMatrix(version string, descriptors []Descriptor) *Matrix {
	m, err := NewMatrix(version, descriptors)
	if err != nil {
		panic(err)
	}
	return m
}

// Version identifies the policy table carried by every verdict.
func (m *Matrix) Version() string {
	return m.version
}

// Descriptor returns the rule's policy record.
func (m *Matrix) Descriptor(ruleID string) (Descriptor, bool) {
	d, ok := m.rules[ruleID]
	return d, ok
}

// Mode resolves the execution mode for a rule/family pair. Unregistered
// rules and unlisted families are FORBIDDEN, never default-allowed.
func (m *Matrix) Mode(ruleID string, f feature.Family) Mode {
	d, ok := m.rules[ruleID]
	if !ok {
		return ModeForbidden
	}
	return d.ModeFor(f)
}

// IDs lists registered rule ids in sorted order.
func (m *Matrix) IDs() []string {
	ids := make([]string, 0, len(m.rules))
	for id := range m.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DefaultMatrix is the shipped v1 policy table.
//
// Reconciliation rules run at full strength on the families where the
// checked structure is mandatory, damped where the document class prints
// it loosely. Heuristics never exceed WARNING. Documents of unknown
// family forbid everything except the vision tamper veto: taxonomy-blind
// rules have no business firing on an unclassified document.
func DefaultMatrix() *Matrix {
	all := func(m Mode) map[feature.Family]Mode {
		out := make(map[feature.Family]Mode, 7)
		for _, f := range feature.Families() {
			if f == feature.FamilyUnknown {
				continue
			}
			out[f] = m
		}
		return out
	}

	return MustMatrix("v1", []Descriptor{
		{
			ID:          detect.RuleTotalsReconciliation,
			Version:     1,
			Families:    all(ModeBlock),
			MaxSeverity: detect.SeverityCritical,
		},
		{
			ID:      detect.RuleLineItemSum,
			Version: 1,
			Families: map[feature.Family]Mode{
				feature.FamilyPOSReceipt:   ModeBlock,
				feature.FamilyTaxInvoice:   ModeBlock,
				feature.FamilyHospitality:  ModeBlock,
				feature.FamilyUtilityBill:  ModeSoft,
				feature.FamilySubscription: ModeSoft,
				feature.FamilyTravel:       ModeSoft,
			},
			MaxSeverity: detect.SeverityCritical,
		},
		{
			ID:      detect.RuleGSTSplitMismatch,
			Version: 1,
			Families: map[feature.Family]Mode{
				feature.FamilyTaxInvoice:  ModeBlock,
				feature.FamilyPOSReceipt:  ModeSoft,
				feature.FamilyFuel:        ModeSoft,
				feature.FamilyHospitality: ModeSoft,
			},
			MaxSeverity: detect.SeverityWarning,
		},
		{
			ID:      detect.RuleTaxComponentSum,
			Version: 1,
			Families: map[feature.Family]Mode{
				feature.FamilyTaxInvoice:   ModeBlock,
				feature.FamilyUtilityBill:  ModeBlock,
				feature.FamilyPOSReceipt:   ModeSoft,
				feature.FamilyHospitality:  ModeSoft,
				feature.FamilyTravel:       ModeSoft,
				feature.FamilyFuel:         ModeSoft,
				feature.FamilySubscription: ModeSoft,
			},
			MaxSeverity: detect.SeverityCritical,
		},
		{
			ID:      detect.RuleProducerFingerprint,
			Version: 1,
			Families: map[feature.Family]Mode{
				feature.FamilyTaxInvoice:   ModeBlock,
				feature.FamilyUtilityBill:  ModeBlock,
				feature.FamilyPOSReceipt:   ModeSoft,
				feature.FamilySubscription: ModeSoft,
				feature.FamilyTravel:       ModeSoft,
				feature.FamilyHospitality:  ModeSoft,
				feature.FamilyFuel:         ModeSoft,
			},
			MaxSeverity: detect.SeverityWarning,
		},
		{
			ID:      detect.RuleCharSpacing,
			Version: 1,
			Families: map[feature.Family]Mode{
				// Thermal printers make spacing stats unreliable on POS
				// paper; observe only until the corpus says otherwise.
				feature.FamilyPOSReceipt:   ModeAudit,
				feature.FamilyTaxInvoice:   ModeSoft,
				feature.FamilyUtilityBill:  ModeSoft,
				feature.FamilySubscription: ModeSoft,
				feature.FamilyTravel:       ModeSoft,
				feature.FamilyHospitality:  ModeSoft,
				feature.FamilyFuel:         ModeSoft,
			},
			MaxSeverity: detect.SeverityWarning,
		},
		{
			ID:      detect.RuleKeywordMisspelling,
			Version: 1,
			Families: map[feature.Family]Mode{
				feature.FamilyTaxInvoice:   ModeBlock,
				feature.FamilyUtilityBill:  ModeBlock,
				feature.FamilyPOSReceipt:   ModeSoft,
				feature.FamilyHospitality:  ModeSoft,
				feature.FamilyTravel:       ModeSoft,
				feature.FamilyFuel:         ModeAudit,
				feature.FamilySubscription: ModeAudit,
			},
			MaxSeverity: detect.SeverityWarning,
		},
		{
			ID:          detect.RuleDateLogic,
			Version:     1,
			Families:    all(ModeBlock),
			MaxSeverity: detect.SeverityCritical,
		},
		{
			ID:      detect.RuleMerchantConsistency,
			Version: 1,
			Families: map[feature.Family]Mode{
				feature.FamilyTaxInvoice:   ModeBlock,
				feature.FamilyUtilityBill:  ModeBlock,
				feature.FamilySubscription: ModeBlock,
				feature.FamilyPOSReceipt:   ModeSoft,
				feature.FamilyTravel:       ModeSoft,
				feature.FamilyHospitality:  ModeSoft,
				feature.FamilyFuel:         ModeSoft,
			},
			MaxSeverity: detect.SeverityWarning,
		},
		{
			ID:      detect.RuleAmountRounding,
			Version: 1,
			Families: map[feature.Family]Mode{
				// Round figures are routine at the pump and the register.
				feature.FamilyFuel:         ModeAudit,
				feature.FamilyPOSReceipt:   ModeAudit,
				feature.FamilyTaxInvoice:   ModeSoft,
				feature.FamilyUtilityBill:  ModeSoft,
				feature.FamilySubscription: ModeSoft,
				feature.FamilyTravel:       ModeSoft,
				feature.FamilyHospitality:  ModeSoft,
			},
			MaxSeverity: detect.SeverityInfo,
		},
		{
			ID:          detect.RuleTaxIDChecksum,
			Version:     1,
			Families:    all(ModeBlock),
			MaxSeverity: detect.SeverityHardFail,
		},
		{
			ID:      detect.RuleImageTamper,
			Version: 1,
			Families: func() map[feature.Family]Mode {
				out := all(ModeBlock)
				out[feature.FamilyUnknown] = ModeBlock
				return out
			}(),
			MaxSeverity: detect.SeverityHardFail,
		},
	})
}
