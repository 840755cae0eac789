package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mchmarny/veracity/pkg/ensemble"
	"github.com/mchmarny/veracity/pkg/verdict"
)

const (
	timeFormat = "2006-01-02T15:04:05Z"

	insertAnalysisSQL = `INSERT INTO analysis (
			id, family, rule_label, rule_score, final_label, confidence,
			action, agreement, matrix_version, engines, abstained, decided_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	insertReasonSQL = `INSERT INTO reason (
			analysis_id, position, rule_id, severity, score, note, mode, demoted, evidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	insertReasoningSQL = `INSERT INTO reasoning (analysis_id, position, line)
		VALUES (?, ?, ?)
	`
)

// Decision is one stored, arbitrated analysis.
type Decision struct {
	ID            string           `json:"id" yaml:"id"`
	Family        string           `json:"family" yaml:"family"`
	RuleLabel     string           `json:"rule_label" yaml:"ruleLabel"`
	RuleScore     float64          `json:"rule_score" yaml:"ruleScore"`
	FinalLabel    string           `json:"final_label" yaml:"finalLabel"`
	Confidence    float64          `json:"confidence" yaml:"confidence"`
	Action        string           `json:"action" yaml:"action"`
	Agreement     float64          `json:"agreement" yaml:"agreement"`
	MatrixVersion string           `json:"matrix_version" yaml:"matrixVersion"`
	Engines       int              `json:"engines" yaml:"engines"`
	Abstained     int              `json:"abstained" yaml:"abstained"`
	DecidedAt     time.Time        `json:"decided_at" yaml:"decidedAt"`
	Reasons       []DecisionReason `json:"reasons,omitempty" yaml:"reasons,omitempty"`
	Reasoning     []string         `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
}

// DecisionReason is one stored rule finding, in verdict order.
type DecisionReason struct {
	RuleID   string  `json:"rule_id" yaml:"ruleId"`
	Severity string  `json:"severity" yaml:"severity"`
	Score    float64 `json:"score_delta" yaml:"scoreDelta"`
	Note     string  `json:"note" yaml:"note"`
	Mode     string  `json:"mode" yaml:"mode"`
	Demoted  bool    `json:"demoted,omitempty" yaml:"demoted,omitempty"`
	Evidence string  `json:"evidence,omitempty" yaml:"evidence,omitempty"`
}

// SaveDecision persists the arbitrated result with its full audit trail
// in one transaction. Fail-closed decisions arrive without a verdict;
// they are stored with a generated id and no rule fields so the review
// queue still sees them.
func (s *Store) SaveDecision(res *ensemble.Result, v *verdict.Verdict) (string, error) {
	if s == nil || s.db == nil {
		return "", errDBNotInitialized
	}
	if res == nil {
		return "", errors.New("decision required")
	}

	id := res.AnalysisID
	if id == "" {
		id = uuid.NewString()
	}

	family := "unknown"
	ruleLabel := ""
	ruleScore := 0.0
	matrixVersion := ""
	if v != nil {
		family = string(v.Family)
		ruleLabel = string(v.Label)
		ruleScore = float64(v.Score)
		matrixVersion = v.MatrixVersion
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}

	_, err = tx.Exec(s.rebind(insertAnalysisSQL),
		id,
		family,
		ruleLabel,
		ruleScore,
		string(res.Label),
		float64(res.Confidence),
		string(res.Action),
		res.AgreementScore,
		matrixVersion,
		len(res.Engines),
		len(res.Abstained),
		res.DecidedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		rollbackTransaction(tx)
		return "", fmt.Errorf("failed to insert analysis %s: %w", id, err)
	}

	if v != nil {
		for i, r := range v.Reasons {
			evidence := ""
			if len(r.Evidence) > 0 {
				b, jsonErr := json.Marshal(r.Evidence)
				if jsonErr != nil {
					rollbackTransaction(tx)
					return "", fmt.Errorf("failed to marshal evidence for %s: %w", r.RuleID, jsonErr)
				}
				evidence = string(b)
			}
			_, err = tx.Exec(s.rebind(insertReasonSQL),
				id, i, r.RuleID, string(r.Severity), r.Score, r.Note,
				string(r.Mode), boolToInt(r.Demoted), evidence,
			)
			if err != nil {
				rollbackTransaction(tx)
				return "", fmt.Errorf("failed to insert reason %s for %s: %w", r.RuleID, id, err)
			}
		}
	}

	for i, line := range res.Reasoning {
		if _, err = tx.Exec(s.rebind(insertReasoningSQL), id, i, line); err != nil {
			rollbackTransaction(tx)
			return "", fmt.Errorf("failed to insert reasoning for %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return id, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
