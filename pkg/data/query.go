package data

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	// ListLimitDefault caps history listings unless the caller asks
	// for more.
	ListLimitDefault = 50

	selectAnalysisSQL = `SELECT
			id, family, rule_label, rule_score, final_label, confidence,
			action, agreement, matrix_version, engines, abstained, decided_at
		FROM analysis
		WHERE id = ?
	`

	selectReasonsSQL = `SELECT rule_id, severity, score, note, mode, demoted, evidence
		FROM reason
		WHERE analysis_id = ?
		ORDER BY position
	`

	selectReasoningSQL = `SELECT line
		FROM reasoning
		WHERE analysis_id = ?
		ORDER BY position
	`

	listAnalysesSQL = `SELECT
			id, family, rule_label, rule_score, final_label, confidence,
			action, agreement, matrix_version, engines, abstained, decided_at
		FROM analysis
		ORDER BY decided_at DESC, id
		LIMIT ?
	`

	selectLabelDistributionSQL = `SELECT final_label, COUNT(*)
		FROM analysis
		GROUP BY final_label
		ORDER BY 2 DESC
	`
)

// ErrDecisionNotFound is returned by GetDecision for unknown ids.
var ErrDecisionNotFound = errors.New("decision not found")

// LabelDistribution is chart-shaped summary data: one label per slot.
type LabelDistribution struct {
	Labels []string `json:"labels" yaml:"labels"`
	Data   []int64  `json:"data" yaml:"data"`
}

// GetDecision loads one stored decision with its full audit trail.
func (s *Store) GetDecision(id string) (*Decision, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}
	if id == "" {
		return nil, errors.New("id required")
	}

	d, err := scanDecision(s.db.QueryRow(s.rebind(selectAnalysisSQL), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDecisionNotFound
		}
		return nil, fmt.Errorf("failed to query analysis %s: %w", id, err)
	}

	rows, err := s.db.Query(s.rebind(selectReasonsSQL), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query reasons for %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var r DecisionReason
		var demoted int
		var evidence sql.NullString
		if err := rows.Scan(&r.RuleID, &r.Severity, &r.Score, &r.Note, &r.Mode, &demoted, &evidence); err != nil {
			return nil, fmt.Errorf("failed to scan reason row: %w", err)
		}
		r.Demoted = demoted == 1
		if evidence.Valid {
			r.Evidence = evidence.String
		}
		d.Reasons = append(d.Reasons, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading reason rows: %w", err)
	}

	lines, err := s.db.Query(s.rebind(selectReasoningSQL), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query reasoning for %s: %w", id, err)
	}
	defer lines.Close()
	for lines.Next() {
		var line string
		if err := lines.Scan(&line); err != nil {
			return nil, fmt.Errorf("failed to scan reasoning row: %w", err)
		}
		d.Reasoning = append(d.Reasoning, line)
	}
	if err := lines.Err(); err != nil {
		return nil, fmt.Errorf("failed reading reasoning rows: %w", err)
	}

	return d, nil
}

// ListDecisions returns the most recent decisions, newest first.
func (s *Store) ListDecisions(limit int) ([]*Decision, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}
	if limit < 1 {
		limit = ListLimitDefault
	}

	rows, err := s.db.Query(s.rebind(listAnalysesSQL), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	list := make([]*Decision, 0)
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis row: %w", err)
		}
		list = append(list, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading analysis rows: %w", err)
	}
	return list, nil
}

// GetLabelDistribution summarizes stored decisions by final label.
func (s *Store) GetLabelDistribution() (*LabelDistribution, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := s.db.Query(selectLabelDistributionSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query label distribution: %w", err)
	}
	defer rows.Close()

	dist := &LabelDistribution{
		Labels: make([]string, 0),
		Data:   make([]int64, 0),
	}
	for rows.Next() {
		var label string
		var count int64
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("failed to scan distribution row: %w", err)
		}
		dist.Labels = append(dist.Labels, label)
		dist.Data = append(dist.Data, count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading distribution rows: %w", err)
	}
	return dist, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDecision(row scanner) (*Decision, error) {
	var d Decision
	var decidedAt string
	err := row.Scan(
		&d.ID, &d.Family, &d.RuleLabel, &d.RuleScore, &d.FinalLabel,
		&d.Confidence, &d.Action, &d.Agreement, &d.MatrixVersion,
		&d.Engines, &d.Abstained, &decidedAt,
	)
	if err != nil {
		return nil, err
	}
	if t, parseErr := time.Parse(timeFormat, decidedAt); parseErr == nil {
		d.DecidedAt = t
	}
	return &d, nil
}
