package verdict

import (
	"fmt"
	"sort"
	"time"

	"github.com/mchmarny/veracity/pkg/detect"
	"github.com/mchmarny/veracity/pkg/feature"
	"github.com/mchmarny/veracity/pkg/rules"
)

// Score is the aggregated fraud probability in [0,1]. It is not a
// confidence value: confidence in a label is a different axis owned by
// the ensemble layer, and the distinct type keeps the two from being
// assigned across.
type Score float64

// Clamp bounds the score into [0,1].
func (s Score) Clamp() Score {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Label is the rule engine's classification of a document.
type Label string

const (
	LabelReal       Label = "real"
	LabelSuspicious Label = "suspicious"
	LabelFake       Label = "fake"
)

// Valid reports whether l is one of the declared labels.
func (l Label) Valid() bool {
	switch l {
	case LabelReal, LabelSuspicious, LabelFake:
		return true
	}
	return false
}

// Threshold defaults, used when configuration does not override them.
const (
	ThresholdLowDefault  = 0.25
	ThresholdHighDefault = 0.70
)

// Thresholds are the classification cut points: score < Low is real,
// Low <= score < High is suspicious, High <= score is fake.
type Thresholds struct {
	Low  float64
	High float64
}

// Validate rejects inverted or out-of-range thresholds. Callers run this
// at startup; a misconfigured threshold pair must never reach a request.
func (t Thresholds) Validate() error {
	if t.Low < 0 || t.Low > 1 {
		return fmt.Errorf("low threshold must be in [0,1], got %f", t.Low)
	}
	if t.High < 0 || t.High > 1 {
		return fmt.Errorf("high threshold must be in [0,1], got %f", t.High)
	}
	if t.Low >= t.High {
		return fmt.Errorf("low threshold %f must be below high threshold %f", t.Low, t.High)
	}
	return nil
}

// Classify maps a clamped score onto a label.
func (t Thresholds) Classify(s Score) Label {
	switch {
	case float64(s) >= t.High:
		return LabelFake
	case float64(s) >= t.Low:
		return LabelSuspicious
	}
	return LabelReal
}

// Reason is one governed finding in a verdict's audit trail.
type Reason struct {
	RuleID   string          `json:"rule_id" yaml:"ruleId"`
	Severity detect.Severity `json:"severity" yaml:"severity"`
	Score    float64         `json:"score_delta" yaml:"scoreDelta"`
	Note     string          `json:"note" yaml:"note"`
	Mode     rules.Mode      `json:"mode" yaml:"mode"`
	Demoted  bool            `json:"demoted,omitempty" yaml:"demoted,omitempty"`
	Evidence detect.Evidence `json:"evidence,omitempty" yaml:"evidence,omitempty"`
}

// String renders the display line for the reason.
func (r Reason) String() string {
	return fmt.Sprintf("[%s] %s: %s", r.Severity, r.RuleID, r.Note)
}

// Execution records that a rule ran (or was skipped) during an analysis,
// including clean passes. A rule that could not check its preconditions
// is visible here as skipped rather than silently missing, which is what
// makes the trail answer "was this checked at all".
type Execution struct {
	RuleID  string         `json:"rule_id" yaml:"ruleId"`
	Mode    rules.Mode     `json:"mode" yaml:"mode"`
	Outcome detect.Outcome `json:"outcome" yaml:"outcome"`
	Demoted bool           `json:"demoted,omitempty" yaml:"demoted,omitempty"`
}

// Verdict is the rule engine's output for one document.
type Verdict struct {
	ID            string         `json:"id" yaml:"id"`
	Label         Label          `json:"label" yaml:"label"`
	Score         Score          `json:"score" yaml:"score"`
	Reasons       []Reason       `json:"reasons" yaml:"reasons"`
	Trace         []Execution    `json:"trace,omitempty" yaml:"trace,omitempty"`
	Family        feature.Family `json:"family" yaml:"family"`
	MatrixVersion string         `json:"matrix_version" yaml:"matrixVersion"`
	AnalyzedAt    time.Time      `json:"analyzed_at" yaml:"analyzedAt"`
}

// sortReasons orders the audit trail: severity first, then applied
// score, rule id as the stable tiebreak.
func sortReasons(reasons []Reason) {
	sort.SliceStable(reasons, func(i, j int) bool {
		if reasons[i].Severity.Rank() != reasons[j].Severity.Rank() {
			return reasons[i].Severity.Rank() > reasons[j].Severity.Rank()
		}
		if reasons[i].Score != reasons[j].Score {
			return reasons[i].Score > reasons[j].Score
		}
		return reasons[i].RuleID < reasons[j].RuleID
	})
}
