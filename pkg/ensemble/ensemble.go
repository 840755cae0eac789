package ensemble

import (
	"context"
	"math"
	"time"

	"github.com/mchmarny/veracity/pkg/feature"
	"github.com/mchmarny/veracity/pkg/verdict"
)

// Confidence is the arbiter's confidence in the final label, in [0,1].
// It is a different axis than verdict.Score: a real document with a low
// fraud score is a high-confidence call. The distinct type exists so the
// two can never be assigned across without an explicit conversion.
type Confidence float64

// Action is the arbiter's routing recommendation.
type Action string

const (
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionHumanReview Action = "human_review"
)

// Confidence mapping weights. The base is what the label alone is worth;
// the slope scales with how decisively the score sits inside the label's
// band. Every mapping is capped: this layer never claims certainty.
const (
	confidenceCap = 0.95

	fakeBase  = 0.60
	fakeSlope = 0.35

	realBase  = 0.50
	realSlope = 0.45

	suspiciousBase  = 0.50
	suspiciousSlope = 0.45
)

// confidenceFor converts a rule verdict onto the confidence axis.
//
// Fake grows with the score: the deeper into the fake band, the surer
// the call. Real grows with distance from fraud: a near-zero score is a
// confident real. Suspicious is symmetric around the midpoint: the
// closer to 0.5, the more clearly the document belongs in the gray band.
func confidenceFor(l verdict.Label, s verdict.Score) Confidence {
	score := float64(s.Clamp())
	var c float64
	switch l {
	case verdict.LabelFake:
		c = fakeBase + score*fakeSlope
	case verdict.LabelReal:
		c = realBase + (1-score)*realSlope
	default:
		c = suspiciousBase + (0.5-math.Abs(score-0.5))*suspiciousSlope
	}
	return Confidence(math.Min(c, confidenceCap))
}

// actionFor maps a final label onto its routing action.
func actionFor(l verdict.Label) Action {
	switch l {
	case verdict.LabelFake:
		return ActionReject
	case verdict.LabelReal:
		return ActionApprove
	}
	return ActionHumanReview
}

// EngineVerdict is one external engine's opaque opinion of a document.
type EngineVerdict struct {
	Engine  string        `json:"engine" yaml:"engine"`
	Label   verdict.Label `json:"label" yaml:"label"`
	Score   float64       `json:"score" yaml:"score"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Engine is an independently run analysis model consulted during
// arbitration. Implementations are opaque oracles: the arbiter reads
// their labels, it never interprets their internals.
type Engine interface {
	Name() string
	Check(ctx context.Context, fs feature.Set, p feature.Profile) (*EngineVerdict, error)
}

// Result is the final arbitrated verdict for a document.
type Result struct {
	AnalysisID     string          `json:"analysis_id" yaml:"analysisId"`
	Label          verdict.Label   `json:"label" yaml:"label"`
	Confidence     Confidence      `json:"confidence" yaml:"confidence"`
	Action         Action          `json:"action" yaml:"action"`
	AgreementScore float64         `json:"agreement_score" yaml:"agreementScore"`
	Reasoning      []string        `json:"reasoning" yaml:"reasoning"`
	Engines        []EngineVerdict `json:"engines,omitempty" yaml:"engines,omitempty"`
	Abstained      []string        `json:"abstained,omitempty" yaml:"abstained,omitempty"`
	DecidedAt      time.Time       `json:"decided_at" yaml:"decidedAt"`
}
