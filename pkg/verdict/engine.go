package verdict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mchmarny/veracity/pkg/detect"
	"github.com/mchmarny/veracity/pkg/feature"
	"github.com/mchmarny/veracity/pkg/rules"
)

// workersDefault bounds concurrent detector evaluation per analysis.
const workersDefault = 4

// Engine runs the governed detector set over one document and reduces
// the contributions into a verdict. Engines are stateless per analysis
// and safe for concurrent use.
type Engine struct {
	detectors  []detect.Detector
	governor   *rules.Governor
	thresholds Thresholds
	workers    int

	// injected for deterministic tests
	now   func() time.Time
	newID func() string
}

// NewEngine validates the wiring. Threshold misconfiguration fails here,
// at startup, never at analysis time.
func NewEngine(detectors []detect.Detector, g *rules.Governor, t Thresholds) (*Engine, error) {
	if len(detectors) == 0 {
		return nil, errors.New("at least one detector is required")
	}
	if g == nil {
		return nil, errors.New("governor is required")
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}
	seen := make(map[string]bool, len(detectors))
	for _, d := range detectors {
		if seen[d.ID()] {
			return nil, fmt.Errorf("duplicate detector id %q", d.ID())
		}
		seen[d.ID()] = true
	}
	return &Engine{
		detectors:  detectors,
		governor:   g,
		thresholds: t,
		workers:    workersDefault,
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

// Analyze evaluates every admissible detector and aggregates the
// governed contributions. The result is deterministic for identical
// inputs regardless of evaluation order: detectors are independent and
// the reduction is keyed by registry position.
func (e *Engine) Analyze(ctx context.Context, fs feature.Set, p feature.Profile) (*Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis canceled: %w", err)
	}
	p = p.Normalize()

	allowed := make([]detect.Detector, 0, len(e.detectors))
	for _, d := range e.detectors {
		if e.governor.Allowed(d.ID(), p) {
			allowed = append(allowed, d)
		}
	}

	results := make([]detect.Result, len(allowed))
	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	for i, d := range allowed {
		wg.Add(1)
		go func(i int, d detect.Detector) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = d.Evaluate(fs, p)
		}(i, d)
	}
	wg.Wait()

	v := &Verdict{
		ID:            e.newID(),
		Family:        p.Family,
		MatrixVersion: e.governor.Matrix().Version(),
		AnalyzedAt:    e.now().UTC(),
		Reasons:       make([]Reason, 0, len(allowed)),
		Trace:         make([]Execution, 0, len(allowed)),
	}

	total := 0.0
	hardFail := false
	for i, d := range allowed {
		res := results[i]
		mode, demoted := e.governor.EffectiveMode(d.ID(), p)
		v.Trace = append(v.Trace, Execution{
			RuleID:  d.ID(),
			Mode:    mode,
			Outcome: res.Outcome,
			Demoted: demoted,
		})

		if !res.Fired() {
			continue
		}
		c, ok := e.governor.Govern(d.ID(), p, res)
		if !ok {
			continue
		}

		total += c.Score
		if c.Severity == detect.SeverityHardFail {
			hardFail = true
		}
		v.Reasons = append(v.Reasons, Reason{
			RuleID:   c.RuleID,
			Severity: c.Severity,
			Score:    c.Score,
			Note:     c.Note,
			Mode:     c.Mode,
			Demoted:  c.Demoted,
			Evidence: c.Evidence,
		})
	}

	sortReasons(v.Reasons)
	v.Score = Score(total).Clamp()
	v.Label = e.thresholds.Classify(v.Score)
	if hardFail {
		// A logically impossible document is fake no matter how small
		// the aggregate is.
		v.Label = LabelFake
	}

	slog.Debug("analysis complete",
		"id", v.ID,
		"family", v.Family,
		"label", v.Label,
		"score", float64(v.Score),
		"reasons", len(v.Reasons),
	)

	return v, nil
}
