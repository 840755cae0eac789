package ensemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mchmarny/veracity/pkg/feature"
	"github.com/mchmarny/veracity/pkg/verdict"
)

// engineTimeoutDefault bounds each external engine call. A slow engine
// degrades to abstention rather than holding the decision.
const engineTimeoutDefault = 5 * time.Second

// reasoningMaxRuleLines caps how many rule reasons the arbitrated
// reasoning repeats; the full list stays on the verdict itself.
const reasoningMaxRuleLines = 3

// Arbiter reconciles the rule engine's verdict with external engine
// opinions. The trust ordering is fixed: the rule verdict drives the
// final label because it is the one explainable engine; external models
// only ever shade reasoning and agreement.
type Arbiter struct {
	engines []Engine
	timeout time.Duration

	now func() time.Time
}

// NewArbiter wires the external engines. An empty engine list is valid:
// arbitration then reduces to the confidence mapping.
func NewArbiter(engines []Engine, timeout time.Duration) *Arbiter {
	if timeout <= 0 {
		timeout = engineTimeoutDefault
	}
	return &Arbiter{
		engines: engines,
		timeout: timeout,
		now:     time.Now,
	}
}

// Decide produces the final verdict. It never returns an error: an
// analysis that failed upstream fails closed into suspicious with
// human review, never into a silent real.
func (a *Arbiter) Decide(ctx context.Context, v *verdict.Verdict, analysisErr error, fs feature.Set, p feature.Profile) *Result {
	res := &Result{
		DecidedAt: a.now().UTC(),
		Reasoning: make([]string, 0, 8),
	}

	if analysisErr == nil && v == nil {
		analysisErr = errors.New("rule engine produced no verdict")
	}
	if analysisErr != nil {
		slog.Error("rule engine failed, failing closed", "error", analysisErr)
		res.Label = verdict.LabelSuspicious
		res.Confidence = confidenceFor(verdict.LabelSuspicious, 0.5)
		res.Action = ActionHumanReview
		res.Reasoning = append(res.Reasoning,
			fmt.Sprintf("rule engine failed (%v); failing closed to suspicious for human review", analysisErr))
		return res
	}

	res.AnalysisID = v.ID
	res.Label = v.Label
	res.Confidence = confidenceFor(v.Label, v.Score)
	res.Action = actionFor(v.Label)
	res.Reasoning = append(res.Reasoning,
		fmt.Sprintf("rule engine: %s at score %.2f (matrix %s)", v.Label, float64(v.Score), v.MatrixVersion))
	for i, r := range v.Reasons {
		if i == reasoningMaxRuleLines {
			res.Reasoning = append(res.Reasoning, fmt.Sprintf("and %d more reason(s)", len(v.Reasons)-i))
			break
		}
		res.Reasoning = append(res.Reasoning, r.String())
	}

	responses, abstentions := a.collect(ctx, fs, p)

	matches := 0
	for _, ev := range responses {
		res.Engines = append(res.Engines, ev)
		marker := "differs from"
		if ev.Label == v.Label {
			matches++
			marker = "matches"
		}
		res.Reasoning = append(res.Reasoning,
			fmt.Sprintf("engine %s: %s at %.2f in %s, %s rule label", ev.Engine, ev.Label, ev.Score, ev.Elapsed.Round(time.Millisecond), marker))
	}
	for _, ab := range abstentions {
		res.Abstained = append(res.Abstained, ab.engine)
		res.Reasoning = append(res.Reasoning,
			fmt.Sprintf("engine %s: abstained (%v)", ab.engine, ab.reason))
	}

	// Agreement is reported for the audit trail only. It never feeds
	// the confidence value.
	if len(responses) > 0 {
		res.AgreementScore = float64(matches) / float64(len(responses))
		res.Reasoning = append(res.Reasoning,
			fmt.Sprintf("agreement: %d of %d responding engine(s) match the rule label", matches, len(responses)))
	} else {
		res.AgreementScore = 0
		res.Reasoning = append(res.Reasoning, "no external engines responded")
	}

	slog.Debug("arbitration complete",
		"id", res.AnalysisID,
		"label", res.Label,
		"confidence", float64(res.Confidence),
		"action", res.Action,
		"engines", len(responses),
		"abstained", len(abstentions),
	)

	return res
}

// abstention records why an engine's opinion is missing. Missing is
// never disagreement.
type abstention struct {
	engine string
	reason error
}

// collect queries all engines concurrently, each under its own timeout.
func (a *Arbiter) collect(ctx context.Context, fs feature.Set, p feature.Profile) ([]EngineVerdict, []abstention) {
	if len(a.engines) == 0 {
		return nil, nil
	}

	type outcome struct {
		ev  *EngineVerdict
		err error
	}
	outcomes := make([]outcome, len(a.engines))

	var g errgroup.Group
	for i, eng := range a.engines {
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			start := time.Now()
			ev, err := eng.Check(tctx, fs, p)
			if err != nil {
				outcomes[i] = outcome{err: err}
				return nil
			}
			if ev == nil {
				outcomes[i] = outcome{err: errors.New("engine returned no verdict")}
				return nil
			}
			if !ev.Label.Valid() {
				outcomes[i] = outcome{err: fmt.Errorf("engine returned unknown label %q", ev.Label)}
				return nil
			}
			if ev.Elapsed == 0 {
				ev.Elapsed = time.Since(start)
			}
			outcomes[i] = outcome{ev: ev}
			return nil
		})
	}
	// Goroutines report abstentions through their slots, never errors.
	_ = g.Wait()

	responses := make([]EngineVerdict, 0, len(a.engines))
	abstentions := make([]abstention, 0)
	for i, eng := range a.engines {
		o := outcomes[i]
		if o.err != nil {
			abstentions = append(abstentions, abstention{engine: eng.Name(), reason: o.err})
			continue
		}
		responses = append(responses, *o.ev)
	}
	return responses, abstentions
}
