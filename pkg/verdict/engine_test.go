package verdict

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mchmarny/veracity/pkg/detect"
	"github.com/mchmarny/veracity/pkg/feature"
	"github.com/mchmarny/veracity/pkg/rules"
)

// stubDetector returns a canned result and counts invocations so tests
// can prove a detector did or did not run.
type stubDetector struct {
	id     string
	result detect.Result
	calls  *atomic.Int32
}

func (d stubDetector) ID() string { return d.id }

func (d stubDetector) Evaluate(feature.Set, feature.Profile) detect.Result {
	if d.calls != nil {
		d.calls.Add(1)
	}
	return d.result
}

func stubMatrix(t *testing.T) *rules.Matrix {
	t.Helper()
	m, err := rules.NewMatrix("test", []rules.Descriptor{
		{
			ID:          "structural_check",
			Version:     1,
			Families:    map[feature.Family]rules.Mode{feature.FamilyTaxInvoice: rules.ModeBlock},
			MaxSeverity: detect.SeverityHardFail,
		},
		{
			ID:          "heuristic_check",
			Version:     1,
			Families:    map[feature.Family]rules.Mode{feature.FamilyTaxInvoice: rules.ModeSoft},
			MaxSeverity: detect.SeverityWarning,
		},
		{
			ID:          "observer_check",
			Version:     1,
			Families:    map[feature.Family]rules.Mode{feature.FamilyTaxInvoice: rules.ModeAudit},
			MaxSeverity: detect.SeverityWarning,
		},
		{
			ID:          "quiet_check",
			Version:     1,
			Families:    map[feature.Family]rules.Mode{feature.FamilyTaxInvoice: rules.ModeBlock},
			MaxSeverity: detect.SeverityCritical,
		},
		{
			ID:          "foreign_check",
			Version:     1,
			Families:    map[feature.Family]rules.Mode{feature.FamilyPOSReceipt: rules.ModeBlock},
			MaxSeverity: detect.SeverityCritical,
		},
	})
	require.NoError(t, err)
	return m
}

func stubGovernor(t *testing.T, m *rules.Matrix) *rules.Governor {
	t.Helper()
	g, err := rules.NewGovernor(m, rules.GovernorConfig{
		SoftFactor:            0.3,
		FamilyConfidenceFloor: 0.55,
	})
	require.NoError(t, err)
	return g
}

func taxProfile() feature.Profile {
	return feature.Profile{
		Family:             feature.FamilyTaxInvoice,
		FamilyConfidence:   0.9,
		Country:            "IN",
		CountryConfidence:  0.9,
		Language:           "en",
		LanguageConfidence: 0.95,
	}
}

func testSet() feature.Set {
	return feature.NewSet(map[string]string{feature.KeyTotal: "118.00"}, nil)
}

func fixEngine(e *Engine) {
	e.now = func() time.Time { return time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC) }
	e.newID = func() string { return "vrd-0001" }
}

func TestNewEngine(t *testing.T) {
	g := stubGovernor(t, stubMatrix(t))
	th := Thresholds{Low: ThresholdLowDefault, High: ThresholdHighDefault}
	det := []detect.Detector{stubDetector{id: "structural_check", result: detect.Pass()}}

	_, err := NewEngine(nil, g, th)
	assert.Error(t, err)

	_, err = NewEngine(det, nil, th)
	assert.Error(t, err)

	_, err = NewEngine(det, g, Thresholds{Low: 0.7, High: 0.25})
	assert.Error(t, err)

	_, err = NewEngine([]detect.Detector{
		stubDetector{id: "structural_check", result: detect.Pass()},
		stubDetector{id: "structural_check", result: detect.Pass()},
	}, g, th)
	assert.ErrorContains(t, err, "duplicate")

	e, err := NewEngine(det, g, th)
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestAnalyzeAggregates(t *testing.T) {
	g := stubGovernor(t, stubMatrix(t))
	e, err := NewEngine([]detect.Detector{
		stubDetector{id: "structural_check", result: detect.Finding(0.2, detect.SeverityWarning, "structure off", nil)},
		stubDetector{id: "heuristic_check", result: detect.Finding(0.5, detect.SeverityCritical, "texture off", nil)},
		stubDetector{id: "observer_check", result: detect.Finding(0.35, detect.SeverityWarning, "watching", nil)},
		stubDetector{id: "quiet_check", result: detect.Pass()},
	}, g, Thresholds{Low: 0.25, High: 0.70})
	require.NoError(t, err)
	fixEngine(e)

	v, err := e.Analyze(context.Background(), testSet(), taxProfile())
	require.NoError(t, err)

	assert.Equal(t, "vrd-0001", v.ID)
	assert.Equal(t, feature.FamilyTaxInvoice, v.Family)
	assert.Equal(t, "test", v.MatrixVersion)
	assert.Equal(t, time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC), v.AnalyzedAt)

	// 0.2 at full strength, 0.5 damped to 0.15, audit scores nothing
	assert.InDelta(t, 0.35, float64(v.Score), 1e-9)
	assert.Equal(t, LabelSuspicious, v.Label)

	require.Len(t, v.Reasons, 3)
	assert.Equal(t, "structural_check", v.Reasons[0].RuleID)
	assert.Equal(t, detect.SeverityWarning, v.Reasons[0].Severity)
	assert.Equal(t, "heuristic_check", v.Reasons[1].RuleID)
	assert.Equal(t, detect.SeverityWarning, v.Reasons[1].Severity)
	assert.InDelta(t, 0.15, v.Reasons[1].Score, 1e-9)
	assert.Equal(t, "observer_check", v.Reasons[2].RuleID)
	assert.Equal(t, detect.SeverityInfo, v.Reasons[2].Severity)
	assert.Zero(t, v.Reasons[2].Score)

	require.Len(t, v.Trace, 4)
	outcomes := map[string]detect.Outcome{}
	for _, x := range v.Trace {
		outcomes[x.RuleID] = x.Outcome
	}
	assert.Equal(t, detect.OutcomeFired, outcomes["structural_check"])
	assert.Equal(t, detect.OutcomePassed, outcomes["quiet_check"])
}

func TestAnalyzeRecordsSkips(t *testing.T) {
	g := stubGovernor(t, stubMatrix(t))
	e, err := NewEngine([]detect.Detector{
		stubDetector{id: "structural_check", result: detect.Skip()},
	}, g, Thresholds{Low: 0.25, High: 0.70})
	require.NoError(t, err)
	fixEngine(e)

	v, err := e.Analyze(context.Background(), testSet(), taxProfile())
	require.NoError(t, err)

	// A rule that could not check still shows up in the trail
	assert.Empty(t, v.Reasons)
	require.Len(t, v.Trace, 1)
	assert.Equal(t, detect.OutcomeSkipped, v.Trace[0].Outcome)
	assert.Equal(t, LabelReal, v.Label)
	assert.Zero(t, float64(v.Score))
}

func TestAnalyzeHardFailOverridesThresholds(t *testing.T) {
	g := stubGovernor(t, stubMatrix(t))
	e, err := NewEngine([]detect.Detector{
		stubDetector{id: "structural_check", result: detect.Finding(0.1, detect.SeverityHardFail, "impossible document", nil)},
	}, g, Thresholds{Low: 0.25, High: 0.70})
	require.NoError(t, err)
	fixEngine(e)

	v, err := e.Analyze(context.Background(), testSet(), taxProfile())
	require.NoError(t, err)

	// The aggregate alone would classify as real
	assert.InDelta(t, 0.1, float64(v.Score), 1e-9)
	assert.Equal(t, LabelFake, v.Label)
}

func TestAnalyzeForbiddenNeverEvaluates(t *testing.T) {
	var calls atomic.Int32
	g := stubGovernor(t, stubMatrix(t))
	e, err := NewEngine([]detect.Detector{
		stubDetector{
			id:     "foreign_check",
			result: detect.Finding(0.9, detect.SeverityCritical, "should not run", nil),
			calls:  &calls,
		},
	}, g, Thresholds{Low: 0.25, High: 0.70})
	require.NoError(t, err)
	fixEngine(e)

	v, err := e.Analyze(context.Background(), testSet(), taxProfile())
	require.NoError(t, err)

	// Forbidden pairs leave no trace of any kind
	assert.Zero(t, calls.Load())
	assert.Empty(t, v.Reasons)
	assert.Empty(t, v.Trace)
	assert.Equal(t, LabelReal, v.Label)

	// The same detector runs where the matrix allows it
	p := taxProfile()
	p.Family = feature.FamilyPOSReceipt
	v, err = e.Analyze(context.Background(), testSet(), p)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	require.Len(t, v.Trace, 1)
}

func TestAnalyzeDemotesOnShakyFamily(t *testing.T) {
	g := stubGovernor(t, stubMatrix(t))
	e, err := NewEngine([]detect.Detector{
		stubDetector{id: "structural_check", result: detect.Finding(0.2, detect.SeverityWarning, "structure off", nil)},
	}, g, Thresholds{Low: 0.25, High: 0.70})
	require.NoError(t, err)
	fixEngine(e)

	p := taxProfile()
	p.FamilyConfidence = 0.4

	v, err := e.Analyze(context.Background(), testSet(), p)
	require.NoError(t, err)

	require.Len(t, v.Reasons, 1)
	assert.Equal(t, rules.ModeSoft, v.Reasons[0].Mode)
	assert.True(t, v.Reasons[0].Demoted)
	assert.InDelta(t, 0.06, v.Reasons[0].Score, 1e-9)

	require.Len(t, v.Trace, 1)
	assert.True(t, v.Trace[0].Demoted)
	assert.Equal(t, rules.ModeSoft, v.Trace[0].Mode)
	assert.Equal(t, LabelReal, v.Label)
}

func TestAnalyzeClampsAggregate(t *testing.T) {
	m, err := rules.NewMatrix("test", []rules.Descriptor{
		{ID: "check_a", Version: 1, Families: map[feature.Family]rules.Mode{feature.FamilyTaxInvoice: rules.ModeBlock}, MaxSeverity: detect.SeverityCritical},
		{ID: "check_b", Version: 1, Families: map[feature.Family]rules.Mode{feature.FamilyTaxInvoice: rules.ModeBlock}, MaxSeverity: detect.SeverityCritical},
		{ID: "check_c", Version: 1, Families: map[feature.Family]rules.Mode{feature.FamilyTaxInvoice: rules.ModeBlock}, MaxSeverity: detect.SeverityCritical},
	})
	require.NoError(t, err)

	e, err := NewEngine([]detect.Detector{
		stubDetector{id: "check_a", result: detect.Finding(0.5, detect.SeverityCritical, "a", nil)},
		stubDetector{id: "check_b", result: detect.Finding(0.5, detect.SeverityCritical, "b", nil)},
		stubDetector{id: "check_c", result: detect.Finding(0.5, detect.SeverityCritical, "c", nil)},
	}, stubGovernor(t, m), Thresholds{Low: 0.25, High: 0.70})
	require.NoError(t, err)
	fixEngine(e)

	v, err := e.Analyze(context.Background(), testSet(), taxProfile())
	require.NoError(t, err)

	assert.Equal(t, Score(1), v.Score)
	assert.Equal(t, LabelFake, v.Label)
}

func TestAnalyzeDeterministic(t *testing.T) {
	g := stubGovernor(t, stubMatrix(t))
	e, err := NewEngine([]detect.Detector{
		stubDetector{id: "structural_check", result: detect.Finding(0.2, detect.SeverityWarning, "structure off", nil)},
		stubDetector{id: "heuristic_check", result: detect.Finding(0.5, detect.SeverityCritical, "texture off", nil)},
		stubDetector{id: "quiet_check", result: detect.Pass()},
	}, g, Thresholds{Low: 0.25, High: 0.70})
	require.NoError(t, err)
	fixEngine(e)

	first, err := e.Analyze(context.Background(), testSet(), taxProfile())
	require.NoError(t, err)
	second, err := e.Analyze(context.Background(), testSet(), taxProfile())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAnalyzeCanceledContext(t *testing.T) {
	g := stubGovernor(t, stubMatrix(t))
	e, err := NewEngine([]detect.Detector{
		stubDetector{id: "structural_check", result: detect.Pass()},
	}, g, Thresholds{Low: 0.25, High: 0.70})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = e.Analyze(ctx, testSet(), taxProfile())
	assert.Error(t, err)
}

func TestAnalyzeNormalizesProfile(t *testing.T) {
	g := stubGovernor(t, stubMatrix(t))
	e, err := NewEngine([]detect.Detector{
		stubDetector{id: "structural_check", result: detect.Finding(0.3, detect.SeverityWarning, "structure off", nil)},
	}, g, Thresholds{Low: 0.25, High: 0.70})
	require.NoError(t, err)
	fixEngine(e)

	p := taxProfile()
	p.Family = feature.Family("  TAX_INVOICE ")

	v, err := e.Analyze(context.Background(), testSet(), p)
	require.NoError(t, err)

	assert.Equal(t, feature.FamilyTaxInvoice, v.Family)
	require.Len(t, v.Reasons, 1)
}

func TestAnalyzeScoreMonotonic(t *testing.T) {
	g := stubGovernor(t, stubMatrix(t))

	// Raising a single detector's raw delta, with everything else held
	// fixed, must never lower the aggregate.
	prev := -1.0
	for _, raw := range []float64{0.1, 0.3, 0.6, 0.9} {
		e, err := NewEngine([]detect.Detector{
			stubDetector{id: "structural_check", result: detect.Finding(0.2, detect.SeverityWarning, "structure off", nil)},
			stubDetector{id: "heuristic_check", result: detect.Finding(raw, detect.SeverityWarning, "texture off", nil)},
		}, g, Thresholds{Low: 0.25, High: 0.70})
		require.NoError(t, err)
		fixEngine(e)

		v, err := e.Analyze(context.Background(), testSet(), taxProfile())
		require.NoError(t, err)

		assert.GreaterOrEqual(t, float64(v.Score), prev, "raw delta %f", raw)
		prev = float64(v.Score)
	}
}
