package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/mchmarny/veracity/pkg/ensemble"
	"github.com/mchmarny/veracity/pkg/feature"
	"github.com/mchmarny/veracity/pkg/metrics"
	"github.com/mchmarny/veracity/pkg/verdict"
)

var (
	fileFlag = &cli.StringFlag{
		Name:    "file",
		Aliases: []string{"f"},
		Usage:   "Path to the extracted document JSON (use - for stdin)",
		Value:   "-",
	}

	enginesFlag = &cli.StringSliceFlag{
		Name:  "engines",
		Usage: "Names of configured engines to consult (default: all)",
	}

	noSaveFlag = &cli.BoolFlag{
		Name:  "no-save",
		Usage: "Do not record the decision in the local database",
	}

	analyzeCmd = &cli.Command{
		Name:            "analyze",
		Aliases:         []string{"a"},
		Usage:           "Analyze one extracted document and print the decision",
		HideHelpCommand: true,
		Action:          cmdAnalyze,
		Flags: []cli.Flag{
			fileFlag,
			enginesFlag,
			noSaveFlag,
		},
	}
)

// analysisOutput pairs the arbitrated decision with the rule verdict
// that drove it.
type analysisOutput struct {
	Decision *ensemble.Result `json:"decision" yaml:"decision"`
	Verdict  *verdict.Verdict `json:"verdict,omitempty" yaml:"verdict,omitempty"`
}

func cmdAnalyze(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	in, closer, err := openInput(cmd.String(fileFlag.Name))
	if err != nil {
		return err
	}
	defer closer()

	fs, profile, err := feature.DecodeDocument(in)
	if err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}

	engine, arbiter, err := newAnalyzer(ctx, cfg, cmd.StringSlice(enginesFlag.Name))
	if err != nil {
		return err
	}

	v, analysisErr := engine.Analyze(ctx, fs, profile)
	if analysisErr != nil {
		slog.Error("rule analysis failed, deferring to review", "error", analysisErr)
	}

	res := arbiter.Decide(ctx, v, analysisErr, fs, profile)

	if !cmd.Bool(noSaveFlag.Name) {
		id, err := cfg.Store.SaveDecision(res, v)
		if err != nil {
			return fmt.Errorf("saving decision: %w", err)
		}
		slog.Debug("decision saved", "id", id)
	}

	recordDecisionMetrics(res, v)

	return encode(&analysisOutput{Decision: res, Verdict: v})
}

func openInput(name string) (io.Reader, func(), error) {
	if name == "" || name == "-" {
		return os.Stdin, func() {}, nil
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, nil, fmt.Errorf("opening document %s: %w", name, err)
	}
	return f, func() { f.Close() }, nil
}

func recordDecisionMetrics(res *ensemble.Result, v *verdict.Verdict) {
	metrics.CountAnalysis(string(res.Label), string(res.Action))

	if v != nil {
		for _, r := range v.Reasons {
			metrics.CountFinding(r.RuleID, string(r.Severity))
		}
	}

	for _, ev := range res.Engines {
		metrics.ObserveEngineLatency(ev.Engine, ev.Elapsed.Seconds())
	}
	for _, name := range res.Abstained {
		metrics.CountAbstention(name)
	}
}
