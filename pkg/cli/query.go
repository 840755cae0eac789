package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/mchmarny/veracity/pkg/data"
)

var (
	historyLimitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Limits number of decisions returned",
		Value: data.ListLimitDefault,
	}

	decisionIDFlag = &cli.StringFlag{
		Name:     "id",
		Usage:    "Analysis ID of the decision",
		Required: true,
	}

	historyCmd = &cli.Command{
		Name:            "history",
		Aliases:         []string{"h"},
		Usage:           "List recent decisions, newest first",
		HideHelpCommand: true,
		Action:          cmdHistory,
		Flags: []cli.Flag{
			historyLimitFlag,
		},
	}

	showCmd = &cli.Command{
		Name:            "show",
		Usage:           "Show one decision with its reasons and reasoning",
		HideHelpCommand: true,
		Action:          cmdShow,
		Flags: []cli.Flag{
			decisionIDFlag,
		},
	}

	summaryCmd = &cli.Command{
		Name:            "summary",
		Aliases:         []string{"s"},
		Usage:           "Summarize recorded decisions by final label",
		HideHelpCommand: true,
		Action:          cmdSummary,
	}
)

func cmdHistory(_ context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	limit := int(cmd.Int(historyLimitFlag.Name))
	list, err := cfg.Store.ListDecisions(limit)
	if err != nil {
		return fmt.Errorf("listing decisions: %w", err)
	}

	return encode(list)
}

func cmdShow(_ context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	id := cmd.String(decisionIDFlag.Name)
	d, err := cfg.Store.GetDecision(id)
	if err != nil {
		return fmt.Errorf("getting decision %s: %w", id, err)
	}

	return encode(d)
}

func cmdSummary(_ context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	dist, err := cfg.Store.GetLabelDistribution()
	if err != nil {
		return fmt.Errorf("summarizing decisions: %w", err)
	}

	return encode(dist)
}
