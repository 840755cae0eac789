package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/mchmarny/veracity/pkg/auth"
	"github.com/mchmarny/veracity/pkg/config"
	"github.com/mchmarny/veracity/pkg/ensemble"
)

var (
	engineNameFlag = &cli.StringFlag{
		Name:     "name",
		Usage:    "Engine name (lowercase, alphanumeric)",
		Required: true,
	}

	engineURLFlag = &cli.StringFlag{
		Name:     "url",
		Usage:    "Engine base URL",
		Required: true,
	}

	engineTokenFlag = &cli.StringFlag{
		Name:  "token",
		Usage: "Engine API token, stored in the OS keychain (optional)",
	}

	engineTimeoutFlag = &cli.IntFlag{
		Name:  "timeout",
		Usage: "Engine timeout in seconds (optional)",
	}

	enginesCmd = &cli.Command{
		Name:            "engines",
		Aliases:         []string{"e"},
		Usage:           "Manage external analysis engines",
		HideHelpCommand: true,
		Commands: []*cli.Command{
			{
				Name:            "set",
				Usage:           "Add or update an engine",
				HideHelpCommand: true,
				Action:          cmdEngineSet,
				Flags: []cli.Flag{
					engineNameFlag,
					engineURLFlag,
					engineTokenFlag,
					engineTimeoutFlag,
				},
			},
			{
				Name:            "list",
				Usage:           "List configured engines",
				Aliases:         []string{"l"},
				HideHelpCommand: true,
				Action:          cmdEngineList,
			},
			{
				Name:            "check",
				Usage:           "Check the health of configured engines",
				HideHelpCommand: true,
				Action:          cmdEngineCheck,
			},
			{
				Name:            "remove",
				Usage:           "Remove an engine and its stored token",
				HideHelpCommand: true,
				Action:          cmdEngineRemove,
				Flags: []cli.Flag{
					engineNameFlag,
				},
			},
		},
	}
)

type engineInfo struct {
	Name     string `json:"name" yaml:"name"`
	URL      string `json:"url" yaml:"url"`
	HasToken bool   `json:"has_token" yaml:"hasToken"`
}

type engineHealth struct {
	Name    string `json:"name" yaml:"name"`
	URL     string `json:"url" yaml:"url"`
	Healthy bool   `json:"healthy" yaml:"healthy"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

func cmdEngineSet(_ context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	e := config.EngineConfig{
		Name:           cmd.String(engineNameFlag.Name),
		URL:            cmd.String(engineURLFlag.Name),
		TimeoutSeconds: int(cmd.Int(engineTimeoutFlag.Name)),
	}

	if token := cmd.String(engineTokenFlag.Name); token != "" {
		if err := cfg.Auth.SetToken(e.Name, token); err != nil {
			return fmt.Errorf("storing token: %w", err)
		}
	}

	replaced := false
	for i, existing := range cfg.Config.Engines {
		if existing.Name == e.Name {
			cfg.Config.Engines[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		cfg.Config.Engines = append(cfg.Config.Engines, e)
	}

	if err := cfg.Config.Validate(); err != nil {
		return fmt.Errorf("invalid engine: %w", err)
	}
	if err := config.Save(cfg.Home, cfg.Config); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	slog.Info("engine saved", "name", e.Name, "url", e.URL)
	return nil
}

func cmdEngineList(_ context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	list := make([]engineInfo, 0, len(cfg.Config.Engines))
	for _, e := range cfg.Config.Engines {
		_, err := cfg.Auth.GetToken(e.Name)
		list = append(list, engineInfo{
			Name:     e.Name,
			URL:      e.URL,
			HasToken: err == nil,
		})
	}

	return encode(list)
}

func cmdEngineCheck(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	list := make([]engineHealth, 0, len(cfg.Config.Engines))
	for _, e := range cfg.Config.Engines {
		list = append(list, checkEngine(ctx, cfg, e))
	}

	return encode(list)
}

func checkEngine(ctx context.Context, cfg *appConfig, e config.EngineConfig) engineHealth {
	h := engineHealth{Name: e.Name, URL: e.URL}

	token, err := cfg.Auth.GetToken(e.Name)
	if err != nil && !errors.Is(err, auth.ErrTokenNotFound) {
		h.Error = err.Error()
		return h
	}

	ext, err := ensemble.NewHTTPEngine(ctx, e.Name, e.URL, token)
	if err != nil {
		h.Error = err.Error()
		return h
	}

	checkCtx, cancel := context.WithTimeout(ctx, time.Duration(e.GetEngineTimeoutSeconds())*time.Second)
	defer cancel()

	if err := ext.Health(checkCtx); err != nil {
		h.Error = err.Error()
		return h
	}

	h.Healthy = true
	return h
}

func cmdEngineRemove(_ context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)
	name := cmd.String(engineNameFlag.Name)

	kept := make([]config.EngineConfig, 0, len(cfg.Config.Engines))
	found := false
	for _, e := range cfg.Config.Engines {
		if e.Name == name {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return fmt.Errorf("engine %q is not configured", name)
	}

	cfg.Config.Engines = kept
	if err := config.Save(cfg.Home, cfg.Config); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	if err := cfg.Auth.DeleteToken(name); err != nil {
		slog.Warn("failed to remove engine token", "name", name, "error", err)
	}

	slog.Info("engine removed", "name", name)
	return nil
}
