package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/mchmarny/veracity/pkg/auth"
	"github.com/mchmarny/veracity/pkg/config"
	"github.com/mchmarny/veracity/pkg/data"
	"github.com/mchmarny/veracity/pkg/detect"
	"github.com/mchmarny/veracity/pkg/ensemble"
	"github.com/mchmarny/veracity/pkg/logging"
	"github.com/mchmarny/veracity/pkg/rules"
	"github.com/mchmarny/veracity/pkg/verdict"
)

const (
	appName      = "veracity"
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	outputFormat = formatJSON

	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	dbFlag = &cli.StringFlag{
		Name:    "db",
		Usage:   "Database DSN (path for sqlite, connection string for postgres)",
		Sources: cli.EnvVars("VERACITY_DB"),
	}

	driverFlag = &cli.StringFlag{
		Name:    "driver",
		Usage:   fmt.Sprintf("Database driver [%s, %s]", data.DriverSQLite, data.DriverPostgres),
		Value:   data.DriverSQLite,
		Sources: cli.EnvVars("VERACITY_DB_DRIVER"),
	}

	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	app := newApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Home   string
	DBPath string
	Driver string
	Debug  bool
	Config *config.Config
	Store  *data.Store
	Auth   *auth.Store
}

func getConfig(cmd *cli.Command) *appConfig {
	return cmd.Root().Metadata[appConfigKey].(*appConfig)
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Deterministic fraud signal analysis for scanned receipts and invoices",
		Metadata:              map[string]any{},
		Flags: []cli.Flag{
			debugFlag,
			dbFlag,
			driverFlag,
			formatFlag,
		},
		Commands: []*cli.Command{
			analyzeCmd,
			historyCmd,
			showCmd,
			summaryCmd,
			enginesCmd,
			serveCmd,
			resetCmd,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool(debugFlag.Name) {
				logging.SetDefaultCLILogger("debug")
			}

			f := cmd.String(formatFlag.Name)
			if f == formatYAML || f == "yml" {
				outputFormat = formatYAML
			}

			home, created, err := config.GetOrCreateHomeDir(appName)
			if err != nil {
				return ctx, fmt.Errorf("resolving home dir: %w", err)
			}
			if created {
				slog.Debug("created app home", "dir", home)
			}

			cfg, err := config.ReadOrCreate(home)
			if err != nil {
				return ctx, fmt.Errorf("loading config: %w", err)
			}

			driver := cmd.String(driverFlag.Name)
			dsn := cmd.String(dbFlag.Name)
			if dsn == "" {
				if driver != data.DriverSQLite {
					return ctx, fmt.Errorf("driver %s requires the %s flag", driver, dbFlag.Name)
				}
				dsn = path.Join(home, data.DataFileName)
			}

			store, err := data.Open(driver, dsn)
			if err != nil {
				return ctx, fmt.Errorf("opening database: %w", err)
			}

			secrets, err := auth.NewStore(home)
			if err != nil {
				return ctx, fmt.Errorf("opening secret store: %w", err)
			}

			cmd.Root().Metadata[appConfigKey] = &appConfig{
				Home:   home,
				DBPath: dsn,
				Driver: driver,
				Debug:  cmd.Bool(debugFlag.Name),
				Config: cfg,
				Store:  store,
				Auth:   secrets,
			}
			return ctx, nil
		},
		After: func(_ context.Context, cmd *cli.Command) error {
			if cfg, ok := cmd.Root().Metadata[appConfigKey].(*appConfig); ok && cfg.Store != nil {
				cfg.Store.Close()
			}
			return nil
		},
	}
}

// newAnalyzer assembles the rule engine and the ensemble arbiter from
// the app config. The names slice narrows the external engines used;
// empty means all configured engines.
func newAnalyzer(ctx context.Context, cfg *appConfig, names []string) (*verdict.Engine, *ensemble.Arbiter, error) {
	governor, err := rules.NewGovernor(rules.DefaultMatrix(), cfg.Config.GetGovernor())
	if err != nil {
		return nil, nil, fmt.Errorf("building governor: %w", err)
	}

	engine, err := verdict.NewEngine(detect.All(cfg.Config.GetTolerances()), governor, cfg.Config.GetThresholds())
	if err != nil {
		return nil, nil, fmt.Errorf("building engine: %w", err)
	}

	externals := make([]ensemble.Engine, 0, len(cfg.Config.Engines))
	var timeout time.Duration
	for _, e := range cfg.Config.Engines {
		if len(names) > 0 && !data.Contains(names, e.Name) {
			continue
		}

		token, err := cfg.Auth.GetToken(e.Name)
		if err != nil && !errors.Is(err, auth.ErrTokenNotFound) {
			return nil, nil, fmt.Errorf("reading token for engine %s: %w", e.Name, err)
		}

		ext, err := ensemble.NewHTTPEngine(ctx, e.Name, e.URL, token)
		if err != nil {
			return nil, nil, fmt.Errorf("building engine %s: %w", e.Name, err)
		}
		externals = append(externals, ext)

		if t := time.Duration(e.GetEngineTimeoutSeconds()) * time.Second; t > timeout {
			timeout = t
		}
	}

	return engine, ensemble.NewArbiter(externals, timeout), nil
}

func encode(v any) error {
	if outputFormat == formatYAML {
		return yaml.NewEncoder(os.Stdout).Encode(v)
	}
	e := json.NewEncoder(os.Stdout)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
