package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/mchmarny/veracity/pkg/data"
)

var resetCmd = &cli.Command{
	Name:            "reset",
	Usage:           "Delete all recorded decisions and start fresh",
	HideHelpCommand: true,
	Action:          cmdReset,
}

func cmdReset(_ context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	if cfg.Driver != data.DriverSQLite {
		return fmt.Errorf("reset only supports the %s driver", data.DriverSQLite)
	}

	fmt.Printf("This will permanently delete all decisions in %s\n", cfg.DBPath)
	fmt.Print("Are you sure? [y/N]: ")

	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	if strings.ToLower(strings.TrimSpace(answer)) != "y" {
		fmt.Println("Aborted.")
		return nil
	}

	// close the DB before deleting the file
	if cfg.Store != nil {
		cfg.Store.Close()
		cfg.Store = nil
	}

	if err := os.Remove(cfg.DBPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting database: %w", err)
	}

	slog.Info("database deleted", "path", cfg.DBPath)

	store, err := data.Open(cfg.Driver, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("re-initializing database: %w", err)
	}
	cfg.Store = store

	slog.Info("database re-initialized", "path", cfg.DBPath)
	fmt.Println("Reset complete.")
	return nil
}
