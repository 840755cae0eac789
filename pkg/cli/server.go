package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/mchmarny/veracity/pkg/data"
	"github.com/mchmarny/veracity/pkg/ensemble"
	"github.com/mchmarny/veracity/pkg/metrics"
	"github.com/mchmarny/veracity/pkg/verdict"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 300
	serverMaxHeaderBytes      = 20
)

var (
	addressFlag = &cli.StringFlag{
		Name:  "address",
		Usage: "Address on which the server will listen (default: from config)",
	}

	serveCmd = &cli.Command{
		Name:            "serve",
		Aliases:         []string{"server"},
		Usage:           "Start the local analysis API server",
		HideHelpCommand: true,
		Action:          cmdStartServer,
		Flags: []cli.Flag{
			addressFlag,
		},
	}
)

func cmdStartServer(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	address := cmd.String(addressFlag.Name)
	if address == "" {
		address = cfg.Config.Server.Address
	}

	engine, arbiter, err := newAnalyzer(ctx, cfg, nil)
	if err != nil {
		return err
	}

	s := &http.Server{
		Addr:           address,
		Handler:        makeRouter(engine, arbiter, cfg.Store),
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("error starting server", "error", err)
		}
	}()

	slog.Info("server started", "address", fmt.Sprintf("http://%s", address))

	<-done

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("error shutting down server", "error", err)
	}
	return nil
}

func makeRouter(engine *verdict.Engine, arbiter *ensemble.Arbiter, store *data.Store) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /analyze", analyzeAPIHandler(engine, arbiter, store))
	mux.HandleFunc("GET /decisions", decisionListAPIHandler(store))
	mux.HandleFunc("GET /decisions/{id}", decisionAPIHandler(store))
	mux.HandleFunc("GET /summary", summaryAPIHandler(store))
	mux.HandleFunc("GET /healthz", healthAPIHandler)
	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}
