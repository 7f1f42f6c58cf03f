package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/ffl/batch-ingester/internal/api"
	"github.com/ffl/batch-ingester/internal/batch"
	"github.com/ffl/batch-ingester/internal/config"
)

type serveCmd struct {
	cfg config.Config
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the HTTP batch upload and query server" }
func (*serveCmd) Usage() string {
	return `ingester serve

  Listens on $PORT. POST /api/v1/batches applies a batch file; outcomes are
  broadcast on GET /api/v1/ws and published to NATS when configured.
`
}

func (*serveCmd) SetFlags(*flag.FlagSet) {}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	applier, err := newApplier(c.cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	d, err := openLedger(ctx, c.cfg)
	if err != nil {
		slog.Error("open ledger", "err", err)
		return subcommands.ExitFailure
	}
	defer d.Close()
	if err := d.openNotifiers(ctx, c.cfg); err != nil {
		slog.Error("open notifiers", "err", err)
		return subcommands.ExitFailure
	}

	hub := api.NewHub()
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	notifiers := append([]batch.Notifier{hub}, d.notifiers...)
	coord := batch.NewCoordinator(d.ledger, applier, notifiers...)

	srv := &http.Server{
		Addr:         ":" + c.cfg.Port,
		Handler:      api.NewServer(coord, d.ledger, hub).Routes(),
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("batch-ingester listening", "port", c.cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		slog.Error("server error", "err", err)
		return subcommands.ExitFailure
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	slog.Info("shutting down batch-ingester...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
