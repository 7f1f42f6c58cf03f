// Command ingester applies mutual-fund trade instruction batches to the
// customer ledger.
//
//	ingester apply <batch-file>
//	ingester serve
//	ingester balance <customer-id> [isin]
//	ingester migrate up|down
//
// Settings come from the environment; see internal/config.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"

	"github.com/ffl/batch-ingester/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(int(subcommands.ExitUsageError))
	}
	slog.SetDefault(cfg.Logger(os.Stderr))

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	commander.Register(&applyCmd{cfg: cfg}, "")
	commander.Register(&serveCmd{cfg: cfg}, "")
	commander.Register(&balanceCmd{cfg: cfg}, "")
	commander.Register(&migrateCmd{cfg: cfg}, "")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}
