package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/ffl/batch-ingester/internal/config"
	"github.com/ffl/batch-ingester/internal/store"
	"github.com/ffl/batch-ingester/migrations"
)

type migrateCmd struct {
	cfg config.Config
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply or roll back the ledger schema" }
func (*migrateCmd) Usage() string {
	return `ingester migrate up|down

  up applies every pending migration; down rolls back the latest one.
  Requires DATABASE_URL.
`
}

func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (c *migrateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 || (f.Arg(0) != "up" && f.Arg(0) != "down") {
		fmt.Fprintln(os.Stderr, "migrate: expected up or down")
		return subcommands.ExitUsageError
	}

	pool, err := openPool(ctx, c.cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer pool.Close()

	m := store.NewMigrator(pool, migrations.FS)
	if f.Arg(0) == "up" {
		err = m.Up(ctx)
	} else {
		err = m.Down(ctx)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
