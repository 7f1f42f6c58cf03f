package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/ffl/batch-ingester/internal/batch"
	"github.com/ffl/batch-ingester/internal/config"
)

type applyCmd struct {
	cfg config.Config
}

func (*applyCmd) Name() string     { return "apply" }
func (*applyCmd) Synopsis() string { return "apply one instruction batch file atomically" }
func (*applyCmd) Usage() string {
	return `ingester apply <batch-file>

  Applies every instruction in <batch-file> in one transaction. Either all
  instructions are posted or none are. Use "-" to read the batch from stdin.
  Exits 0 on commit; on failure prints the error kind and line number to
  stderr and exits non-zero.
`
}

func (*applyCmd) SetFlags(*flag.FlagSet) {}

func (c *applyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "apply: expected exactly one batch file")
		return subcommands.ExitUsageError
	}

	var src io.Reader = os.Stdin
	if name := f.Arg(0); name != "-" {
		file, err := os.Open(name)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		defer file.Close()
		src = file
	}

	applier, err := newApplier(c.cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	d, err := openLedger(ctx, c.cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer d.Close()
	if err := d.openNotifiers(ctx, c.cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	out := batch.NewCoordinator(d.ledger, applier, d.notifiers...).Run(ctx, src)
	if !out.Committed() {
		fmt.Fprintln(os.Stderr, out.Message())
		return subcommands.ExitFailure
	}
	fmt.Println(out.Message())
	return subcommands.ExitSuccess
}
