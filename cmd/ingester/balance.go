package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/ffl/batch-ingester/internal/config"
	"github.com/ffl/batch-ingester/internal/model"
	"github.com/ffl/batch-ingester/internal/store"
)

type balanceCmd struct {
	cfg config.Config
}

func (*balanceCmd) Name() string     { return "balance" }
func (*balanceCmd) Synopsis() string { return "print a customer's cash balance or fund holding" }
func (*balanceCmd) Usage() string {
	return `ingester balance <customer-id> [isin]

  Without an ISIN prints the customer's cash balance; with one prints the
  unit holding in that fund. Reads committed state only.
`
}

func (*balanceCmd) SetFlags(*flag.FlagSet) {}

func (c *balanceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 1 || f.NArg() > 2 {
		fmt.Fprintln(os.Stderr, "balance: expected <customer-id> [isin]")
		return subcommands.ExitUsageError
	}
	customerID, isin := f.Arg(0), f.Arg(1)

	d, err := openLedger(ctx, c.cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer d.Close()

	err = store.View(ctx, d.ledger, func(tx store.Tx) error {
		ok, err := tx.CustomerExists(ctx, customerID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("customer %s not found", customerID)
		}

		if isin == "" {
			cash, err := tx.CashBalance(ctx, customerID)
			if err != nil {
				return err
			}
			fmt.Printf("%s cash %s\n", customerID, model.FormatDecimal(cash))
			return nil
		}
		units, err := tx.UnitHolding(ctx, customerID, isin)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s units %s\n", customerID, isin, model.FormatDecimal(units))
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
