package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/gpazevedo/alex/domain/core/entities"
)

type positionsCmd struct {
	account string
	at      string
}

func (*positionsCmd) Name() string     { return "positions" }
func (*positionsCmd) Synopsis() string { return "list an account's holdings" }
func (*positionsCmd) Usage() string {
	return `plannerctl positions -account <id> [-at <date|timestamp>]

  Lists the current holdings, or the holdings as of -at when given.
`
}

func (c *positionsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "account id")
	f.StringVar(&c.at, "at", "", "as-of date (YYYY-MM-DD) or RFC3339 timestamp")
}

func (c *positionsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account == "" {
		fail("-account is required")
		return subcommands.ExitUsageError
	}
	at, err := parseAt(c.at)
	if err != nil {
		fail("-at: %v", err)
		return subcommands.ExitUsageError
	}

	store, err := openStore(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	if err := requireAccount(ctx, store, c.account); err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	var positions []*entities.CurrentPosition
	if at == nil {
		positions, err = store.Positions.CurrentPositions(ctx, c.account)
	} else {
		positions, err = store.Positions.PositionsAsOf(ctx, c.account, *at)
	}
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tQUANTITY\tACTION\tAS OF")
	for _, p := range positions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Symbol, p.Quantity.String(), p.LastAction, p.AsOfDate)
	}
	w.Flush()
	return subcommands.ExitSuccess
}

type valueCmd struct {
	account string
	at      string
}

func (*valueCmd) Name() string     { return "value" }
func (*valueCmd) Synopsis() string { return "value an account's holdings" }
func (*valueCmd) Usage() string {
	return `plannerctl value -account <id> [-at <date|timestamp>]

  Prices every holding at the latest price at or before -at (default now)
  and prints the total. Holdings without a price count as zero.
`
}

func (c *valueCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "account id")
	f.StringVar(&c.at, "at", "", "valuation date (YYYY-MM-DD) or RFC3339 timestamp")
}

func (c *valueCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account == "" {
		fail("-account is required")
		return subcommands.ExitUsageError
	}
	at, err := parseAt(c.at)
	if err != nil {
		fail("-at: %v", err)
		return subcommands.ExitUsageError
	}

	store, err := openStore(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	if err := requireAccount(ctx, store, c.account); err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	valuation, err := store.ValuationService.ValueAt(ctx, c.account, at)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tQUANTITY\tPRICE\tVALUE")
	for _, p := range valuation.Positions {
		price := "-"
		if p.Price != nil {
			price = p.Price.StringFixed(2)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Symbol, p.Quantity.String(), price, p.Value.StringFixed(2))
	}
	fmt.Fprintf(w, "TOTAL\t%s\t\t%s\n", valuation.TotalShares.String(), valuation.TotalValue.StringFixed(2))
	w.Flush()

	fmt.Printf("\naccount %s as of %s\n", valuation.AccountID, valuation.AsOf.Format("2006-01-02T15:04:05Z07:00"))
	return subcommands.ExitSuccess
}
