package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/gpazevedo/alex/application/seeding"
	"github.com/gpazevedo/alex/infrastructure/persistence/dynamodb"
	"github.com/gpazevedo/alex/infrastructure/persistence/schema"
)

type createTablesCmd struct{}

func (*createTablesCmd) Name() string     { return "create-tables" }
func (*createTablesCmd) Synopsis() string { return "create the users and instruments tables if missing" }
func (*createTablesCmd) Usage() string {
	return `plannerctl create-tables

  Creates both tables with their indexes. Meant for DynamoDB Local; deployed
  tables are managed by infrastructure code.
`
}
func (*createTablesCmd) SetFlags(*flag.FlagSet) {}

func (*createTablesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	store, err := openStore(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	for _, table := range []*dynamodb.Table{store.Tables.Users, store.Tables.Instruments} {
		name := table.Schema().Name
		created, err := table.CreateIfMissing(ctx, schema.CreateTableInput(table.Schema()))
		if err != nil {
			fail("create %s: %v", name, err)
			return subcommands.ExitFailure
		}
		if created {
			fmt.Printf("created %s\n", name)
		} else {
			fmt.Printf("%s already exists\n", name)
		}
	}
	return subcommands.ExitSuccess
}

type seedCmd struct {
	catalog string
}

func (*seedCmd) Name() string     { return "seed" }
func (*seedCmd) Synopsis() string { return "load the instrument catalog and initial prices" }
func (*seedCmd) Usage() string {
	return `plannerctl seed [-catalog <file.yaml>]

  Writes every catalog instrument and records its current price. Without
  -catalog the built-in catalog of ETFs is used. Bad entries are reported
  and skipped.
`
}

func (c *seedCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.catalog, "catalog", "", "YAML catalog file (defaults to the built-in catalog)")
}

func (c *seedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	entries, err := c.entries()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitUsageError
	}

	store, err := openStore(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	result, err := store.Seeder.Seed(ctx, entries)
	if err != nil {
		fail("seeding interrupted: %v", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("seeded %d/%d instruments\n", len(result.Succeeded), result.Total())
	for _, symbol := range result.FailedSymbols() {
		fmt.Printf("  %s: %v\n", symbol, result.Failed[symbol])
	}
	if len(result.Failed) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *seedCmd) entries() ([]seeding.Entry, error) {
	if c.catalog == "" {
		return seeding.DefaultCatalog()
	}
	f, err := os.Open(c.catalog)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return seeding.LoadCatalog(f)
}

type verifyCmd struct{}

func (*verifyCmd) Name() string     { return "verify" }
func (*verifyCmd) Synopsis() string { return "check that the deployed tables are usable" }
func (*verifyCmd) Usage() string {
	return `plannerctl verify

  Checks that both tables are active, that the catalog is seeded and that a
  user, account and position round trip through the store. The test records
  are left in place and carry a test_verify_ prefix.
`
}
func (*verifyCmd) SetFlags(*flag.FlagSet) {}

func (*verifyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	store, err := openStore(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	report := store.Verifier.Run(ctx)
	for _, check := range report.Checks {
		mark := "PASS"
		if !check.Passed {
			mark = "FAIL"
		}
		line := fmt.Sprintf("[%s] %-12s %s", mark, check.Name, check.Detail)
		if check.Err != nil {
			line += ": " + check.Err.Error()
		}
		fmt.Println(line)
	}

	if !report.OK() {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
