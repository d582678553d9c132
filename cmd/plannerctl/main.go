// Command plannerctl seeds, verifies and inspects the planner tables and
// lets pipeline stages store their job output.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&createTablesCmd{}, "setup")
	commander.Register(&seedCmd{}, "setup")
	commander.Register(&verifyCmd{}, "setup")
	commander.Register(&positionsCmd{}, "inspect")
	commander.Register(&valueCmd{}, "inspect")
	commander.Register(&jobsCmd{}, "jobs")
	commander.Register(&stageCmd{}, "jobs")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
