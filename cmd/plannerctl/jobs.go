package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"github.com/gpazevedo/alex/domain/core/entities"
)

type jobsCmd struct {
	limit int
}

func (*jobsCmd) Name() string     { return "jobs" }
func (*jobsCmd) Synopsis() string { return "list jobs of every user" }
func (*jobsCmd) Usage() string {
	return `plannerctl jobs [-limit <n>]

  Scans the users table for jobs. Use for operations only: the scan reads
  the whole table.
`
}

func (c *jobsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "limit", 50, "maximum number of jobs, 0 for all")
}

func (c *jobsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.limit < 0 {
		fail("-limit must not be negative")
		return subcommands.ExitUsageError
	}

	store, err := openStore(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	jobs, err := store.JobService.ListAll(ctx, c.limit)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tTYPE\tSTATUS\tCREATED")
	for _, job := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", job.ID, job.ClerkUserID, job.JobType, job.Status, job.CreatedAt.Format(time.RFC3339))
	}
	w.Flush()
	return subcommands.ExitSuccess
}

type stageCmd struct {
	job   string
	stage string
	file  string
}

func (*stageCmd) Name() string     { return "stage" }
func (*stageCmd) Synopsis() string { return "store a pipeline stage's output on a job" }
func (*stageCmd) Usage() string {
	return `plannerctl stage -job <id> -stage <report|charts|retirement|summary> [-file <path>]

  Reads a JSON object from -file (stdin when omitted or "-") and stores it
  as the stage's payload. Other payload fields are left untouched.
`
}

func (c *stageCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.job, "job", "", "job id")
	f.StringVar(&c.stage, "stage", "", "report, charts, retirement or summary")
	f.StringVar(&c.file, "file", "-", "JSON payload file")
}

func (c *stageCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.job == "" {
		fail("-job is required")
		return subcommands.ExitUsageError
	}
	field, ok := entities.JobFieldForStage(c.stage)
	if !ok {
		fail("-stage must be report, charts, retirement or summary")
		return subcommands.ExitUsageError
	}
	payload, err := c.readPayload()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitUsageError
	}

	store, err := openStore(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	if err := store.JobService.RecordStage(ctx, c.job, field, payload); err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("stored %s on job %s\n", field, c.job)
	return subcommands.ExitSuccess
}

func (c *stageCmd) readPayload() (entities.Payload, error) {
	var r io.Reader = os.Stdin
	if c.file != "" && c.file != "-" {
		f, err := os.Open(c.file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var payload entities.Payload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if payload == nil {
		return nil, fmt.Errorf("payload must be a JSON object")
	}
	return payload, nil
}
