// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/jllopis/qlcrew/pkg/console"
	"github.com/jllopis/qlcrew/pkg/core"
	"github.com/jllopis/qlcrew/pkg/transcript"
	"github.com/spf13/cobra"
)

func newTranscriptCmd(a *app) *cobra.Command {
	var (
		filter  transcript.Filter
		noColor bool
	)
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Show stored runs, or the steps of one run",
		Long: `Without --run, transcript lists the stored runs. Runs are only kept
across invocations with the sqlite driver:

  qlcrew --set transcript.driver=sqlite --set transcript.dsn=qlcrew.db transcript`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := transcript.Open(a.cfg.Transcript.Driver, a.cfg.Transcript.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Runs(ctx)
			if err != nil {
				return err
			}
			if filter.RunID == "" {
				if a.json {
					return printJSON(cmd.OutOrStdout(), runs)
				}
				return printRuns(cmd, runs)
			}

			var info *core.RunInfo
			for i := range runs {
				if runs[i].ID == filter.RunID {
					info = &runs[i]
					break
				}
			}
			if info == nil {
				return NewNotFoundError("run", filter.RunID)
			}
			steps, err := store.Steps(ctx, filter)
			if err != nil {
				return err
			}
			if a.json {
				return printJSON(cmd.OutOrStdout(), runResult{Run: *info, Steps: steps, Error: info.Error})
			}
			printer := console.NewPrinter(cmd.OutOrStdout())
			if noColor {
				printer.SetColor(false)
			}
			printer.Task(info.ID, info.Task)
			for _, step := range steps {
				printer.Step(step)
			}
			printer.Summary(*info)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.RunID, "run", "", "run id to print")
	cmd.Flags().StringVar(&filter.Actor, "actor", "", "only steps acted by this worker")
	cmd.Flags().BoolVar(&filter.FailedOnly, "failed", false, "only failure steps")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum number of steps (0 for all)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}

func printRuns(cmd *cobra.Command, runs []core.RunInfo) error {
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no runs stored")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tTASK")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Status, r.CreatedAt.Format(time.RFC3339), clipTask(r.Task))
	}
	return tw.Flush()
}

func clipTask(task string) string {
	const width = 60
	r := []rune(task)
	if len(r) <= width {
		return task
	}
	return string(r[:width-3]) + "..."
}
