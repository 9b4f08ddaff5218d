// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jllopis/qlcrew/pkg/console"
	"github.com/jllopis/qlcrew/pkg/core"
	"github.com/spf13/cobra"
)

type runFlags struct {
	task      string
	database  string
	target    string
	line      int
	templates string
	noColor   bool
}

type runResult struct {
	Run   core.RunInfo `json:"run"`
	Steps []core.Step  `json:"steps"`
	Error string       `json:"error,omitempty"`
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the team on a task and stream its steps",
		Example: `  qlcrew run --task "Register the database /work/bzipDB and stop."
  qlcrew run --database /work/bzipDB --target decompress.c --line 212 --templates /work/QueryTemplate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			task, err := f.taskText()
			if err != nil {
				return err
			}
			return runTask(cmd, a, task, f.noColor)
		},
	}
	cmd.Flags().StringVar(&f.task, "task", "", "task text given to the team")
	cmd.Flags().StringVar(&f.database, "database", "", "CodeQL database directory")
	cmd.Flags().StringVar(&f.target, "target", "", "source file holding the target call site")
	cmd.Flags().IntVar(&f.line, "line", 0, "line of the target call site")
	cmd.Flags().StringVar(&f.templates, "templates", "", "folder holding the CodeQL query templates")
	cmd.Flags().BoolVar(&f.noColor, "no-color", false, "disable colored output")
	return cmd
}

// taskText returns --task, or the function boundary request built from the
// database flags.
func (f runFlags) taskText() (string, error) {
	if strings.TrimSpace(f.task) != "" {
		return f.task, nil
	}
	switch {
	case f.database == "":
		return "", NewInvalidArgumentError("database", "--task or --database is required")
	case f.target == "":
		return "", NewInvalidArgumentError("target", "--target is required with --database")
	case f.line <= 0:
		return "", NewInvalidArgumentError("line", "--line must be a positive line number")
	case f.templates == "":
		return "", NewInvalidArgumentError("templates", "--templates is required with --database")
	}
	return boundaryTask(f.database, f.target, f.line, f.templates), nil
}

// boundaryTask is the five stage request: register the database, generate a
// boundary query from templates, evaluate it, decode the results and print
// the enclosing function.
func boundaryTask(database, target string, line int, templates string) string {
	return strings.Join([]string{
		"Your task is to handle my request step by step.",
		fmt.Sprintf("First, register the code database %s.", database),
		fmt.Sprintf("Second, generate a query to find function boundaries for target call site in the codebase. "+
			"The target call site is in the %s, line %d. Codeql templates are in the folder %s.", target, line, templates),
		"Third, run the generated query to find the function boundaries.",
		"Fourth, decode the generated '.bqrs' file to csv.",
		"Fifth, output the code snippet of the function in csv.",
	}, " ")
}

func runTask(cmd *cobra.Command, a *app, task string, noColor bool) error {
	ctx := cmd.Context()
	p, err := buildPipeline(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			a.logger.Warn("pipeline close failed", slog.String("error", err.Error()))
		}
	}()

	run := p.team.Start(ctx, task)
	a.logger.Info("run starting",
		slog.String("run_id", run.ID()),
		slog.Int("workers", p.roster.Len()),
		slog.Int("capabilities", p.registry.Len()),
	)

	if a.json {
		for range run.Steps() {
		}
		out := runResult{Run: run.Info(), Steps: run.History()}
		if err := run.Err(); err != nil {
			out.Error = err.Error()
		}
		if err := printJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
		return run.Err()
	}

	printer := console.NewPrinter(cmd.OutOrStdout())
	if noColor {
		printer.SetColor(false)
	}
	printer.Task(run.ID(), task)
	for step := range run.Steps() {
		printer.Step(step)
	}
	printer.Summary(run.Info())
	return run.Err()
}
