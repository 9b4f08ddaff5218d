// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

// Package console renders run steps for humans on a terminal.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jllopis/qlcrew/pkg/core"
	"github.com/mattn/go-isatty"
)

const maxInvocationText = 400

// Printer writes steps as they are produced.
type Printer struct {
	w       io.Writer
	header  *color.Color
	invoke  *color.Color
	failure *color.Color
	faint   *color.Color
	steps   int
	calls   int
	started time.Time
}

// NewPrinter returns a printer for w. Colors are enabled only when w is a
// terminal.
func NewPrinter(w io.Writer) *Printer {
	p := &Printer{
		w:       w,
		header:  color.New(color.FgCyan, color.Bold),
		invoke:  color.New(color.FgYellow),
		failure: color.New(color.FgRed, color.Bold),
		faint:   color.New(color.Faint),
		started: time.Now(),
	}
	p.SetColor(IsTerminal(w))
	return p
}

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetColor forces colors on or off.
func (p *Printer) SetColor(enabled bool) {
	for _, c := range []*color.Color{p.header, p.invoke, p.failure, p.faint} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

// Task prints the run's initial task.
func (p *Printer) Task(runID, task string) {
	fmt.Fprintf(p.w, "%s\n%s\n", p.header.Sprintf("---------- user (%s) ----------", runID), task)
}

// Step prints one step with its invocations.
func (p *Printer) Step(step core.Step) {
	p.steps++
	p.calls += len(step.Invocations)
	title := fmt.Sprintf("---------- %s ----------", step.Actor)
	if step.Failed {
		fmt.Fprintln(p.w, p.failure.Sprint(title))
		fmt.Fprintln(p.w, p.failure.Sprint(step.Output))
		return
	}
	fmt.Fprintln(p.w, p.header.Sprint(title))
	for _, inv := range step.Invocations {
		line := fmt.Sprintf("[%s] %s(%s)", inv.ID, inv.Capability, clip(inv.Arguments))
		fmt.Fprintln(p.w, p.invoke.Sprint(line))
		result := clip(inv.Result)
		if inv.Failed {
			fmt.Fprintln(p.w, p.failure.Sprint("  -> "+result))
		} else {
			fmt.Fprintln(p.w, p.faint.Sprint("  -> "+result))
		}
	}
	fmt.Fprintln(p.w, step.Output)
}

// Summary prints run totals.
func (p *Printer) Summary(info core.RunInfo) {
	line := fmt.Sprintf("---------- %s: %d steps, %d invocations, %s ----------",
		info.Status, p.steps, p.calls, time.Since(p.started).Round(time.Millisecond))
	if info.Status == core.RunStatusFailed {
		fmt.Fprintln(p.w, p.failure.Sprint(line))
		return
	}
	fmt.Fprintln(p.w, p.header.Sprint(line))
}

func clip(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", "\\n")
	if len(s) <= maxInvocationText {
		return s
	}
	return s[:maxInvocationText-3] + "..."
}
