// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

// Package team drives runs: it asks the selector for the next worker, lets
// that worker act over the accumulated history and streams each step to the
// consumer until the termination policy stops the run.
package team

import (
	"context"
	"log/slog"

	"github.com/jllopis/qlcrew/pkg/core"
	"github.com/jllopis/qlcrew/pkg/errors"
	"github.com/jllopis/qlcrew/pkg/selector"
	"github.com/jllopis/qlcrew/pkg/telemetry"
	"github.com/jllopis/qlcrew/pkg/termination"
	"github.com/jllopis/qlcrew/pkg/transcript"
	"github.com/jllopis/qlcrew/pkg/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxSelectionFailures is the number of consecutive selector errors
// tolerated before a run fails.
const DefaultMaxSelectionFailures = 3

// Team is an immutable pipeline configuration. Runs started from the same
// team share nothing but the roster and its capabilities.
type Team struct {
	roster               *worker.Roster
	selector             selector.Selector
	policy               termination.Policy
	store                transcript.Store
	emitter              core.EventEmitter
	metrics              *telemetry.PipelineMetrics
	tracer               trace.Tracer
	logger               *slog.Logger
	maxSelectionFailures int
}

// Option configures a Team.
type Option func(*Team)

// WithStore persists runs and steps.
func WithStore(s transcript.Store) Option { return func(t *Team) { t.store = s } }

// WithEmitter sends semantic events to every given emitter.
func WithEmitter(emitters ...core.EventEmitter) Option {
	return func(t *Team) {
		switch len(emitters) {
		case 0:
		case 1:
			if emitters[0] != nil {
				t.emitter = emitters[0]
			}
		default:
			t.emitter = core.Fanout(emitters)
		}
	}
}

// WithMetrics records step counters and durations.
func WithMetrics(m *telemetry.PipelineMetrics) Option { return func(t *Team) { t.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Team) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithMaxSelectionFailures bounds consecutive selector errors.
func WithMaxSelectionFailures(n int) Option {
	return func(t *Team) {
		if n > 0 {
			t.maxSelectionFailures = n
		}
	}
}

// WithMaxSteps stops runs after n steps in addition to the policy.
func WithMaxSteps(n int) Option {
	return func(t *Team) {
		if n > 0 {
			t.policy = termination.Any(t.policy, termination.MaxSteps(n))
		}
	}
}

// New assembles a team.
func New(roster *worker.Roster, sel selector.Selector, policy termination.Policy, opts ...Option) (*Team, error) {
	if roster == nil {
		return nil, errors.New(errors.CodeSetup, "roster is required", nil)
	}
	if sel == nil {
		return nil, errors.New(errors.CodeSetup, "selector is required", nil)
	}
	if policy == nil {
		policy = termination.NewSentinel("")
	}
	t := &Team{
		roster:               roster,
		selector:             sel,
		policy:               policy,
		emitter:              core.NoopEventEmitter{},
		tracer:               otel.Tracer("qlcrew/team"),
		logger:               slog.Default(),
		maxSelectionFailures: DefaultMaxSelectionFailures,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Roster returns the team's workers.
func (t *Team) Roster() *worker.Roster { return t.roster }

// Start creates a run for task. Nothing happens until its steps are pulled.
func (t *Team) Start(ctx context.Context, task string) *Run {
	return &Run{
		team: t,
		ctx:  ctx,
		task: task,
		info: core.NewRunInfo(task),
	}
}

// Result is a drained run.
type Result struct {
	Info  core.RunInfo
	Steps []core.Step
}

// Summary returns the last step's output.
func (r *Result) Summary() string { return core.LastOutput(r.Steps, "") }

// Run drains a new run. The result is always populated; the error reports
// why a run did not terminate normally.
func (t *Team) Run(ctx context.Context, task string) (*Result, error) {
	run := t.Start(ctx, task)
	for range run.Steps() {
	}
	return &Result{Info: run.Info(), Steps: run.History()}, run.Err()
}
