// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"context"
	stderrors "errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jllopis/qlcrew/pkg/core"
	"github.com/jllopis/qlcrew/pkg/errors"
	"github.com/jllopis/qlcrew/pkg/selector"
	"github.com/jllopis/qlcrew/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrRunConsumed is reported when Steps is iterated more than once.
var ErrRunConsumed = stderrors.New("run already consumed")

// Run is one execution of a team over a task. It owns its history.
type Run struct {
	team *Team
	ctx  context.Context
	task string

	mu       sync.Mutex
	info     *core.RunInfo
	history  []core.Step
	consumed bool
	err      error
}

// ID returns the run id.
func (r *Run) ID() string { return r.info.ID }

// Task returns the task description.
func (r *Run) Task() string { return r.task }

// Info returns a snapshot of the run metadata.
func (r *Run) Info() core.RunInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.info
}

// History returns a copy of the steps produced so far.
func (r *Run) History() []core.Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.history)
}

// Err returns the reason the run stopped abnormally, if any.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Terminated reports whether the run reached a final status.
func (r *Run) Terminated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info.Done()
}

// Steps returns the lazy step sequence. Each step is yielded as soon as it is
// produced; the next one is only computed when the consumer asks for it. The
// sequence can be ranged over once.
func (r *Run) Steps() iter.Seq[core.Step] {
	return func(yield func(core.Step) bool) {
		r.mu.Lock()
		if r.consumed {
			r.err = ErrRunConsumed
			r.mu.Unlock()
			return
		}
		r.consumed = true
		r.info.Start()
		r.mu.Unlock()

		t := r.team
		ctx := core.WithRunID(r.ctx, r.info.ID)
		ctx, span := t.tracer.Start(ctx, "Team.Run", trace.WithAttributes(telemetry.RunAttributes(r.info.ID, r.task)...))
		defer span.End()

		r.saveRun(ctx)
		t.logger.InfoContext(ctx, "team.run.start",
			slog.String("run_id", r.info.ID),
			slog.Int("workers", t.roster.Len()),
		)
		t.emitter.Emit(ctx, core.NewEvent(core.EventRunStarted, "", r.info.ID, map[string]any{"task": r.task}))

		defer func() {
			info := r.Info()
			span.SetAttributes(
				attribute.String(telemetry.AttrRunStatus, string(info.Status)),
				attribute.Int(telemetry.AttrRunSteps, len(r.History())),
			)
			if info.Status == core.RunStatusFailed {
				span.SetStatus(codes.Error, info.Error)
			}
			r.saveRun(ctx)
			t.logger.InfoContext(ctx, "team.run.complete",
				slog.String("run_id", info.ID),
				slog.String("status", string(info.Status)),
			)
			t.emitter.Emit(ctx, core.NewEvent(core.EventRunTerminated, "", info.ID, map[string]any{
				"status": string(info.Status),
				"error":  info.Error,
			}))
		}()

		r.loop(ctx, yield)
	}
}

func (r *Run) loop(ctx context.Context, yield func(core.Step) bool) {
	t := r.team
	planner := t.roster.Planner().Identity()
	failures := 0

	for {
		if err := ctx.Err(); err != nil {
			r.cancel(err)
			return
		}
		history := r.History()

		candidate, err := t.selector.SelectNext(ctx, history, t.roster)
		if err != nil {
			if ctx.Err() != nil {
				r.cancel(ctx.Err())
				return
			}
			failures++
			t.metrics.RecordFailure(ctx, err, "selector")
			t.logger.WarnContext(ctx, "team.selection.failed",
				slog.String("run_id", r.info.ID),
				slog.Int("consecutive", failures),
				slog.String("error", err.Error()),
			)
			t.emitter.Emit(ctx, core.NewEvent(core.EventSelectionFailed, "", r.info.ID, map[string]any{
				"error":       err.Error(),
				"consecutive": failures,
			}))
			if failures >= t.maxSelectionFailures {
				msg := fmt.Sprintf("Run failed: no worker could be selected after %d attempts: %v", failures, err)
				step := r.failureStep(planner, core.LastOutput(history, r.task), msg)
				r.fail(errors.New(errors.CodeSelection, "selection failures exhausted", err))
				r.emit(ctx, &step, yield)
				return
			}
			candidate = planner
		} else {
			failures = 0
		}

		chosen := selector.Enforce(history, t.roster, candidate)
		w, _ := t.roster.Lookup(chosen)
		t.emitter.Emit(ctx, core.NewEvent(core.EventWorkerSelected, chosen, r.info.ID, map[string]any{
			"candidate": candidate,
			"index":     len(history),
		}))

		stepCtx, stepSpan := t.tracer.Start(core.WithStepIndex(ctx, len(history)), "Team.Step", trace.WithAttributes(
			telemetry.StepAttributes(r.info.ID, len(history), chosen)...,
		))
		step, err := w.Act(stepCtx, history, r.task)
		if err != nil {
			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, err.Error())
			stepSpan.End()
			if ctx.Err() != nil {
				r.cancel(ctx.Err())
				return
			}
			t.logger.ErrorContext(ctx, "team.worker.failed",
				slog.String("run_id", r.info.ID),
				slog.String("worker", chosen),
				slog.String("error", err.Error()),
			)
			step = r.failureStep(chosen, core.LastOutput(history, r.task),
				fmt.Sprintf("Run failed: worker %s could not complete its turn: %v", chosen, err))
			r.fail(err)
			r.emit(ctx, &step, yield)
			return
		}
		stepSpan.SetAttributes(attribute.Int(telemetry.AttrLLMToolCalls, len(step.Invocations)))
		stepSpan.End()

		if !r.emit(ctx, &step, yield) {
			return
		}
		if t.policy.IsTerminal(step) {
			r.mu.Lock()
			r.info.Terminate()
			r.mu.Unlock()
			return
		}
	}
}

// emit stamps the step with its run and index, then appends, persists and
// yields it. It reports whether the consumer wants more.
func (r *Run) emit(ctx context.Context, sp *core.Step, yield func(core.Step) bool) bool {
	t := r.team
	r.mu.Lock()
	sp.RunID = r.info.ID
	sp.Index = len(r.history)
	r.history = append(r.history, *sp)
	step := *sp
	r.mu.Unlock()

	if t.store != nil {
		if err := t.store.Append(ctx, step); err != nil {
			t.metrics.RecordFailure(ctx, err, "transcript")
			t.logger.WarnContext(ctx, "team.transcript.append_failed",
				slog.String("run_id", step.RunID),
				slog.Int("index", step.Index),
				slog.String("error", err.Error()),
			)
		}
	}
	t.metrics.RecordStep(ctx, step.Actor, step.Failed, float64(step.Duration().Microseconds())/1000)
	t.emitter.Emit(ctx, core.NewEvent(core.EventStepCompleted, step.Actor, step.RunID, map[string]any{
		"index":       step.Index,
		"invocations": len(step.Invocations),
		"failed":      step.Failed,
	}))

	if !yield(step) {
		r.mu.Lock()
		r.info.Cancel("consumer stopped pulling steps")
		r.mu.Unlock()
		return false
	}
	return true
}

func (r *Run) failureStep(actor, input, msg string) core.Step {
	now := time.Now().UTC()
	return core.Step{
		Actor:      actor,
		Input:      input,
		Output:     msg,
		Failed:     true,
		StartedAt:  now,
		FinishedAt: now,
	}
}

func (r *Run) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	r.info.Fail(err.Error())
}

func (r *Run) cancel(cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = errors.New(errors.CodeCancelled, "run cancelled", cause)
	r.info.Cancel(cause.Error())
}

func (r *Run) saveRun(ctx context.Context) {
	t := r.team
	if t.store == nil {
		return
	}
	if err := t.store.SaveRun(context.WithoutCancel(ctx), r.Info()); err != nil {
		t.metrics.RecordFailure(ctx, err, "transcript")
		t.logger.WarnContext(ctx, "team.transcript.save_run_failed",
			slog.String("run_id", r.info.ID),
			slog.String("error", err.Error()),
		)
	}
}
