// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

// Package worker implements pipeline workers: LLM-backed roles bound to at
// most one capability, the pool that creates them with shared model
// settings, and the roster assembled at setup from discovered capabilities.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jllopis/qlcrew/pkg/capability"
	"github.com/jllopis/qlcrew/pkg/core"
	"github.com/jllopis/qlcrew/pkg/errors"
	"github.com/jllopis/qlcrew/pkg/llm"
	"github.com/jllopis/qlcrew/pkg/resilience"
	"github.com/jllopis/qlcrew/pkg/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TaskSource is the message name given to the run's initial task.
const TaskSource = "user"

// DefaultMaxToolRounds is the number of tool rounds a worker may run before
// it must reflect on the results.
const DefaultMaxToolRounds = 1

var identityPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Pool creates workers sharing one LLM backend and its settings.
type Pool struct {
	provider      llm.Provider
	model         string
	temperature   float64
	retry         resilience.RetryConfig
	maxToolRounds int
	metrics       *telemetry.PipelineMetrics
	tracer        trace.Tracer
	logger        *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithModel sets the model name sent with every chat request.
func WithModel(model string) Option {
	return func(p *Pool) { p.model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(p *Pool) { p.temperature = t }
}

// WithRetry sets the retry policy applied to chat calls.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(p *Pool) { p.retry = rc }
}

// WithMaxToolRounds bounds the tool rounds per turn. Values below 1 are
// ignored.
func WithMaxToolRounds(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxToolRounds = n
		}
	}
}

// WithMetrics records invocation counters.
func WithMetrics(m *telemetry.PipelineMetrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithLogger sets the logger used by workers.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPool returns a pool backed by provider.
func NewPool(provider llm.Provider, opts ...Option) (*Pool, error) {
	if provider == nil {
		return nil, errors.New(errors.CodeInvalidInput, "llm provider is required", nil)
	}
	p := &Pool{
		provider:      provider,
		retry:         resilience.DefaultRetryConfig(),
		maxToolRounds: DefaultMaxToolRounds,
		tracer:        otel.Tracer("qlcrew/worker"),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Model returns the configured model name.
func (p *Pool) Model() string { return p.model }

// Create builds a worker. A nil capability makes a planning worker that may
// only reason and delegate.
func (p *Pool) Create(identity, description, instructions string, c *capability.Capability) (*Worker, error) {
	if !identityPattern.MatchString(identity) {
		return nil, errors.New(errors.CodeInvalidInput, "worker identity must match [a-zA-Z0-9_-]{1,64}", nil).
			WithContext("identity", identity)
	}
	return &Worker{
		identity:     identity,
		description:  strings.TrimSpace(description),
		instructions: strings.TrimSpace(instructions),
		capability:   c,
		pool:         p,
	}, nil
}

// Worker is a role participating in a run. It is immutable once created.
type Worker struct {
	identity     string
	description  string
	instructions string
	capability   *capability.Capability
	pool         *Pool
}

// Identity returns the worker name.
func (w *Worker) Identity() string { return w.identity }

// Description returns the role description shown to the selector.
func (w *Worker) Description() string { return w.description }

// Instructions returns the system instructions.
func (w *Worker) Instructions() string { return w.instructions }

// Capability returns the bound capability, or nil for a planning worker.
func (w *Worker) Capability() *capability.Capability { return w.capability }

// Bound reports whether the worker has a capability.
func (w *Worker) Bound() bool { return w.capability != nil }

// Act runs one turn over the shared history and returns the resulting step.
// The step's run id comes from ctx; its index is left for the caller.
func (w *Worker) Act(ctx context.Context, history []core.Step, task string) (core.Step, error) {
	p := w.pool
	runID, _ := core.RunID(ctx)
	ctx, span := p.tracer.Start(ctx, "Worker.Act", trace.WithAttributes(
		telemetry.StepAttributes(runID, len(history), w.identity)...,
	))
	defer span.End()

	step := core.Step{
		RunID:     runID,
		Actor:     w.identity,
		Input:     core.LastOutput(history, task),
		StartedAt: time.Now().UTC(),
	}

	messages := w.conversation(history, task)
	var tools []llm.Tool
	if w.capability != nil {
		tools = []llm.Tool{w.capability.Definition()}
	}

	for round := 0; ; round++ {
		req := llm.ChatRequest{
			Model:       p.model,
			Messages:    messages,
			Temperature: p.temperature,
		}
		if round < p.maxToolRounds {
			req.Tools = tools
		}
		resp, err := w.chat(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return core.Step{}, err
		}

		if len(resp.ToolCalls) == 0 || req.Tools == nil {
			if len(resp.ToolCalls) > 0 {
				p.logger.DebugContext(ctx, "worker.tool_calls.discarded",
					slog.String("worker", w.identity),
					slog.String("run_id", runID),
					slog.Int("count", len(resp.ToolCalls)),
				)
			}
			step.Output = strings.TrimSpace(resp.Content)
			if step.Output == "" && len(step.Invocations) > 0 {
				step.Output = summarize(step.Invocations)
			}
			break
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			if err := ctx.Err(); err != nil {
				return core.Step{}, errors.New(errors.CodeCancelled, "turn cancelled before invocation", err).
					WithContext("worker", w.identity)
			}
			inv := w.invoke(ctx, call)
			step.Invocations = append(step.Invocations, inv)
			messages = append(messages, llm.ToolMessage(inv.ID, inv.Result))
		}
	}

	step.FinishedAt = time.Now().UTC()
	span.SetAttributes(attribute.Int(telemetry.AttrLLMToolCalls, len(step.Invocations)))
	p.logger.InfoContext(ctx, "worker.turn.complete",
		slog.String("worker", w.identity),
		slog.String("run_id", runID),
		slog.Int("invocations", len(step.Invocations)),
		slog.Duration("duration", step.Duration()),
	)
	return step, nil
}

// conversation renders the shared history from this worker's point of view:
// its own turns are assistant messages, everybody else's are named user
// messages.
func (w *Worker) conversation(history []core.Step, task string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	if w.instructions != "" {
		messages = append(messages, llm.SystemMessage(w.instructions))
	}
	messages = append(messages, llm.UserMessage(TaskSource, task))
	for _, step := range history {
		if step.Actor == w.identity {
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: step.Output})
			continue
		}
		messages = append(messages, llm.UserMessage(step.Actor, step.Output))
	}
	return messages
}

func (w *Worker) chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p := w.pool
	rc := p.retry
	rc.OnRetry = func(attempt int, err error) {
		p.logger.WarnContext(ctx, "worker.llm.retry",
			slog.String("worker", w.identity),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}
	ctx, span := p.tracer.Start(ctx, "Worker.LLM.Chat")
	defer span.End()

	resp, err := resilience.Retry(ctx, rc, func(ctx context.Context) (*llm.ChatResponse, error) {
		return p.provider.Chat(ctx, req)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.New(errors.CodeCancelled, "turn cancelled", ctxErr).
				WithContext("worker", w.identity)
		}
		ce := wrapLLMError(err, p.model, w.identity)
		p.metrics.RecordFailure(ctx, ce, "worker-llm")
		span.RecordError(ce)
		span.SetStatus(codes.Error, ce.Error())
		return nil, ce
	}
	span.SetAttributes(telemetry.LLMUsageAttributes(p.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, len(resp.ToolCalls))...)
	return resp, nil
}

// invoke executes one tool call. Failures never escape: they become the
// invocation result so the model can reason about them.
func (w *Worker) invoke(ctx context.Context, call llm.ToolCall) core.Invocation {
	p := w.pool
	inv := core.Invocation{
		ID:         call.ID,
		Capability: call.Function.Name,
		Arguments:  call.Function.Arguments,
	}
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "Worker.Invoke")
	defer span.End()

	var err error
	if call.Function.Name != w.capability.Name() {
		err = errors.New(errors.CodeNotFound, fmt.Sprintf("capability %q is not available to %s", call.Function.Name, w.identity), nil)
	} else {
		inv.Result, err = w.capability.Invoke(ctx, call.Function.Arguments)
	}
	inv.Duration = time.Since(start)
	if err != nil {
		ce := wrapToolError(err, call.Function.Name, call.ID)
		inv.Failed = true
		inv.Result = "Error: " + err.Error()
		p.metrics.RecordFailure(ctx, ce, "worker-tool")
		span.RecordError(ce)
		p.logger.WarnContext(ctx, "worker.invoke.failed",
			slog.String("worker", w.identity),
			slog.String("capability", call.Function.Name),
			slog.String("call_id", call.ID),
			slog.String("error", err.Error()),
		)
	}
	span.SetAttributes(telemetry.InvocationAttributes(
		inv.Capability, inv.ID, string(w.capability.Source()),
		float64(inv.Duration.Microseconds())/1000, !inv.Failed,
	)...)
	p.metrics.RecordInvocation(ctx, inv.Capability, !inv.Failed)
	return inv
}

func summarize(invocations []core.Invocation) string {
	parts := make([]string, 0, len(invocations))
	for _, inv := range invocations {
		parts = append(parts, inv.Result)
	}
	return strings.Join(parts, "\n")
}
