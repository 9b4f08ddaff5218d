// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

package selector

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/jllopis/qlcrew/pkg/core"
	"github.com/jllopis/qlcrew/pkg/errors"
	"github.com/jllopis/qlcrew/pkg/llm"
	"github.com/jllopis/qlcrew/pkg/resilience"
	"github.com/jllopis/qlcrew/pkg/worker"
)

// DefaultPrompt is the selection prompt. {roles}, {history} and
// {participants} are substituted before each call.
const DefaultPrompt = `Select an agent to perform task.

{roles}

Current conversation context:
{history}

Read the above conversation, then select an agent from {participants} to perform the next task.
Make sure the planner agent has assigned tasks before other agents start working.
Only select one agent.
`

// LLM asks a model to name the next worker.
type LLM struct {
	provider      llm.Provider
	model         string
	prompt        string
	allowRepeated bool
	retry         resilience.RetryConfig
	logger        *slog.Logger
}

// LLMOption configures an LLM selector.
type LLMOption func(*LLM)

// WithModel sets the model used for selection.
func WithModel(model string) LLMOption { return func(s *LLM) { s.model = model } }

// WithPrompt replaces DefaultPrompt.
func WithPrompt(prompt string) LLMOption {
	return func(s *LLM) {
		if strings.TrimSpace(prompt) != "" {
			s.prompt = prompt
		}
	}
}

// WithAllowRepeated controls whether the previous actor may be selected
// again. It defaults to true.
func WithAllowRepeated(allow bool) LLMOption { return func(s *LLM) { s.allowRepeated = allow } }

// WithRetry sets the retry policy for selection calls.
func WithRetry(rc resilience.RetryConfig) LLMOption { return func(s *LLM) { s.retry = rc } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) LLMOption {
	return func(s *LLM) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewLLM returns a content-driven selector.
func NewLLM(provider llm.Provider, opts ...LLMOption) *LLM {
	s := &LLM{
		provider:      provider,
		prompt:        DefaultPrompt,
		allowRepeated: true,
		retry:         resilience.DefaultRetryConfig(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelectNext implements Selector.
func (s *LLM) SelectNext(ctx context.Context, history []core.Step, roster *worker.Roster) (string, error) {
	candidates := s.candidates(history, roster)
	switch len(candidates) {
	case 0:
		return roster.Planner().Identity(), nil
	case 1:
		return candidates[0], nil
	}
	req := llm.ChatRequest{
		Model:    s.model,
		Messages: []llm.Message{llm.SystemMessage(s.render(history, roster, candidates))},
	}
	resp, err := resilience.Retry(ctx, s.retry, func(ctx context.Context) (*llm.ChatResponse, error) {
		return s.provider.Chat(ctx, req)
	})
	if err != nil {
		return "", errors.New(errors.CodeSelection, "selector model call failed", err).
			WithRecoverable(true)
	}
	name, ok := FirstMentioned(resp.Content, candidates)
	if !ok {
		s.logger.WarnContext(ctx, "selector.no_participant",
			slog.String("response", resp.Content),
			slog.Any("candidates", candidates),
		)
		return "", errors.New(errors.CodeSelection, "selector response names no participant", nil).
			WithContext("response", resp.Content).
			WithRecoverable(true)
	}
	return name, nil
}

func (s *LLM) candidates(history []core.Step, roster *worker.Roster) []string {
	names := roster.Identities()
	if s.allowRepeated || len(history) == 0 {
		return names
	}
	previous := history[len(history)-1].Actor
	return slices.DeleteFunc(names, func(name string) bool { return name == previous })
}

func (s *LLM) render(history []core.Step, roster *worker.Roster, candidates []string) string {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString(worker.TaskSource + ": " + history[0].Input + "\n")
	}
	for _, step := range history {
		b.WriteString("\n" + step.Actor + ": " + step.Output + "\n")
	}
	return strings.NewReplacer(
		"{roles}", roster.Roles(),
		"{history}", strings.TrimSpace(b.String()),
		"{participants}", "["+strings.Join(candidates, ", ")+"]",
	).Replace(s.prompt)
}

// FirstMentioned returns the candidate whose name appears earliest in text
// as a whole word. Longer names win ties.
func FirstMentioned(text string, candidates []string) (string, bool) {
	best, bestAt := "", -1
	for _, name := range candidates {
		at := core.IndexWord(text, name)
		if at < 0 {
			continue
		}
		if bestAt < 0 || at < bestAt || (at == bestAt && len(name) > len(best)) {
			best, bestAt = name, at
		}
	}
	return best, bestAt >= 0
}
