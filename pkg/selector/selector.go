// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

// Package selector chooses which worker acts next in a run.
//
// Content-driven selection asks an LLM to read the conversation; rule-based
// selection follows the planner's numbered delegation list. Whatever the
// strategy, Enforce keeps capability-bound workers waiting until the planner
// has assigned them work.
package selector

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/jllopis/qlcrew/pkg/core"
	"github.com/jllopis/qlcrew/pkg/errors"
	"github.com/jllopis/qlcrew/pkg/worker"
)

// Selector picks the identity of the next worker.
type Selector interface {
	SelectNext(ctx context.Context, history []core.Step, roster *worker.Roster) (string, error)
}

// Func adapts a function to Selector.
type Func func(ctx context.Context, history []core.Step, roster *worker.Roster) (string, error)

// SelectNext implements Selector.
func (f Func) SelectNext(ctx context.Context, history []core.Step, roster *worker.Roster) (string, error) {
	return f(ctx, history, roster)
}

// Enforce applies the ordering precondition to a candidate. The planner acts
// first, unknown names fall back to it, and a capability-bound worker is only
// eligible once some planner step has named it.
func Enforce(history []core.Step, roster *worker.Roster, candidate string) string {
	planner := roster.Planner().Identity()
	if len(history) == 0 {
		return planner
	}
	w, ok := roster.Lookup(candidate)
	if !ok {
		return planner
	}
	if !w.Bound() {
		return candidate
	}
	for _, step := range history {
		if step.Actor == planner && step.Mentions(candidate) {
			return candidate
		}
	}
	return planner
}

// Delegation is one numbered assignment from a planner message.
type Delegation struct {
	Index  int
	Worker string
	Task   string
}

var delegationLine = regexp.MustCompile(`^\s*(\d+)[.)]\s*\**([A-Za-z0-9_-]+)\**\s*:\s*(.*)$`)

// ParseDelegations extracts "N. <worker> : <task>" lines in message order.
func ParseDelegations(text string) []Delegation {
	var out []Delegation
	for _, line := range strings.Split(text, "\n") {
		m := delegationLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		index, _ := strconv.Atoi(m[1])
		out = append(out, Delegation{Index: index, Worker: m[2], Task: strings.TrimSpace(m[3])})
	}
	return out
}

// Rule follows the latest planner delegation list in order and returns to
// the planner once every assignee has acted after it.
type Rule struct{}

// NewRule returns a deterministic selector.
func NewRule() *Rule { return &Rule{} }

// SelectNext implements Selector.
func (Rule) SelectNext(_ context.Context, history []core.Step, roster *worker.Roster) (string, error) {
	planner := roster.Planner().Identity()
	last := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Actor == planner {
			last = i
			break
		}
	}
	if last < 0 {
		return planner, nil
	}

	acted := make(map[string]bool)
	for _, step := range history[last+1:] {
		acted[step.Actor] = true
	}
	for _, d := range ParseDelegations(history[last].Output) {
		if d.Worker == planner || acted[d.Worker] {
			continue
		}
		if _, ok := roster.Lookup(d.Worker); !ok {
			continue
		}
		return d.Worker, nil
	}
	return planner, nil
}

// Sequence replays a fixed list of identities. It is meant for tests.
type Sequence struct {
	mu    sync.Mutex
	names []string
	next  int
}

// NewSequence returns a selector yielding names in order.
func NewSequence(names ...string) *Sequence {
	return &Sequence{names: append([]string(nil), names...)}
}

// SelectNext implements Selector.
func (s *Sequence) SelectNext(context.Context, []core.Step, *worker.Roster) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.names) {
		return "", errors.New(errors.CodeSelection, "selection sequence exhausted", nil).
			WithRecoverable(true)
	}
	name := s.names[s.next]
	s.next++
	return name, nil
}
