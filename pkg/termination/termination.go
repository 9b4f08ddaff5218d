// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

// Package termination decides when a run has produced its final step.
package termination

import (
	"fmt"
	"strings"

	"github.com/jllopis/qlcrew/pkg/core"
)

// DefaultSentinel is the token the planning worker ends its summary with.
const DefaultSentinel = "TERMINATE"

// Policy inspects each appended step and reports whether the run must stop.
type Policy interface {
	IsTerminal(step core.Step) bool
}

// Func adapts a function to Policy.
type Func func(step core.Step) bool

// IsTerminal implements Policy.
func (f Func) IsTerminal(step core.Step) bool { return f(step) }

// Scope restricts which steps a sentinel policy scans.
type Scope string

const (
	// ScopeAny matches the sentinel in any worker's output.
	ScopeAny Scope = "any"
	// ScopePlanner matches the sentinel only in the planning worker's output.
	ScopePlanner Scope = "planner"
)

// ParseScope validates a configured scope. An empty value means ScopeAny.
func ParseScope(value string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(value))) {
	case "", ScopeAny:
		return ScopeAny, nil
	case ScopePlanner:
		return ScopePlanner, nil
	default:
		return "", fmt.Errorf("unknown sentinel scope %q", value)
	}
}

// Sentinel stops the run when Token appears in a step's output.
type Sentinel struct {
	Token   string
	Scope   Scope
	Planner string
}

// NewSentinel returns a sentinel policy with the default any-message scope.
func NewSentinel(token string) Sentinel {
	if token == "" {
		token = DefaultSentinel
	}
	return Sentinel{Token: token, Scope: ScopeAny}
}

// ForPlanner restricts the sentinel to steps acted by planner.
func (s Sentinel) ForPlanner(planner string) Sentinel {
	s.Scope = ScopePlanner
	s.Planner = planner
	return s
}

// IsTerminal implements Policy. Failure steps always end the run.
func (s Sentinel) IsTerminal(step core.Step) bool {
	if step.Failed {
		return true
	}
	token := s.Token
	if token == "" {
		token = DefaultSentinel
	}
	if s.Scope == ScopePlanner && step.Actor != s.Planner {
		return false
	}
	return strings.Contains(step.Output, token)
}

// MaxSteps stops the run once n steps have been produced.
func MaxSteps(n int) Policy {
	return Func(func(step core.Step) bool {
		return step.Failed || (n > 0 && step.Index+1 >= n)
	})
}

// Any stops the run when any of the policies does. Nil entries are ignored.
func Any(policies ...Policy) Policy {
	return Func(func(step core.Step) bool {
		for _, p := range policies {
			if p != nil && p.IsTerminal(step) {
				return true
			}
		}
		return false
	})
}
