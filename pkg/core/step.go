// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

// Package core holds the data model shared by the pipeline packages: steps,
// capability invocations, run lifecycle and semantic events.
package core

import (
	"strings"
	"time"
)

// Invocation records one capability call emitted by a worker during its turn.
type Invocation struct {
	ID         string        `json:"id"`
	Capability string        `json:"capability"`
	Arguments  string        `json:"arguments"`
	Result     string        `json:"result"`
	Failed     bool          `json:"failed,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Step is one worker turn within a run.
type Step struct {
	RunID       string       `json:"run_id"`
	Index       int          `json:"index"`
	Actor       string       `json:"actor"`
	Input       string       `json:"input"`
	Output      string       `json:"output"`
	Invocations []Invocation `json:"invocations,omitempty"`
	// Failed marks a step that reports a failure instead of worker output.
	Failed     bool      `json:"failed,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns the wall time spent producing the step.
func (s Step) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Mentions reports whether the step output names the given identity as a
// whole word, ignoring case.
func (s Step) Mentions(identity string) bool {
	if identity == "" {
		return false
	}
	return IndexWord(strings.ToLower(s.Output), strings.ToLower(identity)) >= 0
}

// IndexWord returns the index of the first occurrence of word in text that is
// not part of a longer identifier, or -1.
func IndexWord(text, word string) int {
	if word == "" {
		return -1
	}
	for from := 0; from <= len(text)-len(word); {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return -1
		}
		at := from + i
		end := at + len(word)
		if (at == 0 || !identByte(text[at-1])) && (end == len(text) || !identByte(text[end])) {
			return at
		}
		from = at + 1
	}
	return -1
}

func identByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// LastOutput returns the output of the most recent step, or fallback when the
// history is empty.
func LastOutput(history []Step, fallback string) string {
	if len(history) == 0 {
		return fallback
	}
	return history[len(history)-1].Output
}
