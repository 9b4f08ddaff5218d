// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys for pipeline telemetry. LLM keys follow the gen_ai
// conventions.
const (
	AttrRunID        = "qlcrew.run.id"
	AttrRunTask      = "qlcrew.run.task"
	AttrRunSteps     = "qlcrew.run.steps"
	AttrRunStatus    = "qlcrew.run.status"
	AttrStepIndex    = "qlcrew.step.index"
	AttrStepFailed   = "qlcrew.step.failed"
	AttrWorker       = "qlcrew.worker"
	AttrSelector     = "qlcrew.selector"
	AttrCapability   = "qlcrew.capability.name"
	AttrCapSource    = "qlcrew.capability.source"
	AttrCallID       = "qlcrew.capability.call_id"
	AttrCallSuccess  = "qlcrew.capability.success"
	AttrCallDuration = "qlcrew.capability.duration_ms"

	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMToolCalls    = "gen_ai.tool_calls"
)

const maxTaskAttrLen = 256

// RunAttributes describes a run span.
func RunAttributes(runID, task string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRunID, runID),
		attribute.String(AttrRunTask, Truncate(task, maxTaskAttrLen)),
	}
}

// StepAttributes describes a step span.
func StepAttributes(runID string, index int, worker string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRunID, runID),
		attribute.Int(AttrStepIndex, index),
		attribute.String(AttrWorker, worker),
	}
}

// InvocationAttributes describes a capability invocation.
func InvocationAttributes(name, callID, source string, durationMs float64, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCapability, name),
		attribute.String(AttrCallID, callID),
		attribute.String(AttrCapSource, source),
		attribute.Float64(AttrCallDuration, durationMs),
		attribute.Bool(AttrCallSuccess, success),
	}
}

// LLMUsageAttributes describes one chat round.
func LLMUsageAttributes(model string, inputTokens, outputTokens, toolCalls int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
		attribute.Int(AttrLLMTokensInput, inputTokens),
		attribute.Int(AttrLLMTokensOutput, outputTokens),
		attribute.Int(AttrLLMToolCalls, toolCalls),
	}
}

// Truncate shortens s to at most max bytes, marking the cut with "...".
func Truncate(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
