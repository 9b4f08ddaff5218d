package worker

import (
	"github.com/jllopis/qlcrew/pkg/errors"
)

// wrapLLMError marks a chat failure that survived the retry policy.
func wrapLLMError(err error, model, worker string) *errors.CrewError {
	return errors.New(errors.CodeLLMError, "LLM call failed", err).
		WithContext("model", model).
		WithContext("worker", worker).
		WithAttribute("gen_ai.request.model", model).
		WithRecoverable(false)
}

// wrapToolError describes a failed invocation.
func wrapToolError(err error, name, callID string) *errors.CrewError {
	return errors.New(errors.CodeToolFailure, "capability invocation failed", err).
		WithContext("capability", name).
		WithContext("call_id", callID).
		WithAttribute("qlcrew.capability.name", name).
		WithRecoverable(true)
}
