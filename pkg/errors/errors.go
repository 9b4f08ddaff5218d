// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed errors with rich context for qlcrew.
//
// Errors fall in three families: setup failures abort the process before any
// run starts, capability failures are recovered into step content, and
// selection failures fall back to the planning worker.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCode classifies qlcrew errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeSetup indicates the pipeline could not be assembled (capability
	// discovery, roster construction, store initialization).
	CodeSetup ErrorCode = "SETUP_FAILED"

	// CodeSelection indicates no valid next worker could be chosen.
	CodeSelection ErrorCode = "SELECTION_FAILED"

	// CodeToolFailure indicates a capability invocation failed.
	CodeToolFailure ErrorCode = "TOOL_FAILURE"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeCancelled indicates the consumer cancelled the run.
	CodeCancelled ErrorCode = "CANCELLED"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeLLMError indicates an LLM provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"

	// CodeStoreError indicates the transcript store failed.
	CodeStoreError ErrorCode = "STORE_ERROR"
)

// CrewError is a typed error with context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type CrewError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
}

// Error implements the error interface.
func (e *CrewError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *CrewError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *CrewError) MarshalJSON() ([]byte, error) {
	out := struct {
		Code        string                 `json:"code"`
		Message     string                 `json:"message"`
		Cause       string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Attributes  map[string]string      `json:"attributes,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Context:     e.Context,
		Attributes:  e.Attributes,
		Recoverable: e.Recoverable,
	}
	if e.Err != nil {
		out.Cause = e.Err.Error()
	}
	return json.Marshal(out)
}

// New creates a new CrewError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *CrewError {
	return &CrewError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
	}
}

// WithContext adds a key-value pair to the error context.
func (e *CrewError) WithContext(key string, value interface{}) *CrewError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
func (e *CrewError) WithAttribute(key, value string) *CrewError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
func (e *CrewError) WithRecoverable(recoverable bool) *CrewError {
	e.Recoverable = recoverable
	return e
}

// RecoverableString returns "true" or "false" for metric attributes.
func (e *CrewError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// AsCrewError converts an error to a CrewError, wrapping unknown errors as
// internal ones. Wrapped chains are searched with errors.As.
func AsCrewError(err error) *CrewError {
	if err == nil {
		return nil
	}
	var ce *CrewError
	if errors.As(err, &ce) {
		return ce
	}
	return New(CodeInternal, "wrapped error", err)
}

// HasCode reports whether err (or any error it wraps) is a CrewError with code.
func HasCode(err error, code ErrorCode) bool {
	var ce *CrewError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == code
}
