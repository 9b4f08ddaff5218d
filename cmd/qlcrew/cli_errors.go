package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jllopis/qlcrew/pkg/errors"
)

// CLIError wraps CrewError with CLI-specific formatting and hints.
type CLIError struct {
	*errors.CrewError
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(ce *errors.CrewError, hint string) *CLIError {
	return &CLIError{CrewError: ce, Hint: hint}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.CrewError == nil {
		return "unknown error"
	}
	msg := e.CrewError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the CrewError to errors.As and errors.HasCode.
func (e *CLIError) Unwrap() error {
	if e.CrewError == nil {
		return nil
	}
	return e.CrewError
}

// PrintError prints the error with appropriate formatting.
func (e *CLIError) PrintError(w io.Writer, asJSON bool) {
	if asJSON {
		out := map[string]any{
			"code":    e.Code,
			"message": e.Message,
		}
		if e.Err != nil {
			out["cause"] = e.Err.Error()
		}
		if e.Hint != "" {
			out["hint"] = e.Hint
		}
		raw, _ := json.Marshal(map[string]any{"error": out})
		fmt.Fprintln(w, string(raw))
		return
	}

	if e.Err != nil {
		fmt.Fprintf(w, "Error [%s]: %s: %v\n", e.Code, e.Message, e.Err)
	} else {
		fmt.Fprintf(w, "Error [%s]: %s\n", e.Code, e.Message)
	}
	if e.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", e.Hint)
	}
}

// asCLIError keeps CLI errors as they are and gives every other error the
// hint matching its code.
func asCLIError(err error) *CLIError {
	if ce, ok := err.(*CLIError); ok {
		return ce
	}
	crew := errors.AsCrewError(err)
	hint := ""
	switch crew.Code {
	case errors.CodeSetup:
		hint = "check mcp.url and that the tool server is running"
	case errors.CodeLLMError:
		hint = "check llm.provider, llm.base_url and llm.api_key"
	case errors.CodeSelection:
		hint = "try --set team.selector=rule or a stronger llm.model"
	case errors.CodeStoreError:
		hint = "check transcript.driver and transcript.dsn"
	case errors.CodeCancelled:
		hint = "the run was interrupted"
	case errors.CodeInternal:
		hint = "run 'qlcrew help' for usage information"
	}
	return NewCLIError(crew, hint)
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configPath string) *CLIError {
	ce := errors.New(errors.CodeInvalidInput, "configuration error", err).
		WithContext("config_path", configPath).
		WithRecoverable(false)

	hint := "check your configuration file syntax"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(ce, hint)
}

// NewSetupError reports a pipeline that could not be assembled.
func NewSetupError(err error, operation, hint string) *CLIError {
	ce := errors.New(errors.CodeSetup, operation+" failed", err).
		WithContext("operation", operation).
		WithRecoverable(false)
	return NewCLIError(ce, hint)
}

// WrapConnectionError wraps a tool server connection error with CLI hints.
func WrapConnectionError(err error, target string) *CLIError {
	ce := errors.New(errors.CodeSetup, "tool server connection failed", err).
		WithContext("target", target).
		WithRecoverable(true)
	return NewCLIError(ce, fmt.Sprintf("check if the MCP server is running at %s or use --set mcp.transport=none", target))
}

// NewNotFoundError creates a not found error with CLI hints.
func NewNotFoundError(resource, name string) *CLIError {
	ce := errors.New(errors.CodeNotFound, fmt.Sprintf("%s '%s' not found", resource, name), nil).
		WithContext("resource", resource).
		WithContext("name", name).
		WithRecoverable(false)
	return NewCLIError(ce, fmt.Sprintf("run 'qlcrew transcript' to list the stored %ss", resource))
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	ce := errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid argument: %s", reason), nil).
		WithContext("argument", arg).
		WithContext("reason", reason).
		WithRecoverable(false)
	return NewCLIError(ce, "run 'qlcrew help' for usage information")
}
