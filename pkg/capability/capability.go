// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability models named operations the pipeline can invoke on a
// worker's behalf, whether implemented in-process or exposed by a remote
// tool endpoint, and the registry that holds them for the lifetime of a run.
package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jllopis/qlcrew/pkg/errors"
	"github.com/jllopis/qlcrew/pkg/llm"
)

// Source tells where a capability is implemented.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Handler executes a capability with decoded, validated arguments and returns
// its textual result.
type Handler func(ctx context.Context, args Args) (string, error)

// Capability is an immutable named operation with typed parameters.
type Capability struct {
	name        string
	description string
	params      []Param
	schema      any
	source      Source
	handler     Handler
}

// NewLocal builds an in-process capability.
func NewLocal(name, description string, params []Param, handler Handler) (*Capability, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New(errors.CodeInvalidInput, "capability name is required", nil)
	}
	if handler == nil {
		return nil, errors.New(errors.CodeInvalidInput, "capability handler is required", nil).
			WithContext("capability", name)
	}
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if p.Name == "" || seen[p.Name] {
			return nil, errors.New(errors.CodeInvalidInput, "invalid parameter list", nil).
				WithContext("capability", name).
				WithContext("parameter", p.Name)
		}
		if !p.Type.valid() {
			return nil, errors.New(errors.CodeInvalidInput, "unsupported parameter type", nil).
				WithContext("capability", name).
				WithContext("parameter", p.Name).
				WithContext("type", string(p.Type))
		}
		seen[p.Name] = true
	}
	c := &Capability{
		name:        name,
		description: description,
		params:      append([]Param(nil), params...),
		source:      SourceLocal,
		handler:     handler,
	}
	c.schema = schemaFor(c.params)
	return c, nil
}

// MustLocal is like NewLocal but panics on invalid definitions. Intended for
// package-level capability tables.
func MustLocal(name, description string, params []Param, handler Handler) *Capability {
	c, err := NewLocal(name, description, params, handler)
	if err != nil {
		panic(err)
	}
	return c
}

// Name returns the capability name.
func (c *Capability) Name() string { return c.name }

// Description returns the capability description.
func (c *Capability) Description() string { return c.description }

// Source returns where the capability runs.
func (c *Capability) Source() Source { return c.source }

// Params returns a copy of the ordered parameter list.
func (c *Capability) Params() []Param {
	return append([]Param(nil), c.params...)
}

// Schema returns the JSON schema advertised for the capability arguments.
func (c *Capability) Schema() any { return c.schema }

// Definition renders the capability as an LLM function tool.
func (c *Capability) Definition() llm.Tool {
	return llm.FunctionTool(c.name, c.description, c.schema)
}

// Invoke decodes raw JSON arguments, validates them against the parameter
// list and runs the handler.
func (c *Capability) Invoke(ctx context.Context, rawArgs string) (string, error) {
	args, err := decodeArgs(rawArgs)
	if err != nil {
		return "", errors.New(errors.CodeInvalidInput, "invalid capability arguments", err).
			WithContext("capability", c.name)
	}
	if err := c.validate(args); err != nil {
		return "", err
	}
	out, err := c.handler(ctx, args)
	if err != nil {
		return "", err
	}
	return out, nil
}

func (c *Capability) validate(args Args) error {
	for _, p := range c.params {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				return errors.New(errors.CodeInvalidInput, fmt.Sprintf("missing required argument %q", p.Name), nil).
					WithContext("capability", c.name)
			}
			continue
		}
		if p.Type == "" {
			continue
		}
		coerced, err := p.Type.coerce(v)
		if err != nil {
			return errors.New(errors.CodeInvalidInput, fmt.Sprintf("argument %q: %v", p.Name, err), nil).
				WithContext("capability", c.name)
		}
		args[p.Name] = coerced
	}
	return nil
}

func decodeArgs(raw string) (Args, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return Args{}, nil
	}
	var args Args
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = Args{}
	}
	return args, nil
}
