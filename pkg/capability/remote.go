package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jllopis/qlcrew/pkg/errors"
	"github.com/mark3labs/mcp-go/mcp"
)

// ToolCaller executes a tool on a remote endpoint.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// Discoverer lists and calls the tools of a remote endpoint.
type Discoverer interface {
	ToolCaller
	ListTools(ctx context.Context) ([]mcp.Tool, error)
}

// NewRemote wraps a remote tool definition as a capability.
func NewRemote(tool mcp.Tool, caller ToolCaller) (*Capability, error) {
	if tool.Name == "" {
		return nil, errors.New(errors.CodeInvalidInput, "remote tool name is required", nil)
	}
	if caller == nil {
		return nil, errors.New(errors.CodeInvalidInput, "tool caller is required", nil).
			WithContext("capability", tool.Name)
	}

	var schema any = tool.InputSchema
	if tool.RawInputSchema != nil {
		schema = tool.RawInputSchema
	}
	name := tool.Name
	return &Capability{
		name:        name,
		description: tool.Description,
		params:      paramsFromSchema(tool.InputSchema),
		schema:      schema,
		source:      SourceRemote,
		handler: func(ctx context.Context, args Args) (string, error) {
			res, err := caller.CallTool(ctx, name, map[string]any(args))
			if err != nil {
				return "", errors.New(errors.CodeToolFailure, "remote call failed", err).
					WithContext("capability", name)
			}
			return resultText(name, res)
		},
	}, nil
}

// Properties come back from JSON as a map, so parameter order follows the
// required list first and the remaining names alphabetically.
func paramsFromSchema(schema mcp.ToolInputSchema) []Param {
	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		if !required[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	ordered := make([]string, 0, len(schema.Properties))
	for _, r := range schema.Required {
		if _, ok := schema.Properties[r]; ok {
			ordered = append(ordered, r)
		}
	}
	ordered = append(ordered, names...)

	params := make([]Param, 0, len(ordered))
	for _, name := range ordered {
		p := Param{Name: name, Required: required[name]}
		if prop, ok := schema.Properties[name].(map[string]any); ok {
			if t, ok := prop["type"].(string); ok && ParamType(t).valid() {
				p.Type = ParamType(t)
			}
			p.Description, _ = prop["description"].(string)
		}
		params = append(params, p)
	}
	return params
}

func resultText(name string, res *mcp.CallToolResult) (string, error) {
	if res == nil {
		return "", errors.New(errors.CodeToolFailure, "remote tool returned no result", nil).
			WithContext("capability", name)
	}
	text := textContent(res.Content)
	if res.IsError {
		return "", errors.New(errors.CodeToolFailure, fmt.Sprintf("remote tool error: %s", text), nil).
			WithContext("capability", name)
	}
	if text != "" {
		return text, nil
	}
	if res.StructuredContent != nil {
		raw, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return "", errors.New(errors.CodeToolFailure, "encode structured result", err).
				WithContext("capability", name)
		}
		return string(raw), nil
	}
	return "", nil
}

func textContent(items []mcp.Content) string {
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}
