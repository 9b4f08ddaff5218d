package capability

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	qerrors "github.com/jllopis/qlcrew/pkg/errors"
	"github.com/jllopis/qlcrew/pkg/llm"
	"github.com/mark3labs/mcp-go/mcp"
)

type stubEndpoint struct {
	tools    []mcp.Tool
	listErr  error
	lists    int
	lastName string
	lastArgs map[string]any
	result   *mcp.CallToolResult
	callErr  error
}

func (s *stubEndpoint) ListTools(context.Context) ([]mcp.Tool, error) {
	s.lists++
	return s.tools, s.listErr
}

func (s *stubEndpoint) CallTool(_ context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	s.lastName = name
	s.lastArgs = args
	return s.result, s.callErr
}

func echoCapability(t *testing.T) *Capability {
	t.Helper()
	c, err := NewLocal("extract_lines", "Extract lines", []Param{
		{Name: "path", Type: TypeString, Required: true},
		{Name: "start", Type: TypeInteger, Required: true},
		{Name: "verbose", Type: TypeBoolean},
	}, func(ctx context.Context, args Args) (string, error) {
		return args.String("path") + ":" + args.JSON(), nil
	})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return c
}

func TestNewLocalValidation(t *testing.T) {
	handler := func(context.Context, Args) (string, error) { return "", nil }
	tests := []struct {
		name    string
		capName string
		params  []Param
		handler Handler
	}{
		{name: "empty name", capName: " ", handler: handler},
		{name: "nil handler", capName: "x"},
		{name: "duplicate param", capName: "x", handler: handler, params: []Param{{Name: "a", Type: TypeString}, {Name: "a", Type: TypeString}}},
		{name: "bad type", capName: "x", handler: handler, params: []Param{{Name: "a", Type: "array"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLocal(tt.capName, "", tt.params, tt.handler)
			if !qerrors.HasCode(err, qerrors.CodeInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestInvokeCoercesArguments(t *testing.T) {
	c := echoCapability(t)
	out, err := c.Invoke(context.Background(), `{"path":"a.c","start":"212","verbose":"true"}`)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(strings.TrimPrefix(out, "a.c:")), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["start"] != float64(212) || decoded["verbose"] != true {
		t.Fatalf("expected coerced args, got %v", decoded)
	}
}

func TestInvokeRejectsBadArguments(t *testing.T) {
	c := echoCapability(t)
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "malformed json", raw: `{"path":`, want: "invalid capability arguments"},
		{name: "missing required", raw: `{"start":1}`, want: `missing required argument "path"`},
		{name: "fractional integer", raw: `{"path":"a","start":1.5}`, want: `argument "start"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Invoke(context.Background(), tt.raw)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q, got %v", tt.want, err)
			}
		})
	}
}

func TestDefinition(t *testing.T) {
	def := echoCapability(t).Definition()
	if def.Type != llm.ToolTypeFunction || def.Function.Name != "extract_lines" {
		t.Fatalf("unexpected definition %+v", def)
	}
	schema, ok := def.Function.Parameters.(map[string]any)
	if !ok {
		t.Fatalf("expected map schema, got %T", def.Function.Parameters)
	}
	required, _ := schema["required"].([]string)
	if len(required) != 2 || required[0] != "path" || required[1] != "start" {
		t.Fatalf("unexpected required list %v", required)
	}
}

func TestRemoteCapability(t *testing.T) {
	tool := mcp.NewTool("register_database",
		mcp.WithDescription("Register a CodeQL database"),
		mcp.WithString("db_path", mcp.Required()),
	)
	endpoint := &stubEndpoint{
		result: mcp.NewToolResultText("registered"),
	}
	c, err := NewRemote(tool, endpoint)
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	if c.Source() != SourceRemote {
		t.Fatalf("expected remote source")
	}
	out, err := c.Invoke(context.Background(), `{"db_path":"/dbs/bzip2"}`)
	if err != nil || out != "registered" {
		t.Fatalf("unexpected result %q %v", out, err)
	}
	if endpoint.lastName != "register_database" || endpoint.lastArgs["db_path"] != "/dbs/bzip2" {
		t.Fatalf("unexpected call %s %v", endpoint.lastName, endpoint.lastArgs)
	}

	if _, err := c.Invoke(context.Background(), `{}`); err == nil {
		t.Fatalf("expected missing required argument error")
	}
}

func TestRemoteCapabilityFailures(t *testing.T) {
	tool := mcp.NewTool("quick_evaluate")
	tests := []struct {
		name     string
		endpoint *stubEndpoint
		want     string
	}{
		{name: "tool error", endpoint: &stubEndpoint{result: mcp.NewToolResultError("query does not compile")}, want: "query does not compile"},
		{name: "transport error", endpoint: &stubEndpoint{callErr: errors.New("connection reset")}, want: "connection reset"},
		{name: "nil result", endpoint: &stubEndpoint{}, want: "no result"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := NewRemote(tool, tt.endpoint)
			_, err := c.Invoke(context.Background(), "")
			if !qerrors.HasCode(err, qerrors.CodeToolFailure) || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected tool failure containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRemoteStructuredResult(t *testing.T) {
	endpoint := &stubEndpoint{result: &mcp.CallToolResult{StructuredContent: map[string]any{"rows": 3}}}
	c, _ := NewRemote(mcp.NewTool("decode_bqrs"), endpoint)
	out, err := c.Invoke(context.Background(), "{}")
	if err != nil || out != `{"rows":3}` {
		t.Fatalf("unexpected structured output %q %v", out, err)
	}
}

func TestRawSchemaPreferred(t *testing.T) {
	raw := json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`)
	c, _ := NewRemote(mcp.Tool{Name: "search", RawInputSchema: raw}, &stubEndpoint{})
	params, ok := c.Definition().Function.Parameters.(json.RawMessage)
	if !ok || string(params) != string(raw) {
		t.Fatalf("expected raw schema, got %v", c.Definition().Function.Parameters)
	}
}

func TestRegistryOrderAndLookup(t *testing.T) {
	endpoint := &stubEndpoint{tools: []mcp.Tool{
		mcp.NewTool("register_database"),
		mcp.NewTool("evaluate_query"),
	}}
	local := echoCapability(t)
	reg, err := NewRegistry(context.Background(), endpoint, local)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	got := strings.Join(reg.Names(), ",")
	if got != "register_database,evaluate_query,extract_lines" {
		t.Fatalf("unexpected order %s", got)
	}
	if endpoint.lists != 1 {
		t.Fatalf("expected a single discovery, got %d", endpoint.lists)
	}
	if c, ok := reg.Lookup("extract_lines"); !ok || c != local {
		t.Fatalf("lookup failed")
	}
	if _, ok := reg.Lookup("missing"); ok {
		t.Fatalf("unexpected capability")
	}
	list := reg.List()
	list[0] = nil
	if reg.List()[0] == nil {
		t.Fatalf("List must return a copy")
	}
}

func TestRegistrySetupFailures(t *testing.T) {
	_, err := NewRegistry(context.Background(), &stubEndpoint{listErr: errors.New("dial tcp: refused")})
	if !qerrors.HasCode(err, qerrors.CodeSetup) {
		t.Fatalf("expected setup failure, got %v", err)
	}

	dup := &stubEndpoint{tools: []mcp.Tool{mcp.NewTool("extract_lines")}}
	_, err = NewRegistry(context.Background(), dup, echoCapability(t))
	if !qerrors.HasCode(err, qerrors.CodeSetup) {
		t.Fatalf("expected duplicate setup failure, got %v", err)
	}
}

func TestLocalOnlyRegistry(t *testing.T) {
	reg, err := NewRegistry(context.Background(), nil, echoCapability(t))
	if err != nil || reg.Len() != 1 {
		t.Fatalf("unexpected registry %v %v", reg, err)
	}
}
