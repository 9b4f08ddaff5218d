package worker

import (
	"context"
	"strings"
	"testing"

	"github.com/jllopis/qlcrew/pkg/capability"
	"github.com/jllopis/qlcrew/pkg/core"
	"github.com/jllopis/qlcrew/pkg/errors"
	"github.com/jllopis/qlcrew/pkg/llm"
	"github.com/jllopis/qlcrew/pkg/resilience"
)

func echoCapability() *capability.Capability {
	return capability.MustLocal("echo", "Echo the text back", []capability.Param{
		{Name: "text", Type: capability.TypeString, Required: true},
	}, func(_ context.Context, args capability.Args) (string, error) {
		return args.String("text"), nil
	})
}

func newTestPool(t *testing.T, provider llm.Provider, opts ...Option) *Pool {
	t.Helper()
	opts = append([]Option{WithRetry(resilience.DefaultRetryConfig().WithMaxAttempts(1))}, opts...)
	pool, err := NewPool(provider, opts...)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return pool
}

func TestNewPoolRequiresProvider(t *testing.T) {
	if _, err := NewPool(nil); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCreateValidatesIdentity(t *testing.T) {
	pool := newTestPool(t, &llm.MockProvider{})
	for _, id := range []string{"", "has space", strings.Repeat("a", 65)} {
		if _, err := pool.Create(id, "d", "i", nil); err == nil {
			t.Fatalf("expected error for identity %q", id)
		}
	}
	w, err := pool.Create("Code_Snippet_Agent", " desc ", "inst", echoCapability())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !w.Bound() || w.Description() != "desc" || w.Capability().Name() != "echo" {
		t.Fatalf("unexpected worker: %+v", w)
	}
}

func TestPlannerDiscardsToolCalls(t *testing.T) {
	provider := &llm.MockProvider{
		ChatFunc: func(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
			return &llm.ChatResponse{
				Content: "1. Code_Snippet_Agent : extract lines",
				ToolCalls: []llm.ToolCall{{
					ID:       "call_x",
					Type:     llm.ToolTypeFunction,
					Function: llm.FunctionCall{Name: "echo", Arguments: `{"text":"x"}`},
				}},
			}, nil
		},
	}
	pool := newTestPool(t, provider)
	planner, _ := pool.Create("PlanningAgent", "plans", "You plan.", nil)

	ctx := core.WithRunID(context.Background(), "run-1")
	step, err := planner.Act(ctx, nil, "find the function")
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	if len(step.Invocations) != 0 {
		t.Fatalf("planner must not invoke capabilities, got %+v", step.Invocations)
	}
	if step.Output != "1. Code_Snippet_Agent : extract lines" || step.Actor != "PlanningAgent" || step.RunID != "run-1" {
		t.Fatalf("unexpected step: %+v", step)
	}
	if step.Input != "find the function" {
		t.Fatalf("input = %q", step.Input)
	}
	reqs := provider.Requests()
	if len(reqs) != 1 || len(reqs[0].Tools) != 0 {
		t.Fatalf("planner request must carry no tools: %+v", reqs)
	}
}

func TestToolLoopReflectsOnResults(t *testing.T) {
	provider := llm.NewScriptedMockProvider()
	provider.AddToolCall("echo", `{"text":"hello"}`)
	provider.AddResponse("The echo returned hello.")

	pool := newTestPool(t, provider, WithModel("gpt-4o"))
	w, _ := pool.Create("Echo_Agent", "echoes", "You echo.", echoCapability())

	step, err := w.Act(context.Background(), nil, "say hello")
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	if step.Output != "The echo returned hello." {
		t.Fatalf("output = %q", step.Output)
	}
	if len(step.Invocations) != 1 || step.Invocations[0].Result != "hello" || step.Invocations[0].Failed {
		t.Fatalf("unexpected invocations: %+v", step.Invocations)
	}
	if provider.CallCount != 2 {
		t.Fatalf("expected 2 chat calls, got %d", provider.CallCount)
	}
	first, second := provider.Requests[0], provider.Requests[1]
	if len(first.Tools) != 1 || first.Tools[0].Function.Name != "echo" || first.Model != "gpt-4o" {
		t.Fatalf("first request: %+v", first)
	}
	if len(second.Tools) != 0 {
		t.Fatal("reflection request must not offer tools")
	}
	last := second.Messages[len(second.Messages)-1]
	if last.Role != llm.RoleTool || last.ToolCallID != "call_1" || last.Content != "hello" {
		t.Fatalf("tool result message: %+v", last)
	}
}

func TestInvocationFailuresAreRecovered(t *testing.T) {
	provider := llm.NewScriptedMockProvider()
	provider.AddToolCall("register_database", `{"db_path":"x"}`)
	provider.AddToolCall("echo", `{"text":`)
	provider.AddToolCall("echo", `{}`)
	provider.AddResponse("")

	pool := newTestPool(t, provider, WithMaxToolRounds(3))
	w, _ := pool.Create("Echo_Agent", "echoes", "", echoCapability())

	step, err := w.Act(context.Background(), nil, "task")
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	if len(step.Invocations) != 3 {
		t.Fatalf("expected 3 invocations, got %d", len(step.Invocations))
	}
	for _, inv := range step.Invocations {
		if !inv.Failed || !strings.HasPrefix(inv.Result, "Error: ") {
			t.Fatalf("expected recovered failure, got %+v", inv)
		}
	}
	if !strings.Contains(step.Invocations[0].Result, "register_database") {
		t.Fatalf("wrong tool failure should name the tool: %q", step.Invocations[0].Result)
	}
	if !strings.Contains(step.Invocations[2].Result, "text") {
		t.Fatalf("missing argument failure should name it: %q", step.Invocations[2].Result)
	}
	if step.Output == "" {
		t.Fatal("empty reflection should fall back to invocation results")
	}
}

func TestActLLMFailure(t *testing.T) {
	pool := newTestPool(t, &llm.FailingMockProvider{})
	w, _ := pool.Create("PlanningAgent", "plans", "", nil)
	if _, err := w.Act(context.Background(), nil, "task"); !errors.HasCode(err, errors.CodeLLMError) {
		t.Fatalf("expected LLM error, got %v", err)
	}
}

func TestActCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pool := newTestPool(t, llm.NewScriptedMockProvider("never"))
	w, _ := pool.Create("PlanningAgent", "plans", "", nil)
	if _, err := w.Act(ctx, nil, "task"); !errors.HasCode(err, errors.CodeCancelled) {
		t.Fatalf("expected cancelled, got %v", err)
	}
}

func TestConversationPointOfView(t *testing.T) {
	provider := &llm.MockProvider{Response: "ok"}
	pool := newTestPool(t, provider)
	w, _ := pool.Create("Echo_Agent", "echoes", "sys", echoCapability())

	history := []core.Step{
		{Actor: "PlanningAgent", Output: "1. Echo_Agent : echo"},
		{Actor: "Echo_Agent", Output: "echoed"},
	}
	step, err := w.Act(context.Background(), history, "task")
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	if step.Input != "echoed" {
		t.Fatalf("input should be the last output, got %q", step.Input)
	}
	msgs := provider.Requests()[0].Messages
	want := []struct {
		role llm.Role
		name string
	}{
		{llm.RoleSystem, ""},
		{llm.RoleUser, TaskSource},
		{llm.RoleUser, "PlanningAgent"},
		{llm.RoleAssistant, ""},
	}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i, m := range msgs {
		if m.Role != want[i].role || m.Name != want[i].name {
			t.Fatalf("message %d = %s/%s, want %s/%s", i, m.Role, m.Name, want[i].role, want[i].name)
		}
	}
}
