package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: "Hello world"}
	resp, err := mock.Chat(context.Background(), ChatRequest{
		Messages: []Message{UserMessage("user", "Hi")},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Errorf("Expected 'Hello world', got '%s'", resp.Content)
	}
	if len(mock.Requests()) != 1 {
		t.Fatalf("expected one recorded request")
	}
}

func TestFailingMockProvider(t *testing.T) {
	if _, err := (&FailingMockProvider{}).Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected generic error")
	}
	want := errors.New("quota exceeded")
	if _, err := (&FailingMockProvider{Err: want}).Chat(context.Background(), ChatRequest{}); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestScriptedMockProvider(t *testing.T) {
	mock := NewScriptedMockProvider("first")
	mock.AddToolCall("write_query", `{"query":"select 1"}`)

	resp, err := mock.Chat(context.Background(), ChatRequest{})
	if err != nil || resp.Content != "first" {
		t.Fatalf("unexpected first response: %v %v", resp, err)
	}
	resp, err = mock.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Name != "write_query" {
		t.Fatalf("expected write_query tool call, got %+v", resp.ToolCalls)
	}
	if _, err := mock.Chat(context.Background(), ChatRequest{}); !errors.Is(err, ErrScriptExhausted) {
		t.Fatalf("expected ErrScriptExhausted, got %v", err)
	}
	if mock.CallCount != 3 {
		t.Fatalf("expected 3 calls, got %d", mock.CallCount)
	}
}

func TestUsageAdd(t *testing.T) {
	var u Usage
	u.Add(Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3})
	u.Add(Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3})
	if u.TotalTokens != 6 || u.PromptTokens != 2 {
		t.Fatalf("unexpected usage %+v", u)
	}
}

func TestOllamaChatToolCalls(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"decode_bqrs","arguments":{"format":"csv"}}}]},"done":true,"eval_count":4,"prompt_eval_count":6}`))
	}))
	defer srv.Close()

	p := NewOllama(srv.URL)
	resp, err := p.Chat(context.Background(), ChatRequest{
		Model: "qwen3",
		Messages: []Message{
			SystemMessage("you decode results"),
			UserMessage("PlanningAgent", "decode the bqrs"),
		},
		Tools:       []Tool{FunctionTool("decode_bqrs", "decode", map[string]any{"type": "object"})},
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected one tool call, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Function.Arguments != `{"format":"csv"}` {
		t.Fatalf("unexpected arguments %q", resp.ToolCalls[0].Function.Arguments)
	}
	if resp.Usage.TotalTokens != 10 {
		t.Fatalf("unexpected usage %+v", resp.Usage)
	}
	if !strings.HasPrefix(got.Messages[1].Content, "PlanningAgent: ") {
		t.Fatalf("expected speaker prefix, got %q", got.Messages[1].Content)
	}
	if got.Options["temperature"] != 0.2 {
		t.Fatalf("expected temperature option, got %v", got.Options)
	}
}

func TestOllamaChatStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL).Chat(context.Background(), ChatRequest{Model: "missing"})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status error, got %v", err)
	}
}
