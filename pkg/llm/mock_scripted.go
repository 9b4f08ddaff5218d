package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrScriptExhausted is returned when a ScriptedMockProvider runs out of
// responses.
var ErrScriptExhausted = errors.New("scripted mock: no more responses available")

// ScriptedMockProvider returns a pre-defined sequence of responses.
// Useful for testing multi-turn interactions such as tool loops.
type ScriptedMockProvider struct {
	mu        sync.Mutex
	responses []ChatResponse
	Err       error
	// CallCount tracks how many times Chat has been called
	CallCount int
	// Requests holds every request received, in order.
	Requests []ChatRequest
}

// NewScriptedMockProvider creates a provider replying with plain text
// responses in order.
func NewScriptedMockProvider(responses ...string) *ScriptedMockProvider {
	s := &ScriptedMockProvider{}
	for _, r := range responses {
		s.AddResponse(r)
	}
	return s
}

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.Requests = append(s.Requests, req)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.responses) == 0 {
		return nil, ErrScriptExhausted
	}

	resp := s.responses[0]
	s.responses = s.responses[1:]
	resp.Usage = Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}
	return &resp, nil
}

// AddResponse appends a text response to the queue.
func (s *ScriptedMockProvider) AddResponse(response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, ChatResponse{Content: response})
}

// AddToolCall appends a response requesting one tool call. The call id is
// derived from the queue position.
func (s *ScriptedMockProvider) AddToolCall(name, arguments string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, ChatResponse{
		ToolCalls: []ToolCall{{
			ID:   fmt.Sprintf("call_%d", len(s.responses)+1),
			Type: ToolTypeFunction,
			Function: FunctionCall{
				Name:      name,
				Arguments: arguments,
			},
		}},
	})
}

// Remaining returns the number of queued responses.
func (s *ScriptedMockProvider) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses)
}

// PeekNext returns the content of the next response, or empty string.
func (s *ScriptedMockProvider) PeekNext() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.responses) == 0 {
		return ""
	}
	return s.responses[0].Content
}
