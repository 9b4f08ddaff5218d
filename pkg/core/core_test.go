package core

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunLifecycle(t *testing.T) {
	run := NewRunInfo("register the database")
	if run.Status != RunStatusPending {
		t.Fatalf("expected pending status")
	}
	if !strings.HasPrefix(run.ID, "run-") {
		t.Fatalf("unexpected run id %q", run.ID)
	}
	run.Start()
	if run.Status != RunStatusRunning || run.Done() {
		t.Fatalf("expected running status")
	}
	run.Terminate()
	if run.Status != RunStatusTerminated || !run.Done() {
		t.Fatalf("expected terminated status")
	}
	run.Fail("late failure")
	if run.Status != RunStatusTerminated || run.Error != "" {
		t.Fatalf("final status must not change once reached")
	}
}

func TestStepMentions(t *testing.T) {
	step := Step{Output: "1. register_database_Agent : register the DB"}
	if !step.Mentions("Register_Database_Agent") {
		t.Fatalf("expected case-insensitive mention")
	}
	if step.Mentions("decode_bqrs_Agent") {
		t.Fatalf("unexpected mention")
	}
	if step.Mentions("") {
		t.Fatalf("empty identity never matches")
	}
	nested := Step{Output: "1. bqrs_decode_Agent : decode results"}
	if nested.Mentions("decode_Agent") {
		t.Fatalf("a name inside a longer identity is not a mention")
	}
}

func TestIndexWord(t *testing.T) {
	tests := []struct {
		text, word string
		want       int
	}{
		{"ask Echo_Agent now", "Echo_Agent", 4},
		{"Echo_Agent", "Echo_Agent", 0},
		{"My_Echo_Agent then Echo_Agent.", "Echo_Agent", 19},
		{"Echo_Agents", "Echo_Agent", -1},
		{"x", "", -1},
		{"", "a", -1},
	}
	for _, tt := range tests {
		if got := IndexWord(tt.text, tt.word); got != tt.want {
			t.Errorf("IndexWord(%q, %q) = %d, want %d", tt.text, tt.word, got, tt.want)
		}
	}
}

func TestStepDuration(t *testing.T) {
	start := time.Now()
	step := Step{StartedAt: start, FinishedAt: start.Add(2 * time.Second)}
	if step.Duration() != 2*time.Second {
		t.Fatalf("unexpected duration %v", step.Duration())
	}
	if (Step{}).Duration() != 0 {
		t.Fatalf("zero step has no duration")
	}
}

func TestLastOutput(t *testing.T) {
	if got := LastOutput(nil, "task"); got != "task" {
		t.Fatalf("expected fallback, got %q", got)
	}
	history := []Step{{Output: "a"}, {Output: "b"}}
	if got := LastOutput(history, "task"); got != "b" {
		t.Fatalf("expected last output, got %q", got)
	}
}

func TestRunIDContext(t *testing.T) {
	if _, ok := RunID(context.Background()); ok {
		t.Fatalf("expected no run id")
	}
	ctx := WithRunID(context.Background(), "run-1")
	if id, ok := RunID(ctx); !ok || id != "run-1" {
		t.Fatalf("expected run-1, got %q", id)
	}
	if _, ok := StepIndex(ctx); ok {
		t.Fatalf("expected no step index")
	}
	ctx = WithStepIndex(ctx, 3)
	if index, ok := StepIndex(ctx); !ok || index != 3 {
		t.Fatalf("expected step 3, got %d", index)
	}
	if id, _ := RunID(ctx); id != "run-1" {
		t.Fatalf("run id lost, got %q", id)
	}
}

func TestFanout(t *testing.T) {
	var got []string
	record := func(name string) EventEmitter {
		return EmitterFunc(func(_ context.Context, e Event) {
			got = append(got, name+":"+string(e.Type))
		})
	}
	fan := Fanout{record("a"), nil, record("b")}
	fan.Emit(context.Background(), NewEvent(EventStepCompleted, "PlanningAgent", "run-1", nil))

	if len(got) != 2 || got[0] != "a:step.completed" || got[1] != "b:step.completed" {
		t.Fatalf("unexpected deliveries %v", got)
	}
}
