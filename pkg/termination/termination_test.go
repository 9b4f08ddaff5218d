package termination

import (
	"testing"

	"github.com/jllopis/qlcrew/pkg/core"
)

func TestSentinelScope(t *testing.T) {
	planner := "PlanningAgent"
	cases := []struct {
		name   string
		policy Sentinel
		step   core.Step
		want   bool
	}{
		{"any scope planner", NewSentinel(""), core.Step{Actor: planner, Output: "summary TERMINATE"}, true},
		{"any scope worker", NewSentinel(""), core.Step{Actor: "decode_bqrs_Agent", Output: "saw TERMINATE in csv"}, true},
		{"planner scope worker", NewSentinel("").ForPlanner(planner), core.Step{Actor: "decode_bqrs_Agent", Output: "saw TERMINATE in csv"}, false},
		{"planner scope planner", NewSentinel("").ForPlanner(planner), core.Step{Actor: planner, Output: "done. TERMINATE"}, true},
		{"no token", NewSentinel(""), core.Step{Actor: planner, Output: "1. x : y"}, false},
		{"case sensitive", NewSentinel(""), core.Step{Actor: planner, Output: "terminate"}, false},
		{"custom token", NewSentinel("DONE"), core.Step{Actor: planner, Output: "DONE"}, true},
		{"failure step", NewSentinel("").ForPlanner(planner), core.Step{Actor: "x", Failed: true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.policy.IsTerminal(tc.step); got != tc.want {
				t.Fatalf("IsTerminal = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseScope(t *testing.T) {
	for input, want := range map[string]Scope{"": ScopeAny, "any": ScopeAny, " Planner ": ScopePlanner} {
		got, err := ParseScope(input)
		if err != nil || got != want {
			t.Fatalf("ParseScope(%q) = %q, %v", input, got, err)
		}
	}
	if _, err := ParseScope("workers"); err == nil {
		t.Fatal("expected error for unknown scope")
	}
}

func TestMaxStepsAndAny(t *testing.T) {
	policy := Any(nil, NewSentinel("").ForPlanner("P"), MaxSteps(3))
	if policy.IsTerminal(core.Step{Index: 0, Actor: "W", Output: "TERMINATE"}) {
		t.Fatal("worker sentinel must not stop a planner-scoped run")
	}
	if policy.IsTerminal(core.Step{Index: 1}) {
		t.Fatal("step 2 of 3 must not stop")
	}
	if !policy.IsTerminal(core.Step{Index: 2}) {
		t.Fatal("third step must stop")
	}
	if MaxSteps(0).IsTerminal(core.Step{Index: 100}) {
		t.Fatal("zero means unbounded")
	}
}
