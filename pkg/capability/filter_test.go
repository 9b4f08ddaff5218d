package capability

import (
	"context"
	"slices"
	"testing"
)

func TestFilterAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allow   []string
		deny    []string
		tool    string
		allowed bool
	}{
		{"empty filter", nil, nil, "decode_bqrs", true},
		{"allowlisted", []string{"decode_bqrs"}, nil, "decode_bqrs", true},
		{"not allowlisted", []string{"decode_bqrs"}, nil, "quick_evaluate", false},
		{"glob allow", []string{"evaluate_*"}, nil, "evaluate_query", true},
		{"denied", nil, []string{"write_query"}, "write_query", false},
		{"deny wins", []string{"*"}, []string{"quick_*"}, "quick_evaluate", false},
		{"blank patterns ignored", []string{" ", ""}, nil, "anything", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFilter(tt.allow, tt.deny)
			if got := f.Allowed(tt.tool); got != tt.allowed {
				t.Fatalf("Allowed(%q) = %v, want %v", tt.tool, got, tt.allowed)
			}
		})
	}
}

func TestFilterApplyKeepsOrder(t *testing.T) {
	noop := func(context.Context, Args) (string, error) { return "", nil }
	var caps []*Capability
	for _, name := range []string{"register_database", "quick_evaluate", "evaluate_query", "decode_bqrs"} {
		caps = append(caps, MustLocal(name, name, nil, noop))
	}

	var names []string
	for _, c := range NewFilter(nil, []string{"quick_evaluate"}).Apply(caps) {
		names = append(names, c.Name())
	}
	want := []string{"register_database", "evaluate_query", "decode_bqrs"}
	if !slices.Equal(names, want) {
		t.Fatalf("names = %v, want %v", names, want)
	}

	var nilFilter *Filter
	if got := nilFilter.Apply(caps); len(got) != len(caps) {
		t.Fatalf("nil filter dropped capabilities: %d", len(got))
	}
}
