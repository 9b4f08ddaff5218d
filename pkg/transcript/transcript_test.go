package transcript

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jllopis/qlcrew/pkg/core"
	"github.com/jllopis/qlcrew/pkg/errors"
)

func sampleSteps(runID string) []core.Step {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return []core.Step{
		{RunID: runID, Index: 0, Actor: "Planner", Input: "task", Output: "1. DB : register", StartedAt: start, FinishedAt: start.Add(time.Second)},
		{
			RunID: runID, Index: 1, Actor: "DB", Input: "register", Output: "done",
			Invocations: []core.Invocation{{ID: "call_1", Capability: "register_database", Arguments: `{"db_path":"/db"}`, Result: "ok", Duration: 5 * time.Millisecond}},
			StartedAt:   start.Add(2 * time.Second), FinishedAt: start.Add(3 * time.Second),
		},
		{RunID: runID, Index: 2, Actor: "Planner", Output: "no worker available", Failed: true},
	}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	run := core.NewRunInfo("find bugs")
	run.Start()
	if err := store.SaveRun(ctx, *run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	for _, step := range sampleSteps(run.ID) {
		if err := store.Append(ctx, step); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := store.Append(ctx, core.Step{RunID: "other", Actor: "Planner", Output: "x"}); err != nil {
		t.Fatalf("append other: %v", err)
	}
	run.Terminate()
	if err := store.SaveRun(ctx, *run); err != nil {
		t.Fatalf("update run: %v", err)
	}

	runs, err := store.Runs(ctx)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID || runs[0].Status != core.RunStatusTerminated {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if runs[0].Task != "find bugs" {
		t.Fatalf("task = %q", runs[0].Task)
	}

	steps, err := store.Steps(ctx, Filter{RunID: run.ID})
	if err != nil {
		t.Fatalf("steps: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
	for i, step := range steps {
		if step.Index != i {
			t.Fatalf("step %d has index %d", i, step.Index)
		}
	}
	if len(steps[1].Invocations) != 1 || steps[1].Invocations[0].Capability != "register_database" {
		t.Fatalf("invocations not round-tripped: %+v", steps[1].Invocations)
	}
	if steps[1].Invocations[0].Duration != 5*time.Millisecond {
		t.Fatalf("duration = %v", steps[1].Invocations[0].Duration)
	}
	if steps[1].Duration() != time.Second {
		t.Fatalf("step duration = %v", steps[1].Duration())
	}

	planner, err := store.Steps(ctx, Filter{RunID: run.ID, Actor: "Planner"})
	if err != nil || len(planner) != 2 {
		t.Fatalf("actor filter: %v %d", err, len(planner))
	}
	failed, err := store.Steps(ctx, Filter{FailedOnly: true})
	if err != nil || len(failed) != 1 || !failed[0].Failed {
		t.Fatalf("failed filter: %v %+v", err, failed)
	}
	limited, err := store.Steps(ctx, Filter{Limit: 2})
	if err != nil || len(limited) != 2 {
		t.Fatalf("limit: %v %d", err, len(limited))
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	db, err := sql.Open("sqlite", "file:transcript_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	exerciseStore(t, store)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("borrowed db should stay open: %v", err)
	}
}

func TestOpen(t *testing.T) {
	store, err := Open("", "")
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}

	store, err = Open(DriverSQLite, "file:transcript_open?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*SQLiteStore); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}

	if _, err := Open(DriverSQLite, ""); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input for empty dsn, got %v", err)
	}
	if _, err := Open("postgres", "x"); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input for unknown driver, got %v", err)
	}
}

func TestNewSQLiteStoreRejectsNil(t *testing.T) {
	if _, err := NewSQLiteStore(nil); err == nil {
		t.Fatal("expected error")
	}
}
