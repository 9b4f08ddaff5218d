// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcript persists run metadata and step histories so finished
// runs can be inspected after the process exits.
package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/jllopis/qlcrew/pkg/core"
	"github.com/jllopis/qlcrew/pkg/errors"
)

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Store persists steps and run metadata.
type Store interface {
	SaveRun(ctx context.Context, run core.RunInfo) error
	Append(ctx context.Context, step core.Step) error
	Runs(ctx context.Context) ([]core.RunInfo, error)
	Steps(ctx context.Context, filter Filter) ([]core.Step, error)
	Close() error
}

// Filter limits step queries.
type Filter struct {
	RunID      string
	Actor      string
	FailedOnly bool
	Limit      int
}

func (f Filter) match(step core.Step) bool {
	if f.RunID != "" && step.RunID != f.RunID {
		return false
	}
	if f.Actor != "" && step.Actor != f.Actor {
		return false
	}
	if f.FailedOnly && !step.Failed {
		return false
	}
	return true
}

// Open returns a store for driver. The sqlite DSN is a modernc.org/sqlite
// data source such as "file:qlcrew.db" or "file:x?mode=memory&cache=shared".
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		if dsn == "" {
			return nil, errors.New(errors.CodeInvalidInput, "sqlite dsn is required", nil)
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, errors.New(errors.CodeStoreError, "open sqlite", err).WithContext("dsn", dsn)
		}
		store, err := NewSQLiteStore(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		store.owned = true
		return store, nil
	default:
		return nil, errors.New(errors.CodeInvalidInput, "unknown transcript driver", nil).
			WithContext("driver", driver)
	}
}

// MemoryStore keeps transcripts in memory.
type MemoryStore struct {
	mu    sync.Mutex
	runs  map[string]core.RunInfo
	order []string
	steps []core.Step
}

// NewMemoryStore returns an in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]core.RunInfo)}
}

// SaveRun inserts or updates run metadata.
func (s *MemoryStore) SaveRun(_ context.Context, run core.RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

// Append stores a step.
func (s *MemoryStore) Append(_ context.Context, step core.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	step.Invocations = append([]core.Invocation(nil), step.Invocations...)
	s.steps = append(s.steps, step)
	return nil
}

// Runs returns run metadata, oldest first.
func (s *MemoryStore) Runs(_ context.Context) ([]core.RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.RunInfo, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.runs[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Steps returns filtered steps in append order.
func (s *MemoryStore) Steps(_ context.Context, filter Filter) ([]core.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Step, 0, len(s.steps))
	for _, step := range s.steps {
		if !filter.match(step) {
			continue
		}
		out = append(out, step)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func encodeInvocations(invocations []core.Invocation) (string, error) {
	if len(invocations) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(invocations)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeInvocations(raw string) ([]core.Invocation, error) {
	if raw == "" || raw == "[]" || raw == "null" {
		return nil, nil
	}
	var out []core.Invocation
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func utc(value time.Time) time.Time {
	if value.IsZero() {
		return value
	}
	return value.UTC()
}
