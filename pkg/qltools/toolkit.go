// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

// Package qltools implements the local CodeQL helper capabilities: source
// snippet extraction from a database archive, template discovery and query
// persistence.
package qltools

import (
	"time"

	"github.com/viant/afs"
)

// DefaultTemplateGlob matches CodeQL query files.
const DefaultTemplateGlob = "*.ql"

// Toolkit holds the storage and clock used by the local capabilities.
type Toolkit struct {
	fs           afs.Service
	now          func() time.Time
	templateGlob string
}

// Option configures a Toolkit.
type Option func(*Toolkit)

// WithFileSystem overrides the storage service.
func WithFileSystem(fs afs.Service) Option {
	return func(t *Toolkit) {
		if fs != nil {
			t.fs = fs
		}
	}
}

// WithClock overrides the clock used to name persisted queries.
func WithClock(now func() time.Time) Option {
	return func(t *Toolkit) {
		if now != nil {
			t.now = now
		}
	}
}

// WithTemplateGlob sets the file name pattern of template files.
func WithTemplateGlob(glob string) Option {
	return func(t *Toolkit) {
		if glob != "" {
			t.templateGlob = glob
		}
	}
}

// New creates a Toolkit backed by the local file system.
func New(opts ...Option) *Toolkit {
	t := &Toolkit{
		fs:           afs.New(),
		now:          time.Now,
		templateGlob: DefaultTemplateGlob,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}
