// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"context"

	"github.com/jllopis/qlcrew/pkg/errors"
)

// Registry is the capability set of a run: remote capabilities in discovery
// order followed by local ones in definition order. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	ordered []*Capability
	byName  map[string]*Capability
}

// NewRegistry discovers remote capabilities through d, exactly once, and
// appends locals. Any discovery failure is a setup failure. A nil d builds a
// local-only registry.
func NewRegistry(ctx context.Context, d Discoverer, locals ...*Capability) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Capability)}

	if d != nil {
		tools, err := d.ListTools(ctx)
		if err != nil {
			return nil, errors.New(errors.CodeSetup, "capability discovery failed", err)
		}
		for _, tool := range tools {
			c, err := NewRemote(tool, d)
			if err != nil {
				return nil, errors.New(errors.CodeSetup, "invalid remote capability", err)
			}
			if err := r.add(c); err != nil {
				return nil, err
			}
		}
	}
	for _, c := range locals {
		if c == nil {
			continue
		}
		if err := r.add(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(c *Capability) error {
	if _, dup := r.byName[c.Name()]; dup {
		return errors.New(errors.CodeSetup, "duplicate capability name", nil).
			WithContext("capability", c.Name()).
			WithContext("source", string(c.Source()))
	}
	r.byName[c.Name()] = c
	r.ordered = append(r.ordered, c)
	return nil
}

// List returns the ordered capability set.
func (r *Registry) List() []*Capability {
	return append([]*Capability(nil), r.ordered...)
}

// Lookup finds a capability by name.
func (r *Registry) Lookup(name string) (*Capability, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Names returns capability names in registry order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ordered))
	for _, c := range r.ordered {
		names = append(names, c.Name())
	}
	return names
}

// Len returns the number of capabilities.
func (r *Registry) Len() int { return len(r.ordered) }
