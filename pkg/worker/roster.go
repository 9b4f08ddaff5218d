// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"fmt"
	"os"
	"strings"

	"github.com/jllopis/qlcrew/pkg/capability"
	"github.com/jllopis/qlcrew/pkg/errors"
	"github.com/jllopis/qlcrew/pkg/termination"
	"gopkg.in/yaml.v3"
)

// RoleSpec describes how to build a worker. For capability roles the
// instructions are appended to a preamble naming the bound capability.
type RoleSpec struct {
	Identity     string `yaml:"identity" json:"identity"`
	Description  string `yaml:"description,omitempty" json:"description,omitempty"`
	Instructions string `yaml:"instructions,omitempty" json:"instructions,omitempty"`
}

// Manifest is the role table keyed by capability name plus the planner role.
type Manifest struct {
	Planner RoleSpec            `yaml:"planner" json:"planner"`
	Roles   map[string]RoleSpec `yaml:"roles" json:"roles"`
}

const plannerPreamble = `You are a planning agent.
Your job is to break down complex tasks into smaller, manageable subtasks.`

// DefaultManifest returns the CodeQL pipeline roles.
func DefaultManifest() Manifest {
	return Manifest{
		Planner: RoleSpec{
			Identity:     "PlanningAgent",
			Description:  "An agent for planning tasks, this agent should be the first to engage when given a new task.",
			Instructions: plannerPreamble,
		},
		Roles: map[string]RoleSpec{
			"register_database": {Identity: "register_database_Agent"},
			"quick_evaluate":    {Identity: "quick_evaluate_Agent"},
			"evaluate_query": {
				Identity:     "evaluate_query_Agent",
				Instructions: "Runs a CodeQL query provided by the previous agent on a given database.",
			},
			"decode_bqrs": {
				Identity:     "decode_bqrs_Agent",
				Instructions: "Decode CodeQL results, format is either csv for problem queries or json for path-problems.",
			},
			"extract_code_snippet": {
				Identity:    "Code_Snippet_Agent",
				Description: "Extract the code snippet from a specific file between start line number and end line number.",
			},
			"view_codeql_templates": {
				Identity:    "Codeql_Template_Agent",
				Description: "View the user-provided Codeql templates and select the one whose description best matches the query requirements.",
				Instructions: "View all the templates provided by the user, match the description of the template based on the query requirements, " +
					"and select the most appropriate template. Pass the selected template to the next agent.",
			},
			"write_query": {
				Identity:    "Codeql_Query_Generate_Agent",
				Description: "Generate CodeQL query based on the selected Codeql template, write the generated query to a ql file, and pass the ql file path to the next agent.",
				Instructions: "Fill the selected template with parameters, without rewriting anything else in the template. " +
					"Finally, write your generated query to a ql file, and then pass the file path to the next agent.",
			},
		},
	}
}

// LoadManifest reads a YAML (or JSON) role manifest. Planner fields left
// empty keep their defaults; a non-empty roles table replaces the default
// one.
func LoadManifest(path string) (Manifest, error) {
	m := DefaultManifest()
	raw, err := os.ReadFile(path)
	if err != nil {
		return m, errors.New(errors.CodeSetup, "read role manifest", err).WithContext("path", path)
	}
	var file Manifest
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return m, errors.New(errors.CodeSetup, "parse role manifest", err).WithContext("path", path)
	}
	if file.Planner.Identity != "" {
		m.Planner.Identity = file.Planner.Identity
	}
	if file.Planner.Description != "" {
		m.Planner.Description = file.Planner.Description
	}
	if file.Planner.Instructions != "" {
		m.Planner.Instructions = file.Planner.Instructions
	}
	if len(file.Roles) > 0 {
		m.Roles = file.Roles
	}
	return m, nil
}

// Roster is the ordered set of workers in a run, planner first.
type Roster struct {
	workers []*Worker
	byID    map[string]*Worker
}

// NewRoster builds a roster from workers. The first worker is the planner
// and must not be bound to a capability.
func NewRoster(planner *Worker, workers ...*Worker) (*Roster, error) {
	if planner == nil || planner.Bound() {
		return nil, errors.New(errors.CodeSetup, "roster needs an unbound planning worker", nil)
	}
	r := &Roster{byID: make(map[string]*Worker, len(workers)+1)}
	for _, w := range append([]*Worker{planner}, workers...) {
		if _, dup := r.byID[w.identity]; dup {
			return nil, errors.New(errors.CodeSetup, "duplicate worker identity", nil).
				WithContext("identity", w.identity)
		}
		r.byID[w.identity] = w
		r.workers = append(r.workers, w)
	}
	return r, nil
}

// BuildRoster creates one worker per capability with a manifest entry, in
// capability order, and a planner whose instructions list them.
func BuildRoster(pool *Pool, m Manifest, caps []*capability.Capability, sentinel string) (*Roster, error) {
	if sentinel == "" {
		sentinel = termination.DefaultSentinel
	}
	var workers []*Worker
	for _, c := range caps {
		spec, ok := m.Roles[c.Name()]
		if !ok {
			continue
		}
		identity := spec.Identity
		if identity == "" {
			identity = c.Name() + "_Agent"
		}
		description := spec.Description
		if description == "" {
			description = c.Description()
		}
		w, err := pool.Create(identity, description, capabilityInstructions(c, spec.Instructions), c)
		if err != nil {
			return nil, errors.New(errors.CodeSetup, "create worker", err).WithContext("capability", c.Name())
		}
		workers = append(workers, w)
	}

	planner, err := pool.Create(m.Planner.Identity, m.Planner.Description,
		PlannerInstructions(m.Planner.Instructions, workers, sentinel), nil)
	if err != nil {
		return nil, errors.New(errors.CodeSetup, "create planner", err)
	}
	return NewRoster(planner, workers...)
}

func capabilityInstructions(c *capability.Capability, extra string) string {
	description := strings.TrimRight(strings.TrimSpace(c.Description()), ".")
	text := fmt.Sprintf("You are a %s agent.\nYour only tool is %s - %s.", c.Name(), c.Name(), description)
	if extra = strings.TrimSpace(extra); extra != "" {
		text += "\n" + extra
	}
	return text
}

// PlannerInstructions renders the planning worker's system message.
func PlannerInstructions(preamble string, workers []*Worker, sentinel string) string {
	var b strings.Builder
	if preamble = strings.TrimSpace(preamble); preamble == "" {
		preamble = plannerPreamble
	}
	b.WriteString(preamble)
	b.WriteString("\nYour team members are:\n")
	for _, w := range workers {
		fmt.Fprintf(&b, "    %s: %s\n", w.identity, w.description)
	}
	b.WriteString("\nYou only plan and delegate tasks - you do not execute them yourself.\n")
	b.WriteString("\nWhen assigning tasks, use this format:\n1. <agent> : <task>\n")
	fmt.Fprintf(&b, "\nAfter all tasks are complete, summarize the findings and end with %q.", sentinel)
	return b.String()
}

// Planner returns the planning worker.
func (r *Roster) Planner() *Worker { return r.workers[0] }

// Workers returns every worker, planner first.
func (r *Roster) Workers() []*Worker {
	return append([]*Worker(nil), r.workers...)
}

// Lookup finds a worker by identity.
func (r *Roster) Lookup(identity string) (*Worker, bool) {
	w, ok := r.byID[identity]
	return w, ok
}

// Identities returns worker names in roster order.
func (r *Roster) Identities() []string {
	out := make([]string, len(r.workers))
	for i, w := range r.workers {
		out[i] = w.identity
	}
	return out
}

// Len returns the number of workers.
func (r *Roster) Len() int { return len(r.workers) }

// Roles renders "identity: description" lines for prompts.
func (r *Roster) Roles() string {
	lines := make([]string, len(r.workers))
	for i, w := range r.workers {
		lines[i] = w.identity + ": " + w.description
	}
	return strings.Join(lines, "\n")
}
