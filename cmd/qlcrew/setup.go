// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jllopis/qlcrew/pkg/capability"
	"github.com/jllopis/qlcrew/pkg/config"
	"github.com/jllopis/qlcrew/pkg/core"
	"github.com/jllopis/qlcrew/pkg/llm"
	"github.com/jllopis/qlcrew/pkg/llm/openai"
	"github.com/jllopis/qlcrew/pkg/mcp"
	"github.com/jllopis/qlcrew/pkg/qltools"
	"github.com/jllopis/qlcrew/pkg/resilience"
	"github.com/jllopis/qlcrew/pkg/selector"
	"github.com/jllopis/qlcrew/pkg/team"
	"github.com/jllopis/qlcrew/pkg/telemetry"
	"github.com/jllopis/qlcrew/pkg/termination"
	"github.com/jllopis/qlcrew/pkg/transcript"
	"github.com/jllopis/qlcrew/pkg/worker"
)

// mockResponse is what the mock provider answers to every request: the
// selector reads the planner name and the planner ends the run at once.
const mockResponse = "PlanningAgent: nothing to delegate. TERMINATE"

// createProvider creates the LLM provider named by the configuration.
func createProvider(cfg config.LLMConfig) (llm.Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return openai.New(
			openai.WithModel(cfg.Model),
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithAPIKey(cfg.APIKey),
		), nil
	case "ollama":
		return llm.NewOllama(cfg.BaseURL), nil
	case "mock":
		return &llm.MockProvider{Response: mockResponse}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}

func retryConfig(retries int) resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	if retries >= 0 {
		rc.MaxAttempts = retries + 1
	}
	return rc
}

// connectTools opens the remote capability endpoint. It returns a nil client
// when the transport is "none".
func connectTools(ctx context.Context, cfg config.MCPConfig) (*mcp.Client, error) {
	if strings.EqualFold(cfg.Transport, "none") {
		return nil, nil
	}
	target := cfg.URL
	if cfg.Transport == mcp.TransportStdio {
		target = cfg.Command
	}
	client, err := mcp.Connect(ctx, mcp.Endpoint{
		Transport: cfg.Transport,
		URL:       cfg.URL,
		Command:   cfg.Command,
		Args:      cfg.Args,
		Env:       cfg.Env,
	},
		mcp.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second),
		mcp.WithRetry(cfg.Retries, 500*time.Millisecond),
		mcp.WithToolCacheTTL(time.Duration(cfg.CacheTTLSeconds)*time.Second),
		mcp.WithBreaker(resilience.NewBreaker(resilience.BreakerConfig{
			Name:             "mcp:" + target,
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		})),
	)
	if err != nil {
		return nil, WrapConnectionError(err, target)
	}
	return client, nil
}

// newToolkit returns the local capabilities.
func newToolkit(cfg *config.Config) *qltools.Toolkit {
	return qltools.New(qltools.WithTemplateGlob(cfg.Tools.TemplateGlob))
}

// newRegistry discovers the remote capabilities and appends the local ones.
// The returned close func releases the remote connection.
func newRegistry(ctx context.Context, cfg *config.Config) (*capability.Registry, func() error, error) {
	client, err := connectTools(ctx, cfg.MCP)
	if err != nil {
		return nil, nil, err
	}
	locals := newToolkit(cfg).Capabilities()

	var (
		registry *capability.Registry
		closer   = func() error { return nil }
	)
	if client == nil {
		registry, err = capability.NewRegistry(ctx, nil, locals...)
	} else {
		closer = client.Close
		registry, err = capability.NewRegistry(ctx, client, locals...)
	}
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return registry, closer, nil
}

// loadManifest returns the role table, with the planner identity from
// team.planner when set.
func loadManifest(cfg config.TeamConfig) (worker.Manifest, error) {
	m := worker.DefaultManifest()
	if cfg.RosterFile != "" {
		loaded, err := worker.LoadManifest(cfg.RosterFile)
		if err != nil {
			return worker.Manifest{}, err
		}
		m = loaded
	}
	if cfg.Planner != "" {
		m.Planner.Identity = cfg.Planner
	}
	return m, nil
}

func newSelector(cfg *config.Config, provider llm.Provider, logger *slog.Logger) (selector.Selector, error) {
	switch strings.ToLower(cfg.Team.Selector) {
	case "", "llm":
		return selector.NewLLM(provider,
			selector.WithModel(cfg.LLM.Model),
			selector.WithAllowRepeated(cfg.Team.AllowRepeatedSpeaker),
			selector.WithRetry(retryConfig(cfg.LLM.Retries)),
			selector.WithLogger(logger),
		), nil
	case "rule":
		return selector.NewRule(), nil
	default:
		return nil, fmt.Errorf("unknown selector: %s", cfg.Team.Selector)
	}
}

func newPolicy(cfg config.TeamConfig, planner string) (termination.Policy, error) {
	scope, err := termination.ParseScope(cfg.SentinelScope)
	if err != nil {
		return nil, err
	}
	sentinel := termination.NewSentinel(cfg.Sentinel)
	if scope == termination.ScopePlanner {
		sentinel = sentinel.ForPlanner(planner)
	}
	return sentinel, nil
}

// pipeline is everything a run needs, assembled from the configuration.
type pipeline struct {
	registry *capability.Registry
	roster   *worker.Roster
	team     *team.Team
	store    transcript.Store
	closers  []func() error
}

func (p *pipeline) Close() error {
	var first error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// buildPipeline performs every setup step. Any failure here aborts the
// process before a run starts.
func buildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	p := &pipeline{}
	ok := false
	defer func() {
		if !ok {
			_ = p.Close()
		}
	}()

	provider, err := createProvider(cfg.LLM)
	if err != nil {
		return nil, NewSetupError(err, "create provider", "set llm.provider to openai, ollama or mock")
	}

	registry, closeTools, err := newRegistry(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p.registry = registry
	p.closers = append(p.closers, closeTools)

	metrics, err := telemetry.NewPipelineMetrics()
	if err != nil {
		return nil, NewSetupError(err, "create metrics", "check the telemetry settings")
	}

	pool, err := worker.NewPool(provider,
		worker.WithModel(cfg.LLM.Model),
		worker.WithTemperature(cfg.LLM.Temperature),
		worker.WithRetry(retryConfig(cfg.LLM.Retries)),
		worker.WithMaxToolRounds(cfg.Team.MaxToolRounds),
		worker.WithMetrics(metrics),
		worker.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	manifest, err := loadManifest(cfg.Team)
	if err != nil {
		return nil, NewSetupError(err, "load roster", fmt.Sprintf("check %s", cfg.Team.RosterFile))
	}
	caps := capability.NewFilter(cfg.Tools.Allow, cfg.Tools.Deny).Apply(registry.List())
	roster, err := worker.BuildRoster(pool, manifest, caps, cfg.Team.Sentinel)
	if err != nil {
		return nil, err
	}
	p.roster = roster

	sel, err := newSelector(cfg, provider, logger)
	if err != nil {
		return nil, NewSetupError(err, "create selector", "set team.selector to llm or rule")
	}
	policy, err := newPolicy(cfg.Team, roster.Planner().Identity())
	if err != nil {
		return nil, NewSetupError(err, "create termination policy", "set team.sentinel_scope to any or planner")
	}

	store, err := transcript.Open(cfg.Transcript.Driver, cfg.Transcript.DSN)
	if err != nil {
		return nil, err
	}
	p.store = store
	p.closers = append(p.closers, store.Close)

	t, err := team.New(roster, sel, policy,
		team.WithStore(store),
		team.WithEmitter(logEmitter{logger: logger}),
		team.WithMetrics(metrics),
		team.WithLogger(logger),
		team.WithMaxSelectionFailures(cfg.Team.MaxSelectionFailures),
		team.WithMaxSteps(cfg.Team.MaxSteps),
	)
	if err != nil {
		return nil, err
	}
	p.team = t
	ok = true
	return p, nil
}

// logEmitter writes semantic events to the debug log.
type logEmitter struct {
	logger *slog.Logger
}

func (e logEmitter) Emit(ctx context.Context, event core.Event) {
	attrs := []slog.Attr{
		slog.String("run_id", event.RunID),
		slog.String("worker", event.Worker),
	}
	for k, v := range event.Payload {
		attrs = append(attrs, slog.Any(k, v))
	}
	e.logger.LogAttrs(ctx, slog.LevelDebug, string(event.Type), attrs...)
}
