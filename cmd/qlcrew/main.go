// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the qlcrew CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jllopis/qlcrew/pkg/config"
	"github.com/jllopis/qlcrew/pkg/telemetry"
	"github.com/spf13/cobra"
)

const serviceName = "qlcrew"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	root := newRootCmd(a)
	if err := root.ExecuteContext(ctx); err != nil {
		_ = a.close(ctx)
		asCLIError(err).PrintError(os.Stderr, a.json)
		stop()
		os.Exit(1)
	}
}

// app carries the global flags and the state loaded before every command.
type app struct {
	configPath string
	profile    string
	sets       []string
	json       bool

	cfg      *config.Config
	logger   *slog.Logger
	shutdown telemetry.ShutdownFunc
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "qlcrew",
		Short: "Run a team of LLM workers over CodeQL tooling",
		Long: `qlcrew drives a planner and capability-bound workers through a CodeQL
workflow: register a database, generate a query from templates, evaluate it,
decode the results and extract the matching source.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (YAML or JSON)")
	flags.StringVar(&a.profile, "profile", "", "config profile overlay, e.g. dev loads config.dev.yaml")
	flags.StringArrayVar(&a.sets, "set", nil, "override a config key, e.g. --set llm.model=gpt-4o-mini")
	flags.BoolVar(&a.json, "json", false, "machine readable output")

	root.AddCommand(
		newRunCmd(a),
		newToolsCmd(a),
		newServeCmd(a),
		newTranscriptCmd(a),
	)
	return root
}

// configArgs rebuilds the flag list understood by config.LoadWithCLI.
func (a *app) configArgs() []string {
	var args []string
	if a.configPath != "" {
		args = append(args, "--config", a.configPath)
	}
	if a.profile != "" {
		args = append(args, "--profile", a.profile)
	}
	for _, s := range a.sets {
		args = append(args, "--set", s)
	}
	return args
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWithCLI(a.configArgs())
	if err != nil {
		return NewConfigError(err, a.configPath)
	}
	if err := cfg.Validate(); err != nil {
		return NewConfigError(err, a.configPath)
	}
	a.cfg = cfg
	a.logger = telemetry.ConfigureSlog(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)

	shutdown, err := telemetry.InitWithConfig(serviceName, version, telemetry.Config{
		Exporter:           cfg.Telemetry.Exporter,
		OTLPEndpoint:       cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:       cfg.Telemetry.OTLPInsecure,
		OTLPTimeoutSeconds: cfg.Telemetry.OTLPTimeoutSeconds,
		Writer:             cmd.ErrOrStderr(),
	})
	if err != nil {
		return NewSetupError(err, "initialize telemetry", "check telemetry.exporter and telemetry.otlp_endpoint")
	}
	a.shutdown = shutdown
	return nil
}

func (a *app) close(ctx context.Context) error {
	if a.shutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := a.shutdown(ctx)
	a.shutdown = nil
	if err != nil {
		a.logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
