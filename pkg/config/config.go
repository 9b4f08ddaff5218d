// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads qlcrew settings from defaults, an optional YAML (or
// JSON) file with profile overlay, QLCREW_* environment variables and
// command-line --set overrides, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jllopis/qlcrew/pkg/errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides: QLCREW_LLM_BASE_URL sets
// llm.base_url.
const EnvPrefix = "QLCREW_"

type Config struct {
	Log        LogConfig        `koanf:"log"`
	LLM        LLMConfig        `koanf:"llm"`
	MCP        MCPConfig        `koanf:"mcp"`
	Team       TeamConfig       `koanf:"team"`
	Tools      ToolsConfig      `koanf:"tools"`
	Server     ServerConfig     `koanf:"server"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Transcript TranscriptConfig `koanf:"transcript"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider    string  `koanf:"provider"` // openai, ollama, mock
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	APIKey      string  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature"`
	Retries     int     `koanf:"retries"`
}

// MCPConfig points at the remote capability endpoint.
type MCPConfig struct {
	Transport       string   `koanf:"transport"` // sse, http, stdio, none
	URL             string   `koanf:"url"`
	Command         string   `koanf:"command"`
	Args            []string `koanf:"args"`
	Env             []string `koanf:"env"`
	TimeoutSeconds  int      `koanf:"timeout_seconds"`
	Retries         int      `koanf:"retries"`
	CacheTTLSeconds int      `koanf:"cache_ttl_seconds"`
}

type TeamConfig struct {
	Planner              string `koanf:"planner"`
	Sentinel             string `koanf:"sentinel"`
	SentinelScope        string `koanf:"sentinel_scope"` // any, planner
	Selector             string `koanf:"selector"`       // llm, rule
	AllowRepeatedSpeaker bool   `koanf:"allow_repeated_speaker"`
	MaxSteps             int    `koanf:"max_steps"`
	MaxToolRounds        int    `koanf:"max_tool_rounds"`
	MaxSelectionFailures int    `koanf:"max_selection_failures"`
	RosterFile           string `koanf:"roster_file"`
}

// ToolsConfig selects the capabilities handed to workers. Allow and Deny
// take names or globs; deny wins.
type ToolsConfig struct {
	TemplateGlob string   `koanf:"template_glob"`
	Allow        []string `koanf:"allow"`
	Deny         []string `koanf:"deny"`
}

// ServerConfig configures `qlcrew serve`.
type ServerConfig struct {
	Transport string `koanf:"transport"` // stdio, sse
	Addr      string `koanf:"addr"`
	BaseURL   string `koanf:"base_url"`
}

type TelemetryConfig struct {
	Exporter           string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint       string `koanf:"otlp_endpoint"`
	OTLPInsecure       bool   `koanf:"otlp_insecure"`
	OTLPTimeoutSeconds int    `koanf:"otlp_timeout_seconds"`
}

type TranscriptConfig struct {
	Driver string `koanf:"driver"` // memory, sqlite
	DSN    string `koanf:"dsn"`
}

var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "text",

	"llm.provider":    "openai",
	"llm.model":       "gpt-4o",
	"llm.temperature": 0.0,
	"llm.retries":     3,

	"mcp.transport":         "sse",
	"mcp.url":               "http://localhost:8000/sse",
	"mcp.timeout_seconds":   60,
	"mcp.retries":           2,
	"mcp.cache_ttl_seconds": 300,

	"team.sentinel":               "TERMINATE",
	"team.sentinel_scope":         "any",
	"team.selector":               "llm",
	"team.allow_repeated_speaker": true,
	"team.max_steps":              50,
	"team.max_tool_rounds":        1,
	"team.max_selection_failures": 3,

	"tools.template_glob": "*.ql",

	"server.transport": "stdio",
	"server.addr":      ":8000",

	"telemetry.exporter":             "none",
	"telemetry.otlp_endpoint":        "localhost:4317",
	"telemetry.otlp_insecure":        true,
	"telemetry.otlp_timeout_seconds": 10,

	"transcript.driver": "memory",
}

// Load reads path (optional) over the defaults, then the environment.
func Load(path string) (*Config, error) {
	return LoadWithProfile(path, "")
}

// LoadWithProfile is Load plus an overlay file next to path named
// <base>.<profile><ext>, when it exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	k, err := load(path, profile)
	if err != nil {
		return nil, err
	}
	return unmarshal(k)
}

// LoadWithCLI understands --config PATH, --profile NAME (alias --env) and
// repeated --set key=value. Values are parsed as YAML so numbers, booleans,
// lists and JSON objects keep their type.
func LoadWithCLI(args []string) (*Config, error) {
	cli, overrides, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	k, err := load(cli.configPath, cli.profile)
	if err != nil {
		return nil, err
	}
	for _, o := range overrides {
		if err := k.Set(o.key, o.value); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "apply override", err).WithContext("key", o.key)
		}
	}
	return unmarshal(k)
}

func load(path, profile string) (*koanf.Koanf, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "load config file", err).WithContext("path", path)
		}
		if overlay := profileConfigPath(path, profile); overlay != "" {
			if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
				return nil, errors.New(errors.CodeInvalidInput, "load profile config", err).WithContext("path", overlay)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "load environment", err)
	}
	return k, nil
}

// envKey maps QLCREW_TEAM_MAX_STEPS to team.max_steps: the first segment is
// the section, the rest is the key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, key, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + key
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "decode config", err)
	}
	return &cfg, nil
}

// profileConfigPath returns config.<profile>.yaml for config.yaml when that
// file exists.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	candidate := strings.TrimSuffix(base, ext) + "." + profile + ext
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

type cliArgs struct {
	configPath string
	profile    string
}

type override struct {
	key   string
	value any
}

func parseCLIOverrides(args []string) (cliArgs, []override, error) {
	var (
		cli       cliArgs
		overrides []override
	)
	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(args[i], "=")
		switch name {
		case "--config", "-c", "--profile", "--env", "--set":
		default:
			return cli, nil, errors.New(errors.CodeInvalidInput, fmt.Sprintf("unknown config flag %q", args[i]), nil)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return cli, nil, errors.New(errors.CodeInvalidInput, fmt.Sprintf("%s requires a value", name), nil)
			}
			i++
			value = args[i]
		}
		switch name {
		case "--config", "-c":
			cli.configPath = value
		case "--profile", "--env":
			cli.profile = value
		case "--set":
			o, err := parseOverride(value)
			if err != nil {
				return cli, nil, err
			}
			overrides = append(overrides, o)
		}
	}
	return cli, overrides, nil
}

func parseOverride(raw string) (override, error) {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return override{}, errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid --set %q, expected key=value", raw), nil)
	}
	var parsed any
	if err := yamlv3.Unmarshal([]byte(value), &parsed); err != nil || parsed == nil {
		parsed = value
	}
	return override{key: key, value: parsed}, nil
}

var allowed = map[string][]string{
	"llm.provider":        {"openai", "ollama", "mock"},
	"mcp.transport":       {"sse", "http", "streamable-http", "stdio", "none"},
	"team.selector":       {"llm", "rule"},
	"team.sentinel_scope": {"any", "planner"},
	"server.transport":    {"stdio", "sse"},
	"telemetry.exporter":  {"none", "stdout", "otlp"},
	"transcript.driver":   {"memory", "sqlite"},
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	values := map[string]string{
		"llm.provider":        c.LLM.Provider,
		"mcp.transport":       c.MCP.Transport,
		"team.selector":       c.Team.Selector,
		"team.sentinel_scope": c.Team.SentinelScope,
		"server.transport":    c.Server.Transport,
		"telemetry.exporter":  c.Telemetry.Exporter,
		"transcript.driver":   c.Transcript.Driver,
	}
	for key, value := range values {
		if !slices.Contains(allowed[key], strings.ToLower(value)) {
			return errors.New(errors.CodeInvalidInput, fmt.Sprintf("%s must be one of %s", key, strings.Join(allowed[key], ", ")), nil).
				WithContext("key", key).
				WithContext("value", value)
		}
	}
	if c.Transcript.Driver == "sqlite" && c.Transcript.DSN == "" {
		return errors.New(errors.CodeInvalidInput, "transcript.dsn is required for the sqlite driver", nil)
	}
	return nil
}
