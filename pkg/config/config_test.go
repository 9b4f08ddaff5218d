package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jllopis/qlcrew/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4o" {
		t.Errorf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.MCP.URL != "http://localhost:8000/sse" || cfg.MCP.Transport != "sse" {
		t.Errorf("unexpected mcp defaults: %+v", cfg.MCP)
	}
	if cfg.Team.Sentinel != "TERMINATE" || cfg.Team.SentinelScope != "any" || !cfg.Team.AllowRepeatedSpeaker {
		t.Errorf("unexpected team defaults: %+v", cfg.Team)
	}
	if cfg.Tools.TemplateGlob != "*.ql" || cfg.Transcript.Driver != "memory" {
		t.Errorf("unexpected defaults: %+v %+v", cfg.Tools, cfg.Transcript)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("QLCREW_LLM_PROVIDER", "ollama")
	t.Setenv("QLCREW_LLM_BASE_URL", "http://localhost:11434")
	t.Setenv("QLCREW_TEAM_MAX_STEPS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected provider ollama from env, got %s", cfg.LLM.Provider)
	}
	if cfg.LLM.BaseURL != "http://localhost:11434" {
		t.Errorf("underscored keys must survive env mapping, got %q", cfg.LLM.BaseURL)
	}
	if cfg.Team.MaxSteps != 7 {
		t.Errorf("expected max_steps 7, got %d", cfg.Team.MaxSteps)
	}
}

func TestEnvKey(t *testing.T) {
	cases := map[string]string{
		"QLCREW_LLM_API_KEY":                "llm.api_key",
		"QLCREW_TEAM_ALLOW_REPEATED_SPEAKER": "team.allow_repeated_speaker",
		"QLCREW_DEBUG":                      "debug",
	}
	for in, want := range cases {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadWithProfile(t *testing.T) {
	tmpDir := t.TempDir()
	basePath := filepath.Join(tmpDir, "config.yaml")
	base := `
llm:
  provider: "ollama"
  model: "llama3.1"
log:
  level: "info"
team:
  sentinel_scope: planner
`
	if err := os.WriteFile(basePath, []byte(base), 0o644); err != nil {
		t.Fatalf("write base: %v", err)
	}
	dev := `
llm:
  provider: "mock"
log:
  level: "debug"
`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.dev.yaml"), []byte(dev), 0o644); err != nil {
		t.Fatalf("write dev: %v", err)
	}

	tests := []struct {
		name         string
		profile      string
		wantProvider string
		wantLevel    string
	}{
		{"no profile", "", "ollama", "info"},
		{"dev profile", "dev", "mock", "debug"},
		{"missing profile", "prod", "ollama", "info"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadWithProfile(basePath, tc.profile)
			if err != nil {
				t.Fatalf("LoadWithProfile failed: %v", err)
			}
			if cfg.LLM.Provider != tc.wantProvider || cfg.Log.Level != tc.wantLevel {
				t.Errorf("got provider=%s level=%s", cfg.LLM.Provider, cfg.Log.Level)
			}
			if cfg.LLM.Model != "llama3.1" || cfg.Team.SentinelScope != "planner" {
				t.Errorf("base values lost: %+v %+v", cfg.LLM, cfg.Team)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestProfileConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	devPath := filepath.Join(tmpDir, "config.dev.yaml")
	if err := os.WriteFile(devPath, []byte("log: {}"), 0o644); err != nil {
		t.Fatalf("write dev: %v", err)
	}
	basePath := filepath.Join(tmpDir, "config.yaml")

	tests := []struct {
		base, profile, want string
	}{
		{basePath, "dev", devPath},
		{basePath, "prod", ""},
		{basePath, "", ""},
		{"", "dev", ""},
	}
	for _, tc := range tests {
		if got := profileConfigPath(tc.base, tc.profile); got != tc.want {
			t.Errorf("profileConfigPath(%q, %q) = %q, want %q", tc.base, tc.profile, got, tc.want)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.Team.Selector = "random"
	if err := cfg.Validate(); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid selector, got %v", err)
	}
	cfg.Team.Selector = "rule"
	cfg.Transcript.Driver = "sqlite"
	if err := cfg.Validate(); err == nil {
		t.Fatal("sqlite without dsn must fail")
	}
	cfg.Transcript.DSN = "file:qlcrew.db"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
