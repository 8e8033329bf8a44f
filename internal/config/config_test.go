package config

import (
	"strings"
	"testing"

	"github.com/collabscout/collabscout/internal/redact"
)

func validConfig() *Config {
	return &Config{
		DBPath:                  "test.db",
		LogLevel:                "info",
		GitHubToken:             "SENTINEL_TOKEN",
		OpenRouterAPIKey:        "SENTINEL_KEY",
		Model:                   "openai/gpt-4o-mini",
		PromptsDir:              "prompts",
		PolicyPath:              "policies/default.json",
		LLMEndpoint:             "https://openrouter.ai/api/v1/chat/completions",
		OverlapThreshold:        0.70,
		OverlapExceptionPenalty: 0.10,
		TopOpportunities:        3,
		HistoryCandidates:       100,
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("default log level = %q", cfg.LogLevel)
	}
	if cfg.OverlapThreshold != 0.70 {
		t.Errorf("default overlap threshold = %v", cfg.OverlapThreshold)
	}
	if cfg.HistoryCandidates != 100 {
		t.Errorf("default history candidates = %v", cfg.HistoryCandidates)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CS_LOG_LEVEL", "debug")
	t.Setenv("CS_OVERLAP_THRESHOLD", "0.55")
	t.Setenv("GITHUB_TOKEN", "SENTINEL_TOKEN")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
	if cfg.OverlapThreshold != 0.55 {
		t.Errorf("overlap threshold = %v, want 0.55", cfg.OverlapThreshold)
	}
	if cfg.GitHubToken != "SENTINEL_TOKEN" {
		t.Error("github token not bound from environment")
	}
}

func TestValidateRejectsBadLevel(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "loud"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestHashIgnoresSecrets(t *testing.T) {
	a := validConfig()
	b := validConfig()
	b.GitHubToken = "completely different"
	b.OpenRouterAPIKey = ""

	if a.Hash() != b.Hash() {
		t.Error("hash should not depend on secret fields")
	}
	if len(a.Hash()) != 16 {
		t.Errorf("hash length = %d, want 16", len(a.Hash()))
	}
}

func TestHashChangesWithConfig(t *testing.T) {
	a := validConfig()
	b := validConfig()
	b.OverlapThreshold = 0.9
	if a.Hash() == b.Hash() {
		t.Error("hash should change when a tuning knob changes")
	}
}

func TestRedactedNeverLeaksSecrets(t *testing.T) {
	cfg := validConfig()
	m := cfg.Redacted()
	for k, v := range m {
		if s, ok := v.(string); ok && strings.Contains(s, "SENTINEL") {
			t.Errorf("redacted config leaks secret under %q: %q", k, s)
		}
	}
	if m["github_token"] != redact.Sentinel {
		t.Errorf("github_token = %v, want sentinel", m["github_token"])
	}
}

func TestRequireLive(t *testing.T) {
	cfg := validConfig()
	if err := cfg.RequireLive(); err != nil {
		t.Fatalf("RequireLive with both tokens: %v", err)
	}
	cfg.OpenRouterAPIKey = ""
	if err := cfg.RequireLive(); err == nil {
		t.Fatal("expected error without OPENROUTER_API_KEY")
	}
}
