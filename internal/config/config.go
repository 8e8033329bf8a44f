// Package config loads scout configuration from environment variables with
// viper-managed defaults.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/collabscout/collabscout/internal/redact"
)

// Config is the normalized configuration snapshot for one invocation.
// Secrets live in dedicated fields so the non-secret remainder can be
// hashed and logged safely.
type Config struct {
	DBPath   string `json:"db_path"`
	LogLevel string `json:"log_level"`

	GitHubToken      string `json:"-"`
	OpenRouterAPIKey string `json:"-"`

	Model       string `json:"model"`
	PromptsDir  string `json:"prompts_dir"`
	PolicyPath  string `json:"policy_path"`
	LLMEndpoint string `json:"llm_endpoint"`

	OverlapThreshold        float64 `json:"overlap_threshold"`
	OverlapExceptionPenalty float64 `json:"overlap_exception_penalty"`
	TopOpportunities        int     `json:"top_opportunities"`
	HistoryCandidates       int     `json:"history_candidates"`
}

var logLevels = map[string]bool{
	"trace": true, "debug": true, "info": true,
	"warn": true, "error": true, "fatal": true,
}

// Load reads configuration from the environment. Defaults apply for every
// knob; tokens stay empty when unset (doctor and --dry tolerate that).
func Load() (*Config, error) {
	v := viper.New()
	v.SetDefault("db_path", "collabscout.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("model", "openai/gpt-4o-mini")
	v.SetDefault("prompts_dir", "prompts")
	v.SetDefault("policy_path", "policies/default.json")
	v.SetDefault("llm_endpoint", "https://openrouter.ai/api/v1/chat/completions")
	v.SetDefault("overlap_threshold", 0.70)
	v.SetDefault("overlap_exception_penalty", 0.10)
	v.SetDefault("top_opportunities", 3)
	v.SetDefault("history_candidates", 100)

	bind := func(key, env string) {
		// BindEnv only errors on empty input.
		_ = v.BindEnv(key, env)
	}
	bind("db_path", "CS_DB_PATH")
	bind("log_level", "CS_LOG_LEVEL")
	bind("model", "CS_MODEL")
	bind("prompts_dir", "CS_PROMPTS_DIR")
	bind("policy_path", "CS_POLICY_PATH")
	bind("llm_endpoint", "CS_LLM_ENDPOINT")
	bind("overlap_threshold", "CS_OVERLAP_THRESHOLD")
	bind("overlap_exception_penalty", "CS_OVERLAP_EXCEPTION_PENALTY")
	bind("top_opportunities", "CS_TOP_OPPORTUNITIES")
	bind("history_candidates", "CS_HISTORY_CANDIDATES")
	bind("github_token", "GITHUB_TOKEN")
	bind("openrouter_api_key", "OPENROUTER_API_KEY")

	cfg := &Config{
		DBPath:                  v.GetString("db_path"),
		LogLevel:                strings.ToLower(v.GetString("log_level")),
		GitHubToken:             v.GetString("github_token"),
		OpenRouterAPIKey:        v.GetString("openrouter_api_key"),
		Model:                   v.GetString("model"),
		PromptsDir:              v.GetString("prompts_dir"),
		PolicyPath:              v.GetString("policy_path"),
		LLMEndpoint:             v.GetString("llm_endpoint"),
		OverlapThreshold:        v.GetFloat64("overlap_threshold"),
		OverlapExceptionPenalty: v.GetFloat64("overlap_exception_penalty"),
		TopOpportunities:        v.GetInt("top_opportunities"),
		HistoryCandidates:       v.GetInt("history_candidates"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would make every command fail.
func (c *Config) Validate() error {
	if !logLevels[c.LogLevel] {
		return fmt.Errorf("invalid CS_LOG_LEVEL %q (want trace|debug|info|warn|error|fatal)", c.LogLevel)
	}
	if c.OverlapThreshold < 0 {
		return fmt.Errorf("CS_OVERLAP_THRESHOLD must be >= 0, got %v", c.OverlapThreshold)
	}
	if c.OverlapExceptionPenalty < 0 || c.OverlapExceptionPenalty > 1 {
		return fmt.Errorf("CS_OVERLAP_EXCEPTION_PENALTY must be in [0,1], got %v", c.OverlapExceptionPenalty)
	}
	if c.DBPath == "" {
		return fmt.Errorf("CS_DB_PATH must not be empty")
	}
	return nil
}

// RequireLive errors unless both API credentials are present. Called by
// commands that hit the network; --dry and doctor skip it.
func (c *Config) RequireLive() error {
	if c.GitHubToken == "" {
		return fmt.Errorf("GITHUB_TOKEN is required for live runs")
	}
	if c.OpenRouterAPIKey == "" {
		return fmt.Errorf("OPENROUTER_API_KEY is required for live runs")
	}
	return nil
}

// Hash returns the 16-hex-char truncated SHA-256 of the non-secret config
// JSON with keys sorted lexicographically.
func (c *Config) Hash() string {
	// Marshal through a map so encoding/json sorts the keys.
	raw, _ := json.Marshal(c) // secret fields are tagged json:"-"
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	canonical, _ := json.Marshal(m)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16]
}

// Redacted returns a loggable view of the config, secrets replaced.
func (c *Config) Redacted() map[string]any {
	raw, _ := json.Marshal(c)
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	m["github_token"] = presence(c.GitHubToken)
	m["openrouter_api_key"] = presence(c.OpenRouterAPIKey)
	return redact.Value(m).(map[string]any)
}

func presence(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	return redact.Sentinel
}

// NewLogger builds the process logger at the configured level.
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
