// Package scoring computes deterministic final scores from validated LLM
// output under a versioned policy file.
package scoring

import (
	"encoding/json"
	"fmt"
	"os"
)

// Weights blend the three raw LLM scores and the signals bonus.
type Weights struct {
	W1Interestingness        float64 `json:"w1_interestingness"`
	W2Novelty                float64 `json:"w2_novelty"`
	W3CollaborationPotential float64 `json:"w3_collaboration_potential"`
	W4SignalsBonus           float64 `json:"w4_signals_bonus"`
}

// SignalsBonus lists the additive bonus components.
type SignalsBonus struct {
	HasIntegrationSurface float64 `json:"has_integration_surface"`
	HasAPIOrSDK           float64 `json:"has_api_or_sdk"`
	NoRiskFlags           float64 `json:"no_risk_flags"`
}

// Thresholds gate candidate generation and brief shortlisting.
type Thresholds struct {
	MinRepoScoreForBrief              float64 `json:"min_repo_score_for_brief"`
	MinCollaborationPotentialForBrief float64 `json:"min_collaboration_potential_for_brief"`
	MinBriefScore                     float64 `json:"min_brief_score"`
}

// Policy is the versioned scoring policy.
type Policy struct {
	Version      string       `json:"version"`
	Weights      Weights      `json:"weights"`
	SignalsBonus SignalsBonus `json:"signals_bonus"`
	Thresholds   Thresholds   `json:"thresholds"`
}

// Default returns the built-in v1 policy.
func Default() *Policy {
	return &Policy{
		Version: "v1",
		Weights: Weights{
			W1Interestingness:        0.35,
			W2Novelty:                0.25,
			W3CollaborationPotential: 0.35,
			W4SignalsBonus:           0.05,
		},
		SignalsBonus: SignalsBonus{
			HasIntegrationSurface: 0.5,
			HasAPIOrSDK:           0.3,
			NoRiskFlags:           0.2,
		},
		Thresholds: Thresholds{
			MinRepoScoreForBrief:              0.60,
			MinCollaborationPotentialForBrief: 0.65,
			MinBriefScore:                     0.75,
		},
	}
}

// Load reads a policy file. A missing file is an error; callers that want
// the built-in default check os.IsNotExist and fall back explicitly.
func Load(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scoring policy %s: %w", path, err)
	}
	var p Policy
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid scoring policy %s: %w", path, err)
	}
	if p.Version == "" {
		return nil, fmt.Errorf("scoring policy %s has no version", path)
	}
	return &p, nil
}

// LoadOrDefault loads path when it exists, else the built-in policy.
func LoadOrDefault(path string) (*Policy, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}
