package briefs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/collabscout/collabscout/internal/llm"
	"github.com/collabscout/collabscout/internal/scoring"
	"github.com/collabscout/collabscout/internal/store"
)

// ReplayDiff records one analysis whose recomputed score differs from the
// stored one.
type ReplayDiff struct {
	RepoID     string  `json:"repo_id"`
	Stored     float64 `json:"stored"`
	Recomputed float64 `json:"recomputed"`
}

// ReplayResult summarizes a read-only score recomputation.
type ReplayResult struct {
	RunID         string       `json:"run_id"`
	Replayed      int          `json:"replayed"`
	Changed       int          `json:"changed"`
	Unchanged     int          `json:"unchanged"`
	Diffs         []ReplayDiff `json:"diffs"`
	PolicyVersion string       `json:"policy_version"`
}

// Replay recomputes every final score for a run from the stored LLM
// scores and signals under the given policy. The store is never written
// and no network call is made.
func Replay(ctx context.Context, st *store.Store, policy *scoring.Policy, runID string) (*ReplayResult, error) {
	analyses, err := st.ListAnalysesByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	result := &ReplayResult{
		RunID:         runID,
		Diffs:         []ReplayDiff{},
		PolicyVersion: policy.Version,
	}
	for _, a := range analyses {
		var scores scoring.Scores
		if err := json.Unmarshal([]byte(a.LLMScoresJSON), &scores); err != nil {
			return nil, fmt.Errorf("stored scores for %s are corrupt: %w", a.RepoID, err)
		}
		out, err := llm.ParseRepoAnalysis(json.RawMessage(a.OutputJSON))
		if err != nil {
			return nil, fmt.Errorf("stored analysis for %s is corrupt: %w", a.RepoID, err)
		}

		recomputed := policy.FinalScore(scores, scoring.Signals{
			IntegrationSurface: out.Signals.IntegrationSurface,
			RiskFlags:          out.Signals.RiskFlags,
			RiskFlagsPresent:   out.Signals.RiskFlagsPresent,
		})

		result.Replayed++
		if recomputed == a.FinalScore {
			result.Unchanged++
		} else {
			result.Changed++
			result.Diffs = append(result.Diffs, ReplayDiff{
				RepoID:     a.RepoID,
				Stored:     a.FinalScore,
				Recomputed: recomputed,
			})
		}
	}
	return result, nil
}
