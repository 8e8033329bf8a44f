package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InsertAnalysis stores one validated analysis. The UNIQUE(run_id, repo_id)
// constraint enforces at-most-once analysis per repo per run.
func (s *Store) InsertAnalysis(ctx context.Context, a *Analysis) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analyses (id, run_id, repo_id, model, prompt_id, prompt_version,
			input_json, output_json, llm_scores_json, final_score, reasons_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RunID, a.RepoID, a.Model, a.PromptID, a.PromptVersion,
		a.InputJSON, a.OutputJSON, a.LLMScoresJSON, a.FinalScore, a.ReasonsJSON,
		a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert analysis for %s: %w", a.RepoID, err)
	}
	return nil
}

// HasAnalysis reports whether a repo was already analyzed in this run.
func (s *Store) HasAnalysis(ctx context.Context, runID, repoID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM analyses WHERE run_id = ? AND repo_id = ?`,
		runID, repoID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check analysis for %s: %w", repoID, err)
	}
	return true, nil
}

const analysisColumns = `id, run_id, repo_id, model, prompt_id, prompt_version,
	input_json, output_json, llm_scores_json, final_score, reasons_json, created_at`

// ListAnalysesByRun returns a run's analyses sorted by repo id so every
// consumer iterates in the same order.
func (s *Store) ListAnalysesByRun(ctx context.Context, runID string) ([]*Analysis, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE run_id = ? ORDER BY repo_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses for run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()
	return scanAnalyses(rows)
}

// TopAnalysesByScore returns a run's analyses ordered by final score
// descending, repo id ascending, limited to n.
func (s *Store) TopAnalysesByScore(ctx context.Context, runID string, n int) ([]*Analysis, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses
		 WHERE run_id = ? ORDER BY final_score DESC, repo_id LIMIT ?`, runID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to rank analyses for run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()
	return scanAnalyses(rows)
}

// TopAnalysesFromOtherRuns returns the highest-scoring analysis per repo
// across all runs other than runID, excluding repos in excludeRepoIDs,
// ordered by final score descending then repo id, limited to n. Used for
// historical candidate injection.
func (s *Store) TopAnalysesFromOtherRuns(ctx context.Context, runID string, excludeRepoIDs []string, n int) ([]*Analysis, error) {
	exclude := make(map[string]bool, len(excludeRepoIDs))
	for _, id := range excludeRepoIDs {
		exclude[id] = true
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses
		 WHERE run_id != ? ORDER BY final_score DESC, repo_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list historical analyses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	all, err := scanAnalyses(rows)
	if err != nil {
		return nil, err
	}

	// Keep the best-scoring row per repo, preserving score order.
	seen := make(map[string]bool)
	var out []*Analysis
	for _, a := range all {
		if exclude[a.RepoID] || seen[a.RepoID] {
			continue
		}
		seen[a.RepoID] = true
		out = append(out, a)
		if len(out) >= n {
			break
		}
	}
	return out, nil
}

func scanAnalyses(rows *sql.Rows) ([]*Analysis, error) {
	var out []*Analysis
	for rows.Next() {
		var a Analysis
		if err := rows.Scan(&a.ID, &a.RunID, &a.RepoID, &a.Model, &a.PromptID,
			&a.PromptVersion, &a.InputJSON, &a.OutputJSON, &a.LLMScoresJSON,
			&a.FinalScore, &a.ReasonsJSON, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
