package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/collabscout/collabscout/internal/llm"
	"github.com/collabscout/collabscout/internal/runlog"
	"github.com/collabscout/collabscout/internal/scoring"
	"github.com/collabscout/collabscout/internal/store"
)

// AnalysisID derives the stable row id for a (run, repo) analysis.
func AnalysisID(runID, repoID string) string {
	sum := sha256.Sum256([]byte(runID + "|" + repoID))
	return hex.EncodeToString(sum[:])
}

// analysisInput is the persisted prompt-input snapshot. It records the
// README hash and excerpt length, never the README body.
type analysisInput struct {
	RepoID        string `json:"repo_id"`
	ReadmeSHA256  string `json:"readme_sha256"`
	ExcerptChars  int    `json:"excerpt_chars"`
	PromptID      string `json:"prompt_id"`
	PromptVersion string `json:"prompt_version"`
	Model         string `json:"model"`
	PolicyVersion string `json:"policy_version"`
}

// analyzeRepo builds the analysis prompt, calls the LLM, validates the
// output, computes the deterministic final score and persists one analysis
// row plus the per-repo keyword rows.
func (p *Pipeline) analyzeRepo(ctx context.Context, repoID string) error {
	repo, err := p.Store.GetRepo(ctx, repoID)
	if err != nil {
		return err
	}
	readme, err := p.Store.GetReadme(ctx, repoID)
	if err != nil {
		return err
	}

	prompt, err := p.Prompts.Load(promptRepoAnalysis, promptVersion)
	if err != nil {
		return err
	}

	excerpt := string(readme.Content)
	if len(excerpt) > p.ExcerptLimit {
		excerpt = excerpt[:p.ExcerptLimit]
	}

	rendered := prompt.Render(map[string]string{
		"repo_full_name": repo.ID,
		"stars":          strconv.Itoa(repo.Stars),
		"language":       repo.Language,
		"topics":         strings.Join(repo.Topics, ", "),
		"license":        repo.License,
		"readme_excerpt": excerpt,
	})

	raw, err := p.LLM.Complete(ctx, llm.CompletionRequest{
		Model:       p.Model,
		Prompt:      rendered,
		Temperature: prompt.Defaults.Temperature,
		MaxTokens:   prompt.Defaults.MaxTokens,
	})
	if err != nil {
		p.auditAnalysisFailure(ctx, repoID, err)
		return err
	}

	out, err := llm.ParseRepoAnalysis(raw)
	if err != nil {
		p.auditAnalysisFailure(ctx, repoID, err)
		return err
	}

	scores := scoring.Scores{
		Interestingness:        out.Scores.Interestingness,
		Novelty:                out.Scores.Novelty,
		CollaborationPotential: out.Scores.CollaborationPotential,
	}
	signals := scoring.Signals{
		IntegrationSurface: out.Signals.IntegrationSurface,
		RiskFlags:          out.Signals.RiskFlags,
		RiskFlagsPresent:   out.Signals.RiskFlagsPresent,
	}
	final := p.Policy.FinalScore(scores, signals)

	input := analysisInput{
		RepoID:        repoID,
		ReadmeSHA256:  readme.ContentSHA256,
		ExcerptChars:  len(excerpt),
		PromptID:      prompt.ID,
		PromptVersion: prompt.Version,
		Model:         p.Model,
		PolicyVersion: p.Policy.Version,
	}
	inputJSON, _ := json.Marshal(input)
	// Marshal the validated output rather than the raw payload so the
	// risk_flags presence bit round-trips through storage.
	outputJSON, err := json.Marshal(out)
	if err != nil {
		return err
	}
	scoresJSON, _ := json.Marshal(out.Scores)
	reasonsJSON, _ := json.Marshal(out.Reasons)

	analysis := &store.Analysis{
		ID:            AnalysisID(p.Run.RunID(), repoID),
		RunID:         p.Run.RunID(),
		RepoID:        repoID,
		Model:         p.Model,
		PromptID:      prompt.ID,
		PromptVersion: prompt.Version,
		InputJSON:     string(inputJSON),
		OutputJSON:    string(outputJSON),
		LLMScoresJSON: string(scoresJSON),
		FinalScore:    final,
		ReasonsJSON:   string(reasonsJSON),
		CreatedAt:     p.Now(),
	}
	if err := p.Store.InsertAnalysis(ctx, analysis); err != nil {
		return err
	}

	if err := p.insertRepoKeywords(ctx, repoID, out); err != nil {
		return err
	}

	p.Run.Audit(ctx, logrus.InfoLevel, runlog.StepLLMRepoAnalysis, "repo.analyzed",
		"analysis stored", map[string]any{"repo": repoID, "final_score": final})
	return nil
}

func (p *Pipeline) auditAnalysisFailure(ctx context.Context, repoID string, err error) {
	event := "llm.call.failed"
	if llm.IsInvalidOutput(err) {
		event = "llm.output.invalid_json"
	}
	p.Run.Audit(ctx, logrus.WarnLevel, runlog.StepLLMRepoAnalysis, event,
		"analysis failed", map[string]any{"repo": repoID, "error": err.Error()})
}

// insertRepoKeywords persists the three keyword kinds for one repo.
func (p *Pipeline) insertRepoKeywords(ctx context.Context, repoID string, out *llm.RepoAnalysisOutput) error {
	kinds := []struct {
		kind  string
		terms []string
	}{
		{store.KeywordPrimary, out.Keywords.Primary},
		{store.KeywordSecondary, out.Keywords.Secondary},
		{store.KeywordSearchQuery, out.Keywords.SearchQueries},
	}
	for _, k := range kinds {
		for _, term := range k.terms {
			kw := &store.Keyword{
				RunID:   p.Run.RunID(),
				RepoID:  repoID,
				Keyword: term,
				Kind:    k.kind,
				Weight:  kindWeights[k.kind],
			}
			if err := p.Store.UpsertKeyword(ctx, kw); err != nil {
				return err
			}
		}
	}
	return nil
}
