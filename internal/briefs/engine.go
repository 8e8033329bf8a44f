package briefs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/collabscout/collabscout/internal/llm"
	"github.com/collabscout/collabscout/internal/runlog"
	"github.com/collabscout/collabscout/internal/scoring"
	"github.com/collabscout/collabscout/internal/store"
)

// Banner prefixes every outreach draft and exported file.
const Banner = "Manual review required. This tool does not post automatically."

// DefaultMaxBriefs bounds synthesis per run.
const DefaultMaxBriefs = 50

// DefaultHistoryCandidates is how many prior-run analyses join the pool.
const DefaultHistoryCandidates = 100

const (
	promptBriefGenerate = "brief_generate"
	promptVersion       = "v1"
)

// Engine generates, scores and persists briefs for one run.
type Engine struct {
	Store   *store.Store
	LLM     *llm.Client
	Prompts *llm.Registry
	Policy  *scoring.Policy
	Run     *runlog.Orchestrator

	Model             string
	OverlapThreshold  float64
	OverlapPenalty    float64
	MinBriefScore     float64 // 0 means the policy threshold
	MaxBriefs         int
	MaxCombos         int
	IncludeTriples    bool
	HistoryCandidates int
	OwnRepo           string // exempt from anchor dedup
	Now               func() time.Time
}

// NewEngine applies defaults for unset tunables.
func NewEngine(st *store.Store, lc *llm.Client, prompts *llm.Registry, policy *scoring.Policy, run *runlog.Orchestrator, model string) *Engine {
	return &Engine{
		Store:             st,
		LLM:               lc,
		Prompts:           prompts,
		Policy:            policy,
		Run:               run,
		Model:             model,
		OverlapThreshold:  DefaultOverlapThreshold,
		OverlapPenalty:    DefaultOverlapPenalty,
		MaxBriefs:         DefaultMaxBriefs,
		MaxCombos:         DefaultMaxCombos,
		HistoryCandidates: DefaultHistoryCandidates,
		Now:               time.Now,
	}
}

func (e *Engine) minBriefScore() float64 {
	if e.MinBriefScore > 0 {
		return e.MinBriefScore
	}
	return e.Policy.Thresholds.MinBriefScore
}

// GenerateResult summarizes one generation pass for CLI output.
type GenerateResult struct {
	RunID       string `json:"run_id"`
	Candidates  int    `json:"candidates"`
	Generated   int    `json:"generated"`
	Shortlisted int    `json:"shortlisted"`
	Rejected    int    `json:"rejected"`
	Filtered    int    `json:"filtered"`
	Failed      int    `json:"failed"`
}

// Generate runs candidate grouping, the competitor filter and LLM
// synthesis for the engine's run.
func (e *Engine) Generate(ctx context.Context) (*GenerateResult, error) {
	step, err := e.Run.StartStep(ctx, runlog.StepLLMBriefGenerate)
	if err != nil {
		return nil, err
	}

	result := &GenerateResult{RunID: e.Run.RunID()}
	genErr := e.generate(ctx, result)

	stats := map[string]any{
		"candidates":  result.Candidates,
		"generated":   result.Generated,
		"shortlisted": result.Shortlisted,
		"rejected":    result.Rejected,
		"filtered":    result.Filtered,
		"failed":      result.Failed,
	}
	if genErr != nil {
		stats["error"] = genErr.Error()
		_ = step.Finish(ctx, store.StepFailed, stats)
		return nil, genErr
	}

	status := store.StepSuccess
	if result.Generated == 0 && result.Failed > 0 {
		status = store.StepFailed
	}
	if err := step.Finish(ctx, status, stats); err != nil {
		return nil, err
	}
	if status == store.StepFailed {
		return nil, fmt.Errorf("brief synthesis failed for all %d candidates", result.Failed)
	}
	return result, nil
}

func (e *Engine) generate(ctx context.Context, result *GenerateResult) error {
	profiles, err := e.loadProfiles(ctx)
	if err != nil {
		return err
	}

	candidates := candidateGroups(profiles, e.Policy, e.MaxCombos, e.IncludeTriples)
	result.Candidates = len(candidates)

	anchored := make(map[string]bool)
	for _, cand := range candidates {
		if result.Generated >= e.MaxBriefs {
			break
		}
		if e.anyAnchored(cand, anchored) {
			continue
		}

		penalty, rejected := e.filterGroup(ctx, cand)
		if rejected {
			result.Filtered++
			continue
		}

		brief, err := e.synthesize(ctx, cand, penalty)
		if err != nil {
			result.Failed++
			continue
		}
		result.Generated++

		if brief.Status == store.BriefShortlisted {
			result.Shortlisted++
			for _, id := range cand.RepoIDs() {
				if id != e.OwnRepo {
					anchored[id] = true
				}
			}
		} else {
			result.Rejected++
		}
	}
	return nil
}

// loadProfiles reads this run's analyses and, when configured, injects the
// top historical analyses from other runs.
func (e *Engine) loadProfiles(ctx context.Context) ([]*Profile, error) {
	analyses, err := e.Store.ListAnalysesByRun(ctx, e.Run.RunID())
	if err != nil {
		return nil, err
	}

	currentIDs := make([]string, 0, len(analyses))
	for _, a := range analyses {
		currentIDs = append(currentIDs, a.RepoID)
	}

	if e.HistoryCandidates > 0 {
		injected, err := e.Store.TopAnalysesFromOtherRuns(ctx, e.Run.RunID(), currentIDs, e.HistoryCandidates)
		if err != nil {
			return nil, err
		}
		if len(injected) > 0 {
			e.Run.Audit(ctx, logrus.InfoLevel, runlog.StepLLMBriefGenerate, "briefs.history.injected",
				"historical candidates injected", map[string]any{"count": len(injected)})
		}
		analyses = append(analyses, injected...)
	}

	ids := make([]string, 0, len(analyses))
	for _, a := range analyses {
		ids = append(ids, a.RepoID)
	}
	repos, err := e.Store.GetRepos(ctx, ids)
	if err != nil {
		return nil, err
	}

	var profiles []*Profile
	for _, a := range analyses {
		repo, ok := repos[a.RepoID]
		if !ok {
			continue
		}
		p, err := newProfile(a, repo)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func (e *Engine) anyAnchored(cand *Candidate, anchored map[string]bool) bool {
	for _, id := range cand.RepoIDs() {
		if anchored[id] {
			return true
		}
	}
	return false
}

// filterGroup applies the competitor filter to every internal pair. One
// rejected pair rejects the group; the penalty is applied once if any pair
// needed the interop exception.
func (e *Engine) filterGroup(ctx context.Context, cand *Candidate) (penalty float64, rejected bool) {
	ps := cand.Profiles
	for i := 0; i < len(ps); i++ {
		for j := i + 1; j < len(ps); j++ {
			d := filterPair(ps[i], ps[j], e.OverlapThreshold, e.OverlapPenalty)
			pair := map[string]any{
				"repo_a":             ps[i].RepoID,
				"repo_b":             ps[j].RepoID,
				"functional_overlap": d.FunctionalOverlap,
			}
			if d.Rejected {
				e.Run.Audit(ctx, logrus.InfoLevel, runlog.StepLLMBriefGenerate,
					"briefs.pair_rejected_overlap", "pair rejected as competitors", pair)
				return 0, true
			}
			if d.ExceptionTriggered {
				pair["penalty"] = d.PenaltyApplied
				pair["reason"] = d.ExceptionReason
				e.Run.Audit(ctx, logrus.InfoLevel, runlog.StepLLMBriefGenerate,
					"briefs.pair_allowed_exception", "pair allowed with penalty", pair)
				if d.PenaltyApplied > penalty {
					penalty = d.PenaltyApplied
				}
			}
		}
	}
	return penalty, false
}

// repoDescriptor is the deterministic per-repo JSON fed to the prompt and
// stored in the brief's content.
type repoDescriptor struct {
	FullName           string   `json:"full_name"`
	Stars              int      `json:"stars"`
	Language           string   `json:"language,omitempty"`
	Topics             []string `json:"topics"`
	License            string   `json:"license,omitempty"`
	ProblemSummary     string   `json:"problem_summary,omitempty"`
	WhoIsItFor         string   `json:"who_is_it_for,omitempty"`
	IntegrationSurface []string `json:"integration_surface,omitempty"`
	FinalScore         float64  `json:"final_score"`
}

// BriefID derives the stable id for a (run, group) brief.
func BriefID(runID string, repoIDs []string) string {
	sum := sha256.Sum256([]byte(runID + "|" + strings.Join(repoIDs, ",")))
	return hex.EncodeToString(sum[:])
}

// synthesize calls the LLM for one surviving group and persists the brief
// with its deterministic score.
func (e *Engine) synthesize(ctx context.Context, cand *Candidate, penalty float64) (*store.Brief, error) {
	descriptors := make([]repoDescriptor, len(cand.Profiles))
	for i, p := range cand.Profiles {
		topics := p.Repo.Topics
		if topics == nil {
			topics = []string{}
		}
		descriptors[i] = repoDescriptor{
			FullName:           p.RepoID,
			Stars:              p.Repo.Stars,
			Language:           p.Repo.Language,
			Topics:             topics,
			License:            p.Repo.License,
			ProblemSummary:     p.Output.Signals.ProblemSummary,
			WhoIsItFor:         p.Output.Signals.WhoIsItFor,
			IntegrationSurface: p.Output.Signals.IntegrationSurface,
			FinalScore:         p.Final,
		}
	}
	reposJSON, err := json.Marshal(descriptors)
	if err != nil {
		return nil, err
	}

	prompt, err := e.Prompts.Load(promptBriefGenerate, promptVersion)
	if err != nil {
		return nil, err
	}
	rendered := prompt.Render(map[string]string{
		"repos_json": string(reposJSON),
	})

	raw, err := e.LLM.Complete(ctx, llm.CompletionRequest{
		Model:       e.Model,
		Prompt:      rendered,
		Temperature: prompt.Defaults.Temperature,
		MaxTokens:   prompt.Defaults.MaxTokens,
	})
	if err != nil {
		e.auditSynthesisFailure(ctx, cand, err)
		return nil, err
	}
	out, err := llm.ParseBrief(raw)
	if err != nil {
		e.auditSynthesisFailure(ctx, cand, err)
		return nil, err
	}

	score := e.briefScore(cand, penalty)
	status := store.BriefRejectedByThreshold
	if score >= e.minBriefScore() {
		status = store.BriefShortlisted
	}

	repoIDs := cand.RepoIDs()
	repoIDsJSON, _ := json.Marshal(repoIDs)
	content := map[string]any{
		"brief":   out,
		"repos":   descriptors,
		"overlap": cand.Overlap,
		"penalty": penalty,
	}
	contentJSON, _ := json.Marshal(content)

	brief := &store.Brief{
		ID:          BriefID(e.Run.RunID(), repoIDs),
		RunID:       e.Run.RunID(),
		Score:       score,
		RepoIDsJSON: string(repoIDsJSON),
		ContentJSON: string(contentJSON),
		Markdown:    renderMarkdown(out, score, descriptors),
		Outreach:    Banner + "\n\n" + out.OutreachMessage,
		Status:      status,
		CreatedAt:   e.Now(),
	}
	if err := e.Store.InsertBrief(ctx, brief); err != nil {
		return nil, err
	}

	e.Run.Audit(ctx, logrus.InfoLevel, runlog.StepLLMBriefGenerate, "briefs.generated",
		"brief stored", map[string]any{"brief": brief.ID, "score": score, "status": status})
	return brief, nil
}

func (e *Engine) auditSynthesisFailure(ctx context.Context, cand *Candidate, err error) {
	event := "llm.call.failed"
	if llm.IsInvalidOutput(err) {
		event = "llm.output.invalid_json"
	}
	e.Run.Audit(ctx, logrus.WarnLevel, runlog.StepLLMBriefGenerate, event,
		"brief synthesis failed", map[string]any{
			"repos": strings.Join(cand.RepoIDs(), ","), "error": err.Error()})
}

// briefScore blends average final score, average collaboration potential
// and the penalized overlap (floored at zero before weighting).
func (e *Engine) briefScore(cand *Candidate, penalty float64) float64 {
	var finalSum, collabSum float64
	for _, p := range cand.Profiles {
		finalSum += p.Final
		collabSum += p.Scores.CollaborationPotential
	}
	n := float64(len(cand.Profiles))

	overlapPart := cand.Overlap - penalty
	if overlapPart < 0 {
		overlapPart = 0
	}
	return scoring.Round6(0.4*(finalSum/n) + 0.4*(collabSum/n) + 0.2*overlapPart)
}

// renderMarkdown produces the stored brief document with its score header.
func renderMarkdown(out *llm.BriefOutput, score float64, descriptors []repoDescriptor) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", out.Title)
	fmt.Fprintf(&sb, "**Score: %.6f**\n\n", score)
	sb.WriteString(Banner + "\n\n")
	sb.WriteString(out.Concept + "\n\n")
	sb.WriteString("## Repositories\n\n")
	for _, r := range out.Repos {
		var stars int
		for _, d := range descriptors {
			if d.FullName == r.FullName {
				stars = d.Stars
				break
			}
		}
		fmt.Fprintf(&sb, "### %s (%d stars)\n\n", r.FullName, stars)
		if r.WhyItFits != "" {
			fmt.Fprintf(&sb, "- Why it fits: %s\n", r.WhyItFits)
		}
		if r.IntegrationRole != "" {
			fmt.Fprintf(&sb, "- Integration role: %s\n", r.IntegrationRole)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
