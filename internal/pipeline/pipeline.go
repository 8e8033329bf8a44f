// Package pipeline drives the two-pass discovery loop: search, hydrate,
// analyze, aggregate keywords, search again.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/collabscout/collabscout/internal/ghapi"
	"github.com/collabscout/collabscout/internal/llm"
	"github.com/collabscout/collabscout/internal/runlog"
	"github.com/collabscout/collabscout/internal/scoring"
	"github.com/collabscout/collabscout/internal/store"
)

const (
	// DefaultExcerptLimit bounds the README excerpt fed to the analysis
	// prompt, in characters.
	DefaultExcerptLimit = 8000
	// DefaultTopK is how many top-scored analyses feed keyword aggregation.
	DefaultTopK = 20
	// DefaultMaxQueries caps generated pass-2 queries.
	DefaultMaxQueries = 10
	// DefaultMaxNewRepos caps newly discovered repos across all pass-2
	// queries.
	DefaultMaxNewRepos = 200
	// DefaultMaxAnalyses caps new LLM analyses during pass 2.
	DefaultMaxAnalyses = 200

	// searchPageSize is the per_page value for search requests.
	searchPageSize = 100

	promptRepoAnalysis = "repo_analysis"
	promptVersion      = "v1"
)

// Per-repo keyword weights by kind. Aggregation multiplies these by the
// owning repo's final score.
var kindWeights = map[string]float64{
	store.KeywordPrimary:     1.0,
	store.KeywordSecondary:   0.5,
	store.KeywordSearchQuery: 1.0,
}

// Pipeline wires the store, the API clients and the run orchestrator for
// one run. Construct with NewPipeline; zero limits fall back to defaults.
type Pipeline struct {
	Store   *store.Store
	GitHub  *ghapi.Client
	LLM     *llm.Client
	Prompts *llm.Registry
	Policy  *scoring.Policy
	Run     *runlog.Orchestrator

	Model        string
	ExcerptLimit int
	TopK         int
	Now          func() time.Time
}

// NewPipeline applies defaults for unset tunables.
func NewPipeline(st *store.Store, gh *ghapi.Client, lc *llm.Client, prompts *llm.Registry, policy *scoring.Policy, run *runlog.Orchestrator, model string) *Pipeline {
	return &Pipeline{
		Store:        st,
		GitHub:       gh,
		LLM:          lc,
		Prompts:      prompts,
		Policy:       policy,
		Run:          run,
		Model:        model,
		ExcerptLimit: DefaultExcerptLimit,
		TopK:         DefaultTopK,
		Now:          time.Now,
	}
}

// Pass1Params are the user-facing search parameters for a run.
type Pass1Params struct {
	Query        string
	Days         int
	Stars        int
	MaxStars     int
	TopN         int
	Language     string
	IncludeForks bool
}

// Pass1Result summarizes pass 1 for CLI output.
type Pass1Result struct {
	RunID          string `json:"run_id"`
	ReposFound     int    `json:"repos_found"`
	ReadmesFetched int    `json:"readmes_fetched"`
	ReadmesMissing int    `json:"readmes_missing"`
	Analyzed       int    `json:"analyzed"`
	AnalysisFailed int    `json:"analysis_failed"`
}

// RunPass1 executes search, metadata hydration, README hydration and the
// analysis sub-step for a fresh run.
func (p *Pipeline) RunPass1(ctx context.Context, params Pass1Params) (*Pass1Result, error) {
	result := &Pass1Result{RunID: p.Run.RunID()}

	if err := p.snapshotRateLimit(ctx); err != nil {
		return nil, err
	}

	items, err := p.searchPass1(ctx, params)
	if err != nil {
		return nil, err
	}

	repoIDs, err := p.hydrateMetadata(ctx, items)
	if err != nil {
		return nil, err
	}
	result.ReposFound = len(repoIDs)

	fetched, missing, err := p.hydrateReadmes(ctx, repoIDs)
	if err != nil {
		return nil, err
	}
	result.ReadmesFetched = fetched
	result.ReadmesMissing = missing

	analyzed, failed, err := p.analyzeAll(ctx, repoIDs)
	if err != nil {
		return nil, err
	}
	result.Analyzed = analyzed
	result.AnalysisFailed = failed
	return result, nil
}

// snapshotRateLimit persists the upstream rate-limit image as its own step.
func (p *Pipeline) snapshotRateLimit(ctx context.Context) error {
	step, err := p.Run.StartStep(ctx, runlog.StepRateLimitSnapshot)
	if err != nil {
		return err
	}
	raw, err := p.GitHub.RateLimitSnapshot(ctx)
	if err != nil {
		_ = step.Finish(ctx, store.StepFailed, map[string]any{"error": err.Error()})
		return err
	}
	snap := &store.RateLimitSnapshot{
		RunID:        p.Run.RunID(),
		TakenAt:      p.Now(),
		SnapshotJSON: string(raw),
	}
	if err := p.Store.InsertRateLimitSnapshot(ctx, snap); err != nil {
		_ = step.Finish(ctx, store.StepFailed, map[string]any{"error": err.Error()})
		return err
	}
	return step.Finish(ctx, store.StepSuccess, nil)
}

type foundRepo struct {
	item    ghapi.SearchRepo
	queryID int64
	rank    int
}

// searchPass1 issues the pass-1 search and collects up to TopN items,
// stopping early on incomplete results or a short page.
func (p *Pipeline) searchPass1(ctx context.Context, params Pass1Params) ([]foundRepo, error) {
	step, err := p.Run.StartStep(ctx, runlog.StepSearchPass1)
	if err != nil {
		return nil, err
	}

	query := ghapi.BuildSearchQuery(ghapi.SearchParams{
		Query:        params.Query,
		Days:         params.Days,
		Stars:        params.Stars,
		MaxStars:     params.MaxStars,
		Language:     params.Language,
		IncludeForks: params.IncludeForks,
	}, p.Now())

	paramsJSON, _ := json.Marshal(params)
	queryID, err := p.Store.InsertQuery(ctx, &store.GitHubQuery{
		RunID:      p.Run.RunID(),
		Pass:       1,
		Query:      query,
		ParamsJSON: string(paramsJSON),
		CreatedAt:  p.Now(),
	})
	if err != nil {
		_ = step.Finish(ctx, store.StepFailed, map[string]any{"error": err.Error()})
		return nil, err
	}

	perPage := searchPageSize
	if params.TopN < perPage {
		perPage = params.TopN
	}

	var found []foundRepo
	rank := 0
	pages := 0
	for page := 1; len(found) < params.TopN; page++ {
		res, err := p.GitHub.SearchRepositories(ctx, query, page, perPage)
		if err != nil {
			_ = step.Finish(ctx, store.StepFailed, map[string]any{"error": err.Error(), "pages": pages})
			return nil, err
		}
		pages++
		for _, item := range res.Items {
			if len(found) >= params.TopN {
				break
			}
			rank++
			found = append(found, foundRepo{item: item, queryID: queryID, rank: rank})
		}
		if res.IncompleteResults || len(res.Items) < perPage {
			break
		}
	}

	if err := step.Finish(ctx, store.StepSuccess, map[string]any{
		"query": query, "repos": len(found), "pages": pages,
	}); err != nil {
		return nil, err
	}
	return found, nil
}

// hydrateMetadata upserts discovered repos and links them to their query,
// returning the distinct repo ids in discovery order.
func (p *Pipeline) hydrateMetadata(ctx context.Context, found []foundRepo) ([]string, error) {
	step, err := p.Run.StartStep(ctx, runlog.StepHydrateRepoMetadata)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(found))
	var ids []string
	for _, f := range found {
		repo := repoFromSearch(f.item, p.Run.RunID())
		if err := p.Store.UpsertRepo(ctx, repo); err != nil {
			_ = step.Finish(ctx, store.StepFailed, map[string]any{"error": err.Error()})
			return nil, err
		}
		if err := p.Store.LinkRepoQuery(ctx, f.queryID, repo.ID, 1, f.rank); err != nil {
			_ = step.Finish(ctx, store.StepFailed, map[string]any{"error": err.Error()})
			return nil, err
		}
		if !seen[repo.ID] {
			seen[repo.ID] = true
			ids = append(ids, repo.ID)
		}
	}

	if err := step.Finish(ctx, store.StepSuccess, map[string]any{"repos": len(ids)}); err != nil {
		return nil, err
	}
	return ids, nil
}

// repoFromSearch maps a search item onto the stored repo shape.
func repoFromSearch(item ghapi.SearchRepo, runID string) *store.Repo {
	r := &store.Repo{
		ID:            item.FullName,
		Stars:         item.StargazersCount,
		Forks:         item.ForksCount,
		Topics:        item.Topics,
		Language:      item.Language,
		PushedAt:      item.PushedAt,
		Archived:      item.Archived,
		Fork:          item.Fork,
		LastSeenRunID: runID,
	}
	if item.License != nil {
		r.License = item.License.SPDXID
	}
	if r.Topics == nil {
		r.Topics = []string{}
	}
	return r
}

// hydrateReadmes fetches the README for every repo that lacks one. A 404
// is recorded and skipped; other failures are recorded per repo. The step
// fails only when every fetch attempt errored.
func (p *Pipeline) hydrateReadmes(ctx context.Context, repoIDs []string) (fetched, missing int, err error) {
	step, err := p.Run.StartStep(ctx, runlog.StepHydrateReadme)
	if err != nil {
		return 0, 0, err
	}

	sorted := append([]string(nil), repoIDs...)
	sort.Strings(sorted)

	attempted := 0
	failed := 0
	for _, id := range sorted {
		has, err := p.Store.HasReadme(ctx, id)
		if err != nil {
			_ = step.Finish(ctx, store.StepFailed, map[string]any{"error": err.Error()})
			return 0, 0, err
		}
		if has {
			fetched++
			p.Run.Audit(ctx, logrus.DebugLevel, runlog.StepHydrateReadme, "repo.readme.cached",
				"readme already stored", map[string]any{"repo": id})
			continue
		}

		attempted++
		res, err := p.GitHub.FetchReadme(ctx, id)
		if err != nil {
			if ghapi.IsStatus(err, 404) {
				missing++
				p.Run.Audit(ctx, logrus.InfoLevel, runlog.StepHydrateReadme, "repo.readme.missing",
					"repo has no readme", map[string]any{"repo": id})
				continue
			}
			failed++
			p.Run.Audit(ctx, logrus.WarnLevel, runlog.StepHydrateReadme, "repo.hydrate.failed",
				"readme fetch failed", map[string]any{"repo": id, "error": err.Error()})
			continue
		}

		sum := sha256.Sum256(res.Content)
		readme := &store.Readme{
			RepoID:        id,
			Content:       res.Content,
			ContentSHA256: hex.EncodeToString(sum[:]),
			FetchedAt:     p.Now(),
			ETag:          res.ETag,
			SourceURL:     res.SourceURL,
		}
		if err := p.Store.UpsertReadme(ctx, readme); err != nil {
			_ = step.Finish(ctx, store.StepFailed, map[string]any{"error": err.Error()})
			return 0, 0, err
		}
		fetched++
		p.Run.Audit(ctx, logrus.InfoLevel, runlog.StepHydrateReadme, "repo.readme.fetched",
			"readme stored", map[string]any{"repo": id, "sha256": readme.ContentSHA256, "from_cache": res.FromCache})
	}

	status := store.StepSuccess
	if attempted > 0 && failed == attempted {
		status = store.StepFailed
	}
	stats := map[string]any{"fetched": fetched, "missing": missing, "failed": failed}
	if err := step.Finish(ctx, status, stats); err != nil {
		return 0, 0, err
	}
	if status == store.StepFailed {
		return fetched, missing, fmt.Errorf("readme hydration failed for all %d repos", attempted)
	}
	return fetched, missing, nil
}

// analyzeAll runs the analysis sub-step over every repo with a README and
// no analysis yet in this run. The step fails only when every repo failed.
func (p *Pipeline) analyzeAll(ctx context.Context, repoIDs []string) (analyzed, failed int, err error) {
	step, err := p.Run.StartStep(ctx, runlog.StepLLMRepoAnalysis)
	if err != nil {
		return 0, 0, err
	}

	sorted := append([]string(nil), repoIDs...)
	sort.Strings(sorted)

	for _, id := range sorted {
		eligible, err := p.analysisEligible(ctx, id)
		if err != nil {
			_ = step.Finish(ctx, store.StepFailed, map[string]any{"error": err.Error()})
			return 0, 0, err
		}
		if !eligible {
			continue
		}
		if err := p.analyzeRepo(ctx, id); err != nil {
			failed++
			continue
		}
		analyzed++
	}

	status := store.StepSuccess
	if analyzed == 0 && failed > 0 {
		status = store.StepFailed
	}
	stats := map[string]any{"analyzed": analyzed, "failed": failed}
	if err := step.Finish(ctx, status, stats); err != nil {
		return 0, 0, err
	}
	if status == store.StepFailed {
		return analyzed, failed, fmt.Errorf("llm analysis failed for all %d repos", failed)
	}
	return analyzed, failed, nil
}

// analysisEligible requires a stored README and no prior analysis in this
// run.
func (p *Pipeline) analysisEligible(ctx context.Context, repoID string) (bool, error) {
	has, err := p.Store.HasReadme(ctx, repoID)
	if err != nil || !has {
		return false, err
	}
	done, err := p.Store.HasAnalysis(ctx, p.Run.RunID(), repoID)
	if err != nil {
		return false, err
	}
	return !done, nil
}
