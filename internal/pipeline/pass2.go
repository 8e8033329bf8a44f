package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/collabscout/collabscout/internal/ghapi"
	"github.com/collabscout/collabscout/internal/runlog"
	"github.com/collabscout/collabscout/internal/store"
)

// pass2PageSize is the single-page result size per generated query.
const pass2PageSize = 30

// Pass2Params tune the keyword-driven second pass.
type Pass2Params struct {
	Pass2Stars    int
	Pass2MaxStars int
	MaxQueries    int
	MaxNewRepos   int
	MaxAnalyses   int
	Days          int
	Language      string
	IncludeForks  bool
}

// Pass2Result summarizes pass 2 for CLI output.
type Pass2Result struct {
	RunID     string `json:"run_id"`
	Queries   int    `json:"queries"`
	NewRepos  int    `json:"new_repos"`
	Linked    int    `json:"linked"`
	Analyzed  int    `json:"analyzed"`
	Failed    int    `json:"failed"`
	Capped    bool   `json:"capped"`
	CapReason string `json:"cap_reason,omitempty"`
}

// RunPass2 aggregates keywords, generates queries and executes the second
// search pass under the hard repo and analysis caps.
func (p *Pipeline) RunPass2(ctx context.Context, params Pass2Params) (*Pass2Result, error) {
	if params.MaxQueries <= 0 {
		params.MaxQueries = DefaultMaxQueries
	}
	if params.MaxNewRepos <= 0 {
		params.MaxNewRepos = DefaultMaxNewRepos
	}
	if params.MaxAnalyses <= 0 {
		params.MaxAnalyses = DefaultMaxAnalyses
	}

	agg, err := p.AggregateKeywords(ctx)
	if err != nil {
		return nil, err
	}
	queries := GeneratePass2Queries(agg, params.MaxQueries)

	step, err := p.Run.StartStep(ctx, runlog.StepSearchPass2)
	if err != nil {
		return nil, err
	}

	result := &Pass2Result{RunID: p.Run.RunID(), Queries: len(queries)}
	err = p.executePass2(ctx, params, queries, result)

	stats := map[string]any{
		"queries":   result.Queries,
		"new_repos": result.NewRepos,
		"linked":    result.Linked,
		"analyzed":  result.Analyzed,
		"failed":    result.Failed,
	}
	if result.Capped {
		stats["capped"] = true
		stats["reason"] = result.CapReason
	}
	if err != nil {
		stats["error"] = err.Error()
		_ = step.Finish(ctx, store.StepFailed, stats)
		return nil, err
	}
	if err := step.Finish(ctx, store.StepSuccess, stats); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) executePass2(ctx context.Context, params Pass2Params, queries []string, result *Pass2Result) error {
	for _, term := range queries {
		query := ghapi.BuildSearchQuery(ghapi.SearchParams{
			Query:        term,
			Days:         params.Days,
			Stars:        params.Pass2Stars,
			MaxStars:     params.Pass2MaxStars,
			Language:     params.Language,
			IncludeForks: params.IncludeForks,
		}, p.Now())

		paramsJSON, _ := json.Marshal(params)
		queryID, err := p.Store.InsertQuery(ctx, &store.GitHubQuery{
			RunID:      p.Run.RunID(),
			Pass:       2,
			Query:      query,
			ParamsJSON: string(paramsJSON),
			CreatedAt:  p.Now(),
		})
		if err != nil {
			return err
		}

		res, err := p.GitHub.SearchRepositories(ctx, query, 1, pass2PageSize)
		if err != nil {
			return err
		}

		for rank, item := range res.Items {
			stop, err := p.handlePass2Repo(ctx, params, queryID, item, rank+1, result)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
	}
	return nil
}

// handlePass2Repo processes one pass-2 search hit. Returns stop=true when
// a hard cap binds; all remaining pass-2 work is abandoned.
func (p *Pipeline) handlePass2Repo(ctx context.Context, params Pass2Params, queryID int64, item ghapi.SearchRepo, rank int, result *Pass2Result) (stop bool, err error) {
	repoID := item.FullName

	analyzed, err := p.Store.HasAnalysis(ctx, p.Run.RunID(), repoID)
	if err != nil {
		return false, err
	}
	if analyzed {
		if err := p.Store.LinkRepoQuery(ctx, queryID, repoID, 2, rank); err != nil {
			return false, err
		}
		result.Linked++
		return false, nil
	}

	if result.NewRepos >= params.MaxNewRepos {
		result.Capped = true
		result.CapReason = "max_new_repos"
		p.Run.Audit(ctx, logrus.WarnLevel, runlog.StepSearchPass2, "pass2.repos.capped",
			"new-repo cap reached", map[string]any{"cap": params.MaxNewRepos})
		return true, nil
	}

	repo := repoFromSearch(item, p.Run.RunID())
	if err := p.Store.UpsertRepo(ctx, repo); err != nil {
		return false, err
	}
	if err := p.Store.LinkRepoQuery(ctx, queryID, repoID, 2, rank); err != nil {
		return false, err
	}
	result.NewRepos++

	has, err := p.Store.HasReadme(ctx, repoID)
	if err != nil {
		return false, err
	}
	if !has {
		res, err := p.GitHub.FetchReadme(ctx, repoID)
		if err != nil {
			if ghapi.IsStatus(err, 404) {
				p.Run.Audit(ctx, logrus.InfoLevel, runlog.StepSearchPass2, "repo.readme.missing",
					"repo has no readme", map[string]any{"repo": repoID})
				return false, nil
			}
			result.Failed++
			p.Run.Audit(ctx, logrus.WarnLevel, runlog.StepSearchPass2, "repo.hydrate.failed",
				"readme fetch failed", map[string]any{"repo": repoID, "error": err.Error()})
			return false, nil
		}
		sum := sha256.Sum256(res.Content)
		readme := &store.Readme{
			RepoID:        repoID,
			Content:       res.Content,
			ContentSHA256: hex.EncodeToString(sum[:]),
			FetchedAt:     p.Now(),
			ETag:          res.ETag,
			SourceURL:     res.SourceURL,
		}
		if err := p.Store.UpsertReadme(ctx, readme); err != nil {
			return false, err
		}
	}

	if result.Analyzed >= params.MaxAnalyses {
		result.Capped = true
		result.CapReason = "max_llm_analyses"
		p.Run.Audit(ctx, logrus.WarnLevel, runlog.StepSearchPass2, "pass2.analyses.capped",
			"analysis cap reached", map[string]any{"cap": params.MaxAnalyses})
		return true, nil
	}
	if err := p.analyzeRepo(ctx, repoID); err != nil {
		result.Failed++
		return false, nil
	}
	result.Analyzed++
	return false, nil
}
