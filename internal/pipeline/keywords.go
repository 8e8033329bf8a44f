package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/collabscout/collabscout/internal/runlog"
	"github.com/collabscout/collabscout/internal/scoring"
	"github.com/collabscout/collabscout/internal/store"
)

// AggregateKeywords folds per-repo keywords from the run's top-K analyses
// into run-aggregate rows. Aggregation is idempotent: rerunning it writes
// identical (keyword, kind, weight) tuples in identical order.
func (p *Pipeline) AggregateKeywords(ctx context.Context) ([]*store.Keyword, error) {
	step, err := p.Run.StartStep(ctx, runlog.StepKeywordAggregate)
	if err != nil {
		return nil, err
	}
	agg, err := p.aggregateKeywords(ctx)
	if err != nil {
		_ = step.Finish(ctx, store.StepFailed, map[string]any{"error": err.Error()})
		return nil, err
	}
	if err := step.Finish(ctx, store.StepSuccess, map[string]any{"keywords": len(agg)}); err != nil {
		return nil, err
	}
	return agg, nil
}

func (p *Pipeline) aggregateKeywords(ctx context.Context) ([]*store.Keyword, error) {
	top, err := p.Store.TopAnalysesByScore(ctx, p.Run.RunID(), p.TopK)
	if err != nil {
		return nil, err
	}

	finalByRepo := make(map[string]float64, len(top))
	repoIDs := make([]string, 0, len(top))
	for _, a := range top {
		finalByRepo[a.RepoID] = a.FinalScore
		repoIDs = append(repoIDs, a.RepoID)
	}

	keywords, err := p.Store.ListRepoKeywords(ctx, p.Run.RunID(), repoIDs)
	if err != nil {
		return nil, err
	}

	type bucket struct{ kind, term string }
	weights := make(map[bucket]float64)
	for _, k := range keywords {
		term := strings.ToLower(strings.TrimSpace(k.Keyword))
		if term == "" {
			continue
		}
		weights[bucket{k.Kind, term}] += k.Weight * finalByRepo[k.RepoID]
	}

	agg := make([]*store.Keyword, 0, len(weights))
	for b, w := range weights {
		agg = append(agg, &store.Keyword{
			RunID:   p.Run.RunID(),
			Keyword: b.term,
			Kind:    b.kind,
			Weight:  scoring.Round6(w),
		})
	}
	sort.Slice(agg, func(i, j int) bool {
		if agg[i].Weight != agg[j].Weight {
			return agg[i].Weight > agg[j].Weight
		}
		if agg[i].Keyword != agg[j].Keyword {
			return agg[i].Keyword < agg[j].Keyword
		}
		return agg[i].Kind < agg[j].Kind
	})

	for _, k := range agg {
		if err := p.Store.UpsertKeyword(ctx, k); err != nil {
			return nil, err
		}
	}
	return agg, nil
}

// GeneratePass2Queries derives pass-2 search terms from the sorted
// aggregate: all search_query terms in order, then primary terms filling
// up to maxQueries, deduplicated preserving first occurrence.
func GeneratePass2Queries(agg []*store.Keyword, maxQueries int) []string {
	if maxQueries <= 0 {
		maxQueries = DefaultMaxQueries
	}
	seen := make(map[string]bool)
	var queries []string
	add := func(term string) {
		if len(queries) >= maxQueries || seen[term] {
			return
		}
		seen[term] = true
		queries = append(queries, term)
	}
	for _, k := range agg {
		if k.Kind == store.KeywordSearchQuery {
			add(k.Keyword)
		}
	}
	for _, k := range agg {
		if k.Kind == store.KeywordPrimary {
			add(k.Keyword)
		}
	}
	return queries
}
