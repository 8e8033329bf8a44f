package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/collabscout/collabscout/internal/ghapi"
	"github.com/collabscout/collabscout/internal/llm"
	"github.com/collabscout/collabscout/internal/runlog"
	"github.com/collabscout/collabscout/internal/scoring"
	"github.com/collabscout/collabscout/internal/store"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, v any) *http.Response {
	b, _ := json.Marshal(v)
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return &http.Response{StatusCode: status, Header: h, Body: io.NopCloser(strings.NewReader(string(b)))}
}

func textResponse(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Header: http.Header{}, Body: io.NopCloser(strings.NewReader(body))}
}

// fixture simulates GitHub and the LLM endpoint behind one transport.
type fixture struct {
	repos      []map[string]any
	llmContent func(prompt string) (string, bool) // payload, valid
	llmCalls   int
}

func searchItem(fullName string, stars int, language string, topics []string) map[string]any {
	return map[string]any{
		"full_name":        fullName,
		"stargazers_count": stars,
		"forks_count":      3,
		"topics":           topics,
		"language":         language,
		"license":          map[string]any{"spdx_id": "MIT"},
		"archived":         false,
		"fork":             false,
	}
}

func analysisPayload(fullName string) string {
	return fmt.Sprintf(`{
		"repo": {"full_name": %q},
		"scores": {"interestingness": 0.8, "novelty": 0.7, "collaboration_potential": 0.75},
		"reasons": {"interestingness": ["active"], "novelty": ["new angle"], "collaboration_potential": ["clean API"]},
		"signals": {
			"problem_summary": "vector similarity search",
			"who_is_it_for": "ml engineers",
			"integration_surface": ["API", "SDK"],
			"risk_flags": []
		},
		"keywords": {
			"primary": ["vector", "embeddings"],
			"secondary": ["ann"],
			"search_queries": ["vector similarity search"]
		}
	}`, fullName)
}

func (f *fixture) roundTrip(r *http.Request) (*http.Response, error) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/rate_limit"):
		return jsonResponse(200, map[string]any{
			"resources": map[string]any{"core": map[string]any{"remaining": 4999}},
		}), nil

	case strings.Contains(r.URL.Path, "/search/repositories"):
		return jsonResponse(200, map[string]any{
			"total_count":        len(f.repos),
			"incomplete_results": false,
			"items":              f.repos,
		}), nil

	case strings.HasSuffix(r.URL.Path, "/readme"):
		// /repos/{owner}/{name}/readme
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		name := parts[len(parts)-2]
		if name == "noreadme" {
			return jsonResponse(404, map[string]any{"message": "Not Found"}), nil
		}
		return textResponse(200, "# "+name+"\n\nA fixture project for tests."), nil

	case strings.Contains(r.URL.Path, "/chat/completions"):
		f.llmCalls++
		body, _ := io.ReadAll(r.Body)
		payload, _ := f.llmContent(string(body))
		return jsonResponse(200, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": payload}},
			},
			"usage": map[string]any{"prompt_tokens": 100, "completion_tokens": 50},
		}), nil
	}
	return textResponse(500, "unrouted: "+r.URL.Path), nil
}

const testPrompt = `---
id: repo_analysis
version: v1
schema_id: RepoAnalysisOutput
model_defaults:
  temperature: 0.2
  max_tokens: 2000
---
Analyze {{repo_full_name}}.

{{readme_excerpt}}
`

func newTestPipeline(t *testing.T, f *fixture) (*Pipeline, *store.Store) {
	t.Helper()
	ctx := context.Background()

	st, err := store.OpenMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)
	run, err := runlog.NewRun(ctx, st, log, map[string]any{"query": "vector db"}, "cfg12345")
	require.NoError(t, err)

	httpClient := &http.Client{Transport: roundTripFunc(f.roundTrip)}

	gh := ghapi.NewClient("", st)
	gh.HTTP = httpClient
	gh.Sleep = func(context.Context, time.Duration) error { return nil }

	lc := llm.NewClient("")
	lc.Endpoint = "https://fixture.invalid/chat/completions"
	lc.HTTP = httpClient
	lc.Sleep = func(context.Context, time.Duration) error { return nil }

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "repo_analysis@v1.md"), []byte(testPrompt), 0o644))

	return NewPipeline(st, gh, lc, &llm.Registry{Dir: dir}, scoring.Default(), run, "test/model"), st
}

func defaultFixture() *fixture {
	return &fixture{
		repos: []map[string]any{
			searchItem("example/alpha", 420, "Go", []string{"vector-database", "embeddings"}),
			searchItem("example/beta", 230, "Rust", []string{"embeddings"}),
			searchItem("example/gamma", 97, "Go", []string{"vector-database", "benchmark"}),
		},
		llmContent: func(prompt string) (string, bool) {
			for _, name := range []string{"example/alpha", "example/beta", "example/gamma"} {
				if strings.Contains(prompt, name) {
					return analysisPayload(name), true
				}
			}
			return analysisPayload("example/unknown"), true
		},
	}
}

func TestRunPass1StoresFullTrail(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture()
	p, st := newTestPipeline(t, f)

	res, err := p.RunPass1(ctx, Pass1Params{Query: "vector db", Days: 180, Stars: 50, TopN: 100})
	require.NoError(t, err)
	require.Equal(t, 3, res.ReposFound)
	require.Equal(t, 3, res.ReadmesFetched)
	require.Equal(t, 0, res.ReadmesMissing)
	require.Equal(t, 3, res.Analyzed)
	require.Equal(t, 0, res.AnalysisFailed)

	runID := p.Run.RunID()

	queries, err := st.ListQueries(ctx, runID)
	require.NoError(t, err)
	require.Len(t, queries, 1)
	require.Equal(t, 1, queries[0].Pass)
	require.Contains(t, queries[0].Query, "stars:>=50")

	repos, err := st.ListReposSeenByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, repos, 3)

	for _, id := range []string{"example/alpha", "example/beta", "example/gamma"} {
		readme, err := st.GetReadme(ctx, id)
		require.NoError(t, err)
		require.Len(t, readme.ContentSHA256, 64)
	}

	analyses, err := st.ListAnalysesByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, analyses, 3)
	for _, a := range analyses {
		require.Equal(t, 0.7675, a.FinalScore)
		// Input snapshot records the hash, never the README body.
		require.NotContains(t, a.InputJSON, "fixture project")
		require.Contains(t, a.InputJSON, `"readme_sha256"`)
	}

	fetchedEvents, err := st.CountAuditByEvent(ctx, runID, "repo.readme.fetched")
	require.NoError(t, err)
	require.Equal(t, 3, fetchedEvents)

	steps, err := st.ListSteps(ctx, runID)
	require.NoError(t, err)
	var names []string
	for _, s := range steps {
		names = append(names, s.Name)
		require.Equal(t, store.StepSuccess, s.Status)
	}
	require.Equal(t, []string{
		runlog.StepRateLimitSnapshot,
		runlog.StepSearchPass1,
		runlog.StepHydrateRepoMetadata,
		runlog.StepHydrateReadme,
		runlog.StepLLMRepoAnalysis,
	}, names)
}

func TestRunPass1MissingReadme(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture()
	f.repos = append(f.repos, searchItem("example/noreadme", 60, "Go", nil))
	p, st := newTestPipeline(t, f)

	res, err := p.RunPass1(ctx, Pass1Params{Query: "vector db", Days: 180, Stars: 50, TopN: 100})
	require.NoError(t, err)
	require.Equal(t, 4, res.ReposFound)
	require.Equal(t, 3, res.ReadmesFetched)
	require.Equal(t, 1, res.ReadmesMissing)
	// A repo without a README is skipped by analysis, not failed.
	require.Equal(t, 3, res.Analyzed)
	require.Equal(t, 0, res.AnalysisFailed)

	n, err := st.CountAuditByEvent(ctx, p.Run.RunID(), "repo.readme.missing")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRunPass1InvalidLLMOutput(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture()
	f.llmContent = func(string) (string, bool) { return "certainly! here is the JSON you asked for: {", false }
	p, st := newTestPipeline(t, f)

	_, err := p.RunPass1(ctx, Pass1Params{Query: "vector db", Days: 180, Stars: 50, TopN: 100})
	require.Error(t, err)

	runID := p.Run.RunID()

	analyses, err := st.ListAnalysesByRun(ctx, runID)
	require.NoError(t, err)
	require.Empty(t, analyses)

	n, err := st.CountAuditByEvent(ctx, runID, "llm.output.invalid_json")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	steps, err := st.ListSteps(ctx, runID)
	require.NoError(t, err)
	last := steps[len(steps)-1]
	require.Equal(t, runlog.StepLLMRepoAnalysis, last.Name)
	require.Equal(t, store.StepFailed, last.Status)
}

func TestRunPass1RerunSkipsAnalyzedRepos(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture()
	p, _ := newTestPipeline(t, f)

	_, err := p.RunPass1(ctx, Pass1Params{Query: "vector db", Days: 180, Stars: 50, TopN: 100})
	require.NoError(t, err)
	callsAfterFirst := f.llmCalls

	res, err := p.RunPass1(ctx, Pass1Params{Query: "vector db", Days: 180, Stars: 50, TopN: 100})
	require.NoError(t, err)
	require.Equal(t, 0, res.Analyzed)
	require.Equal(t, callsAfterFirst, f.llmCalls, "already-analyzed repos must not be re-sent to the LLM")
}

func TestAggregateKeywordsDeterministic(t *testing.T) {
	ctx := context.Background()
	p, st := newTestPipeline(t, defaultFixture())

	_, err := p.RunPass1(ctx, Pass1Params{Query: "vector db", Days: 180, Stars: 50, TopN: 100})
	require.NoError(t, err)

	agg1, err := p.AggregateKeywords(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, agg1)

	// All three repos scored 0.7675; primary and search_query weights are
	// 3 * 1.0 * 0.7675, secondary 3 * 0.5 * 0.7675.
	byTerm := map[string]float64{}
	for _, k := range agg1 {
		byTerm[k.Kind+"/"+k.Keyword] = k.Weight
	}
	require.InDelta(t, 2.3025, byTerm["primary/vector"], 1e-9)
	require.InDelta(t, 2.3025, byTerm["search_query/vector similarity search"], 1e-9)
	require.InDelta(t, 1.15125, byTerm["secondary/ann"], 1e-9)

	// Sorted by weight desc, then keyword asc, then kind asc.
	for i := 1; i < len(agg1); i++ {
		prev, cur := agg1[i-1], agg1[i]
		require.True(t, prev.Weight > cur.Weight ||
			(prev.Weight == cur.Weight && prev.Keyword < cur.Keyword) ||
			(prev.Weight == cur.Weight && prev.Keyword == cur.Keyword && prev.Kind < cur.Kind),
			"aggregate out of order at %d: %+v before %+v", i, prev, cur)
	}

	agg2, err := p.AggregateKeywords(ctx)
	require.NoError(t, err)
	require.Equal(t, len(agg1), len(agg2))
	for i := range agg1 {
		require.Equal(t, agg1[i].Keyword, agg2[i].Keyword)
		require.Equal(t, agg1[i].Kind, agg2[i].Kind)
		require.Equal(t, agg1[i].Weight, agg2[i].Weight)
	}

	stored, err := st.ListAggregateKeywords(ctx, p.Run.RunID())
	require.NoError(t, err)
	require.Len(t, stored, len(agg1))
}

func TestGeneratePass2Queries(t *testing.T) {
	agg := []*store.Keyword{
		{Keyword: "vector similarity search", Kind: store.KeywordSearchQuery, Weight: 2.3},
		{Keyword: "embeddings", Kind: store.KeywordPrimary, Weight: 2.3},
		{Keyword: "vector", Kind: store.KeywordPrimary, Weight: 2.0},
		{Keyword: "ann", Kind: store.KeywordSecondary, Weight: 1.1},
		{Keyword: "embeddings", Kind: store.KeywordSearchQuery, Weight: 0.9},
	}

	got := GeneratePass2Queries(agg, 10)
	// search_query terms first in aggregate order, then primary fill;
	// "embeddings" appears once despite being both kinds.
	require.Equal(t, []string{"vector similarity search", "embeddings", "vector"}, got)

	capped := GeneratePass2Queries(agg, 2)
	require.Equal(t, []string{"vector similarity search", "embeddings"}, capped)
}
