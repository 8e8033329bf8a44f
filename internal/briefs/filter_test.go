package briefs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/collabscout/collabscout/internal/llm"
	"github.com/collabscout/collabscout/internal/scoring"
	"github.com/collabscout/collabscout/internal/store"
)

// testProfile builds a default qualifying profile; mut customizes it.
func testProfile(id string, mut func(*Profile)) *Profile {
	out := &llm.RepoAnalysisOutput{}
	out.Repo.FullName = id
	out.Scores.Interestingness = 0.8
	out.Scores.Novelty = 0.7
	out.Scores.CollaborationPotential = 0.75
	out.Signals.ProblemSummary = "vector similarity search engine"
	out.Signals.IntegrationSurface = []string{"API", "SDK"}
	out.Keywords.Primary = []string{"vector", "database"}
	out.Keywords.Secondary = []string{"ann"}
	out.Keywords.SearchQueries = []string{"vector db"}

	p := &Profile{
		RepoID: id,
		Repo: &store.Repo{
			ID:       id,
			Stars:    100,
			Language: "Go",
			Topics:   []string{"vector-database"},
		},
		Scores: scoring.Scores{Interestingness: 0.8, Novelty: 0.7, CollaborationPotential: 0.75},
		Final:  0.7675,
		Output: out,
	}
	if mut != nil {
		mut(p)
	}
	return p
}

func TestFilterPairRejectsCompetitors(t *testing.T) {
	a := testProfile("example/alpha", nil)
	b := testProfile("example/beta", nil)

	d := filterPair(a, b, DefaultOverlapThreshold, DefaultOverlapPenalty)
	require.True(t, d.Rejected)
	require.Equal(t, 1.0, d.FunctionalOverlap)
	require.Equal(t, 0.0, d.PenaltyApplied)
	require.False(t, d.ExceptionTriggered)
}

func TestFilterPairInteropException(t *testing.T) {
	a := testProfile("example/alpha", nil)
	b := testProfile("example/beta", func(p *Profile) {
		p.Output.Keywords.Secondary = []string{"migration"}
	})

	d := filterPair(a, b, DefaultOverlapThreshold, DefaultOverlapPenalty)
	require.False(t, d.Rejected)
	require.True(t, d.ExceptionTriggered)
	require.Equal(t, "interop_exception", d.ExceptionReason)
	require.Equal(t, 0.10, d.PenaltyApplied)
	require.GreaterOrEqual(t, d.FunctionalOverlap, DefaultOverlapThreshold)
}

func TestFilterPairInteropTriggerOnSurface(t *testing.T) {
	a := testProfile("example/alpha", nil)
	b := testProfile("example/beta", func(p *Profile) {
		p.Output.Signals.IntegrationSurface = []string{"API", "SDK", "bridge"}
	})

	d := filterPair(a, b, DefaultOverlapThreshold, DefaultOverlapPenalty)
	require.False(t, d.Rejected)
	require.True(t, d.ExceptionTriggered)
}

// unrelated builds a profile with no token overlap against testProfile's
// defaults and no interop triggers.
func unrelated(id string) *Profile {
	return testProfile(id, func(p *Profile) {
		p.Output.Signals.ProblemSummary = "log aggregation pipeline"
		p.Output.Signals.IntegrationSurface = []string{"CLI"}
		p.Output.Keywords.Primary = []string{"logs", "pipeline"}
		p.Output.Keywords.Secondary = []string{"ingest"}
		p.Output.Keywords.SearchQueries = []string{"log collector"}
	})
}

func TestFilterPairBelowThresholdPassesClean(t *testing.T) {
	a := testProfile("example/alpha", nil)
	b := unrelated("example/zeta")

	d := filterPair(a, b, DefaultOverlapThreshold, DefaultOverlapPenalty)
	require.False(t, d.Rejected)
	require.False(t, d.ExceptionTriggered)
	require.Equal(t, 0.0, d.PenaltyApplied)
	require.Equal(t, 0.0, d.FunctionalOverlap)
}

func TestFilterPairThresholdExtremes(t *testing.T) {
	a := testProfile("example/alpha", nil)
	b := unrelated("example/zeta")

	// Threshold zero: every trigger-free pair is rejected.
	d := filterPair(a, b, 0.0, DefaultOverlapPenalty)
	require.True(t, d.Rejected)

	// Threshold above 1: even identical repos pass clean.
	c := testProfile("example/clone", nil)
	d = filterPair(a, c, 1.01, DefaultOverlapPenalty)
	require.False(t, d.Rejected)
	require.False(t, d.ExceptionTriggered)
}

func TestFunctionalOverlapWeighting(t *testing.T) {
	a := testProfile("example/alpha", nil)
	c := testProfile("example/charlie", func(p *Profile) {
		p.Output.Signals.ProblemSummary = "vector similarity search for documents"
		p.Output.Signals.IntegrationSurface = []string{"API"}
		p.Output.Keywords.Primary = []string{"vector"}
	})

	// problem 3/5, surface 1/2, primary 1/2:
	// 0.45*0.6 + 0.35*0.5 + 0.20*0.5 = 0.545.
	d := filterPair(a, c, DefaultOverlapThreshold, DefaultOverlapPenalty)
	require.Equal(t, 0.545, d.FunctionalOverlap)
	require.False(t, d.Rejected)
}

func TestTokenize(t *testing.T) {
	got := tokenize("Vector-based DB, for ML!")
	// "based" and "for" are stopwords; "db" and "ml" are under three chars.
	require.Equal(t, map[string]bool{"vector": true}, got)

	require.Empty(t, tokenize(""))
}

func TestJaccardEmptySets(t *testing.T) {
	require.Equal(t, 0.0, jaccard(nil, nil))
	require.Equal(t, 0.0, jaccard(map[string]bool{"x": true}, nil))
	require.Equal(t, 1.0, jaccard(map[string]bool{"x": true}, map[string]bool{"x": true}))
}
