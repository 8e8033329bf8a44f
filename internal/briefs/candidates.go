package briefs

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/collabscout/collabscout/internal/llm"
	"github.com/collabscout/collabscout/internal/scoring"
	"github.com/collabscout/collabscout/internal/store"
)

// DefaultMaxCombos bounds candidate enumeration.
const DefaultMaxCombos = 200

// Profile is one repo's analysis plus metadata, the unit the brief engine
// groups and filters.
type Profile struct {
	RepoID   string
	Repo     *store.Repo
	Scores   scoring.Scores
	Final    float64
	Output   *llm.RepoAnalysisOutput
	FromRun  string
}

// newProfile decodes a stored analysis into a Profile.
func newProfile(a *store.Analysis, repo *store.Repo) (*Profile, error) {
	out, err := llm.ParseRepoAnalysis(json.RawMessage(a.OutputJSON))
	if err != nil {
		return nil, fmt.Errorf("stored analysis for %s is corrupt: %w", a.RepoID, err)
	}
	var scores scoring.Scores
	if err := json.Unmarshal([]byte(a.LLMScoresJSON), &scores); err != nil {
		return nil, fmt.Errorf("stored scores for %s are corrupt: %w", a.RepoID, err)
	}
	return &Profile{
		RepoID:  a.RepoID,
		Repo:    repo,
		Scores:  scores,
		Final:   a.FinalScore,
		Output:  out,
		FromRun: a.RunID,
	}, nil
}

// Candidate is an unordered 2-3 repo group with its overlap score.
type Candidate struct {
	Profiles []*Profile // sorted by repo id
	Overlap  float64
}

// RepoIDs returns the group's sorted repo ids.
func (c *Candidate) RepoIDs() []string {
	ids := make([]string, len(c.Profiles))
	for i, p := range c.Profiles {
		ids[i] = p.RepoID
	}
	return ids
}

func (c *Candidate) key() string {
	return strings.Join(c.RepoIDs(), ",")
}

var apiSDKToken = regexp.MustCompile(`(?i)\b(api|sdk)\b`)

func hasAPIOrSDK(surfaces []string) bool {
	for _, s := range surfaces {
		if apiSDKToken.MatchString(s) {
			return true
		}
	}
	return false
}

// pairOverlap blends four pair signals into [0,1]:
// 0.4 topic Jaccard, 0.2 exact language match, 0.2 integration-surface
// Jaccard, 0.2 complement bonus when exactly one side exposes an API/SDK.
func pairOverlap(a, b *Profile) float64 {
	score := 0.4 * jaccard(lowerSet(a.Repo.Topics), lowerSet(b.Repo.Topics))

	if a.Repo.Language != "" && a.Repo.Language == b.Repo.Language {
		score += 0.2
	}

	score += 0.2 * jaccard(
		lowerSet(a.Output.Signals.IntegrationSurface),
		lowerSet(b.Output.Signals.IntegrationSurface))

	if hasAPIOrSDK(a.Output.Signals.IntegrationSurface) != hasAPIOrSDK(b.Output.Signals.IntegrationSurface) {
		score += 0.2
	}
	return scoring.Round6(score)
}

// groupOverlap averages the internal pair scores; a pair is its own score.
func groupOverlap(profiles []*Profile) float64 {
	var sum float64
	n := 0
	for i := 0; i < len(profiles); i++ {
		for j := i + 1; j < len(profiles); j++ {
			sum += pairOverlap(profiles[i], profiles[j])
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return scoring.Round6(sum / float64(n))
}

// candidateGroups enumerates qualifying pairs (and triples when enabled)
// up to maxCombos, sorted by overlap descending then joined repo-id string
// ascending. Determinism: qualified profiles are sorted by repo id before
// enumeration.
func candidateGroups(profiles []*Profile, policy *scoring.Policy, maxCombos int, includeTriples bool) []*Candidate {
	if maxCombos <= 0 {
		maxCombos = DefaultMaxCombos
	}

	var qualified []*Profile
	for _, p := range profiles {
		if p.Final >= policy.Thresholds.MinRepoScoreForBrief &&
			p.Scores.CollaborationPotential >= policy.Thresholds.MinCollaborationPotentialForBrief {
			qualified = append(qualified, p)
		}
	}
	sort.Slice(qualified, func(i, j int) bool { return qualified[i].RepoID < qualified[j].RepoID })

	var out []*Candidate
	add := func(group ...*Profile) bool {
		if len(out) >= maxCombos {
			return false
		}
		members := append([]*Profile(nil), group...)
		sort.Slice(members, func(i, j int) bool { return members[i].RepoID < members[j].RepoID })
		out = append(out, &Candidate{Profiles: members, Overlap: groupOverlap(members)})
		return true
	}

	for i := 0; i < len(qualified); i++ {
		for j := i + 1; j < len(qualified); j++ {
			if !add(qualified[i], qualified[j]) {
				goto done
			}
		}
	}
	if includeTriples {
		for i := 0; i < len(qualified); i++ {
			for j := i + 1; j < len(qualified); j++ {
				for k := j + 1; k < len(qualified); k++ {
					if !add(qualified[i], qualified[j], qualified[k]) {
						goto done
					}
				}
			}
		}
	}
done:

	sort.Slice(out, func(i, j int) bool {
		if out[i].Overlap != out[j].Overlap {
			return out[i].Overlap > out[j].Overlap
		}
		return out[i].key() < out[j].key()
	})
	return out
}
