package llm

import (
	"encoding/json"
	"fmt"
)

// Schema identifiers referenced by prompt headers.
const (
	SchemaRepoAnalysis = "RepoAnalysisOutput"
	SchemaBrief        = "BriefOutput"
)

// RepoAnalysisOutput is the validated shape of a repo analysis.
type RepoAnalysisOutput struct {
	Repo struct {
		FullName string `json:"full_name"`
	} `json:"repo"`
	Scores struct {
		Interestingness        float64 `json:"interestingness"`
		Novelty                float64 `json:"novelty"`
		CollaborationPotential float64 `json:"collaboration_potential"`
	} `json:"scores"`
	Reasons struct {
		Interestingness        []string `json:"interestingness"`
		Novelty                []string `json:"novelty"`
		CollaborationPotential []string `json:"collaboration_potential"`
	} `json:"reasons"`
	Signals  AnalysisSignals `json:"signals"`
	Keywords struct {
		Primary       []string `json:"primary"`
		Secondary     []string `json:"secondary"`
		SearchQueries []string `json:"search_queries"`
	} `json:"keywords"`
}

// AnalysisSignals tracks whether risk_flags was explicitly present: an
// empty list and an absent field score differently, and that distinction
// must survive storage and replay.
type AnalysisSignals struct {
	ProblemSummary     string   `json:"problem_summary,omitempty"`
	WhoIsItFor         string   `json:"who_is_it_for,omitempty"`
	IntegrationSurface []string `json:"integration_surface,omitempty"`
	RiskFlags          []string `json:"risk_flags,omitempty"`

	RiskFlagsPresent bool `json:"-"`
}

func (s *AnalysisSignals) UnmarshalJSON(b []byte) error {
	type plain AnalysisSignals
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		return err
	}
	*s = AnalysisSignals(p)
	_, s.RiskFlagsPresent = probe["risk_flags"]
	if s.RiskFlagsPresent && s.RiskFlags == nil {
		s.RiskFlags = []string{}
	}
	return nil
}

// MarshalJSON round-trips the presence bit: an explicitly-present empty
// risk_flags list serializes as [].
func (s AnalysisSignals) MarshalJSON() ([]byte, error) {
	m := map[string]any{}
	if s.ProblemSummary != "" {
		m["problem_summary"] = s.ProblemSummary
	}
	if s.WhoIsItFor != "" {
		m["who_is_it_for"] = s.WhoIsItFor
	}
	if len(s.IntegrationSurface) > 0 {
		m["integration_surface"] = s.IntegrationSurface
	}
	if s.RiskFlagsPresent {
		if s.RiskFlags == nil {
			m["risk_flags"] = []string{}
		} else {
			m["risk_flags"] = s.RiskFlags
		}
	}
	return json.Marshal(m)
}

func invalid(format string, args ...any) error {
	return &Error{Kind: KindInvalidOutput, Detail: fmt.Sprintf(format, args...)}
}

func checkScore(name string, v float64) error {
	if v < 0 || v > 1 {
		return invalid("score %s=%v out of [0,1]", name, v)
	}
	return nil
}

func checkLen(name string, items []string, max int) error {
	if len(items) > max {
		return invalid("%s has %d items, max %d", name, len(items), max)
	}
	return nil
}

// ParseRepoAnalysis validates raw against the RepoAnalysisOutput schema.
func ParseRepoAnalysis(raw json.RawMessage) (*RepoAnalysisOutput, error) {
	var out RepoAnalysisOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, invalid("not a RepoAnalysisOutput object: %v", err)
	}
	if out.Repo.FullName == "" {
		return nil, invalid("repo.full_name is required")
	}
	if err := checkScore("interestingness", out.Scores.Interestingness); err != nil {
		return nil, err
	}
	if err := checkScore("novelty", out.Scores.Novelty); err != nil {
		return nil, err
	}
	if err := checkScore("collaboration_potential", out.Scores.CollaborationPotential); err != nil {
		return nil, err
	}
	if err := checkLen("reasons.interestingness", out.Reasons.Interestingness, 8); err != nil {
		return nil, err
	}
	if err := checkLen("reasons.novelty", out.Reasons.Novelty, 8); err != nil {
		return nil, err
	}
	if err := checkLen("reasons.collaboration_potential", out.Reasons.CollaborationPotential, 8); err != nil {
		return nil, err
	}
	if err := checkLen("keywords.primary", out.Keywords.Primary, 12); err != nil {
		return nil, err
	}
	if err := checkLen("keywords.secondary", out.Keywords.Secondary, 24); err != nil {
		return nil, err
	}
	if err := checkLen("keywords.search_queries", out.Keywords.SearchQueries, 10); err != nil {
		return nil, err
	}
	return &out, nil
}

// BriefOutput is the validated shape of a collaboration brief.
type BriefOutput struct {
	Title           string      `json:"title"`
	Concept         string      `json:"concept"`
	Repos           []BriefRepo `json:"repos"`
	OutreachMessage string      `json:"outreach_message"`
}

// BriefRepo is one participating repo in a brief.
type BriefRepo struct {
	FullName        string `json:"full_name"`
	WhyItFits       string `json:"why_it_fits"`
	IntegrationRole string `json:"integration_role"`
}

// ParseBrief validates raw against the BriefOutput schema.
func ParseBrief(raw json.RawMessage) (*BriefOutput, error) {
	var out BriefOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, invalid("not a BriefOutput object: %v", err)
	}
	if out.Title == "" || len(out.Title) > 100 {
		return nil, invalid("title must be 1-100 chars, got %d", len(out.Title))
	}
	if len(out.Concept) > 600 {
		return nil, invalid("concept exceeds 600 chars")
	}
	if len(out.Repos) < 2 || len(out.Repos) > 4 {
		return nil, invalid("brief must name 2-4 repos, got %d", len(out.Repos))
	}
	for i, r := range out.Repos {
		if r.FullName == "" {
			return nil, invalid("repos[%d].full_name is required", i)
		}
		if len(r.WhyItFits) > 300 {
			return nil, invalid("repos[%d].why_it_fits exceeds 300 chars", i)
		}
		if len(r.IntegrationRole) > 100 {
			return nil, invalid("repos[%d].integration_role exceeds 100 chars", i)
		}
	}
	if len(out.OutreachMessage) > 1000 {
		return nil, invalid("outreach_message exceeds 1000 chars")
	}
	return &out, nil
}
