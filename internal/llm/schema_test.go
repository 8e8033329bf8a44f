package llm

import (
	"encoding/json"
	"strings"
	"testing"
)

func validAnalysisJSON() string {
	return `{
		"repo": {"full_name": "example/alpha"},
		"scores": {"interestingness": 0.8, "novelty": 0.7, "collaboration_potential": 0.75},
		"reasons": {"interestingness": ["a"], "novelty": ["b"], "collaboration_potential": ["c"]},
		"signals": {
			"problem_summary": "vector search",
			"who_is_it_for": "ml engineers",
			"integration_surface": ["API", "SDK"],
			"risk_flags": []
		},
		"keywords": {"primary": ["vector"], "secondary": ["ann"], "search_queries": ["vector db"]}
	}`
}

func TestParseRepoAnalysisValid(t *testing.T) {
	out, err := ParseRepoAnalysis(json.RawMessage(validAnalysisJSON()))
	if err != nil {
		t.Fatalf("ParseRepoAnalysis: %v", err)
	}
	if out.Repo.FullName != "example/alpha" {
		t.Errorf("full_name = %q", out.Repo.FullName)
	}
	if !out.Signals.RiskFlagsPresent {
		t.Error("risk_flags present in input but RiskFlagsPresent = false")
	}
	if out.Signals.RiskFlags == nil || len(out.Signals.RiskFlags) != 0 {
		t.Errorf("risk_flags = %v, want empty non-nil", out.Signals.RiskFlags)
	}
}

func TestParseRepoAnalysisRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(m map[string]any)
		wantErr string
	}{
		{
			name:    "missing full_name",
			mutate:  func(m map[string]any) { m["repo"] = map[string]any{} },
			wantErr: "full_name",
		},
		{
			name: "score out of range",
			mutate: func(m map[string]any) {
				m["scores"].(map[string]any)["novelty"] = 1.5
			},
			wantErr: "novelty",
		},
		{
			name: "too many primary keywords",
			mutate: func(m map[string]any) {
				kw := make([]string, 13)
				for i := range kw {
					kw[i] = "k"
				}
				m["keywords"].(map[string]any)["primary"] = kw
			},
			wantErr: "keywords.primary",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var m map[string]any
			if err := json.Unmarshal([]byte(validAnalysisJSON()), &m); err != nil {
				t.Fatal(err)
			}
			c.mutate(m)
			raw, _ := json.Marshal(m)
			_, err := ParseRepoAnalysis(raw)
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsInvalidOutput(err) {
				t.Errorf("error kind: %v", err)
			}
			if !strings.Contains(err.Error(), c.wantErr) {
				t.Errorf("error %q does not mention %q", err, c.wantErr)
			}
		})
	}
}

func TestRiskFlagsPresenceRoundTrip(t *testing.T) {
	cases := []struct {
		name        string
		in          string
		wantPresent bool
	}{
		{"absent", `{"problem_summary":"x"}`, false},
		{"empty", `{"problem_summary":"x","risk_flags":[]}`, true},
		{"populated", `{"risk_flags":["unmaintained"]}`, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var sig AnalysisSignals
			if err := json.Unmarshal([]byte(c.in), &sig); err != nil {
				t.Fatal(err)
			}
			if sig.RiskFlagsPresent != c.wantPresent {
				t.Fatalf("RiskFlagsPresent = %v, want %v", sig.RiskFlagsPresent, c.wantPresent)
			}

			out, err := json.Marshal(sig)
			if err != nil {
				t.Fatal(err)
			}
			var probe map[string]json.RawMessage
			if err := json.Unmarshal(out, &probe); err != nil {
				t.Fatal(err)
			}
			if _, ok := probe["risk_flags"]; ok != c.wantPresent {
				t.Errorf("risk_flags in serialized form = %v, want %v (json: %s)", ok, c.wantPresent, out)
			}
		})
	}
}

func validBriefJSON() string {
	return `{
		"title": "Shared vector benchmark",
		"concept": "A joint benchmark suite.",
		"repos": [
			{"full_name": "example/alpha", "why_it_fits": "storage layer", "integration_role": "engine"},
			{"full_name": "example/gamma", "why_it_fits": "harness", "integration_role": "benchmark"}
		],
		"outreach_message": "Hello maintainers."
	}`
}

func TestParseBriefValid(t *testing.T) {
	out, err := ParseBrief(json.RawMessage(validBriefJSON()))
	if err != nil {
		t.Fatalf("ParseBrief: %v", err)
	}
	if len(out.Repos) != 2 {
		t.Errorf("repos = %d", len(out.Repos))
	}
}

func TestParseBriefRejections(t *testing.T) {
	mutate := func(f func(m map[string]any)) json.RawMessage {
		var m map[string]any
		if err := json.Unmarshal([]byte(validBriefJSON()), &m); err != nil {
			t.Fatal(err)
		}
		f(m)
		raw, _ := json.Marshal(m)
		return raw
	}

	if _, err := ParseBrief(mutate(func(m map[string]any) { m["title"] = "" })); err == nil {
		t.Error("empty title accepted")
	}
	if _, err := ParseBrief(mutate(func(m map[string]any) {
		m["title"] = strings.Repeat("x", 101)
	})); err == nil {
		t.Error("oversized title accepted")
	}
	if _, err := ParseBrief(mutate(func(m map[string]any) {
		m["repos"] = m["repos"].([]any)[:1]
	})); err == nil {
		t.Error("single-repo brief accepted")
	}
	if _, err := ParseBrief(mutate(func(m map[string]any) {
		m["outreach_message"] = strings.Repeat("x", 1001)
	})); err == nil {
		t.Error("oversized outreach accepted")
	}
}
