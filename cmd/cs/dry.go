package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// dryTransport serves canned GitHub and LLM responses so pass 1 can run
// end to end without tokens or network access.
type dryTransport struct{}

func newDryTransport() *dryTransport {
	return &dryTransport{}
}

var dryRepos = []map[string]any{
	{
		"full_name":        "example/alpha",
		"stargazers_count": 420,
		"forks_count":      31,
		"topics":           []string{"vector-database", "embeddings"},
		"language":         "Go",
		"license":          map[string]any{"spdx_id": "Apache-2.0"},
		"archived":         false,
		"fork":             false,
	},
	{
		"full_name":        "example/beta",
		"stargazers_count": 230,
		"forks_count":      12,
		"topics":           []string{"search", "embeddings"},
		"language":         "Rust",
		"license":          map[string]any{"spdx_id": "MIT"},
		"archived":         false,
		"fork":             false,
	},
	{
		"full_name":        "example/gamma",
		"stargazers_count": 97,
		"forks_count":      4,
		"topics":           []string{"vector-database", "benchmark"},
		"language":         "Go",
		"license":          map[string]any{"spdx_id": "MIT"},
		"archived":         false,
		"fork":             false,
	},
}

func (t *dryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	path := req.URL.Path
	switch {
	case strings.HasSuffix(path, "/rate_limit"):
		return jsonResponse(200, map[string]any{
			"resources": map[string]any{
				"core":   map[string]any{"limit": 5000, "remaining": 5000},
				"search": map[string]any{"limit": 30, "remaining": 30},
			},
		})

	case strings.Contains(path, "/search/repositories"):
		return jsonResponse(200, map[string]any{
			"total_count":        len(dryRepos),
			"incomplete_results": false,
			"items":              dryRepos,
		})

	case strings.HasSuffix(path, "/readme"):
		// /repos/{owner}/{name}/readme
		parts := strings.Split(path, "/")
		name := "unknown"
		if len(parts) >= 4 {
			name = parts[len(parts)-2]
		}
		body := fmt.Sprintf("# %s\n\nA fixture project used for offline runs.\n", name)
		return textResponse(200, body)

	case strings.Contains(path, "/chat/completions"):
		return t.llmResponse(req)
	}
	return jsonResponse(404, map[string]any{"message": "no fixture for " + path})
}

// llmResponse inspects the prompt to decide which schema is expected and
// which fixture repo it concerns.
func (t *dryTransport) llmResponse(req *http.Request) (*http.Response, error) {
	body, _ := io.ReadAll(req.Body)
	prompt := string(body)

	if strings.Contains(prompt, "collaboration brief") {
		return chatCompletion(dryBriefOutput(prompt))
	}

	repo := "example/alpha"
	for _, r := range dryRepos {
		name := r["full_name"].(string)
		if strings.Contains(prompt, name) {
			repo = name
			break
		}
	}
	return chatCompletion(dryAnalysisOutput(repo))
}

func dryAnalysisOutput(fullName string) map[string]any {
	return map[string]any{
		"repo": map[string]any{"full_name": fullName},
		"scores": map[string]any{
			"interestingness":         0.8,
			"novelty":                 0.7,
			"collaboration_potential": 0.75,
		},
		"reasons": map[string]any{
			"interestingness":         []string{"active project with a clear niche"},
			"novelty":                 []string{"uncommon approach to indexing"},
			"collaboration_potential": []string{"exposes a stable API"},
		},
		"signals": map[string]any{
			"problem_summary":     "vector database for similarity search over embeddings",
			"who_is_it_for":       "teams building retrieval pipelines",
			"integration_surface": []string{"API", "SDK"},
			"risk_flags":          []string{},
		},
		"keywords": map[string]any{
			"primary":        []string{"vector", "embeddings", "similarity"},
			"secondary":      []string{"retrieval", "index"},
			"search_queries": []string{"vector similarity search"},
		},
	}
}

func dryBriefOutput(prompt string) map[string]any {
	repos := []map[string]any{}
	for _, r := range dryRepos {
		name := r["full_name"].(string)
		if strings.Contains(prompt, name) {
			repos = append(repos, map[string]any{
				"full_name":        name,
				"why_it_fits":      "complements the other project's storage layer",
				"integration_role": "embedding provider",
			})
		}
		if len(repos) == 2 {
			break
		}
	}
	return map[string]any{
		"title":            "Shared embedding interchange",
		"concept":          "Build a common interchange format between the two engines.",
		"repos":            repos,
		"outreach_message": "Hi! We noticed our projects solve adjacent problems and think a shared format could help both communities.",
	}
}

// chatCompletion wraps payload as an OpenAI-style chat response.
func chatCompletion(payload map[string]any) (*http.Response, error) {
	content, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return jsonResponse(200, map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": string(content)}},
		},
		"usage": map[string]any{"prompt_tokens": 100, "completion_tokens": 200},
	})
}

func jsonResponse(status int, v any) (*http.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(body)),
	}, nil
}

func textResponse(status int, body string) (*http.Response, error) {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}
