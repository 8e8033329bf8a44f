package redact

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIsSecretKey(t *testing.T) {
	secret := []string{"token", "GITHUB_TOKEN", "api_key", "Secret", "password", "Authorization", "openrouter_api_key"}
	for _, k := range secret {
		if !IsSecretKey(k) {
			t.Errorf("IsSecretKey(%q) = false, want true", k)
		}
	}
	clear := []string{"query", "stars", "run_id", "model", "language"}
	for _, k := range clear {
		if IsSecretKey(k) {
			t.Errorf("IsSecretKey(%q) = true, want false", k)
		}
	}
}

func TestValueRedactsNestedSecrets(t *testing.T) {
	in := map[string]any{
		"query": "vector database",
		"token": "SENTINEL_TOKEN",
		"nested": map[string]any{
			"api_key": "SENTINEL_KEY",
			"count":   3,
		},
		"list": []any{
			map[string]any{"password": "hunter2", "name": "ok"},
		},
	}
	want := map[string]any{
		"query": "vector database",
		"token": Sentinel,
		"nested": map[string]any{
			"api_key": Sentinel,
			"count":   3,
		},
		"list": []any{
			map[string]any{"password": Sentinel, "name": "ok"},
		},
	}
	got := Value(in)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Value mismatch (-want +got):\n%s", diff)
	}
}

func TestValueLeavesEmptySecretValues(t *testing.T) {
	got := Value(map[string]any{"token": ""})
	if got.(map[string]any)["token"] != "" {
		t.Errorf("empty secret value should pass through, got %v", got)
	}
}

func TestValueNonStringSecretValue(t *testing.T) {
	// Only string values are replaced; a numeric "token" field is not a
	// credential.
	got := Value(map[string]any{"token_count": 42, "token": 42})
	m := got.(map[string]any)
	if m["token"] != 42 {
		t.Errorf("non-string value under secret key should pass through, got %v", m["token"])
	}
}
