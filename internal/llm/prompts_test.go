package llm

import (
	"os"
	"path/filepath"
	"testing"
)

func writePrompt(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const samplePrompt = `---
id: repo_analysis
version: v1
schema_id: RepoAnalysisOutput
model_defaults:
  temperature: 0.2
  max_tokens: 2000
---
Analyze {{repo_full_name}} ({{stars}} stars).

{{readme_excerpt}}
`

func TestRegistryLoad(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "repo_analysis@v1.md", samplePrompt)

	r := &Registry{Dir: dir}
	p, err := r.Load("repo_analysis", "v1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.SchemaID != SchemaRepoAnalysis {
		t.Errorf("schema id = %q", p.SchemaID)
	}
	if p.Defaults.Temperature != 0.2 || p.Defaults.MaxTokens != 2000 {
		t.Errorf("defaults = %+v", p.Defaults)
	}
	if p.Template == "" || p.Template[0] != 'A' {
		t.Errorf("template not trimmed to body: %q", p.Template)
	}
}

func TestRegistryLoadHeaderMismatch(t *testing.T) {
	dir := t.TempDir()
	// Filename says brief_generate, header says repo_analysis.
	writePrompt(t, dir, "brief_generate@v1.md", samplePrompt)

	r := &Registry{Dir: dir}
	if _, err := r.Load("brief_generate", "v1"); err == nil {
		t.Fatal("expected header mismatch error")
	}
}

func TestRegistryLoadMissingFile(t *testing.T) {
	r := &Registry{Dir: t.TempDir()}
	if _, err := r.Load("repo_analysis", "v9"); err == nil {
		t.Fatal("expected error for missing prompt")
	}
}

func TestSplitHeaderUnterminated(t *testing.T) {
	if _, _, err := splitHeader("---\nid: x\nno closing fence"); err == nil {
		t.Fatal("expected unterminated header error")
	}
	if _, _, err := splitHeader("no header at all"); err == nil {
		t.Fatal("expected missing header error")
	}
}

func TestRenderSubstitutesKnownPlaceholders(t *testing.T) {
	p := &Prompt{Template: "repo {{repo_full_name}} has {{stars}} stars and {{unknown_var}}"}
	got := p.Render(map[string]string{
		"repo_full_name": "example/alpha",
		"stars":          "420",
	})
	want := "repo example/alpha has 420 stars and {{unknown_var}}"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}
