package llm

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Prompt is a versioned template loaded from disk.
type Prompt struct {
	ID       string
	Version  string
	SchemaID string
	Defaults ModelDefaults
	Template string
}

// ModelDefaults are the per-prompt model parameters.
type ModelDefaults struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type promptHeader struct {
	ID            string        `yaml:"id"`
	Version       string        `yaml:"version"`
	ModelDefaults ModelDefaults `yaml:"model_defaults"`
	SchemaID      string        `yaml:"schema_id"`
}

// Registry loads prompts from a directory, one file per (id, version)
// named "{id}@{version}.md".
type Registry struct {
	Dir string
}

// Load reads a prompt and verifies its header matches the requested
// (id, version).
func (r *Registry) Load(id, version string) (*Prompt, error) {
	path := filepath.Join(r.Dir, id+"@"+version+".md")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt %s@%s: %w", id, version, err)
	}

	header, body, err := splitHeader(string(raw))
	if err != nil {
		return nil, fmt.Errorf("prompt %s@%s: %w", id, version, err)
	}

	var h promptHeader
	if err := yaml.Unmarshal([]byte(header), &h); err != nil {
		return nil, fmt.Errorf("prompt %s@%s has invalid header: %w", id, version, err)
	}
	if h.ID != id || h.Version != version {
		return nil, fmt.Errorf("prompt header mismatch: file %s declares %s@%s", path, h.ID, h.Version)
	}

	return &Prompt{
		ID:       h.ID,
		Version:  h.Version,
		SchemaID: h.SchemaID,
		Defaults: h.ModelDefaults,
		Template: body,
	}, nil
}

// splitHeader separates the leading "---" fenced YAML block from the body.
func splitHeader(raw string) (header, body string, err error) {
	const fence = "---"
	trimmed := strings.TrimLeft(raw, "\n")
	if !strings.HasPrefix(trimmed, fence) {
		return "", "", fmt.Errorf("missing header block")
	}
	rest := strings.TrimPrefix(trimmed, fence)
	idx := strings.Index(rest, "\n"+fence)
	if idx < 0 {
		return "", "", fmt.Errorf("unterminated header block")
	}
	header = rest[:idx]
	body = rest[idx+len("\n"+fence):]
	body = strings.TrimPrefix(body, "\n")
	return header, body, nil
}

var placeholderPattern = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

// Render substitutes {{name}} placeholders from vars. Unknown
// placeholders are left intact; that is documented behavior, not an error.
func (p *Prompt) Render(vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(p.Template, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		if val, ok := vars[name]; ok {
			return val
		}
		return m
	})
}
