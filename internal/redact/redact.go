// Package redact removes secret values from structured data before it is
// logged, audited, or exported.
package redact

import "regexp"

// Sentinel replaces any value whose key looks secret-bearing.
const Sentinel = "[REDACTED]"

// secretKeyPattern matches key names that commonly hold credentials.
// Matching is case-insensitive and substring-based: "github_token",
// "Authorization", and "api_key" all match.
var secretKeyPattern = regexp.MustCompile(`(?i)(token|key|secret|password|authorization)`)

// IsSecretKey reports whether a key name should have its value redacted.
func IsSecretKey(key string) bool {
	return secretKeyPattern.MatchString(key)
}

// Value returns a copy of v with every map entry whose key matches the
// secret-key pattern and whose value is a non-empty string replaced by the
// sentinel. Nested maps and slices are walked; primitives and nil pass
// through unchanged. The input is never mutated.
func Value(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if IsSecretKey(k) {
				if s, ok := val.(string); ok && s != "" {
					out[k] = Sentinel
					continue
				}
			}
			out[k] = Value(val)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, val := range t {
			if IsSecretKey(k) && val != "" {
				out[k] = Sentinel
				continue
			}
			out[k] = val
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Value(val)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
