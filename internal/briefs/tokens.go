// Package briefs turns a run's analyses into ranked collaboration briefs:
// candidate grouping, a competitor filter, LLM synthesis, deterministic
// scoring, replay and markdown export.
package briefs

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "into": true, "your": true, "are": true,
	"was": true, "were": true, "been": true, "has": true, "have": true,
	"had": true, "can": true, "could": true, "will": true, "would": true,
	"should": true, "may": true, "might": true, "must": true, "not": true,
	"all": true, "any": true, "each": true, "its": true, "our": true,
	"their": true, "them": true, "they": true, "you": true, "who": true,
	"what": true, "which": true, "when": true, "where": true, "how": true,
	"why": true, "than": true, "then": true, "also": true, "just": true,
	"only": true, "via": true, "per": true, "such": true, "more": true,
	"most": true, "other": true, "some": true, "about": true, "over": true,
	"under": true, "between": true, "both": true, "does": true, "did": true,
	"using": true, "use": true, "used": true, "uses": true, "based": true,
	"built": true, "like": true, "out": true, "off": true, "very": true,
}

// tokenize lowercases, splits on non-alphanumeric runs, and drops
// stopwords and tokens shorter than three characters.
func tokenize(text string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range nonAlnum.Split(strings.ToLower(text), -1) {
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		out[tok] = true
	}
	return out
}

// lowerSet builds a set of lowercased, trimmed items.
func lowerSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		s := strings.ToLower(strings.TrimSpace(it))
		if s != "" {
			out[s] = true
		}
	}
	return out
}

// jaccard is |A∩B| / |A∪B|; two empty sets score zero.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func union(sets ...map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for _, s := range sets {
		for k := range s {
			out[k] = true
		}
	}
	return out
}
