package briefs

import (
	"github.com/collabscout/collabscout/internal/scoring"
)

// Default competitor-filter tunables.
const (
	DefaultOverlapThreshold = 0.70
	DefaultOverlapPenalty   = 0.10
)

// interopTriggers exempt a high-overlap pair from competitor rejection:
// two near-identical projects that talk about migration, interop or
// benchmarking plausibly want to collaborate rather than compete.
var interopTriggers = map[string]bool{
	"migration": true, "migrate": true, "interop": true, "compat": true,
	"compatibility": true, "adapter": true, "bridge": true,
	"benchmark": true, "benchmarks": true, "spec": true,
	"standard": true, "standards": true, "translator": true,
	"import": true, "export": true, "convert": true, "conversion": true,
}

// signature is the token-set fingerprint the overlap filter compares.
type signature struct {
	problem  map[string]bool
	surface  map[string]bool
	primary  map[string]bool
	keywords map[string]bool // primary ∪ secondary ∪ tokenized search queries
}

func newSignature(p *Profile) *signature {
	searchTokens := make(map[string]bool)
	for _, q := range p.Output.Keywords.SearchQueries {
		for t := range tokenize(q) {
			searchTokens[t] = true
		}
	}
	primary := lowerSet(p.Output.Keywords.Primary)
	return &signature{
		problem: tokenize(p.Output.Signals.ProblemSummary),
		surface: lowerSet(p.Output.Signals.IntegrationSurface),
		primary: primary,
		keywords: union(primary,
			lowerSet(p.Output.Keywords.Secondary),
			searchTokens),
	}
}

// hasInteropTrigger checks the repo's keyword and surface sets.
func (s *signature) hasInteropTrigger() bool {
	for t := range s.keywords {
		if interopTriggers[t] {
			return true
		}
	}
	for t := range s.surface {
		if interopTriggers[t] {
			return true
		}
	}
	return false
}

// FilterDecision is the competitor filter's verdict for one pair.
type FilterDecision struct {
	Rejected           bool    `json:"rejected"`
	FunctionalOverlap  float64 `json:"functional_overlap"`
	PenaltyApplied     float64 `json:"penalty_applied"`
	ExceptionTriggered bool    `json:"exception_triggered"`
	ExceptionReason    string  `json:"exception_reason,omitempty"`
}

// functionalOverlap weighs three Jaccard similarities:
// 0.45 problem summary, 0.35 integration surface, 0.20 primary keywords.
func functionalOverlap(a, b *signature) float64 {
	return scoring.Round6(
		0.45*jaccard(a.problem, b.problem) +
			0.35*jaccard(a.surface, b.surface) +
			0.20*jaccard(a.primary, b.primary))
}

// filterPair decides whether two repos look like direct competitors.
// Below the threshold the pair passes clean; above it, an interop trigger
// on either side converts rejection into a penalized allowance.
func filterPair(a, b *Profile, threshold, penalty float64) FilterDecision {
	sa, sb := newSignature(a), newSignature(b)
	overlap := functionalOverlap(sa, sb)

	if overlap < threshold {
		return FilterDecision{FunctionalOverlap: overlap}
	}
	if sa.hasInteropTrigger() || sb.hasInteropTrigger() {
		return FilterDecision{
			FunctionalOverlap:  overlap,
			PenaltyApplied:     penalty,
			ExceptionTriggered: true,
			ExceptionReason:    "interop_exception",
		}
	}
	return FilterDecision{Rejected: true, FunctionalOverlap: overlap}
}
