package scoring

import (
	"math"
	"regexp"
)

// Scores are the three raw LLM scores, each in [0,1].
type Scores struct {
	Interestingness        float64 `json:"interestingness"`
	Novelty                float64 `json:"novelty"`
	CollaborationPotential float64 `json:"collaboration_potential"`
}

// Signals is the bonus-relevant slice of the analysis output.
// RiskFlagsPresent distinguishes an explicitly empty risk_flags list from
// an absent one: only the former earns the no_risk_flags bonus.
type Signals struct {
	IntegrationSurface []string
	RiskFlags          []string
	RiskFlagsPresent   bool
}

var apiOrSDKPattern = regexp.MustCompile(`(?i)\bapi\b|\bsdk\b`)

// Round6 rounds to the nearest 1e-6, the precision every persisted score
// uses.
func Round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}

// Bonus computes the additive signals bonus.
func (p *Policy) Bonus(sig Signals) float64 {
	var bonus float64
	if len(sig.IntegrationSurface) > 0 {
		bonus += p.SignalsBonus.HasIntegrationSurface
	}
	for _, s := range sig.IntegrationSurface {
		if apiOrSDKPattern.MatchString(s) {
			bonus += p.SignalsBonus.HasAPIOrSDK
			break
		}
	}
	if sig.RiskFlagsPresent && len(sig.RiskFlags) == 0 {
		bonus += p.SignalsBonus.NoRiskFlags
	}
	return bonus
}

// FinalScore blends the raw scores and the bonus:
// w1·i + w2·n + w3·c + w4·bonus, rounded to 1e-6.
func (p *Policy) FinalScore(s Scores, sig Signals) float64 {
	raw := p.Weights.W1Interestingness*s.Interestingness +
		p.Weights.W2Novelty*s.Novelty +
		p.Weights.W3CollaborationPotential*s.CollaborationPotential +
		p.Weights.W4SignalsBonus*p.Bonus(sig)
	return Round6(raw)
}
