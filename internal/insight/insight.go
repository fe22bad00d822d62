// Package insight scores the health of a portfolio snapshot.
package insight

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/finsim/ledger-engine/internal/ledger"
)

// Source values reported in Health.
const (
	SourceRules  = "rules"
	SourceGemini = "gemini"
)

// Health is a portfolio health assessment.
type Health struct {
	Score     int    `json:"score"` // 0..100
	RiskLevel string `json:"risk_level"`
	Verdict   string `json:"verdict"`
	Source    string `json:"source"`
}

// Advisor assesses a snapshot. Implementations never fail; they degrade to
// the rule-based score instead.
type Advisor interface {
	Assess(ctx context.Context, snap *ledger.Snapshot) Health
}

var (
	eightyPct = decimal.NewFromFloat(0.8)
	sixtyPct  = decimal.NewFromFloat(0.6)
	twentyPct = decimal.NewFromFloat(0.2)
)

// Rules scores a snapshot by how much of it is idle cash.
type Rules struct{}

// Assess implements Advisor.
func (Rules) Assess(_ context.Context, snap *ledger.Snapshot) Health {
	return Score(snap)
}

// Score is the deterministic assessment.
func Score(snap *ledger.Snapshot) Health {
	share := snap.CashShare()
	h := Health{Source: SourceRules}
	switch {
	case share.GreaterThan(eightyPct):
		h.Score, h.RiskLevel = 40, "Low"
		h.Verdict = "Mostly cash. Start investing gradually across a few sectors."
	case share.GreaterThan(sixtyPct):
		h.Score, h.RiskLevel = 55, "Low"
		h.Verdict = "Cautious allocation. Consider putting more of your cash to work."
	case share.GreaterThanOrEqual(twentyPct):
		h.Score, h.RiskLevel = 85, "Moderate"
		h.Verdict = "Balanced mix of cash and investments."
	default:
		h.Score, h.RiskLevel = 55, "High"
		h.Verdict = "Almost fully invested. Keep some cash for opportunities and emergencies."
	}
	return h
}
