package insight

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/finsim/ledger-engine/internal/ledger"
)

func snapshot(cash, total int64) *ledger.Snapshot {
	return &ledger.Snapshot{
		UserID:      "u1",
		CashBalance: decimal.NewFromInt(cash),
		TotalValue:  decimal.NewFromInt(total),
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		cash      int64
		score     int
		riskLevel string
	}{
		{"all cash", 100000, 40, "Low"},
		{"mostly cash", 70000, 55, "Low"},
		{"exactly eighty", 80000, 55, "Low"},
		{"balanced", 40000, 85, "Moderate"},
		{"exactly twenty", 20000, 85, "Moderate"},
		{"fully invested", 5000, 55, "High"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Score(snapshot(tt.cash, 100000))
			assert.Equal(t, tt.score, h.Score)
			assert.Equal(t, tt.riskLevel, h.RiskLevel)
			assert.Equal(t, SourceRules, h.Source)
			assert.NotEmpty(t, h.Verdict)
		})
	}
}

func TestScore_EmptyPortfolio(t *testing.T) {
	h := Rules{}.Assess(context.Background(), snapshot(0, 0))
	assert.Equal(t, 40, h.Score)
}

func TestGeminiAdvisor_UsesModelVerdict(t *testing.T) {
	var sent string
	g := newGeminiAdvisor(func(_ context.Context, p string) (string, error) {
		sent = p
		return "```json\n{\"score\": 72, \"risk_level\": \"Moderate\", \"verdict\": \"Good start.\"}\n```", nil
	}, nil)

	h := g.Assess(context.Background(), snapshot(50000, 100000))
	assert.Equal(t, Health{Score: 72, RiskLevel: "Moderate", Verdict: "Good start.", Source: SourceGemini}, h)
	assert.True(t, strings.Contains(sent, "Cash: 50000.00"))
}

func TestGeminiAdvisor_FallsBack(t *testing.T) {
	replies := map[string]struct {
		text string
		err  error
	}{
		"transport error": {err: errors.New("quota exceeded")},
		"not json":        {text: "Looks fine to me"},
		"bad score":       {text: `{"score": 140, "risk_level": "Low", "verdict": "x"}`},
		"bad risk":        {text: `{"score": 50, "risk_level": "Extreme", "verdict": "x"}`},
		"no verdict":      {text: `{"score": 50, "risk_level": "Low"}`},
	}
	for name, r := range replies {
		t.Run(name, func(t *testing.T) {
			g := newGeminiAdvisor(func(context.Context, string) (string, error) { return r.text, r.err }, nil)
			h := g.Assess(context.Background(), snapshot(100000, 100000))
			assert.Equal(t, SourceRules, h.Source)
			assert.Equal(t, 40, h.Score)
		})
	}
}

func TestNewGeminiAdvisor_RequiresKey(t *testing.T) {
	_, err := NewGeminiAdvisor(context.Background(), "", "", nil)
	assert.Error(t, err)
}
