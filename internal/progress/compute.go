package progress

import (
	"github.com/shopspring/decimal"

	"github.com/finsim/ledger-engine/internal/model"
)

// Compute returns the completion percentage (0..100, floored) of ch for a
// user with the given activity and cached portfolio value.
func Compute(ch model.Challenge, act model.Activity, portfolioValue, startingBalance decimal.Decimal) int {
	switch ch.Kind {
	case model.KindFirstTrade:
		if act.TransactionCount >= 1 {
			return 100
		}
		return 0
	case model.KindPortfolioBuilder:
		return ratio(act.HoldingCount, ch.Target)
	case model.KindConsistency:
		return ratio(act.TransactionCount, ch.Target)
	case model.KindKnowledge:
		return ratio(act.CompletedLessons, ch.Target)
	case model.KindQuiz:
		return ratio(act.PassedQuizzes, ch.Target)
	case model.KindProfit:
		return growth(portfolioValue, startingBalance)
	}
	return 0
}

func ratio(have, target int64) int {
	if target <= 0 {
		return 0
	}
	if have >= target {
		return 100
	}
	if have <= 0 {
		return 0
	}
	return int(have * 100 / target)
}

// growth is the portfolio growth percentage over the starting balance,
// clamped to [0, 100].
func growth(value, start decimal.Decimal) int {
	if !start.IsPositive() {
		return 0
	}
	pct := value.Sub(start).Div(start).Mul(decimal.NewFromInt(100)).Floor()
	switch {
	case pct.IsNegative():
		return 0
	case pct.GreaterThan(decimal.NewFromInt(100)):
		return 100
	}
	return int(pct.IntPart())
}
