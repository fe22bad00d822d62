// Package model defines the core domain types shared across the ledger engine.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StartingBalance is the virtual cash every new user receives.
var StartingBalance = decimal.NewFromInt(100_000)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// User is the owner of a cash balance, holdings and a points pool.
type User struct {
	ID             string          `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	Email          string          `json:"email" db:"email"`
	CashBalance    decimal.Decimal `json:"cash_balance" db:"cash_balance"`
	TotalPoints    int64           `json:"total_points" db:"total_points"`
	PortfolioValue decimal.Decimal `json:"portfolio_value" db:"portfolio_value"` // advisory, last computed
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Holding is a user's open position in one symbol. A holding with zero
// quantity never exists; the row is deleted instead.
type Holding struct {
	UserID    string          `json:"user_id" db:"user_id"`
	Symbol    string          `json:"symbol" db:"symbol"`
	Quantity  int64           `json:"quantity" db:"quantity"`
	AvgPrice  decimal.Decimal `json:"avg_price" db:"avg_price"` // weighted-average cost basis
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Invested returns avgPrice × quantity.
func (h Holding) Invested() decimal.Decimal {
	return h.AvgPrice.Mul(decimal.NewFromInt(h.Quantity))
}

// Transaction is an immutable record of one executed trade.
// Once created, these are never modified or deleted.
type Transaction struct {
	ID         string          `json:"id" db:"id"`
	UserID     string          `json:"user_id" db:"user_id"`
	Symbol     string          `json:"symbol" db:"symbol"`
	Side       Side            `json:"side" db:"side"`
	Quantity   int64           `json:"quantity" db:"quantity"`
	Price      decimal.Decimal `json:"price" db:"price"`
	RequestID  string          `json:"request_id,omitempty" db:"request_id"` // client idempotency key
	ExecutedAt time.Time       `json:"executed_at" db:"executed_at"`

	// Balances right after this trade, returned again on idempotent replay.
	CashAfter           decimal.Decimal `json:"cash_after" db:"cash_after"`
	PortfolioValueAfter decimal.Decimal `json:"portfolio_value_after" db:"portfolio_value_after"`
}

// Total returns price × quantity.
func (t Transaction) Total() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// ChallengeKind selects the progress calculation for a challenge.
type ChallengeKind string

const (
	KindFirstTrade       ChallengeKind = "first_trade"
	KindPortfolioBuilder ChallengeKind = "portfolio_builder"
	KindConsistency      ChallengeKind = "consistency"
	KindKnowledge        ChallengeKind = "knowledge"
	KindQuiz             ChallengeKind = "quiz"
	KindProfit           ChallengeKind = "profit"
)

// Valid reports whether k is one of the known kinds.
func (k ChallengeKind) Valid() bool {
	switch k {
	case KindFirstTrade, KindPortfolioBuilder, KindConsistency, KindKnowledge, KindQuiz, KindProfit:
		return true
	}
	return false
}

// Challenge is a catalog entry: a goal with a one-time point reward.
type Challenge struct {
	ID           int64         `json:"id"`
	Kind         ChallengeKind `json:"kind"`
	Title        string        `json:"title"`
	Goal         string        `json:"goal_description"`
	Target       int64         `json:"target"` // count, or growth percent for KindProfit (progress is the raw growth)
	RewardPoints int64         `json:"reward_points"`
	Difficulty   string        `json:"difficulty"`
	DurationDays int           `json:"duration_days,omitempty"`
}

// ProgressStatus is the lifecycle state of a ChallengeProgress row.
type ProgressStatus string

const (
	StatusInProgress ProgressStatus = "IN_PROGRESS"
	StatusCompleted  ProgressStatus = "COMPLETED"
)

// ChallengeProgress is a user's stored progress on one challenge.
type ChallengeProgress struct {
	UserID      string         `json:"user_id" db:"user_id"`
	ChallengeID int64          `json:"challenge_id" db:"challenge_id"`
	Status      ProgressStatus `json:"status" db:"status"`
	Progress    int            `json:"progress" db:"progress"` // 0..100
	StartedAt   time.Time      `json:"started_at" db:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
}

// Lesson is a catalog entry. Lesson content lives outside this service.
type Lesson struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Level string `json:"level"`
}

// Quiz is a catalog entry with its answer key.
type Quiz struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Lesson       string     `json:"lesson"`
	PassingScore int        `json:"passing_score"`
	Questions    []Question `json:"questions"`
}

// Question is one quiz question. Exactly one option is correct.
type Question struct {
	ID      int64    `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options"`
}

// Option is an answer choice.
type Option struct {
	ID      int64  `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"-"`
}

// CorrectOption returns the id of the correct option, or false when the
// question has none.
func (q Question) CorrectOption() (int64, bool) {
	for _, o := range q.Options {
		if o.Correct {
			return o.ID, true
		}
	}
	return 0, false
}

// QuizAttempt records one submission, pass or fail.
type QuizAttempt struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	QuizID      int64     `json:"quiz_id" db:"quiz_id"`
	Score       int       `json:"score" db:"score"`
	Total       int       `json:"total" db:"total"`
	Passed      bool      `json:"passed" db:"passed"`
	AttemptedAt time.Time `json:"attempted_at" db:"attempted_at"`
}

// Certificate is issued on a passing attempt and never changes afterwards.
type Certificate struct {
	CertificateID string    `json:"certificate_id" db:"certificate_id"`
	UserID        string    `json:"user_id" db:"user_id"`
	QuizID        int64     `json:"quiz_id" db:"quiz_id"`
	AttemptID     string    `json:"attempt_id" db:"attempt_id"`
	Name          string    `json:"name" db:"name"`
	Title         string    `json:"title" db:"title"`
	IssuedAt      time.Time `json:"issued_at" db:"issued_at"`
}

// Activity is the set of counters the progress engine derives challenge
// completion from.
type Activity struct {
	TransactionCount int64 `json:"transaction_count"`
	HoldingCount     int64 `json:"holding_count"`
	CompletedLessons int64 `json:"completed_lessons"`
	PassedQuizzes    int64 `json:"passed_quizzes"` // passing attempts, repeats included
}

// SIPPoint is the projected value of a SIP after Month instalments.
type SIPPoint struct {
	Month int             `json:"month"`
	Value decimal.Decimal `json:"value"`
}

// SIPSimulation is a saved projection of a systematic investment plan.
type SIPSimulation struct {
	ID             string          `json:"id" db:"id"`
	UserID         string          `json:"user_id" db:"user_id"`
	FundName       string          `json:"fund_name" db:"fund_name"`
	MonthlyAmount  decimal.Decimal `json:"monthly_amount" db:"monthly_amount"`
	DurationMonths int             `json:"duration_months" db:"duration_months"`
	ExpectedReturn decimal.Decimal `json:"expected_return" db:"expected_return"` // annual, percent
	FutureValue    decimal.Decimal `json:"future_value" db:"future_value"`
	TotalInvested  decimal.Decimal `json:"total_invested" db:"total_invested"`
	Profit         decimal.Decimal `json:"profit" db:"profit"`
	Series         []SIPPoint      `json:"series" db:"series"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}
