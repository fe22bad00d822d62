package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/finsim/ledger-engine/internal/cache"
	"github.com/finsim/ledger-engine/internal/ledger"
	"github.com/finsim/ledger-engine/internal/model"
	"github.com/finsim/ledger-engine/internal/progress"
	"github.com/finsim/ledger-engine/internal/quote"
	"github.com/finsim/ledger-engine/internal/sip"
	"github.com/finsim/ledger-engine/internal/store"
)

// IdempotencyHeader carries the client's trade request id.
const IdempotencyHeader = "Idempotency-Key"

const (
	leaderboardSize  = 10
	dashboardRecents = 10
)

// --- Request/Response types ---

// CreateUserRequest is the JSON body for POST /users.
type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SessionRequest is the JSON body for POST /session.
type SessionRequest struct {
	UserID string `json:"user_id"`
}

// TradeRequest is the JSON body for POST /trade. A missing price is filled
// from the quote provider.
type TradeRequest struct {
	Symbol    string           `json:"symbol"`
	Side      string           `json:"side"`
	Quantity  int64            `json:"quantity"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	RequestID string           `json:"request_id,omitempty"` // Idempotency-Key header wins
}

// QuizSubmission is the JSON body for POST /quiz/submit. Answers map
// question IDs to option IDs.
type QuizSubmission struct {
	QuizID  int64           `json:"quiz_id"`
	Answers map[int64]int64 `json:"answers"`
}

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Rank           int             `json:"rank"`
	UserID         string          `json:"user_id"`
	Name           string          `json:"name"`
	TotalPoints    int64           `json:"total_points"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
}

// DashboardResponse is the JSON body returned from GET /dashboard.
type DashboardResponse struct {
	User                *model.User         `json:"user"`
	Portfolio           *ledger.Snapshot    `json:"portfolio"`
	RecentTransactions  []model.Transaction `json:"recent_transactions"`
	CompletedLessons    int64               `json:"completed_lessons"`
	TotalLessons        int                 `json:"total_lessons"`
	CompletedChallenges int                 `json:"completed_challenges"`
	TotalChallenges     int                 `json:"total_challenges"`
	Certificates        int                 `json:"certificates"`
}

// --- Users and sessions ---

// CreateUser handles POST /api/v1/users
func (s *Server) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	u, err := s.ledger.CreateUser(r.Context(), req.Name, req.Email)
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// OpenSession handles POST /api/v1/session. It binds an existing user to
// the caller's cookie session.
func (s *Server) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	u, err := s.store.GetUser(r.Context(), strings.TrimSpace(req.UserID))
	if err != nil {
		writeDomainError(w, r, s.log, fmt.Errorf("user: %w", err))
		return
	}
	if err := s.sessions.Save(w, r, u.ID); err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// CloseSession handles DELETE /api/v1/session
func (s *Server) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Clear(w, r); err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Quotes and catalog ---

// ListQuotes handles GET /api/v1/quotes?q=
func (s *Server) ListQuotes(w http.ResponseWriter, r *http.Request) {
	qs, err := s.quotes.Quotes(r.Context())
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, quote.Search(qs, r.URL.Query().Get("q")))
}

// GetQuote handles GET /api/v1/quotes/{symbol}
func (s *Server) GetQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.quotes.Quote(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// ListLessons handles GET /api/v1/lessons
func (s *Server) ListLessons(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Lessons())
}

// Leaderboard handles GET /api/v1/leaderboard?type=points|portfolio
func (s *Server) Leaderboard(w http.ResponseWriter, r *http.Request) {
	by := store.RankBy(r.URL.Query().Get("type"))
	switch by {
	case "":
		by = store.RankByPoints
	case store.RankByPoints, store.RankByPortfolio:
	default:
		writeError(w, "type must be points or portfolio", http.StatusBadRequest)
		return
	}

	entries, err := cache.GetOrSet(r.Context(), s.cache, "leaderboard:"+string(by), s.cacheTTL,
		func(ctx context.Context) ([]LeaderboardEntry, error) {
			users, err := s.store.TopUsers(ctx, by, leaderboardSize)
			if err != nil {
				return nil, err
			}
			out := make([]LeaderboardEntry, 0, len(users))
			for i, u := range users {
				out = append(out, LeaderboardEntry{
					Rank:           i + 1,
					UserID:         u.ID,
					Name:           u.Name,
					TotalPoints:    u.TotalPoints,
					PortfolioValue: u.PortfolioValue,
				})
			}
			return out, nil
		})
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Trading ---

// ExecuteTrade handles POST /api/v1/trade
func (s *Server) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	s.trade(w, r, req)
}

// tradeSide serves POST /stocks/buy and /stocks/sell, which fix the side.
func (s *Server) tradeSide(side model.Side) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TradeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeDomainError(w, r, s.log, err)
			return
		}
		req.Side = string(side)
		s.trade(w, r, req)
	}
}

func (s *Server) trade(w http.ResponseWriter, r *http.Request, req TradeRequest) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	// The quote lookup also rejects symbols outside the catalog.
	market, err := s.quotes.GetPrice(ctx, req.Symbol)
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	price := market
	if req.Price != nil {
		price = *req.Price
	}

	requestID := req.RequestID
	if key := r.Header.Get(IdempotencyHeader); key != "" {
		requestID = key
	}

	res, err := s.ledger.ExecuteTrade(ctx, ledger.TradeRequest{
		UserID:    userID,
		Symbol:    req.Symbol,
		Side:      model.Side(req.Side),
		Quantity:  req.Quantity,
		Price:     price,
		RequestID: requestID,
	})
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}

	if !res.Replayed && s.hub != nil {
		s.hub.Broadcast(Event{
			Type:   EventTradeExecuted,
			UserID: userID,
			Data:   res.Transaction,
			At:     res.Transaction.ExecutedAt,
		})
	}
	writeJSON(w, http.StatusOK, res)
}

// GetPortfolio handles GET /api/v1/portfolio
func (s *Server) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ledger.Portfolio(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// PortfolioHealth handles GET /api/v1/portfolio/health
func (s *Server) PortfolioHealth(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ledger.Portfolio(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, s.advisor.Assess(r.Context(), snap))
}

// ListTransactions handles GET /api/v1/transactions?limit=
func (s *Server) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	txs, err := s.ledger.Transactions(r.Context(), userIDFrom(r.Context()), limit)
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// Dashboard handles GET /api/v1/dashboard
func (s *Server) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	snap, err := s.ledger.Portfolio(ctx, userID)
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	resp, err := s.dashboard(ctx, userID, snap)
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) dashboard(ctx context.Context, userID string, snap *ledger.Snapshot) (*DashboardResponse, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	recent, err := s.ledger.Transactions(ctx, userID, dashboardRecents)
	if err != nil {
		return nil, err
	}
	act, err := s.store.GetActivity(ctx, userID)
	if err != nil {
		return nil, err
	}
	views, err := s.progress.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	certs, err := s.academy.Certificates(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := &DashboardResponse{
		User:               u,
		Portfolio:          snap,
		RecentTransactions: recent,
		CompletedLessons:   act.CompletedLessons,
		TotalLessons:       len(s.catalog.Lessons()),
		TotalChallenges:    len(views),
		Certificates:       len(certs),
	}
	if resp.RecentTransactions == nil {
		resp.RecentTransactions = []model.Transaction{}
	}
	for _, v := range views {
		if v.Status == string(model.StatusCompleted) {
			resp.CompletedChallenges++
		}
	}
	return resp, nil
}

// --- Challenges ---

// ListChallenges handles GET /api/v1/challenges
func (s *Server) ListChallenges(w http.ResponseWriter, r *http.Request) {
	views, err := s.progress.List(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// StartChallenge handles POST /api/v1/challenges/{id}/start
func (s *Server) StartChallenge(w http.ResponseWriter, r *http.Request) {
	s.challengeOp(w, r, s.progress.Start)
}

// GetChallengeProgress handles GET /api/v1/challenges/{id}/progress
func (s *Server) GetChallengeProgress(w http.ResponseWriter, r *http.Request) {
	s.challengeOp(w, r, s.progress.Get)
}

// UpdateChallengeProgress handles POST /api/v1/challenges/{id}/progress
func (s *Server) UpdateChallengeProgress(w http.ResponseWriter, r *http.Request) {
	s.challengeOp(w, r, s.progress.Update)
}

func (s *Server) challengeOp(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, userID string, id int64) (*progress.View, error)) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	v, err := op(r.Context(), userIDFrom(r.Context()), id)
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// --- Academy ---

// CompleteLesson handles POST /api/v1/lessons/{id}/complete
func (s *Server) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	res, err := s.academy.CompleteLesson(r.Context(), userIDFrom(r.Context()), id)
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListQuizzes handles GET /api/v1/quizzes
func (s *Server) ListQuizzes(w http.ResponseWriter, r *http.Request) {
	views, err := s.academy.Quizzes(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// SubmitQuiz handles POST /api/v1/quiz/submit
func (s *Server) SubmitQuiz(w http.ResponseWriter, r *http.Request) {
	var req QuizSubmission
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	userID := userIDFrom(r.Context())
	res, err := s.academy.SubmitQuiz(r.Context(), userID, req.QuizID, req.Answers)
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	if res.PointsAwarded > 0 && s.hub != nil {
		s.hub.Broadcast(Event{Type: EventCertificateIssued, UserID: userID, Data: res})
	}
	writeJSON(w, http.StatusOK, res)
}

// ListCertificates handles GET /api/v1/certificates
func (s *Server) ListCertificates(w http.ResponseWriter, r *http.Request) {
	certs, err := s.academy.Certificates(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	if certs == nil {
		certs = []model.Certificate{}
	}
	writeJSON(w, http.StatusOK, certs)
}

// --- SIP ---

// SimulateSIP handles POST /api/v1/sip/simulate
func (s *Server) SimulateSIP(w http.ResponseWriter, r *http.Request) {
	var plan sip.Plan
	if err := decodeJSON(w, r, &plan); err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	sim, err := s.sip.Simulate(r.Context(), userIDFrom(r.Context()), plan)
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, sim)
}

// ListSIPSimulations handles GET /api/v1/sip/simulations
func (s *Server) ListSIPSimulations(w http.ResponseWriter, r *http.Request) {
	sims, err := s.sip.Simulations(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeDomainError(w, r, s.log, err)
		return
	}
	if sims == nil {
		sims = []model.SIPSimulation{}
	}
	writeJSON(w, http.StatusOK, sims)
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad id %q", errBadRequest, raw)
	}
	return id, nil
}
