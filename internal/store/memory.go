package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finsim/ledger-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// InTx holds the write lock for the whole unit and works on a copy of the
// state, which is swapped in only when fn succeeds.
type MemoryStore struct {
	mu sync.RWMutex
	st *memState
}

type holdingKey struct {
	userID string
	symbol string
}

type progressKey struct {
	userID      string
	challengeID int64
}

type lessonKey struct {
	userID   string
	lessonID int64
}

type memState struct {
	users    map[string]model.User
	order    []string
	holdings map[holdingKey]model.Holding
	txs      []model.Transaction
	progress map[progressKey]model.ChallengeProgress
	lessons  map[lessonKey]time.Time
	attempts []model.QuizAttempt
	certs    []model.Certificate
	sips     []model.SIPSimulation
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: &memState{
		users:    make(map[string]model.User),
		holdings: make(map[holdingKey]model.Holding),
		progress: make(map[progressKey]model.ChallengeProgress),
		lessons:  make(map[lessonKey]time.Time),
	}}
}

func (m *memState) clone() *memState {
	c := &memState{
		users:    make(map[string]model.User, len(m.users)),
		order:    append([]string(nil), m.order...),
		holdings: make(map[holdingKey]model.Holding, len(m.holdings)),
		txs:      append([]model.Transaction(nil), m.txs...),
		progress: make(map[progressKey]model.ChallengeProgress, len(m.progress)),
		lessons:  make(map[lessonKey]time.Time, len(m.lessons)),
		attempts: append([]model.QuizAttempt(nil), m.attempts...),
		certs:    append([]model.Certificate(nil), m.certs...),
		sips:     append([]model.SIPSimulation(nil), m.sips...),
	}
	for k, v := range m.users {
		c.users[k] = v
	}
	for k, v := range m.holdings {
		c.holdings[k] = v
	}
	for k, v := range m.progress {
		c.progress[k] = v
	}
	for k, v := range m.lessons {
		c.lessons[k] = v
	}
	return c
}

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.users[u.ID]; ok {
		return fmt.Errorf("user %s already exists: %w", u.ID, ErrConflict)
	}
	for _, existing := range s.st.users {
		if u.Email != "" && existing.Email == u.Email {
			return fmt.Errorf("email %s already registered: %w", u.Email, ErrConflict)
		}
	}
	s.st.users[u.ID] = *u
	s.st.order = append(s.st.order, u.ID)
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.st.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return &u, nil
}

func (s *MemoryStore) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.st.order...), nil
}

func (s *MemoryStore) TopUsers(_ context.Context, by RankBy, limit int) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.st.users))
	for _, id := range s.st.order {
		users = append(users, s.st.users[id])
	}
	// Stable sort keeps creation order among ties.
	sort.SliceStable(users, func(i, j int) bool {
		if by == RankByPortfolio {
			return users[i].PortfolioValue.GreaterThan(users[j].PortfolioValue)
		}
		return users[i].TotalPoints > users[j].TotalPoints
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (s *MemoryStore) ListHoldings(_ context.Context, userID string) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.st.listHoldings(userID), nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, userID string, limit int) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for i := len(s.st.txs) - 1; i >= 0; i-- {
		if s.st.txs[i].UserID != userID {
			continue
		}
		result = append(result, s.st.txs[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) ListChallengeProgress(_ context.Context, userID string) ([]model.ChallengeProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ChallengeProgress
	for k, p := range s.st.progress {
		if k.userID == userID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ChallengeID < result[j].ChallengeID })
	return result, nil
}

func (s *MemoryStore) GetActivity(_ context.Context, userID string) (model.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.st.activity(userID), nil
}

func (s *MemoryStore) ListQuizAttempts(_ context.Context, userID string) ([]model.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.QuizAttempt
	for i := len(s.st.attempts) - 1; i >= 0; i-- {
		if s.st.attempts[i].UserID == userID {
			result = append(result, s.st.attempts[i])
		}
	}
	return result, nil
}

func (s *MemoryStore) ListCertificates(_ context.Context, userID string) ([]model.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Certificate
	for i := len(s.st.certs) - 1; i >= 0; i-- {
		if s.st.certs[i].UserID == userID {
			result = append(result, s.st.certs[i])
		}
	}
	return result, nil
}

func (s *MemoryStore) ListSIPSimulations(_ context.Context, userID string) ([]model.SIPSimulation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.SIPSimulation
	for i := len(s.st.sips) - 1; i >= 0; i-- {
		if s.st.sips[i].UserID == userID {
			result = append(result, s.st.sips[i])
		}
	}
	return result, nil
}

func (s *MemoryStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// --- State helpers (caller holds the lock) ---

func (m *memState) listHoldings(userID string) []model.Holding {
	var result []model.Holding
	for k, h := range m.holdings {
		if k.userID == userID {
			result = append(result, h)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result
}

func (m *memState) activity(userID string) model.Activity {
	var a model.Activity
	for _, t := range m.txs {
		if t.UserID == userID {
			a.TransactionCount++
		}
	}
	for k := range m.holdings {
		if k.userID == userID {
			a.HoldingCount++
		}
	}
	for k := range m.lessons {
		if k.userID == userID {
			a.CompletedLessons++
		}
	}
	for _, at := range m.attempts {
		if at.UserID == userID && at.Passed {
			a.PassedQuizzes++
		}
	}
	return a
}

// memTx mutates a private copy of the state; no locking needed.
type memTx struct {
	st *memState
}

func (t *memTx) LockUser(_ context.Context, id string) (*model.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return &u, nil
}

func (t *memTx) SetBalances(_ context.Context, userID string, cash, portfolioValue decimal.Decimal) error {
	u, ok := t.st.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	u.CashBalance = cash
	u.PortfolioValue = portfolioValue
	t.st.users[userID] = u
	return nil
}

func (t *memTx) AddPoints(_ context.Context, userID string, points int64) error {
	u, ok := t.st.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	u.TotalPoints += points
	t.st.users[userID] = u
	return nil
}

func (t *memTx) GetHolding(_ context.Context, userID, symbol string) (*model.Holding, error) {
	h, ok := t.st.holdings[holdingKey{userID, symbol}]
	if !ok {
		return nil, fmt.Errorf("holding %s/%s: %w", userID, symbol, ErrNotFound)
	}
	return &h, nil
}

func (t *memTx) ListHoldings(_ context.Context, userID string) ([]model.Holding, error) {
	return t.st.listHoldings(userID), nil
}

func (t *memTx) UpsertHolding(_ context.Context, h *model.Holding) error {
	t.st.holdings[holdingKey{h.UserID, h.Symbol}] = *h
	return nil
}

func (t *memTx) DeleteHolding(_ context.Context, userID, symbol string) error {
	delete(t.st.holdings, holdingKey{userID, symbol})
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, tr *model.Transaction) error {
	if tr.RequestID != "" {
		for _, existing := range t.st.txs {
			if existing.UserID == tr.UserID && existing.RequestID == tr.RequestID {
				return fmt.Errorf("request %s: %w", tr.RequestID, ErrConflict)
			}
		}
	}
	t.st.txs = append(t.st.txs, *tr)
	return nil
}

func (t *memTx) FindTransactionByRequestID(_ context.Context, userID, requestID string) (*model.Transaction, error) {
	for _, tr := range t.st.txs {
		if tr.UserID == userID && tr.RequestID == requestID {
			found := tr
			return &found, nil
		}
	}
	return nil, fmt.Errorf("request %s: %w", requestID, ErrNotFound)
}

func (t *memTx) GetActivity(_ context.Context, userID string) (model.Activity, error) {
	return t.st.activity(userID), nil
}

func (t *memTx) GetChallengeProgress(_ context.Context, userID string, challengeID int64) (*model.ChallengeProgress, error) {
	p, ok := t.st.progress[progressKey{userID, challengeID}]
	if !ok {
		return nil, fmt.Errorf("progress %s/%d: %w", userID, challengeID, ErrNotFound)
	}
	return &p, nil
}

func (t *memTx) SaveChallengeProgress(_ context.Context, p *model.ChallengeProgress) error {
	t.st.progress[progressKey{p.UserID, p.ChallengeID}] = *p
	return nil
}

func (t *memTx) InsertLessonCompletion(_ context.Context, userID string, lessonID int64, at time.Time) (bool, error) {
	k := lessonKey{userID, lessonID}
	if _, ok := t.st.lessons[k]; ok {
		return false, nil
	}
	t.st.lessons[k] = at
	return true, nil
}

func (t *memTx) InsertQuizAttempt(_ context.Context, a *model.QuizAttempt) error {
	t.st.attempts = append(t.st.attempts, *a)
	return nil
}

func (t *memTx) GetCertificateByQuiz(_ context.Context, userID string, quizID int64) (*model.Certificate, error) {
	for _, c := range t.st.certs {
		if c.UserID == userID && c.QuizID == quizID {
			found := c
			return &found, nil
		}
	}
	return nil, fmt.Errorf("certificate %s/%d: %w", userID, quizID, ErrNotFound)
}

func (t *memTx) InsertCertificate(_ context.Context, c *model.Certificate) error {
	for _, existing := range t.st.certs {
		if existing.CertificateID == c.CertificateID {
			return fmt.Errorf("certificate %s: %w", c.CertificateID, ErrConflict)
		}
	}
	t.st.certs = append(t.st.certs, *c)
	return nil
}

func (t *memTx) InsertSIPSimulation(_ context.Context, sim *model.SIPSimulation) error {
	cp := *sim
	cp.Series = append([]model.SIPPoint(nil), sim.Series...)
	t.st.sips = append(t.st.sips, cp)
	return nil
}
