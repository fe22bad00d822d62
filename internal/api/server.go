// Package api exposes the ledger, progress engine and academy over HTTP
// and pushes live events over WebSocket.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/finsim/ledger-engine/internal/academy"
	"github.com/finsim/ledger-engine/internal/cache"
	"github.com/finsim/ledger-engine/internal/catalog"
	"github.com/finsim/ledger-engine/internal/identity"
	"github.com/finsim/ledger-engine/internal/insight"
	"github.com/finsim/ledger-engine/internal/ledger"
	"github.com/finsim/ledger-engine/internal/metrics"
	"github.com/finsim/ledger-engine/internal/progress"
	"github.com/finsim/ledger-engine/internal/quote"
	"github.com/finsim/ledger-engine/internal/sip"
	"github.com/finsim/ledger-engine/internal/store"
)

// Deps are the collaborators a Server needs. SIP, Cache, Advisor, Identity,
// Hub and Logger are optional.
type Deps struct {
	Store    store.Store
	Ledger   *ledger.Service
	Progress *progress.Engine
	Academy  *academy.Service
	SIP      *sip.Service
	Catalog  *catalog.Catalog
	Quotes   quote.Provider
	Advisor  insight.Advisor
	Cache    cache.Cache
	CacheTTL time.Duration
	Identity identity.Resolver
	Sessions *identity.SessionResolver // enables POST/DELETE /session
	Hub      *WSHub
	Logger   *slog.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	store    store.Store
	ledger   *ledger.Service
	progress *progress.Engine
	academy  *academy.Service
	sip      *sip.Service
	catalog  *catalog.Catalog
	quotes   quote.Provider
	advisor  insight.Advisor
	cache    cache.Cache
	cacheTTL time.Duration
	identity identity.Resolver
	sessions *identity.SessionResolver
	hub      *WSHub
	log      *slog.Logger
}

// NewServer creates a Server, filling unset optional deps with defaults.
func NewServer(d Deps) *Server {
	s := &Server{
		store:    d.Store,
		ledger:   d.Ledger,
		progress: d.Progress,
		academy:  d.Academy,
		sip:      d.SIP,
		catalog:  d.Catalog,
		quotes:   d.Quotes,
		advisor:  d.Advisor,
		cache:    d.Cache,
		cacheTTL: d.CacheTTL,
		identity: d.Identity,
		sessions: d.Sessions,
		hub:      d.Hub,
		log:      d.Logger,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.sip == nil {
		s.sip = sip.NewService(s.store, s.log)
	}
	if s.advisor == nil {
		s.advisor = insight.Rules{}
	}
	if s.cache == nil {
		s.cache = cache.NewMemory(cache.DefaultMaxEntries)
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = 30 * time.Second
	}
	if s.identity == nil {
		s.identity = identity.HeaderResolver{}
	}
	return s
}

// Handler builds the full router: middleware, health, metrics and the
// /api/v1 routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "ledger-engine"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", s.Routes)
	return r
}

// Routes registers the /api/v1 routes on r.
func (s *Server) Routes(r chi.Router) {
	if s.hub != nil {
		r.Get("/ws", s.HandleWS)
	}

	// Public.
	r.Post("/users", s.CreateUser)
	r.Get("/quotes", s.ListQuotes)
	r.Get("/quotes/{symbol}", s.GetQuote)
	r.Get("/lessons", s.ListLessons)
	r.Get("/leaderboard", s.Leaderboard)
	if s.sessions != nil {
		r.Post("/session", s.OpenSession)
		r.Delete("/session", s.CloseSession)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(s.authenticate)

		r.Post("/trade", s.ExecuteTrade)
		r.Post("/stocks/buy", s.tradeSide("BUY"))
		r.Post("/stocks/sell", s.tradeSide("SELL"))

		r.Get("/portfolio", s.GetPortfolio)
		r.Get("/portfolio/health", s.PortfolioHealth)
		r.Get("/transactions", s.ListTransactions)
		r.Get("/dashboard", s.Dashboard)

		r.Get("/challenges", s.ListChallenges)
		r.Post("/challenges/{id}/start", s.StartChallenge)
		r.Get("/challenges/{id}/progress", s.GetChallengeProgress)
		r.Post("/challenges/{id}/progress", s.UpdateChallengeProgress)

		r.Post("/lessons/{id}/complete", s.CompleteLesson)
		r.Get("/quizzes", s.ListQuizzes)
		r.Post("/quiz/submit", s.SubmitQuiz)
		r.Get("/certificates", s.ListCertificates)

		r.Post("/sip/simulate", s.SimulateSIP)
		r.Get("/sip/simulations", s.ListSIPSimulations)
	})
}

type ctxKey struct{}

// authenticate resolves the caller and stores the user id in the request
// context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.identity.UserID(r)
		if err != nil {
			writeDomainError(w, r, s.log, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// HandleWS handles GET /api/v1/ws. Identified callers also receive their
// own trade, challenge and certificate events; anyone else gets quotes only.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID, err := s.identity.UserID(r)
	if err != nil {
		userID = ""
	}
	s.hub.ServeWS(w, r, userID)
}

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// cors allows browser frontends on other origins.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, "+identity.HeaderName)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PublishQuotes broadcasts a quote tick.
func (s *Server) PublishQuotes(qs []quote.Quote) {
	if s.hub != nil {
		s.hub.Broadcast(Event{Type: EventQuotes, Data: qs})
	}
}

// PublishCompletion broadcasts a challenge completion. Its signature
// matches progress.Engine.OnComplete.
func (s *Server) PublishCompletion(_ context.Context, c progress.Completion) {
	if s.hub != nil {
		s.hub.Broadcast(Event{Type: EventChallengeCompleted, UserID: c.UserID, Data: c, At: c.CompletedAt})
	}
}
