// Package academy grades quizzes, issues certificates and records lesson
// completions. It shares the user's points pool with the progress engine.
package academy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finsim/ledger-engine/internal/catalog"
	"github.com/finsim/ledger-engine/internal/metrics"
	"github.com/finsim/ledger-engine/internal/model"
	"github.com/finsim/ledger-engine/internal/progress"
	"github.com/finsim/ledger-engine/internal/store"
)

const (
	// QuizPassPoints is credited on the first passing attempt of a quiz.
	QuizPassPoints = 100
	// LessonPoints is credited the first time a lesson is completed.
	LessonPoints = 10
	// CertificateTitle is printed on every certificate.
	CertificateTitle = "FinSim Academy Certified Beginner Investor"
)

var (
	ErrQuizNotFound   = errors.New("academy: quiz not found")
	ErrLessonNotFound = errors.New("academy: lesson not found")
	ErrUserNotFound   = errors.New("academy: user not found")
)

// ProgressEngine is the part of the progress engine the academy triggers.
type ProgressEngine interface {
	Recompute(ctx context.Context, userID string, kinds ...model.ChallengeKind) ([]progress.Completion, error)
}

// Service is the quiz/certificate issuer.
type Service struct {
	store    store.Store
	catalog  *catalog.Catalog
	progress ProgressEngine
	log      *slog.Logger
	now      func() time.Time
}

// NewService creates the issuer. pe may be nil, in which case no challenge
// progress is triggered.
func NewService(st store.Store, cat *catalog.Catalog, pe ProgressEngine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, catalog: cat, progress: pe, log: logger, now: time.Now}
}

// Result is the outcome of a quiz submission.
type Result struct {
	AttemptID     string `json:"attempt_id"`
	QuizID        int64  `json:"quiz_id"`
	Score         int    `json:"score"`
	Total         int    `json:"total"`
	PassingScore  int    `json:"passing_score"`
	Passed        bool   `json:"passed"`
	CertificateID string `json:"certificate_id,omitempty"`
	PointsAwarded int64  `json:"points_awarded"`
}

// Grade counts answers matching each question's correct option. Answers
// map question IDs to option IDs; unknown questions are ignored.
func Grade(q model.Quiz, answers map[int64]int64) int {
	score := 0
	for _, question := range q.Questions {
		want, ok := question.CorrectOption()
		if !ok {
			continue
		}
		if got, answered := answers[question.ID]; answered && got == want {
			score++
		}
	}
	return score
}

// SubmitQuiz grades a submission and records the attempt. The first
// passing attempt per (user, quiz) earns QuizPassPoints and a certificate;
// later passes return the existing certificate ID.
func (s *Service) SubmitQuiz(ctx context.Context, userID string, quizID int64, answers map[int64]int64) (*Result, error) {
	quiz, ok := s.catalog.Quiz(quizID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrQuizNotFound, quizID)
	}

	score := Grade(quiz, answers)
	now := s.now().UTC()
	res := &Result{
		AttemptID:    uuid.New().String(),
		QuizID:       quizID,
		Score:        score,
		Total:        len(quiz.Questions),
		PassingScore: quiz.PassingScore,
		Passed:       score >= quiz.PassingScore,
	}
	var issued *model.Certificate

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := s.lockUser(ctx, tx, userID); err != nil {
			return err
		}
		attempt := &model.QuizAttempt{
			ID:          res.AttemptID,
			UserID:      userID,
			QuizID:      quizID,
			Score:       res.Score,
			Total:       res.Total,
			Passed:      res.Passed,
			AttemptedAt: now,
		}
		if err := tx.InsertQuizAttempt(ctx, attempt); err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		if !res.Passed {
			return nil
		}

		existing, err := tx.GetCertificateByQuiz(ctx, userID, quizID)
		if err == nil {
			res.CertificateID = existing.CertificateID
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		cert := &model.Certificate{
			CertificateID: NewCertificateID(now),
			UserID:        userID,
			QuizID:        quizID,
			AttemptID:     attempt.ID,
			Name:          quiz.Title,
			Title:         CertificateTitle,
			IssuedAt:      now,
		}
		if err := tx.InsertCertificate(ctx, cert); err != nil {
			return fmt.Errorf("insert certificate: %w", err)
		}
		if err := tx.AddPoints(ctx, userID, QuizPassPoints); err != nil {
			return fmt.Errorf("award points: %w", err)
		}
		res.CertificateID = cert.CertificateID
		res.PointsAwarded = QuizPassPoints
		issued = cert
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := "fail"
	if res.Passed {
		result = "pass"
	}
	metrics.QuizAttempts.WithLabelValues(result).Inc()
	s.log.Info("quiz submitted", "user", userID, "quiz", quizID, "score", score, "passed", res.Passed)

	if issued != nil {
		metrics.CertificatesIssued.Inc()
		metrics.PointsAwarded.WithLabelValues("quiz").Add(QuizPassPoints)
		s.log.Info("certificate issued", "user", userID, "certificate", issued.CertificateID, "quiz", quizID)
	}
	if res.Passed {
		s.recompute(ctx, userID, model.KindQuiz)
	}
	return res, nil
}

// LessonResult is the outcome of completing a lesson.
type LessonResult struct {
	LessonID         int64 `json:"lesson_id"`
	AlreadyCompleted bool  `json:"already_completed"`
	PointsAwarded    int64 `json:"points_awarded"`
}

// CompleteLesson marks a lesson done. Only the first completion earns
// LessonPoints.
func (s *Service) CompleteLesson(ctx context.Context, userID string, lessonID int64) (*LessonResult, error) {
	if _, ok := s.catalog.Lesson(lessonID); !ok {
		return nil, fmt.Errorf("%w: %d", ErrLessonNotFound, lessonID)
	}

	res := &LessonResult{LessonID: lessonID}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := s.lockUser(ctx, tx, userID); err != nil {
			return err
		}
		created, err := tx.InsertLessonCompletion(ctx, userID, lessonID, s.now().UTC())
		if err != nil {
			return err
		}
		if !created {
			res.AlreadyCompleted = true
			return nil
		}
		res.PointsAwarded = LessonPoints
		return tx.AddPoints(ctx, userID, LessonPoints)
	})
	if err != nil {
		return nil, err
	}

	if res.PointsAwarded > 0 {
		metrics.PointsAwarded.WithLabelValues("lesson").Add(LessonPoints)
		s.log.Info("lesson completed", "user", userID, "lesson", lessonID)
		s.recompute(ctx, userID, model.KindKnowledge)
	}
	return res, nil
}

// QuizView is a quiz as listed to a user. Correct answers are not exposed.
type QuizView struct {
	model.Quiz
	Attempts  int  `json:"attempts"`
	BestScore int  `json:"best_score"`
	Passed    bool `json:"passed"`
}

// Quizzes lists the catalog with the user's attempt summary. Passed is set
// when any attempt passed.
func (s *Service) Quizzes(ctx context.Context, userID string) ([]QuizView, error) {
	attempts, err := s.store.ListQuizAttempts(ctx, userID)
	if err != nil {
		return nil, err
	}
	type summary struct {
		n, best int
		passed  bool
	}
	byQuiz := make(map[int64]*summary)
	for _, a := range attempts {
		sm, ok := byQuiz[a.QuizID]
		if !ok {
			sm = &summary{}
			byQuiz[a.QuizID] = sm
		}
		sm.n++
		if a.Score > sm.best {
			sm.best = a.Score
		}
		sm.passed = sm.passed || a.Passed
	}

	quizzes := s.catalog.Quizzes()
	out := make([]QuizView, 0, len(quizzes))
	for _, q := range quizzes {
		v := QuizView{Quiz: q}
		if sm, ok := byQuiz[q.ID]; ok {
			v.Attempts, v.BestScore, v.Passed = sm.n, sm.best, sm.passed
		}
		out = append(out, v)
	}
	return out, nil
}

// Certificates returns the user's certificates, newest first.
func (s *Service) Certificates(ctx context.Context, userID string) ([]model.Certificate, error) {
	return s.store.ListCertificates(ctx, userID)
}

// NewCertificateID returns a human-readable ID: FIN-<unix millis>-<6 hex>.
func NewCertificateID(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("FIN-%d-%s", at.UnixMilli(), suffix)
}

func (s *Service) lockUser(ctx context.Context, tx store.Tx, userID string) (*model.User, error) {
	u, err := tx.LockUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return u, err
}

func (s *Service) recompute(ctx context.Context, userID string, kind model.ChallengeKind) {
	if s.progress == nil {
		return
	}
	if _, err := s.progress.Recompute(ctx, userID, kind); err != nil {
		s.log.Error("progress recompute failed", "user", userID, "kind", kind, "error", err)
	}
}
