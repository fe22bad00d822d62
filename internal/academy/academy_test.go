package academy_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsim/ledger-engine/internal/academy"
	"github.com/finsim/ledger-engine/internal/catalog"
	"github.com/finsim/ledger-engine/internal/model"
	"github.com/finsim/ledger-engine/internal/progress"
	"github.com/finsim/ledger-engine/internal/store"
)

// fiveQuestionQuiz has passing score 3; option n*10+1 is always correct.
func fiveQuestionQuiz() model.Quiz {
	q := model.Quiz{ID: 7, Title: "Risk Basics Quiz", PassingScore: 3}
	for i := int64(1); i <= 5; i++ {
		q.Questions = append(q.Questions, model.Question{
			ID: i,
			Options: []model.Option{
				{ID: i*10 + 1, Correct: true},
				{ID: i*10 + 2},
			},
		})
	}
	return q
}

func answers(correct int) map[int64]int64 {
	out := map[int64]int64{}
	for i := int64(1); i <= 5; i++ {
		if int(i) <= correct {
			out[i] = i*10 + 1
		} else {
			out[i] = i*10 + 2
		}
	}
	return out
}

type env struct {
	ctx    context.Context
	store  *store.MemoryStore
	svc    *academy.Service
	engine *progress.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.CreateUser(ctx, &model.User{
		ID: "u1", Name: "Kiran", CashBalance: model.StartingBalance, PortfolioValue: model.StartingBalance, CreatedAt: time.Now(),
	}))

	defaults := catalog.Default()
	lessons := defaults.Lessons()
	cat := catalog.New(defaults.Challenges(), lessons, append(defaults.Quizzes(), fiveQuestionQuiz()))
	eng := progress.NewEngine(st, cat, progress.Options{})
	return &env{ctx: ctx, store: st, svc: academy.NewService(st, cat, eng, nil), engine: eng}
}

func (e *env) points(t *testing.T) int64 {
	u, err := e.store.GetUser(e.ctx, "u1")
	require.NoError(t, err)
	return u.TotalPoints
}

func TestGrade(t *testing.T) {
	q := fiveQuestionQuiz()
	assert.Equal(t, 5, academy.Grade(q, answers(5)))
	assert.Equal(t, 2, academy.Grade(q, answers(2)))
	assert.Equal(t, 0, academy.Grade(q, nil))
	// Unknown question IDs are ignored.
	assert.Equal(t, 1, academy.Grade(q, map[int64]int64{1: 11, 99: 991}))
}

func TestSubmitQuiz_PassThenFail(t *testing.T) {
	e := newEnv(t)

	res, err := e.svc.SubmitQuiz(e.ctx, "u1", 7, answers(3))
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, 3, res.Score)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, int64(academy.QuizPassPoints), res.PointsAwarded)
	assert.Regexp(t, regexp.MustCompile(`^FIN-\d+-[0-9A-F]{6}$`), res.CertificateID)
	assert.Equal(t, int64(100), e.points(t))

	res, err = e.svc.SubmitQuiz(e.ctx, "u1", 7, answers(2))
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Empty(t, res.CertificateID)
	assert.Equal(t, int64(100), e.points(t))

	certs, err := e.svc.Certificates(e.ctx, "u1")
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, "Risk Basics Quiz", certs[0].Name)
	assert.Equal(t, academy.CertificateTitle, certs[0].Title)

	attempts, err := e.store.ListQuizAttempts(e.ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, attempts, 2, "failed attempts are recorded too")
}

func TestSubmitQuiz_SecondPassReusesCertificate(t *testing.T) {
	e := newEnv(t)

	first, err := e.svc.SubmitQuiz(e.ctx, "u1", 7, answers(5))
	require.NoError(t, err)
	second, err := e.svc.SubmitQuiz(e.ctx, "u1", 7, answers(4))
	require.NoError(t, err)

	assert.True(t, second.Passed)
	assert.Equal(t, first.CertificateID, second.CertificateID)
	assert.Zero(t, second.PointsAwarded)
	assert.Equal(t, int64(100), e.points(t))
}

func TestSubmitQuiz_NotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.SubmitQuiz(e.ctx, "u1", 404, nil)
	require.ErrorIs(t, err, academy.ErrQuizNotFound)

	_, err = e.svc.SubmitQuiz(e.ctx, "ghost", 7, answers(5))
	require.ErrorIs(t, err, academy.ErrUserNotFound)
}

func TestSubmitQuiz_CompletesQuizMaster(t *testing.T) {
	e := newEnv(t)
	cat := catalog.Default()

	for _, q := range cat.Quizzes() {
		ans := map[int64]int64{}
		for _, question := range q.Questions {
			id, _ := question.CorrectOption()
			ans[question.ID] = id
		}
		res, err := e.svc.SubmitQuiz(e.ctx, "u1", q.ID, ans)
		require.NoError(t, err)
		require.True(t, res.Passed)
	}

	// 3 × 100 for quizzes + 200 for Quiz Master.
	assert.Equal(t, int64(500), e.points(t))

	views, err := e.engine.List(e.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, string(model.StatusCompleted), views[4].Status)
}

func TestSubmitQuiz_RepeatPassesCountTowardQuizMaster(t *testing.T) {
	e := newEnv(t)

	for i := 0; i < 3; i++ {
		res, err := e.svc.SubmitQuiz(e.ctx, "u1", 7, answers(4))
		require.NoError(t, err)
		require.True(t, res.Passed)
	}

	// One quiz reward + 200 for Quiz Master.
	assert.Equal(t, int64(300), e.points(t))
	views, err := e.engine.List(e.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, string(model.StatusCompleted), views[4].Status)
	assert.Equal(t, 100, views[4].Progress)
}

func TestCompleteLesson_AwardsOnce(t *testing.T) {
	e := newEnv(t)

	res, err := e.svc.CompleteLesson(e.ctx, "u1", 1)
	require.NoError(t, err)
	assert.False(t, res.AlreadyCompleted)
	assert.Equal(t, int64(academy.LessonPoints), res.PointsAwarded)

	res, err = e.svc.CompleteLesson(e.ctx, "u1", 1)
	require.NoError(t, err)
	assert.True(t, res.AlreadyCompleted)
	assert.Zero(t, res.PointsAwarded)
	assert.Equal(t, int64(10), e.points(t))

	_, err = e.svc.CompleteLesson(e.ctx, "u1", 999)
	require.ErrorIs(t, err, academy.ErrLessonNotFound)
}

func TestCompleteLesson_KnowledgeSeeker(t *testing.T) {
	e := newEnv(t)
	for id := int64(1); id <= 5; id++ {
		_, err := e.svc.CompleteLesson(e.ctx, "u1", id)
		require.NoError(t, err)
	}
	// 5 × 10 + 100 for Knowledge Seeker.
	assert.Equal(t, int64(150), e.points(t))
}

func TestQuizzes_PassedFlagFromAnyAttempt(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.SubmitQuiz(e.ctx, "u1", 7, answers(4))
	require.NoError(t, err)
	_, err = e.svc.SubmitQuiz(e.ctx, "u1", 7, answers(1))
	require.NoError(t, err)

	views, err := e.svc.Quizzes(e.ctx, "u1")
	require.NoError(t, err)
	var found bool
	for _, v := range views {
		if v.ID == 7 {
			found = true
			assert.True(t, v.Passed)
			assert.Equal(t, 2, v.Attempts)
			assert.Equal(t, 4, v.BestScore)
		} else {
			assert.False(t, v.Passed)
		}
	}
	assert.True(t, found)
}

func TestNewCertificateID_Unique(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := academy.NewCertificateID(at)
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
}
