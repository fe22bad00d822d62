// Package catalog holds the static challenge, lesson and quiz definitions.
// The catalog is read-only once built.
package catalog

import "github.com/finsim/ledger-engine/internal/model"

// Catalog indexes the static definitions by ID.
type Catalog struct {
	challenges []model.Challenge
	lessons    []model.Lesson
	quizzes    []model.Quiz
}

// New builds a catalog from explicit definitions.
func New(challenges []model.Challenge, lessons []model.Lesson, quizzes []model.Quiz) *Catalog {
	return &Catalog{challenges: challenges, lessons: lessons, quizzes: quizzes}
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return New(defaultChallenges, defaultLessons, defaultQuizzes)
}

func (c *Catalog) Challenges() []model.Challenge {
	return append([]model.Challenge(nil), c.challenges...)
}

func (c *Catalog) Challenge(id int64) (model.Challenge, bool) {
	for _, ch := range c.challenges {
		if ch.ID == id {
			return ch, true
		}
	}
	return model.Challenge{}, false
}

// ChallengesOfKind returns the challenges bound to any of kinds. An empty
// kinds list returns every challenge.
func (c *Catalog) ChallengesOfKind(kinds ...model.ChallengeKind) []model.Challenge {
	if len(kinds) == 0 {
		return c.Challenges()
	}
	var out []model.Challenge
	for _, ch := range c.challenges {
		for _, k := range kinds {
			if ch.Kind == k {
				out = append(out, ch)
				break
			}
		}
	}
	return out
}

func (c *Catalog) Lessons() []model.Lesson {
	return append([]model.Lesson(nil), c.lessons...)
}

func (c *Catalog) Lesson(id int64) (model.Lesson, bool) {
	for _, l := range c.lessons {
		if l.ID == id {
			return l, true
		}
	}
	return model.Lesson{}, false
}

func (c *Catalog) Quizzes() []model.Quiz {
	return append([]model.Quiz(nil), c.quizzes...)
}

func (c *Catalog) Quiz(id int64) (model.Quiz, bool) {
	for _, q := range c.quizzes {
		if q.ID == id {
			return q, true
		}
	}
	return model.Quiz{}, false
}
