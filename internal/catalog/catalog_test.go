package catalog

import (
	"testing"

	"github.com/finsim/ledger-engine/internal/model"
)

func TestDefault_ChallengesHaveUniqueValidKinds(t *testing.T) {
	c := Default()
	seenID := map[int64]bool{}
	seenKind := map[model.ChallengeKind]bool{}
	for _, ch := range c.Challenges() {
		if seenID[ch.ID] {
			t.Errorf("duplicate challenge id %d", ch.ID)
		}
		seenID[ch.ID] = true
		if !ch.Kind.Valid() {
			t.Errorf("challenge %d has invalid kind %q", ch.ID, ch.Kind)
		}
		if seenKind[ch.Kind] {
			t.Errorf("kind %s bound twice", ch.Kind)
		}
		seenKind[ch.Kind] = true
		if ch.Target <= 0 || ch.RewardPoints <= 0 {
			t.Errorf("challenge %d has non-positive target or reward", ch.ID)
		}
	}
	if len(seenID) != 6 {
		t.Errorf("expected 6 challenges, got %d", len(seenID))
	}
}

func TestDefault_EveryQuestionHasOneCorrectOption(t *testing.T) {
	for _, q := range Default().Quizzes() {
		if q.PassingScore <= 0 || q.PassingScore > len(q.Questions) {
			t.Errorf("quiz %d: passing score %d out of range", q.ID, q.PassingScore)
		}
		optionIDs := map[int64]bool{}
		for _, question := range q.Questions {
			correct := 0
			for _, o := range question.Options {
				if o.Correct {
					correct++
				}
				if optionIDs[o.ID] {
					t.Errorf("quiz %d: duplicate option id %d", q.ID, o.ID)
				}
				optionIDs[o.ID] = true
			}
			if correct != 1 {
				t.Errorf("quiz %d question %d: %d correct options", q.ID, question.ID, correct)
			}
		}
	}
}

func TestChallengesOfKind(t *testing.T) {
	c := Default()
	got := c.ChallengesOfKind(model.KindFirstTrade, model.KindConsistency)
	if len(got) != 2 {
		t.Fatalf("expected 2 challenges, got %d", len(got))
	}
	if got[0].Kind != model.KindFirstTrade || got[1].Kind != model.KindConsistency {
		t.Errorf("unexpected kinds: %s, %s", got[0].Kind, got[1].Kind)
	}
	if all := c.ChallengesOfKind(); len(all) != 6 {
		t.Errorf("empty filter should return all, got %d", len(all))
	}
}

func TestLookupMissing(t *testing.T) {
	c := Default()
	if _, ok := c.Quiz(999); ok {
		t.Error("expected quiz 999 to be missing")
	}
	if _, ok := c.Lesson(0); ok {
		t.Error("expected lesson 0 to be missing")
	}
	if _, ok := c.Challenge(-1); ok {
		t.Error("expected challenge -1 to be missing")
	}
}
