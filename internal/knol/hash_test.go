package knol

import (
	"testing"

	"github.com/conorfennell/brainquiz/internal/domain"
)

func TestID(t *testing.T) {
	t.Run("generates correct hash", func(t *testing.T) {
		// sha256("Q")
		expected := domain.CardID("4ae81572f06e1b88fd5ced7a1a000945432e83e1551e6f721ee9c00b8cc33260")
		if id := ID("Q"); id != expected {
			t.Errorf("Expected ID '%s', but got '%s'", expected, id)
		}
	})

	t.Run("id is deterministic", func(t *testing.T) {
		if ID("Test") != ID("Test") {
			t.Error("Expected IDs for identical questions to be the same")
		}
	})

	t.Run("question text is not normalized", func(t *testing.T) {
		if ID("What is Go?") == ID("what is go?") {
			t.Error("Expected questions differing in case to have different IDs")
		}
		if ID("What is Go?") == ID(" What is Go? ") {
			t.Error("Expected questions differing in spacing to have different IDs")
		}
	})
}

func TestAssign(t *testing.T) {
	cards := Assign([]domain.Card{
		{Question: "Card 1"},
		{Question: "Card 2", ID: "stale"},
	})

	for _, c := range cards {
		if c.ID != ID(c.Question) {
			t.Errorf("Expected card %q to have ID %s, got %s", c.Question, ID(c.Question), c.ID)
		}
	}
}

func TestAssignRepeatedQuestions(t *testing.T) {
	cards := Assign([]domain.Card{
		{Question: "Q1"},
		{Question: "Q2"},
		{Question: "Q1"},
		{Question: "Q1"},
	})

	expected := []domain.CardID{ID("Q1"), ID("Q2"), ID("Q1") + "-2", ID("Q1") + "-3"}
	for i, want := range expected {
		if cards[i].ID != want {
			t.Errorf("Card %d: expected ID %s, got %s", i, want, cards[i].ID)
		}
	}
}
