package domain

import "time"

// CardID identifies a card. It is derived from the question text, see knol.ID.
type CardID string

// Card represents a single question-answer flashcard and its mastery state.
type Card struct {
	ID       CardID
	Question string
	Answer   string
	Topic    string
	Image    string

	// Level counts consecutive correct recalls; an incorrect recall resets it.
	Level int
	// NextReview is nil when the card has never been scheduled.
	NextReview *time.Time
}

// Stats holds the study streak.
// LastStudyDate is the zero time when the user has not studied yet.
type Stats struct {
	Streak        int
	LastStudyDate time.Time
}

// ReviewLog records a single answer to a card.
type ReviewLog struct {
	CardID     CardID
	ReviewedAt time.Time
	Correct    bool
	Level      int // level after the answer
}
