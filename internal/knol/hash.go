package knol

import (
	"crypto/sha256"
	"fmt"

	"github.com/conorfennell/brainquiz/internal/domain"
)

// ID returns the SHA-256 hash of the question as a hex string.
// The question is hashed verbatim: import deduplicates on the exact text,
// so two questions differing only in case or spacing are different cards.
func ID(question string) domain.CardID {
	sum := sha256.Sum256([]byte(question))
	return domain.CardID(fmt.Sprintf("%x", sum))
}

// Assign sets the ID of every card from its question and returns the slice.
// A repeated question keeps ID(question) on its first occurrence; later
// occurrences get "-2", "-3" and so on, so every card in the slice has its
// own ID and the IDs are stable for a given order.
func Assign(cards []domain.Card) []domain.Card {
	seen := make(map[domain.CardID]int, len(cards))
	for i := range cards {
		id := ID(cards[i].Question)
		seen[id]++
		if n := seen[id]; n > 1 {
			id = domain.CardID(fmt.Sprintf("%s-%d", id, n))
		}
		cards[i].ID = id
	}
	return cards
}
