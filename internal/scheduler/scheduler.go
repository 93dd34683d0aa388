// Package scheduler owns a card collection during a study session: it picks
// the next due card, applies answers and merges imported cards.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conorfennell/brainquiz/internal/domain"
	"github.com/conorfennell/brainquiz/internal/knol"
	"github.com/conorfennell/brainquiz/internal/srs"
)

// Store is the persistence the scheduler needs. Cards are returned in
// collection order and SaveCard replaces a card by ID.
type Store interface {
	Cards(ctx context.Context) ([]domain.Card, error)
	AppendCards(ctx context.Context, cards []domain.Card) error
	SaveCard(ctx context.Context, card domain.Card) error
	Stats(ctx context.Context) (domain.Stats, error)
	SaveStats(ctx context.Context, stats domain.Stats) error
}

// ReviewLogger is implemented by stores that keep a review history.
type ReviewLogger interface {
	LogReview(ctx context.Context, log domain.ReviewLog) error
}

// ErrNotDue is returned by AnswerDue for a card that is not due yet.
var ErrNotDue = errors.New("card is not due")

// Order decides which due card comes first.
type Order string

const (
	// OrderCollection picks the first due card in collection order.
	OrderCollection Order = "collection"
	// OrderOverdue picks the card whose review is most overdue; unscheduled
	// cards count as most overdue. Ties keep collection order.
	OrderOverdue Order = "overdue"
)

// Scheduler is safe for concurrent use.
type Scheduler struct {
	mu    sync.Mutex
	store Store
	cards []domain.Card
	index map[domain.CardID]int
	stats domain.Stats

	order Order
	now   func() time.Time
	log   *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithOrder sets the due-card order.
func WithOrder(o Order) Option {
	return func(s *Scheduler) { s.order = o }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// New loads the cards and stats from store.
func New(ctx context.Context, store Store, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		store: store,
		order: OrderCollection,
		now:   time.Now,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.order != OrderCollection && s.order != OrderOverdue {
		return nil, fmt.Errorf("unknown order %q", s.order)
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the in-memory state with what the store holds.
func (s *Scheduler) Reload(ctx context.Context) error {
	cards, err := s.store.Cards(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cards: %w", err)
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards = cards
	s.stats = stats
	s.reindex()
	return nil
}

func (s *Scheduler) reindex() {
	s.index = make(map[domain.CardID]int, len(s.cards))
	for i, c := range s.cards {
		if _, dup := s.index[c.ID]; dup {
			s.log.Warn("Duplicate card ID, later card is unreachable", "card", c.ID, "position", i)
			continue
		}
		s.index[c.ID] = i
	}
}

// Next returns the ID of the card to show now, or false when nothing is due.
// Without an intervening answer it keeps returning the same card.
func (s *Scheduler) Next() (domain.CardID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.nextIndex(s.now())
	if i < 0 {
		return "", false
	}
	return s.cards[i].ID, true
}

func (s *Scheduler) nextIndex(now time.Time) int {
	best := -1
	for i, c := range s.cards {
		if !srs.IsDue(c.NextReview, now) {
			continue
		}
		if s.order == OrderCollection {
			return i
		}
		if best < 0 || moreOverdue(c, s.cards[best]) {
			best = i
		}
	}
	return best
}

func moreOverdue(a, b domain.Card) bool {
	switch {
	case b.NextReview == nil:
		return false
	case a.NextReview == nil:
		return true
	default:
		return a.NextReview.Before(*b.NextReview)
	}
}

// DueCount returns how many cards are due now.
func (s *Scheduler) DueCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, c := range s.cards {
		if srs.IsDue(c.NextReview, now) {
			n++
		}
	}
	return n
}

// Card returns a copy of the card with the given ID.
func (s *Scheduler) Card(id domain.CardID) (domain.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return domain.Card{}, false
	}
	return s.cards[i], true
}

// Total returns the number of cards.
func (s *Scheduler) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cards)
}

// Stats returns the study stats.
func (s *Scheduler) Stats() domain.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Outcome describes the effect of an answer.
type Outcome struct {
	// Applied is false when the answer referred to no card and was ignored.
	Applied bool
	Card    domain.Card
	Stats   domain.Stats
	// StreakIncreased is true for the first correct answer of the day.
	StreakIncreased bool
	// Next is the card to show after this one, empty when nothing is due.
	Next domain.CardID
}

// Answer records whether the user recalled the card. An empty or unknown id
// is ignored. The card and stats are persisted before Answer returns; on a
// store error the in-memory state is left unchanged.
func (s *Scheduler) Answer(ctx context.Context, id domain.CardID, correct bool) (Outcome, error) {
	return s.answer(ctx, id, correct, false)
}

// AnswerDue is Answer for a card that must be due now. A known card that is
// not due is left unchanged and ErrNotDue is returned.
func (s *Scheduler) AnswerDue(ctx context.Context, id domain.CardID, correct bool) (Outcome, error) {
	return s.answer(ctx, id, correct, true)
}

func (s *Scheduler) answer(ctx context.Context, id domain.CardID, correct, dueOnly bool) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if id == "" || !ok {
		return Outcome{Stats: s.stats}, nil
	}

	now := s.now()
	card := s.cards[i]
	if dueOnly && !srs.IsDue(card.NextReview, now) {
		return Outcome{Stats: s.stats}, fmt.Errorf("card %s: %w", id, ErrNotDue)
	}
	card.Level, card.NextReview = review(card.Level, correct, now)

	stats := s.stats
	streakUp := false
	if correct && !srs.SameDay(now, stats.LastStudyDate) {
		y, m, d := now.Date()
		stats.Streak++
		stats.LastStudyDate = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
		streakUp = true
	}

	if err := s.store.SaveCard(ctx, card); err != nil {
		return Outcome{}, fmt.Errorf("failed to save card %s: %w", card.ID, err)
	}
	if streakUp {
		if err := s.store.SaveStats(ctx, stats); err != nil {
			// Put the card back so memory matches what a reload would see.
			if rbErr := s.store.SaveCard(ctx, s.cards[i]); rbErr != nil {
				s.log.Warn("Failed to roll back card", "card", card.ID, "error", rbErr)
			}
			return Outcome{}, fmt.Errorf("failed to save stats: %w", err)
		}
	}
	if rl, ok := s.store.(ReviewLogger); ok {
		entry := domain.ReviewLog{CardID: card.ID, ReviewedAt: now, Correct: correct, Level: card.Level}
		if err := rl.LogReview(ctx, entry); err != nil {
			s.log.Warn("Failed to log review", "card", card.ID, "error", err)
		}
	}

	s.cards[i] = card
	s.stats = stats

	s.log.Debug("Answer recorded",
		"card", card.ID,
		"correct", correct,
		"level", card.Level,
		"next_review", card.NextReview,
		"streak", stats.Streak,
	)

	out := Outcome{Applied: true, Card: card, Stats: stats, StreakIncreased: streakUp}
	if j := s.nextIndex(now); j >= 0 {
		out.Next = s.cards[j].ID
	}
	return out, nil
}

func review(level int, correct bool, now time.Time) (int, *time.Time) {
	newLevel, next := srs.Review(level, correct, now)
	return newLevel, &next
}

// ImportResult counts the cards an import added and skipped.
type ImportResult struct {
	Added   int
	Skipped int
}

// Import appends cards whose question is not already in the collection.
// The first card wins when a batch repeats a question. Imported cards keep a
// supplied level and next review; otherwise they start at level 0, unscheduled.
func (s *Scheduler) Import(ctx context.Context, cards []domain.Card) (ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(s.cards)+len(cards))
	for _, c := range s.cards {
		seen[c.Question] = true
	}

	var (
		added  []domain.Card
		result ImportResult
	)
	for _, c := range cards {
		if seen[c.Question] {
			result.Skipped++
			continue
		}
		seen[c.Question] = true
		c.ID = knol.ID(c.Question)
		c.Level = max(c.Level, 0)
		added = append(added, c)
	}
	result.Added = len(added)

	if len(added) == 0 {
		return result, nil
	}
	if err := s.store.AppendCards(ctx, added); err != nil {
		return ImportResult{}, fmt.Errorf("failed to store imported cards: %w", err)
	}

	s.cards = append(s.cards, added...)
	s.reindex()

	s.log.Info("Cards imported", "added", result.Added, "skipped", result.Skipped, "total", len(s.cards))
	return result, nil
}
