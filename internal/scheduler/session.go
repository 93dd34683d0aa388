package scheduler

import (
	"context"
	"errors"

	"github.com/conorfennell/brainquiz/internal/domain"
)

// Phase is the state of a review session.
type Phase int

const (
	Idle     Phase = iota // no card on screen
	Showing               // question shown
	Revealed              // answer shown, waiting for the user's verdict
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Showing:
		return "showing"
	case Revealed:
		return "revealed"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned when a session step is called in the wrong phase.
var ErrInvalidTransition = errors.New("invalid session transition")

// Session walks one user through the due cards: Idle -> Showing -> Revealed -> Idle.
// A Session is not safe for concurrent use; the Scheduler behind it is.
type Session struct {
	sched  *Scheduler
	phase  Phase
	active domain.CardID
}

// NewSession starts an idle session.
func (s *Scheduler) NewSession() *Session {
	return &Session{sched: s}
}

// Phase returns the current phase.
func (ss *Session) Phase() Phase {
	return ss.phase
}

// Start shows the next due card. It reports false and stays idle when no card
// is due. Calling Start while a card is active returns that card again.
func (ss *Session) Start() (domain.Card, bool) {
	if ss.phase != Idle {
		return ss.sched.Card(ss.active)
	}
	id, ok := ss.sched.Next()
	if !ok {
		return domain.Card{}, false
	}
	card, ok := ss.sched.Card(id)
	if !ok {
		return domain.Card{}, false
	}
	ss.active = id
	ss.phase = Showing
	return card, true
}

// Reveal shows the answer of the active card.
func (ss *Session) Reveal() (domain.Card, error) {
	if ss.phase != Showing {
		return domain.Card{}, ErrInvalidTransition
	}
	card, ok := ss.sched.Card(ss.active)
	if !ok {
		ss.reset()
		return domain.Card{}, ErrInvalidTransition
	}
	ss.phase = Revealed
	return card, nil
}

// Submit records the user's verdict on the revealed card and returns the
// session to idle. Call Start to show the next card.
func (ss *Session) Submit(ctx context.Context, correct bool) (Outcome, error) {
	if ss.phase != Revealed {
		return Outcome{}, ErrInvalidTransition
	}
	out, err := ss.sched.Answer(ctx, ss.active, correct)
	if err != nil {
		return Outcome{}, err
	}
	ss.reset()
	return out, nil
}

func (ss *Session) reset() {
	ss.active = ""
	ss.phase = Idle
}
