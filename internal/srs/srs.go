package srs

import "time"

// Intervals maps a level to the number of days until the next review.
// Levels past the end of the table use the last entry.
var Intervals = [...]int{0, 1, 3, 7, 14, 30}

// ShortTermDelay is used instead of a zero-day interval, so a new or
// forgotten card comes back within the same sitting.
const ShortTermDelay = 10 * time.Minute

// IsDue reports whether a card scheduled at next should be shown at now.
// A card that was never scheduled is always due.
func IsDue(next *time.Time, now time.Time) bool {
	return next == nil || !next.After(now)
}

// NextLevel returns the level after an answer.
func NextLevel(level int, correct bool) int {
	if !correct {
		return 0
	}
	if level < 0 {
		level = 0
	}
	return level + 1
}

// Interval returns the delay until the next review of a card at the given level.
func Interval(level int) time.Duration {
	if level < 0 {
		level = 0
	}
	days := Intervals[min(level, len(Intervals)-1)]
	if days == 0 {
		return ShortTermDelay
	}
	return time.Duration(days) * 24 * time.Hour
}

// Review applies an answer to a card at level and returns its new level and
// the time of its next review.
func Review(level int, correct bool, now time.Time) (int, time.Time) {
	newLevel := NextLevel(level, correct)
	if !correct {
		return newLevel, now.Add(ShortTermDelay)
	}
	days := Intervals[min(newLevel, len(Intervals)-1)]
	if days == 0 {
		return newLevel, now.Add(ShortTermDelay)
	}
	// AddDate keeps the wall clock across DST changes.
	return newLevel, now.AddDate(0, 0, days)
}

// SameDay reports whether a and b fall on the same calendar day in a's location.
func SameDay(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
