package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/brainquiz/internal/domain"
)

// On-disk formats, kept compatible with existing questions.json files.
const (
	TimeLayout = "2006-01-02 15:04:05"
	DateLayout = "2006-01-02"
)

// ErrCorrupt is returned when a store exists but cannot be decoded.
// A missing store is not an error: it reads as empty.
var ErrCorrupt = errors.New("store is corrupt")

// Store persists cards in collection order and the study stats.
type Store interface {
	Cards(ctx context.Context) ([]domain.Card, error)
	AppendCards(ctx context.Context, cards []domain.Card) error
	SaveCard(ctx context.Context, card domain.Card) error
	Stats(ctx context.Context) (domain.Stats, error)
	SaveStats(ctx context.Context, stats domain.Stats) error
	Close() error
}

// Open returns the store selected by driver: "json" keeps flat files under
// location, "sqlite" opens the database at location.
func Open(driver, location string) (Store, error) {
	switch driver {
	case "json":
		return OpenJSON(location)
	case "sqlite":
		return OpenSQLite(location)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// formatTime renders a next-review timestamp; nil renders as "".
func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(time.Local).Format(TimeLayout)
}

// parseTime reads a next-review timestamp. Empty or malformed values read as
// nil so the card counts as due.
func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(TimeLayout, s, time.Local)
	if err != nil {
		return nil
	}
	return &t
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(time.Local).Format(DateLayout)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(DateLayout, s, time.Local)
}
