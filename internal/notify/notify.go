// Package notify tells the user how many cards are waiting for review.
// Only the due count ever crosses this boundary.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Title is the heading of every reminder.
const Title = "Review time!"

// Notifier delivers a short message to the user.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// Pending is the part of the scheduler a reminder needs.
type Pending interface {
	Reload(ctx context.Context) error
	DueCount() int
}

// Message is the reminder body for n due cards.
func Message(n int) string {
	if n == 1 {
		return "1 question is waiting for you."
	}
	return fmt.Sprintf("%d questions are waiting for you.", n)
}

// CheckPending re-reads the collection and notifies when any card is due.
// It returns the due count.
func CheckPending(ctx context.Context, p Pending, n Notifier) (int, error) {
	if err := p.Reload(ctx); err != nil {
		return 0, fmt.Errorf("failed to reload cards: %w", err)
	}
	due := p.DueCount()
	if due == 0 {
		slog.Debug("No cards due")
		return 0, nil
	}
	if err := n.Notify(ctx, Title, Message(due)); err != nil {
		return due, fmt.Errorf("failed to send notification: %w", err)
	}
	return due, nil
}

// Log writes notifications to a slog.Logger.
type Log struct {
	Logger *slog.Logger
}

// Notify logs title at info level with the message as an attribute.
func (l Log) Notify(ctx context.Context, title, message string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, title, "message", message)
	return nil
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

// Notify tries every notifier even after one fails.
func (m Multi) Notify(ctx context.Context, title, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, title, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
