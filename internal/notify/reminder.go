package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule checks for due cards at the top of every hour.
const DefaultSchedule = "0 * * * *"

// Reminder checks for due cards on a cron schedule.
type Reminder struct {
	Pending  Pending
	Notifier Notifier
	// Schedule is a standard five-field cron spec or a descriptor such as @hourly.
	Schedule string
	// Immediate runs one check as soon as Run starts.
	Immediate bool
}

// Run blocks until ctx is done.
func (r *Reminder) Run(ctx context.Context) error {
	spec := r.Schedule
	if spec == "" {
		spec = DefaultSchedule
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() { r.check(ctx) }); err != nil {
		return fmt.Errorf("failed to add reminder schedule %q: %w", spec, err)
	}

	slog.Info("Reminder started", "schedule", spec)
	if r.Immediate {
		r.check(ctx)
	}
	c.Start()

	<-ctx.Done()

	<-c.Stop().Done()
	slog.Info("Reminder stopped")
	return nil
}

func (r *Reminder) check(ctx context.Context) {
	due, err := CheckPending(ctx, r.Pending, r.Notifier)
	if err != nil {
		slog.Error("Reminder check failed", "error", err)
		return
	}
	slog.Info("Reminder check complete", "due", due)
}
