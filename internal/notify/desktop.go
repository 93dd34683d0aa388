package notify

import (
	"context"

	"github.com/gen2brain/beeep"
)

// Desktop shows a native desktop notification.
type Desktop struct {
	// Icon is an optional path to the notification icon.
	Icon string

	send func(title, message string) error
}

// NewDesktop returns a Desktop notifier using beeep.
func NewDesktop(icon string) *Desktop {
	d := &Desktop{Icon: icon}
	d.send = func(title, message string) error {
		return beeep.Notify(title, message, d.Icon)
	}
	return d
}

// Notify shows the notification unless ctx is already done.
func (d *Desktop) Notify(ctx context.Context, title, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.send(title, message)
}
