// Package notify describes the device's local-notification facility and
// provides an in-memory implementation of it.
package notify

import (
	"context"
	"time"

	"github.com/Nixie-Tech-LLC/athan/internal/model"
)

// Facility is the OS notification store as seen by the scheduler.
type Facility interface {
	// Permission reports whether notifications may be shown at all.
	Permission(ctx context.Context) (bool, error)
	Register(ctx context.Context, triggerAt time.Time, content model.Content) (string, error)
	Cancel(ctx context.Context, id string) error
	CancelAll(ctx context.Context) error
	// Scheduled lists records that have not fired yet.
	Scheduled(ctx context.Context) ([]model.ScheduledNotification, error)
	// DismissPresented clears delivered notifications still on screen.
	DismissPresented(ctx context.Context) error
}
