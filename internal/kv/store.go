// Package kv is the small persisted key-value store the notification
// subsystem keeps its markers in (schedule signature, last scheduled day,
// build id). Backends: memory, redis, postgres.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been set or was removed.
var ErrNotFound = errors.New("kv: key not found")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Well-known keys.
const (
	KeyScheduleSignature = "notifications:schedule_signature"
	KeyLastScheduledDay  = "notifications:last_scheduled_day"
	KeyBuildID           = "notifications:build_id"
	KeyStartupCleanupAt  = "notifications:startup_cleanup_at"
)
