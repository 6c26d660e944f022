// Package startup cleans up after a cold start so that notifications the OS
// held back while the app was not running do not all play at once.
package startup

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/kv"
	"github.com/Nixie-Tech-LLC/athan/internal/model"
	"github.com/Nixie-Tech-LLC/athan/internal/notify"
)

const (
	DefaultLookahead  = 5 * time.Second
	DefaultGrace      = 30 * time.Second
	DefaultStaleAfter = 5 * time.Minute
)

// Reasons reported by ShouldIgnore.
const (
	ReasonGraceWindow = "grace_window"
	ReasonStale       = "stale"
)

type Options struct {
	Clock   clockwork.Clock
	BuildID string
	// Lookahead is how far past now a scheduled record still counts as
	// overdue at startup.
	Lookahead time.Duration
	// Grace is how long after startup received notifications are ignored.
	Grace time.Duration
	// StaleAfter is how old a payload's fire time may be before it is ignored.
	StaleAfter time.Duration
}

// Report summarizes one Run.
type Report struct {
	BuildChanged bool      `json:"buildChanged"`
	Cancelled    int       `json:"cancelled"`
	StartedAt    time.Time `json:"startedAt"`
}

type Suppressor struct {
	facility notify.Facility
	store    kv.Store
	clock    clockwork.Clock
	opts     Options

	mu        sync.RWMutex
	startedAt time.Time
}

func New(facility notify.Facility, store kv.Store, opts Options) *Suppressor {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = DefaultLookahead
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	return &Suppressor{facility: facility, store: store, clock: opts.Clock, opts: opts}
}

// Run performs the cold start cleanup. It must run once, before the event
// router is started. Every step is best effort.
func (s *Suppressor) Run(ctx context.Context) Report {
	now := s.clock.Now()
	report := Report{StartedAt: now}

	s.mu.Lock()
	s.startedAt = now
	s.mu.Unlock()

	if err := s.facility.DismissPresented(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to dismiss presented notifications")
	}

	report.BuildChanged = s.checkBuild(ctx)

	records, err := s.facility.Scheduled(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not list scheduled notifications at startup")
	}
	cutoff := now.Add(s.opts.Lookahead)
	for _, rec := range records {
		if rec.TriggerAt.After(cutoff) {
			continue
		}
		if err := s.facility.Cancel(ctx, rec.ID); err != nil {
			log.Warn().Err(err).Str("id", rec.ID).Msg("failed to cancel overdue notification")
			continue
		}
		report.Cancelled++
		log.Debug().Str("id", rec.ID).Time("trigger_at", rec.TriggerAt).Msg("cancelled overdue notification")
	}

	if err := s.store.Set(ctx, kv.KeyStartupCleanupAt, now.UTC().Format(time.RFC3339)); err != nil {
		log.Warn().Err(err).Msg("failed to persist startup cleanup time")
	}

	log.Info().
		Bool("build_changed", report.BuildChanged).
		Int("cancelled", report.Cancelled).
		Msg("startup cleanup finished")
	return report
}

// checkBuild clears all scheduling state when the running build differs from
// the one that installed it.
func (s *Suppressor) checkBuild(ctx context.Context) bool {
	previous, err := s.store.Get(ctx, kv.KeyBuildID)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		log.Warn().Err(err).Msg("could not read build id")
		return false
	}
	if previous == s.opts.BuildID {
		return false
	}

	log.Info().Str("previous", previous).Str("current", s.opts.BuildID).Msg("build changed, clearing notifications")
	if err := s.facility.CancelAll(ctx); err != nil {
		log.Error().Err(err).Msg("failed to cancel notifications after build change")
	}
	for _, key := range []string{kv.KeyScheduleSignature, kv.KeyLastScheduledDay} {
		if err := s.store.Remove(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to clear key after build change")
		}
	}
	if err := s.store.Set(ctx, kv.KeyBuildID, s.opts.BuildID); err != nil {
		log.Warn().Err(err).Msg("failed to persist build id")
	}
	return true
}

// InGraceWindow is true for Grace after Run. Before Run it is false.
func (s *Suppressor) InGraceWindow() bool {
	s.mu.RLock()
	started := s.startedAt
	s.mu.RUnlock()
	if started.IsZero() {
		return false
	}
	return s.clock.Since(started) < s.opts.Grace
}

// IsStale reports whether payload fired more than StaleAfter ago. Payloads
// without a fire time are never stale.
func (s *Suppressor) IsStale(payload model.Payload) bool {
	if payload.FireAt.IsZero() {
		return false
	}
	return s.clock.Since(payload.FireAt) > s.opts.StaleAfter
}

// ShouldIgnore combines the grace window and the staleness check.
func (s *Suppressor) ShouldIgnore(payload model.Payload) (bool, string) {
	if s.InGraceWindow() {
		return true, ReasonGraceWindow
	}
	if s.IsStale(payload) {
		return true, ReasonStale
	}
	return false, ""
}
