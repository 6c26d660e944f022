package scheduler

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/kv"
	"github.com/Nixie-Tech-LLC/athan/internal/model"
	"github.com/Nixie-Tech-LLC/athan/internal/prayertime"
)

// Source provides the prayer schedule and settings currently loaded in the
// app. ok is false until the first schedule arrives.
type Source interface {
	Current() (schedule model.PrayerSchedule, settings model.NotificationSettings, ok bool)
}

// Daily reinstalls notifications once the calendar day has moved past the
// day they were installed for.
type Daily struct {
	scheduler *Scheduler
	source    Source
}

func NewDaily(s *Scheduler, source Source) *Daily {
	return &Daily{scheduler: s, source: source}
}

// Check runs on launch and on every return to the foreground. It reports
// whether a reschedule ran.
func (d *Daily) Check(ctx context.Context) bool {
	today := prayertime.DayKey(d.scheduler.now())

	marker, err := d.scheduler.store.Get(ctx, kv.KeyLastScheduledDay)
	switch {
	case err == nil && marker == today:
		log.Debug().Str("day", today).Msg("notifications already installed for today")
		return false
	case errors.Is(err, kv.ErrNotFound):
		log.Info().Str("day", today).Msg("no scheduled day recorded, rescheduling")
	case err != nil:
		log.Warn().Err(err).Msg("could not read last scheduled day, rescheduling")
	default:
		log.Info().Str("last", marker).Str("day", today).Msg("day changed, rescheduling")
	}

	_, ran := d.Reschedule(ctx)
	return ran
}

// Reschedule clears every record and installs the current schedule again,
// bypassing the signature. ran is false when no schedule is loaded.
func (d *Daily) Reschedule(ctx context.Context) (res Result, ran bool) {
	schedule, settings, ok := d.source.Current()
	if !ok {
		log.Info().Msg("prayer schedule not loaded yet, nothing to reschedule")
		return Result{}, false
	}

	if err := d.scheduler.facility.CancelAll(ctx); err != nil {
		log.Error().Err(err).Msg("failed to cancel notifications before reschedule")
	}
	if err := d.scheduler.guard.Reset(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to reset schedule signature")
	}

	return d.scheduler.ScheduleDay(ctx, schedule, settings), true
}
