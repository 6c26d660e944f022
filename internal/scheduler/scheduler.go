// Package scheduler installs a day's prayer notifications on the device and
// keeps them current across day boundaries.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/audio"
	"github.com/Nixie-Tech-LLC/athan/internal/kv"
	"github.com/Nixie-Tech-LLC/athan/internal/model"
	"github.com/Nixie-Tech-LLC/athan/internal/notify"
	"github.com/Nixie-Tech-LLC/athan/internal/prayertime"
	"github.com/Nixie-Tech-LLC/athan/internal/signature"
)

type Status string

const (
	StatusScheduled        Status = "scheduled"
	StatusUnchanged        Status = "unchanged"
	StatusDisabled         Status = "disabled"
	StatusPermissionDenied Status = "permission_denied"
	StatusFailed           Status = "failed"
)

// Result summarizes one ScheduleDay run.
type Result struct {
	Status     Status `json:"status"`
	Registered int    `json:"registered"`
	Skipped    int    `json:"skipped"` // invalid times
	Failed     int    `json:"failed"`  // registrations the facility rejected
}

var defaultVibratePattern = []int64{0, 500, 250, 500}

type Options struct {
	Clock clockwork.Clock
	// BundledSounds means the device plays athan files shipped with the app
	// as notification sounds.
	BundledSounds bool
	// DailyRescheduleAt is the wall time of the daily-reschedule record. Nil
	// registers none.
	DailyRescheduleAt *prayertime.Clock
	// Location is the zone prayer times are written in. Nil means time.Local.
	Location *time.Location
}

type Scheduler struct {
	facility notify.Facility
	store    kv.Store
	guard    *signature.Guard
	clock    clockwork.Clock
	opts     Options
}

func New(facility notify.Facility, store kv.Store, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Scheduler{
		facility: facility,
		store:    store,
		guard:    signature.NewGuard(store),
		clock:    opts.Clock,
		opts:     opts,
	}
}

// now is the current instant in the prayer location's zone.
func (s *Scheduler) now() time.Time {
	return s.clock.Now().In(s.opts.Location)
}

// Guard exposes the signature guard the scheduler commits to.
func (s *Scheduler) Guard() *signature.Guard {
	return s.guard
}

type pending struct {
	prayer    model.PrayerName
	triggerAt time.Time
	content   model.Content
}

// ScheduleDay installs the notifications for schedule. Calling it again with
// the same schedule and settings does nothing.
func (s *Scheduler) ScheduleDay(ctx context.Context, schedule model.PrayerSchedule, settings model.NotificationSettings) Result {
	logger := log.With().Str("date", schedule.Date).Str("location", schedule.Location).Logger()

	if !settings.Enabled {
		if err := s.cancelOwned(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to cancel notifications while disabled")
		}
		s.forget(ctx)
		logger.Info().Msg("notifications disabled, schedule cleared")
		return Result{Status: StatusDisabled}
	}

	granted, err := s.facility.Permission(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("could not read notification permission")
	}
	if !granted {
		logger.Warn().Msg("notification permission denied")
		return Result{Status: StatusPermissionDenied}
	}

	decision := s.guard.Check(ctx, schedule, settings)
	if !decision.Proceed {
		logger.Debug().Msg("schedule unchanged, skipping")
		return Result{Status: StatusUnchanged}
	}

	if err := s.cancelOwned(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to clear previous notifications")
		return Result{Status: StatusFailed}
	}

	now := s.now()
	records, skipped := s.build(now, schedule, settings)
	if s.opts.DailyRescheduleAt != nil {
		records = append(records, s.dailyReschedule(now, schedule, *s.opts.DailyRescheduleAt))
	}

	res := Result{Status: StatusScheduled, Skipped: skipped}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Msg("scheduling interrupted")
			return Result{Status: StatusFailed, Registered: res.Registered, Skipped: skipped, Failed: res.Failed}
		}
		id, err := s.facility.Register(ctx, rec.triggerAt, rec.content)
		if err != nil {
			res.Failed++
			logger.Error().Err(err).
				Str("prayer", string(rec.prayer)).
				Str("type", string(rec.content.Data.Type)).
				Time("trigger_at", rec.triggerAt).
				Msg("failed to register notification")
			continue
		}
		res.Registered++
		logger.Debug().Str("id", id).
			Str("prayer", string(rec.prayer)).
			Str("type", string(rec.content.Data.Type)).
			Time("trigger_at", rec.triggerAt).
			Msg("notification registered")
	}

	if res.Registered == 0 && res.Failed > 0 {
		logger.Error().Int("failed", res.Failed).Msg("no notification could be registered, will retry on next run")
		res.Status = StatusFailed
		return res
	}

	if err := s.guard.Commit(ctx, decision.Signature); err != nil {
		logger.Error().Err(err).Msg("failed to persist schedule signature")
	}
	if err := s.store.Set(ctx, kv.KeyLastScheduledDay, prayertime.DayKey(now)); err != nil {
		logger.Error().Err(err).Msg("failed to persist last scheduled day")
	}

	logger.Info().
		Int("registered", res.Registered).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("prayer notifications scheduled")
	return res
}

// ScheduleTest registers a single test-athan notification delay from now.
func (s *Scheduler) ScheduleTest(ctx context.Context, settings model.NotificationSettings, location string, delay time.Duration) (string, error) {
	at := s.now().Add(delay)
	content := s.prayerContent(model.PayloadTestAthan, "", location, settings, at)
	content.Title = "Test athan"
	content.Body = "This is how your prayer notifications will sound."
	id, err := s.facility.Register(ctx, at, content)
	if err != nil {
		return "", fmt.Errorf("register test athan: %w", err)
	}
	log.Info().Str("id", id).Time("trigger_at", at).Msg("test athan scheduled")
	return id, nil
}

func (s *Scheduler) build(now time.Time, schedule model.PrayerSchedule, settings model.NotificationSettings) ([]pending, int) {
	var out []pending
	skipped := 0
	if settings.PrePrayerReminder && !settings.ReminderOffsetValid() {
		log.Warn().Int("offset", settings.PrePrayerOffsetMinutes).Msg("pre-prayer offset out of range, no reminders")
	}
	for _, name := range model.CanonicalPrayers {
		raw := schedule.Time(name)
		clock, ok := prayertime.Parse(raw)
		if !ok {
			skipped++
			log.Warn().Str("prayer", string(name)).Str("raw", raw).Msg("invalid prayer time, skipping")
			continue
		}

		at := prayertime.NextTrigger(now, clock)
		out = append(out, pending{
			prayer:    name,
			triggerAt: at,
			content:   s.prayerContent(model.PayloadPrayerTime, name, schedule.Location, settings, at),
		})

		if settings.PrePrayerReminder && settings.ReminderOffsetValid() {
			reminderAt := prayertime.NextTrigger(now, clock.Add(-settings.PrePrayerOffsetMinutes))
			out = append(out, pending{
				prayer:    name,
				triggerAt: reminderAt,
				content:   s.reminderContent(name, schedule.Location, settings, reminderAt),
			})
		}
	}
	return out, skipped
}

func (s *Scheduler) prayerContent(kind model.PayloadType, name model.PrayerName, location string, settings model.NotificationSettings, at time.Time) model.Content {
	content := model.Content{
		Title: fmt.Sprintf("%s prayer time", name),
		Body:  fmt.Sprintf("It is time for %s in %s", name, location),
		Sound: model.SoundDefault,
		Data: model.Payload{
			Type:         kind,
			Prayer:       name,
			AthanEnabled: settings.AdhanEnabled,
			Location:     location,
			FireAt:       at,
		},
	}

	if settings.AdhanEnabled {
		content.Data.AthanSoundID = settings.AthanSoundID
		content.Data.FullAthan = audio.FullTrackName(settings.AthanSoundID)
		// only one of the OS and the player may produce the athan
		if s.opts.BundledSounds {
			content.Sound = audio.BundledSoundName(settings.AthanSoundID)
		} else {
			content.Sound = model.SoundNone
		}
	}
	if settings.Vibrate {
		content.VibratePattern = append([]int64(nil), defaultVibratePattern...)
	}
	return content
}

func (s *Scheduler) reminderContent(name model.PrayerName, location string, settings model.NotificationSettings, at time.Time) model.Content {
	content := model.Content{
		Title: fmt.Sprintf("%s in %d minutes", name, settings.PrePrayerOffsetMinutes),
		Body:  fmt.Sprintf("%s in %s is coming up", name, location),
		Sound: model.SoundDefault,
		Data: model.Payload{
			Type:     model.PayloadPrePrayer,
			Prayer:   name,
			Location: location,
			FireAt:   at,
		},
	}
	if settings.Vibrate {
		content.VibratePattern = append([]int64(nil), defaultVibratePattern...)
	}
	return content
}

func (s *Scheduler) dailyReschedule(now time.Time, schedule model.PrayerSchedule, wall prayertime.Clock) pending {
	at := prayertime.NextTrigger(now, wall)
	return pending{
		triggerAt: at,
		content: model.Content{
			Title: "Updating prayer times",
			Sound: model.SoundNone,
			Data: model.Payload{
				Type:     model.PayloadDailyReschedule,
				Location: schedule.Location,
				FireAt:   at,
			},
		},
	}
}

// cancelOwned cancels every record carrying one of our payload types, falling
// back to CancelAll when the facility cannot list its records.
func (s *Scheduler) cancelOwned(ctx context.Context) error {
	records, err := s.facility.Scheduled(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not list scheduled notifications, cancelling all")
		return s.facility.CancelAll(ctx)
	}

	var errs []error
	for _, rec := range records {
		if model.ParsePayloadType(string(rec.Content.Data.Type)) == model.PayloadUnknown {
			continue
		}
		if err := s.facility.Cancel(ctx, rec.ID); err != nil {
			errs = append(errs, fmt.Errorf("cancel %s: %w", rec.ID, err))
		}
	}
	return errors.Join(errs...)
}

// forget drops the signature and day marker so the next enabled run
// reschedules from scratch.
func (s *Scheduler) forget(ctx context.Context) {
	if err := s.guard.Reset(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to reset schedule signature")
	}
	if err := s.store.Remove(ctx, kv.KeyLastScheduledDay); err != nil {
		log.Warn().Err(err).Msg("failed to clear last scheduled day")
	}
}
