// Package signature decides whether a prayer schedule needs to be installed
// again. A signature covers everything that changes what gets registered:
// the day, the location, the notification settings and the five raw times.
package signature

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/kv"
	"github.com/Nixie-Tech-LLC/athan/internal/model"
)

const separator = "|"

// settingsKey fixes the serialized field order of the settings.
type settingsKey struct {
	Enabled   bool             `json:"enabled"`
	Adhan     bool             `json:"adhan"`
	Sound     model.AthanSound `json:"sound"`
	Vibrate   bool             `json:"vibrate"`
	PrePrayer bool             `json:"prePrayer"`
	Offset    int              `json:"offset"`
}

// Build returns the signature for a schedule and its settings. Equal inputs
// always produce equal strings.
func Build(schedule model.PrayerSchedule, settings model.NotificationSettings) string {
	raw, _ := json.Marshal(settingsKey{
		Enabled:   settings.Enabled,
		Adhan:     settings.AdhanEnabled,
		Sound:     settings.AthanSoundID,
		Vibrate:   settings.Vibrate,
		PrePrayer: settings.PrePrayerReminder,
		Offset:    settings.PrePrayerOffsetMinutes,
	})

	parts := make([]string, 0, 3+len(model.CanonicalPrayers))
	parts = append(parts, schedule.Date, schedule.Location, string(raw))
	for _, name := range model.CanonicalPrayers {
		parts = append(parts, schedule.Time(name))
	}
	return strings.Join(parts, separator)
}

type Decision struct {
	Proceed   bool
	Signature string
}

// ShouldReschedule compares the candidate's signature with the persisted one.
func ShouldReschedule(candidate model.PrayerSchedule, settings model.NotificationSettings, persisted string) Decision {
	sig := Build(candidate, settings)
	if sig == persisted {
		return Decision{Proceed: false, Signature: sig}
	}
	return Decision{Proceed: true, Signature: sig}
}

// Guard persists the signature of the last fully installed schedule.
type Guard struct {
	store kv.Store
}

func NewGuard(store kv.Store) *Guard {
	return &Guard{store: store}
}

// Check loads the persisted signature and decides. A store failure counts as
// "state unknown" and proceeds.
func (g *Guard) Check(ctx context.Context, schedule model.PrayerSchedule, settings model.NotificationSettings) Decision {
	persisted, err := g.store.Get(ctx, kv.KeyScheduleSignature)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		log.Warn().Err(err).Msg("could not read schedule signature, rescheduling")
		persisted = ""
	}
	return ShouldReschedule(schedule, settings, persisted)
}

// Commit stores sig. Call it only after every record of the run was handled.
func (g *Guard) Commit(ctx context.Context, sig string) error {
	return g.store.Set(ctx, kv.KeyScheduleSignature, sig)
}

// Reset forgets the persisted signature so the next Check proceeds.
func (g *Guard) Reset(ctx context.Context) error {
	return g.store.Remove(ctx, kv.KeyScheduleSignature)
}
