// Package events reacts to notification deliveries and taps: it starts the
// athan, triggers the daily reschedule and drops cold start bursts.
package events

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/audio"
	"github.com/Nixie-Tech-LLC/athan/internal/model"
	"github.com/Nixie-Tech-LLC/athan/internal/scheduler"
)

// Source delivers notification events until the returned func is called.
type Source interface {
	Subscribe(fn func(model.NotificationEvent)) func()
}

type Player interface {
	Play(ctx context.Context, track audio.Track) error
	ForceStop()
}

type Rescheduler interface {
	Reschedule(ctx context.Context) (scheduler.Result, bool)
}

type Suppressor interface {
	ShouldIgnore(payload model.Payload) (bool, string)
}

// Router dispatches events by payload type. A nil suppressor accepts every
// delivery.
type Router struct {
	player      Player
	rescheduler Rescheduler
	suppressor  Suppressor
}

func NewRouter(player Player, rescheduler Rescheduler, suppressor Suppressor) *Router {
	return &Router{player: player, rescheduler: rescheduler, suppressor: suppressor}
}

// Start subscribes the router to source. Handlers run with ctx.
func (r *Router) Start(ctx context.Context, source Source) (stop func()) {
	return source.Subscribe(func(ev model.NotificationEvent) {
		r.Handle(ctx, ev)
	})
}

// Handle processes one event. It never panics; failures are logged.
func (r *Router) Handle(ctx context.Context, ev model.NotificationEvent) {
	logger := log.With().
		Str("id", ev.ID).
		Str("kind", string(ev.Kind)).
		Str("type", string(ev.Content.Data.Type)).
		Str("prayer", string(ev.Content.Data.Prayer)).
		Logger()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Err(fmt.Errorf("%v", rec)).Msg("notification handler panicked")
		}
	}()

	var err error
	switch ev.Kind {
	case model.EventReceived:
		err = r.received(ctx, ev)
	case model.EventTapped:
		err = r.tapped(ctx, ev)
	default:
		logger.Debug().Msg("unknown event kind, ignoring")
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to handle notification")
	}
}

func (r *Router) received(ctx context.Context, ev model.NotificationEvent) error {
	data := ev.Content.Data
	if r.suppressor != nil {
		if ignore, reason := r.suppressor.ShouldIgnore(data); ignore {
			log.Info().Str("id", ev.ID).Str("reason", reason).Msg("ignoring notification at startup")
			return nil
		}
	}

	switch model.ParsePayloadType(string(data.Type)) {
	case model.PayloadPrayerTime, model.PayloadTestAthan:
		if !data.AthanEnabled {
			return nil
		}
		if ev.Content.HasBundledSound() {
			log.Debug().Str("id", ev.ID).Str("sound", ev.Content.Sound).Msg("athan played by the device")
			return nil
		}
		if err := r.player.Play(ctx, audio.ClipTrack(data.AthanSoundID)); err != nil {
			return fmt.Errorf("play athan clip: %w", err)
		}
	case model.PayloadPrePrayer:
	case model.PayloadDailyReschedule:
		res, ran := r.rescheduler.Reschedule(ctx)
		if !ran {
			log.Info().Msg("daily reschedule fired before any schedule was loaded")
			return nil
		}
		log.Info().Str("status", string(res.Status)).Int("registered", res.Registered).Msg("daily reschedule done")
	case model.PayloadDebug:
		log.Info().Str("id", ev.ID).Str("title", ev.Content.Title).Msg("debug notification received")
	default:
		log.Debug().Str("id", ev.ID).Msg("notification not ours, ignoring")
	}
	return nil
}

func (r *Router) tapped(ctx context.Context, ev model.NotificationEvent) error {
	full := ev.Content.Data.FullAthan
	if full == "" {
		return nil
	}
	r.player.ForceStop()
	if err := r.player.Play(ctx, audio.Track{Name: full, Full: true}); err != nil {
		return fmt.Errorf("play full athan: %w", err)
	}
	return nil
}
