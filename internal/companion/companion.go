// Package companion wires the notification subsystem together: it owns the
// currently loaded prayer schedule, runs the cold start cleanup, and routes
// device events to the scheduler and the athan player.
package companion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/audio"
	"github.com/Nixie-Tech-LLC/athan/internal/events"
	"github.com/Nixie-Tech-LLC/athan/internal/kv"
	"github.com/Nixie-Tech-LLC/athan/internal/lifecycle"
	"github.com/Nixie-Tech-LLC/athan/internal/model"
	"github.com/Nixie-Tech-LLC/athan/internal/notify"
	"github.com/Nixie-Tech-LLC/athan/internal/prayertime"
	"github.com/Nixie-Tech-LLC/athan/internal/scheduler"
	"github.com/Nixie-Tech-LLC/athan/internal/startup"
	"github.com/Nixie-Tech-LLC/athan/internal/storage"
)

// ErrNotStarted is returned by operations that need Start to have run.
var ErrNotStarted = errors.New("companion: not started")

// Deps are the device facilities and tuning the coordinator runs with.
type Deps struct {
	Notifications notify.Facility
	Events        events.Source
	Audio         audio.Facility
	Resolver      storage.Resolver
	AppState      lifecycle.Source
	Store         kv.Store
	Clock         clockwork.Clock
	// Location is the zone prayer times are written in.
	Location *time.Location

	BuildID           string
	BundledSounds     bool
	DailyRescheduleAt *prayertime.Clock
	Lookahead         time.Duration
	Grace             time.Duration
	StaleAfter        time.Duration
	MaxClip           time.Duration
}

type Coordinator struct {
	deps       Deps
	scheduler  *scheduler.Scheduler
	daily      *scheduler.Daily
	suppressor *startup.Suppressor
	router     *events.Router
	player     *audio.Player

	// mu serializes everything that installs notifications.
	mu sync.Mutex

	stateMu    sync.RWMutex
	schedule   model.PrayerSchedule
	settings   model.NotificationSettings
	loaded     bool
	lastResult *scheduler.Result
	started    bool
	stops      []func()
}

var _ scheduler.Source = (*Coordinator)(nil)

func New(deps Deps) *Coordinator {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	c := &Coordinator{deps: deps}
	c.scheduler = scheduler.New(deps.Notifications, deps.Store, scheduler.Options{
		Clock:             deps.Clock,
		BundledSounds:     deps.BundledSounds,
		DailyRescheduleAt: deps.DailyRescheduleAt,
		Location:          deps.Location,
	})
	c.daily = scheduler.NewDaily(c.scheduler, c)
	c.suppressor = startup.New(deps.Notifications, deps.Store, startup.Options{
		Clock:      deps.Clock,
		BuildID:    deps.BuildID,
		Lookahead:  deps.Lookahead,
		Grace:      deps.Grace,
		StaleAfter: deps.StaleAfter,
	})
	c.player = audio.NewPlayer(deps.Audio, deps.Resolver, audio.Options{Clock: deps.Clock, MaxClip: deps.MaxClip})
	c.router = events.NewRouter(c.player, rescheduler{c}, c.suppressor)
	return c
}

// Current returns the loaded schedule and settings.
func (c *Coordinator) Current() (model.PrayerSchedule, model.NotificationSettings, bool) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.schedule, c.settings, c.loaded
}

// Start runs the cold start cleanup, then begins reacting to notification
// events and app state changes. It must be called once.
func (c *Coordinator) Start(ctx context.Context) {
	report := c.suppressor.Run(ctx)
	log.Info().Time("started_at", report.StartedAt).Msg("notification coordinator starting")

	stopEvents := c.router.Start(ctx, c.deps.Events)
	c.player.Start(c.deps.AppState)
	stopStates := c.deps.AppState.Subscribe(func(s lifecycle.State) {
		if s == lifecycle.Active {
			c.checkDay(ctx)
		}
	})

	c.stateMu.Lock()
	c.started = true
	c.stops = append(c.stops, stopEvents, stopStates)
	c.stateMu.Unlock()

	c.checkDay(ctx)
}

// Stop detaches every listener and silences the player.
func (c *Coordinator) Stop() {
	c.stateMu.Lock()
	stops := c.stops
	c.stops = nil
	c.started = false
	c.stateMu.Unlock()

	for i := len(stops) - 1; i >= 0; i-- {
		stops[i]()
	}
	c.player.Destroy()
	log.Info().Msg("notification coordinator stopped")
}

func (c *Coordinator) checkDay(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.daily.Check(ctx)
}

// UpdateSchedule replaces the loaded schedule and installs it. Repeated
// calls with the same input leave the installed notifications untouched.
func (c *Coordinator) UpdateSchedule(ctx context.Context, schedule model.PrayerSchedule, settings model.NotificationSettings) (scheduler.Result, error) {
	if err := schedule.Validate(); err != nil {
		return scheduler.Result{}, fmt.Errorf("invalid schedule: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stateMu.Lock()
	c.schedule = schedule
	c.settings = settings
	c.loaded = true
	c.stateMu.Unlock()

	res := c.scheduler.ScheduleDay(ctx, schedule, settings)
	c.remember(res)
	return res, nil
}

func (c *Coordinator) remember(res scheduler.Result) {
	c.stateMu.Lock()
	c.lastResult = &res
	c.stateMu.Unlock()
}

// TestAthan schedules a test-athan notification delay from now with the
// loaded settings. The athan is enabled even if the settings turn it off.
func (c *Coordinator) TestAthan(ctx context.Context, delay time.Duration) (string, error) {
	schedule, settings, ok := c.Current()
	if !ok {
		settings = model.NotificationSettings{Enabled: true, AthanSoundID: model.AthanDefault}
	}
	settings.AdhanEnabled = true
	return c.scheduler.ScheduleTest(ctx, settings, schedule.Location, delay)
}

// StopAthan silences any athan playing now.
func (c *Coordinator) StopAthan() {
	c.player.ForceStop()
}

type Status struct {
	Started          bool                          `json:"started"`
	Loaded           bool                          `json:"loaded"`
	Schedule         *model.PrayerSchedule         `json:"schedule,omitempty"`
	Settings         *model.NotificationSettings   `json:"settings,omitempty"`
	LastScheduledDay string                        `json:"lastScheduledDay,omitempty"`
	LastResult       *scheduler.Result             `json:"lastResult,omitempty"`
	Player           audio.State                   `json:"player"`
	Track            string                        `json:"track,omitempty"`
	InGraceWindow    bool                          `json:"inGraceWindow"`
	Scheduled        []model.ScheduledNotification `json:"scheduled"`
}

func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	c.stateMu.RLock()
	st := Status{Started: c.started, Loaded: c.loaded, LastResult: c.lastResult}
	if c.loaded {
		schedule, settings := c.schedule, c.settings
		st.Schedule, st.Settings = &schedule, &settings
	}
	c.stateMu.RUnlock()

	st.Player, st.Track = c.player.State()
	st.InGraceWindow = c.suppressor.InGraceWindow()

	day, err := c.deps.Store.Get(ctx, kv.KeyLastScheduledDay)
	switch {
	case err == nil:
		st.LastScheduledDay = day
	case !errors.Is(err, kv.ErrNotFound):
		log.Warn().Err(err).Msg("could not read last scheduled day")
	}

	scheduled, err := c.deps.Notifications.Scheduled(ctx)
	if err != nil {
		return st, fmt.Errorf("list scheduled notifications: %w", err)
	}
	st.Scheduled = scheduled
	return st, nil
}

// rescheduler runs the daily reschedule under the coordinator lock.
type rescheduler struct{ c *Coordinator }

func (r rescheduler) Reschedule(ctx context.Context) (scheduler.Result, bool) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	res, ran := r.c.daily.Reschedule(ctx)
	if ran {
		r.c.remember(res)
	}
	return res, ran
}
