package companion

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/athan/internal/audio"
	"github.com/Nixie-Tech-LLC/athan/internal/kv"
	"github.com/Nixie-Tech-LLC/athan/internal/lifecycle"
	"github.com/Nixie-Tech-LLC/athan/internal/model"
	"github.com/Nixie-Tech-LLC/athan/internal/notify"
	"github.com/Nixie-Tech-LLC/athan/internal/prayertime"
	"github.com/Nixie-Tech-LLC/athan/internal/scheduler"
)

var edt = time.FixedZone("EDT", -4*3600)

type speaker struct {
	mu      sync.Mutex
	loaded  []string
	handles []*handle
}

func (s *speaker) Load(_ context.Context, resource string) (audio.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &handle{}
	s.loaded = append(s.loaded, resource)
	s.handles = append(s.handles, h)
	return h, nil
}

func (s *speaker) playing() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range s.handles {
		if h.isPlaying() {
			n++
		}
	}
	return n
}

type handle struct {
	mu      sync.Mutex
	playing bool
}

func (h *handle) Play(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playing = true
	return nil
}

func (h *handle) Stop(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playing = false
	return nil
}

func (h *handle) SetVolume(context.Context, float64) error { return nil }
func (h *handle) Unload(context.Context) error             { return nil }
func (h *handle) OnStatus(func(audio.Status))              {}

func (h *handle) isPlaying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

type mediaDir struct{}

func (mediaDir) Resolve(_ context.Context, track string) (string, error) {
	return fmt.Sprintf("/media/%s", track), nil
}

type harness struct {
	clock    *clockwork.FakeClock
	facility *notify.Memory
	store    *kv.Memory
	states   *lifecycle.Broadcaster
	speaker  *speaker
	c        *Coordinator
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		clock:   clockwork.NewFakeClockAt(time.Date(2025, 8, 5, 20, 0, 0, 0, edt)),
		store:   kv.NewMemory(),
		states:  lifecycle.NewBroadcaster(),
		speaker: &speaker{},
	}
	h.facility = notify.NewMemory(h.clock)
	require.NoError(t, h.store.Set(context.Background(), kv.KeyBuildID, "7"))

	deps := Deps{
		Notifications: h.facility,
		Events:        h.facility,
		Audio:         h.speaker,
		Resolver:      mediaDir{},
		AppState:      h.states,
		Store:         h.store,
		Clock:         h.clock,
		Location:      edt,
		BuildID:       "7",
		MaxClip:       audio.DefaultMaxClip,
	}
	if mutate != nil {
		mutate(&deps)
	}
	h.c = New(deps)
	t.Cleanup(h.c.Stop)
	return h
}

func schedule() model.PrayerSchedule {
	return model.PrayerSchedule{
		Date:     "2025-08-05",
		Location: "Chicago, IL",
		Times: map[model.PrayerName]string{
			model.Fajr:    "05:13",
			model.Dhuhr:   "12:30",
			model.Asr:     "16:05",
			model.Maghrib: "19:45",
			model.Isha:    "21:10",
		},
	}
}

func settings() model.NotificationSettings {
	return model.NotificationSettings{Enabled: true, AdhanEnabled: true, AthanSoundID: model.AthanMakkah, Vibrate: true}
}

func TestIshaDeliveryPlaysAthan(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.c.Start(ctx)

	res, err := h.c.UpdateSchedule(ctx, schedule(), settings())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Registered)

	h.clock.Advance(70 * time.Minute)
	fired := h.facility.Fire()
	require.Len(t, fired, 1)
	assert.Equal(t, model.Isha, fired[0].Prayer)

	require.Len(t, h.speaker.loaded, 1)
	assert.Equal(t, "/media/athan_makkah_clip.mp3", h.speaker.loaded[0])
	state, track := h.c.player.State()
	assert.Equal(t, audio.Playing, state)
	assert.Equal(t, "athan_makkah_clip.mp3", track)

	h.states.Publish(lifecycle.Background)
	assert.Zero(t, h.speaker.playing())
	state, _ = h.c.player.State()
	assert.Equal(t, audio.Idle, state)
}

func TestTapPlaysFullAthanOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.c.Start(ctx)
	_, err := h.c.UpdateSchedule(ctx, schedule(), settings())
	require.NoError(t, err)

	h.clock.Advance(70 * time.Minute)
	fired := h.facility.Fire()
	require.Len(t, fired, 1)
	require.NoError(t, h.facility.Tap(fired[0].ID))

	require.Len(t, h.speaker.loaded, 2)
	assert.Equal(t, "/media/athan_makkah_full.mp3", h.speaker.loaded[1])
	assert.Equal(t, 1, h.speaker.playing())
}

func TestUpdateScheduleIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.c.Start(ctx)

	first, err := h.c.UpdateSchedule(ctx, schedule(), settings())
	require.NoError(t, err)
	second, err := h.c.UpdateSchedule(ctx, schedule(), settings())
	require.NoError(t, err)

	assert.Equal(t, scheduler.StatusScheduled, first.Status)
	assert.Equal(t, scheduler.StatusUnchanged, second.Status)
	st, err := h.c.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, st.Scheduled, 5)
}

func TestUpdateScheduleRejectsInvalidDate(t *testing.T) {
	h := newHarness(t, nil)
	bad := schedule()
	bad.Date = "05/08/2025"
	_, err := h.c.UpdateSchedule(context.Background(), bad, settings())
	assert.Error(t, err)

	_, _, ok := h.c.Current()
	assert.False(t, ok)
}

func TestForegroundOnNewDayReschedules(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.c.Start(ctx)
	_, err := h.c.UpdateSchedule(ctx, schedule(), settings())
	require.NoError(t, err)

	h.states.Publish(lifecycle.Background)
	h.clock.Advance(12 * time.Hour)
	h.facility.Fire()
	h.states.Publish(lifecycle.Active)

	st, err := h.c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-08-06", st.LastScheduledDay)
	assert.Len(t, st.Scheduled, 5)
}

func TestDailyRescheduleEvent(t *testing.T) {
	at := prayertime.Clock{Hour: 0, Minute: 5}
	h := newHarness(t, func(d *Deps) { d.DailyRescheduleAt = &at })
	ctx := context.Background()
	h.c.Start(ctx)
	_, err := h.c.UpdateSchedule(ctx, schedule(), settings())
	require.NoError(t, err)

	// 00:05 the next day: Isha fired at 21:10 and the daily record is due
	h.clock.Advance(4*time.Hour + 5*time.Minute)
	h.facility.Fire()

	st, err := h.c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-08-06", st.LastScheduledDay)
	assert.Len(t, st.Scheduled, 6)
	require.NotNil(t, st.LastResult)
	assert.Equal(t, scheduler.StatusScheduled, st.LastResult.Status)
}

func TestGraceWindowSuppressesBurst(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.c.Start(ctx)
	_, err := h.c.UpdateSchedule(ctx, schedule(), settings())
	require.NoError(t, err)

	// a test athan due inside the grace window
	_, err = h.c.TestAthan(ctx, 5*time.Second)
	require.NoError(t, err)
	h.clock.Advance(5 * time.Second)
	h.facility.Fire()
	assert.Empty(t, h.speaker.loaded)

	_, err = h.c.TestAthan(ctx, time.Minute)
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	h.facility.Fire()
	assert.Len(t, h.speaker.loaded, 1)

	h.c.StopAthan()
	assert.Zero(t, h.speaker.playing())
}

func TestStatus(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	st, err := h.c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Started)
	assert.False(t, st.Loaded)
	assert.Equal(t, audio.Idle, st.Player)

	h.c.Start(ctx)
	_, err = h.c.UpdateSchedule(ctx, schedule(), settings())
	require.NoError(t, err)

	st, err = h.c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Started)
	assert.True(t, st.InGraceWindow)
	require.NotNil(t, st.Schedule)
	assert.Equal(t, "Chicago, IL", st.Schedule.Location)
	assert.Equal(t, "2025-08-05", st.LastScheduledDay)
}
