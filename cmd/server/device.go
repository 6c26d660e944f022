package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/audio"
	"github.com/Nixie-Tech-LLC/athan/internal/config"
	"github.com/Nixie-Tech-LLC/athan/internal/device"
	"github.com/Nixie-Tech-LLC/athan/internal/events"
	"github.com/Nixie-Tech-LLC/athan/internal/lifecycle"
	"github.com/Nixie-Tech-LLC/athan/internal/notify"
)

// Device bundles the facilities of the companion device.
type Device struct {
	Notifications notify.Facility
	Events        events.Source
	Audio         audio.Facility
	AppState      lifecycle.Source

	closers []func()
}

func (d *Device) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// InitDevice connects to the configured device transport.
func InitDevice(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (*Device, error) {
	if cfg.DeviceTransport == config.TransportLocal {
		return initLocalDevice(ctx, clock), nil
	}

	client, err := device.Connect(cfg.MQTTBrokerURL, fmt.Sprintf("athan-%s", cfg.DeviceID))
	if err != nil {
		return nil, err
	}
	d := &Device{closers: []func(){func() { client.Disconnect(250) }}}

	notifications := device.NewNotifications(client, cfg.DeviceID, device.DefaultTimeout)
	speaker := device.NewSpeaker(client, cfg.DeviceID, device.DefaultTimeout)
	appState := device.NewAppState(client, cfg.DeviceID, device.DefaultTimeout)

	starters := []struct {
		name  string
		start func() error
		stop  func()
	}{
		{"notifications", notifications.Start, notifications.Stop},
		{"speaker", speaker.Start, speaker.Stop},
		{"app state", appState.Start, appState.Stop},
	}
	for _, s := range starters {
		if err := s.start(); err != nil {
			d.Close()
			return nil, fmt.Errorf("start %s: %w", s.name, err)
		}
		d.closers = append(d.closers, s.stop)
	}

	d.Notifications = notifications
	d.Events = notifications
	d.Audio = speaker
	d.AppState = appState
	log.Info().Str("device_id", cfg.DeviceID).Msg("device transport ready")
	return d, nil
}

// initLocalDevice keeps notifications in process and delivers them from a
// one second ticker. Audio is only logged.
func initLocalDevice(ctx context.Context, clock clockwork.Clock) *Device {
	facility := notify.NewMemory(clock)
	ticker := clock.NewTicker(time.Second)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				facility.Fire()
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	log.Info().Msg("using local device transport")
	return &Device{
		Notifications: facility,
		Events:        facility,
		Audio:         logSpeaker{},
		AppState:      lifecycle.NewBroadcaster(),
		closers:       []func(){func() { close(done) }},
	}
}

type logSpeaker struct{}

func (logSpeaker) Load(_ context.Context, resource string) (audio.Handle, error) {
	log.Info().Str("resource", resource).Msg("local speaker: load")
	return &logHandle{resource: resource}, nil
}

type logHandle struct {
	resource string
}

func (h *logHandle) Play(context.Context) error {
	log.Info().Str("resource", h.resource).Msg("local speaker: play")
	return nil
}

func (h *logHandle) Stop(context.Context) error {
	log.Info().Str("resource", h.resource).Msg("local speaker: stop")
	return nil
}

func (h *logHandle) SetVolume(_ context.Context, volume float64) error {
	log.Debug().Str("resource", h.resource).Float64("volume", volume).Msg("local speaker: volume")
	return nil
}

func (h *logHandle) Unload(context.Context) error { return nil }

func (h *logHandle) OnStatus(func(audio.Status)) {}
