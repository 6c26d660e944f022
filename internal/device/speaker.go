package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/audio"
)

type audioOp string

const (
	opLoad   audioOp = "load"
	opPlay   audioOp = "play"
	opStop   audioOp = "stop"
	opVolume audioOp = "volume"
	opUnload audioOp = "unload"
)

type audioCommand struct {
	Op       audioOp  `json:"op"`
	Handle   string   `json:"handle"`
	Resource string   `json:"resource,omitempty"`
	Volume   *float64 `json:"volume,omitempty"`
}

// audioStatus is published by the device for a handle. Event is "loaded",
// "finished" or "error".
type audioStatus struct {
	Handle string `json:"handle"`
	Event  string `json:"event"`
	Error  string `json:"error,omitempty"`
}

// Speaker is the device's audio output.
type Speaker struct {
	broker  Broker
	topics  Topics
	timeout time.Duration

	mu      sync.Mutex
	handles map[string]*speakerHandle
}

var _ audio.Facility = (*Speaker)(nil)

func NewSpeaker(broker Broker, deviceID string, timeout time.Duration) *Speaker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Speaker{
		broker:  broker,
		topics:  TopicsFor(deviceID),
		timeout: timeout,
		handles: make(map[string]*speakerHandle),
	}
}

func (s *Speaker) Start() error {
	return subscribe(s.broker, s.topics.AudioStatus, s.handleStatus, s.timeout)
}

func (s *Speaker) Stop() {
	unsubscribe(s.broker, s.timeout, s.topics.AudioStatus)
}

// Load asks the device to load resource and waits until it reports the
// outcome.
func (s *Speaker) Load(ctx context.Context, resource string) (audio.Handle, error) {
	h := &speakerHandle{speaker: s, id: uuid.NewString(), loaded: make(chan error, 1)}
	s.mu.Lock()
	s.handles[h.id] = h
	s.mu.Unlock()

	if err := h.send(ctx, audioCommand{Op: opLoad, Resource: resource}); err != nil {
		s.forget(h.id)
		return nil, err
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case err := <-h.loaded:
		if err != nil {
			s.forget(h.id)
			return nil, fmt.Errorf("device failed to load %s: %w", resource, err)
		}
		return h, nil
	case <-ctx.Done():
		s.forget(h.id)
		return nil, ctx.Err()
	case <-timer.C:
		s.forget(h.id)
		return nil, fmt.Errorf("load %s: %w", resource, ErrTimeout)
	}
}

func (s *Speaker) forget(id string) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
}

func (s *Speaker) handleStatus(_ mqtt.Client, msg mqtt.Message) {
	var st audioStatus
	if err := json.Unmarshal(msg.Payload(), &st); err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("invalid audio status")
		return
	}

	s.mu.Lock()
	h, ok := s.handles[st.Handle]
	s.mu.Unlock()
	if !ok {
		log.Debug().Str("handle", st.Handle).Str("event", st.Event).Msg("status for unknown audio handle")
		return
	}

	switch st.Event {
	case "loaded":
		h.resolveLoad(nil)
	case "finished":
		h.report(audio.Status{Finished: true})
	case "error":
		err := errors.New(st.Error)
		if !h.resolveLoad(err) {
			h.report(audio.Status{Err: err})
		}
	default:
		log.Debug().Str("event", st.Event).Msg("unknown audio status event")
	}
}

type speakerHandle struct {
	speaker *Speaker
	id      string
	loaded  chan error

	mu       sync.Mutex
	isLoaded bool
	onStatus func(audio.Status)
}

// resolveLoad completes a pending Load. It reports false once the handle is
// already loaded.
func (h *speakerHandle) resolveLoad(err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.isLoaded {
		return false
	}
	h.isLoaded = true
	h.loaded <- err
	return true
}

func (h *speakerHandle) report(st audio.Status) {
	h.mu.Lock()
	fn := h.onStatus
	h.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (h *speakerHandle) send(ctx context.Context, cmd audioCommand) error {
	cmd.Handle = h.id
	return publishJSON(ctx, h.speaker.broker, h.speaker.topics.Audio, cmd, h.speaker.timeout)
}

// post is send without the ack wait, for commands that tear a session down.
func (h *speakerHandle) post(cmd audioCommand) error {
	cmd.Handle = h.id
	return publishAsync(h.speaker.broker, h.speaker.topics.Audio, cmd, h.speaker.timeout)
}

func (h *speakerHandle) Play(ctx context.Context) error {
	return h.send(ctx, audioCommand{Op: opPlay})
}

func (h *speakerHandle) Stop(context.Context) error {
	return h.post(audioCommand{Op: opStop})
}

func (h *speakerHandle) SetVolume(ctx context.Context, volume float64) error {
	return h.send(ctx, audioCommand{Op: opVolume, Volume: &volume})
}

func (h *speakerHandle) Unload(context.Context) error {
	defer h.speaker.forget(h.id)
	return h.post(audioCommand{Op: opUnload})
}

func (h *speakerHandle) OnStatus(fn func(audio.Status)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onStatus = fn
}
