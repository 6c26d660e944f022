package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/lifecycle"
	"github.com/Nixie-Tech-LLC/athan/internal/storage"
)

type State string

const (
	Idle      State = "idle"
	Loading   State = "loading"
	Playing   State = "playing"
	Completed State = "completed"
	Stopped   State = "stopped"
	Errored   State = "errored"
)

// ErrSuperseded is returned by Play when another Play or a ForceStop arrived
// while the track was loading.
var ErrSuperseded = errors.New("audio: playback superseded")

const DefaultMaxClip = 60 * time.Second

type Options struct {
	Clock clockwork.Clock
	// MaxClip caps clip tracks. Zero disables the cap.
	MaxClip time.Duration
}

type session struct {
	gen     uint64
	track   Track
	handle  Handle
	capStop clockwork.Timer
	once    sync.Once
}

// Player is the single owner of athan playback.
type Player struct {
	facility Facility
	resolver storage.Resolver
	clock    clockwork.Clock
	maxClip  time.Duration

	mu          sync.Mutex
	state       State
	gen         uint64
	current     *session
	unsubscribe func()
}

func NewPlayer(facility Facility, resolver storage.Resolver, opts Options) *Player {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Player{
		facility: facility,
		resolver: resolver,
		clock:    opts.Clock,
		maxClip:  opts.MaxClip,
		state:    Idle,
	}
}

// Start stops playback whenever the app goes to the background or becomes
// inactive (device locked).
func (p *Player) Start(states lifecycle.Source) {
	unsubscribe := states.Subscribe(func(s lifecycle.State) {
		if s == lifecycle.Background || s == lifecycle.Inactive {
			log.Debug().Str("app_state", string(s)).Msg("app left foreground, stopping athan")
			p.ForceStop()
		}
	})
	p.mu.Lock()
	p.unsubscribe = unsubscribe
	p.mu.Unlock()
}

// State returns the player state and the name of the track in the live
// session, if any.
func (p *Player) State() (State, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return p.state, ""
	}
	return p.state, p.current.track.Name
}

// Play stops whatever is playing and starts track at full volume.
func (p *Player) Play(ctx context.Context, track Track) error {
	p.mu.Lock()
	prev := p.detachLocked()
	p.gen++
	gen := p.gen
	p.state = Loading
	p.mu.Unlock()

	if prev != nil {
		p.release(prev, true, Stopped)
	}

	resource, err := p.resolver.Resolve(ctx, track.Name)
	if err != nil {
		p.failLoad(gen)
		return fmt.Errorf("resolve %s: %w", track.Name, err)
	}

	handle, err := p.facility.Load(ctx, resource)
	if err != nil {
		p.failLoad(gen)
		return fmt.Errorf("load %s: %w", track.Name, err)
	}

	s := &session{gen: gen, track: track, handle: handle}
	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		p.release(s, false, Stopped)
		return ErrSuperseded
	}
	p.current = s
	p.mu.Unlock()

	handle.OnStatus(func(st Status) { p.onStatus(gen, st) })

	if err := handle.SetVolume(ctx, 1); err != nil {
		p.finish(gen, Errored, err)
		return fmt.Errorf("set volume: %w", err)
	}
	if err := handle.Play(ctx); err != nil {
		p.finish(gen, Errored, err)
		return fmt.Errorf("play %s: %w", track.Name, err)
	}

	p.mu.Lock()
	if p.gen != gen || p.current != s {
		p.mu.Unlock()
		p.release(s, true, Stopped)
		return ErrSuperseded
	}
	p.state = Playing
	if !track.Full && p.maxClip > 0 {
		s.capStop = p.clock.AfterFunc(p.maxClip, func() {
			p.finish(gen, Stopped, nil)
		})
	}
	p.mu.Unlock()

	log.Info().Str("track", track.Name).Bool("full", track.Full).Msg("athan playing")
	return nil
}

// ForceStop silences and releases the live session immediately. Any load in
// flight is discarded when it completes.
func (p *Player) ForceStop() {
	p.mu.Lock()
	s := p.detachLocked()
	p.gen++
	p.state = Idle
	p.mu.Unlock()

	if s != nil {
		p.release(s, true, Stopped)
	}
}

// Destroy stops playback and detaches the app state listener.
func (p *Player) Destroy() {
	p.ForceStop()
	p.mu.Lock()
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (p *Player) onStatus(gen uint64, st Status) {
	switch {
	case st.Err != nil:
		p.finish(gen, Errored, st.Err)
	case st.Finished:
		p.finish(gen, Completed, nil)
	}
}

// finish ends the session started by gen, if it is still the live one.
func (p *Player) finish(gen uint64, outcome State, cause error) {
	p.mu.Lock()
	if p.current == nil || p.current.gen != gen {
		p.mu.Unlock()
		return
	}
	s := p.detachLocked()
	p.state = Idle
	p.mu.Unlock()

	if cause != nil {
		log.Error().Err(cause).Str("track", s.track.Name).Msg("athan playback failed")
	}
	p.release(s, outcome != Completed, outcome)
}

func (p *Player) failLoad(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen == gen {
		p.state = Idle
	}
}

func (p *Player) detachLocked() *session {
	s := p.current
	p.current = nil
	return s
}

// release tears a session down exactly once. mute drops the volume to zero
// before stopping so the cut is silent at once.
func (p *Player) release(s *session, mute bool, outcome State) {
	s.once.Do(func() {
		p.mu.Lock()
		capStop := s.capStop
		p.mu.Unlock()
		if capStop != nil {
			capStop.Stop()
		}
		ctx := context.Background()
		if mute {
			if err := s.handle.SetVolume(ctx, 0); err != nil {
				log.Debug().Err(err).Msg("mute before stop failed")
			}
		}
		if err := s.handle.Stop(ctx); err != nil {
			log.Debug().Err(err).Msg("stop failed")
		}
		if err := s.handle.Unload(ctx); err != nil {
			log.Warn().Err(err).Str("track", s.track.Name).Msg("failed to unload athan")
		}
		log.Debug().Str("track", s.track.Name).Str("outcome", string(outcome)).Msg("athan session released")
	})
}
