// Package audio plays the athan. A Player owns at most one live sound handle
// and stops it the moment the app leaves the foreground.
package audio

import (
	"context"
	"fmt"

	"github.com/Nixie-Tech-LLC/athan/internal/model"
)

// Status is reported by a Handle when playback ends on its own.
type Status struct {
	Finished bool
	Err      error
}

type Handle interface {
	Play(ctx context.Context) error
	Stop(ctx context.Context) error
	SetVolume(ctx context.Context, volume float64) error
	Unload(ctx context.Context) error
	// OnStatus registers the callback for completion and playback errors.
	OnStatus(fn func(Status))
}

// Facility loads a resolved resource (file path or URL) into a Handle.
type Facility interface {
	Load(ctx context.Context, resource string) (Handle, error)
}

// Track names an athan recording. Full tracks are the complete athan and are
// never cut short.
type Track struct {
	Name string
	Full bool
}

// ClipTrack is the recording played when a prayer notification arrives.
func ClipTrack(sound model.AthanSound) Track {
	return Track{Name: fmt.Sprintf("athan_%s_clip.mp3", soundOrDefault(sound))}
}

// FullTrackName is the complete recording offered when the user taps a
// prayer notification.
func FullTrackName(sound model.AthanSound) string {
	return fmt.Sprintf("athan_%s_full.mp3", soundOrDefault(sound))
}

// BundledSoundName is the notification sound file shipped with the app for
// devices that play custom sounds natively.
func BundledSoundName(sound model.AthanSound) string {
	return fmt.Sprintf("athan_%s.wav", soundOrDefault(sound))
}

func soundOrDefault(sound model.AthanSound) model.AthanSound {
	if !sound.Valid() {
		return model.AthanDefault
	}
	return sound
}
