package audio

import (
	"context"
	"errors"
)

var ErrDownloadFailed = errors.New("audio download failed")

//go:generate go run go.uber.org/mock/mockgen -source=audio.go -destination=mocks/mock.go

// PlaybackState is the externally visible snapshot of the controller.
// IsPlaying gates the text-reveal effect: when narration is active the
// typing animation paces itself to the audio instead of a fixed timer.
type PlaybackState struct {
	IsPlaying       bool
	IsPaused        bool
	CurrentFilePath string
}

// Decoder is one loaded narration. Only one decoder may be alive at a
// time; the underlying platform resource is exclusive and leaks unless
// released.
type Decoder interface {
	// Play starts or resumes playback. done fires once when playback
	// runs to completion (not on Pause or Close).
	Play(done func())
	Pause()
	Close() error
}

// DecoderFactory opens a decoder for a downloaded narration file.
type DecoderFactory func(path string) (Decoder, error)

// Controller is the single-narration playback state machine:
// Idle -> Downloading -> Ready -> Playing <-> Paused -> Idle.
type Controller interface {
	// SetSource tears down any loaded narration, downloads url to the
	// fixed cache path (overwriting the previous file) and leaves the
	// controller Ready. A newer SetSource invalidates the download in
	// flight; the stale completion is discarded.
	SetSource(ctx context.Context, url string) error

	// Play is a no-op while Downloading or already Playing; from Paused
	// it resumes in place; from Ready it loads the decoder and starts
	// from the beginning.
	Play() error

	// Pause transitions Playing to Paused and no-ops otherwise.
	Pause()

	// Stop unconditionally stops and unloads. Safe from any state.
	Stop()

	State() PlaybackState

	// SetStateListener registers the callback invoked on every state
	// change. Used by the typing-effect surface.
	SetStateListener(func(PlaybackState))
}
