package audioimpl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/skazkalab/fairytale-engine/internal/audio"
	"github.com/skazkalab/fairytale-engine/internal/config"
	"github.com/skazkalab/fairytale-engine/pkg/logger"
	"github.com/skazkalab/fairytale-engine/pkg/retry"
	"go.uber.org/fx"
)

type state int

const (
	stateIdle state = iota
	stateDownloading
	stateReady
	statePlaying
	statePaused
)

type AudioImpl struct {
	mu           sync.Mutex
	state        state
	requestedURL string
	decoder      audio.Decoder
	listener     func(audio.PlaybackState)

	filePath   string
	newDecoder audio.DecoderFactory
	httpClient *http.Client
	retryCfg   retry.Config

	Logger logger.Logger
}

type Opts struct {
	fx.In

	Config *config.Config
	Logger logger.Logger
}

func New(opts Opts) *AudioImpl {
	return &AudioImpl{
		filePath:   opts.Config.Audio.CachePath,
		newDecoder: NewOtoDecoder,
		httpClient: &http.Client{Timeout: opts.Config.Audio.DownloadTimeout},
		retryCfg: retry.Config{
			MaxRetries:      opts.Config.Audio.DownloadRetries,
			InitialInterval: retry.DefaultConfig().InitialInterval,
		},
		Logger: opts.Logger,
	}
}

var _ audio.Controller = (*AudioImpl)(nil)

func (a *AudioImpl) SetSource(ctx context.Context, url string) error {
	a.mu.Lock()
	// Only one decoder may be alive; unload before anything else.
	a.teardownLocked()
	a.state = stateDownloading
	a.requestedURL = url
	a.mu.Unlock()
	a.notify()

	// Each request downloads to its own temp file; the fixed cache path
	// is only written under the lock after the staleness check, so a
	// slow download can never clobber a newer one's bytes.
	tmp := fmt.Sprintf("%s.%s.part", a.filePath, uuid.NewString())
	err := retry.Do(ctx, a.Logger, "download narration", func() error {
		return a.downloadTo(ctx, url, tmp)
	}, a.retryCfg)

	a.mu.Lock()
	if a.requestedURL != url {
		// A newer SetSource arrived while this download ran; its result
		// owns the controller now, this one is discarded.
		a.mu.Unlock()
		os.Remove(tmp)
		a.Logger.Info("Discarding stale narration download", "url", url)
		return nil
	}
	if err != nil {
		a.state = stateIdle
		a.mu.Unlock()
		os.Remove(tmp)
		a.notify()
		return fmt.Errorf("%w: %v", audio.ErrDownloadFailed, err)
	}
	if err := os.Rename(tmp, a.filePath); err != nil {
		a.state = stateIdle
		a.mu.Unlock()
		a.notify()
		return fmt.Errorf("%w: failed to move narration file: %v", audio.ErrDownloadFailed, err)
	}
	a.state = stateReady
	a.mu.Unlock()
	a.notify()

	a.Logger.Info("Narration downloaded", "path", a.filePath)
	return nil
}

func (a *AudioImpl) Play() error {
	a.mu.Lock()

	switch a.state {
	case stateDownloading, statePlaying:
		a.mu.Unlock()
		return nil
	case stateIdle:
		a.mu.Unlock()
		a.Logger.Warn("Play requested with no narration loaded")
		return nil
	case statePaused:
		decoder := a.decoder
		a.state = statePlaying
		a.mu.Unlock()
		decoder.Play(a.makeDoneFunc(decoder))
		a.notify()
		return nil
	}

	// Ready: fresh load, start from the beginning.
	decoder, err := a.newDecoder(a.filePath)
	if err != nil {
		a.state = stateIdle
		a.mu.Unlock()
		a.notify()
		return fmt.Errorf("failed to load narration: %w", err)
	}
	a.decoder = decoder
	a.state = statePlaying
	a.mu.Unlock()

	decoder.Play(a.makeDoneFunc(decoder))
	a.notify()
	return nil
}

// makeDoneFunc binds the completion callback to the decoder it was
// started for, so a late completion from a torn-down decoder cannot
// reset a newer one.
func (a *AudioImpl) makeDoneFunc(decoder audio.Decoder) func() {
	return func() {
		a.mu.Lock()
		if a.decoder != decoder {
			a.mu.Unlock()
			return
		}
		if err := a.decoder.Close(); err != nil {
			a.Logger.Warn("Failed to release finished decoder", "error", err)
		}
		a.decoder = nil
		a.state = stateIdle
		a.mu.Unlock()
		a.notify()
	}
}

func (a *AudioImpl) Pause() {
	a.mu.Lock()
	if a.state != statePlaying {
		a.mu.Unlock()
		return
	}
	a.decoder.Pause()
	a.state = statePaused
	a.mu.Unlock()
	a.notify()
}

func (a *AudioImpl) Stop() {
	a.mu.Lock()
	a.teardownLocked()
	a.mu.Unlock()
	a.notify()
}

// teardownLocked unloads whatever is present. Must be callable from any
// state, including Idle.
func (a *AudioImpl) teardownLocked() {
	if a.decoder != nil {
		if err := a.decoder.Close(); err != nil {
			a.Logger.Warn("Failed to release decoder on teardown", "error", err)
		}
		a.decoder = nil
	}
	a.state = stateIdle
	a.requestedURL = ""
}

func (a *AudioImpl) State() audio.PlaybackState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

func (a *AudioImpl) stateLocked() audio.PlaybackState {
	s := audio.PlaybackState{
		IsPlaying: a.state == statePlaying,
		IsPaused:  a.state == statePaused,
	}
	if a.state == stateReady || a.state == statePlaying || a.state == statePaused {
		s.CurrentFilePath = a.filePath
	}
	return s
}

func (a *AudioImpl) SetStateListener(fn func(audio.PlaybackState)) {
	a.mu.Lock()
	a.listener = fn
	a.mu.Unlock()
}

// notify runs the listener outside the lock; the listener may call back
// into the controller.
func (a *AudioImpl) notify() {
	a.mu.Lock()
	fn := a.listener
	s := a.stateLocked()
	a.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (a *AudioImpl) downloadTo(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected download status: %s", resp.Status)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create narration file: %w", err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write narration file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close narration file: %w", err)
	}
	return nil
}
