package audioimpl

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/hajimehoshi/oto/v2"
	"github.com/skazkalab/fairytale-engine/internal/audio"
)

// One audio context per process; oto does not allow a second one.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

func otoContext(sampleRate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		// go-mp3 always decodes to 16-bit stereo.
		ctx, ready, err := oto.NewContext(sampleRate, 2, 2)
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx = ctx
	})
	return otoCtx, otoErr
}

// OtoDecoder plays a downloaded mp3 narration through the platform
// audio device.
type OtoDecoder struct {
	mu       sync.Mutex
	file     *os.File
	player   oto.Player
	paused   bool
	closed   bool
	watching bool
}

// NewOtoDecoder is the production DecoderFactory.
func NewOtoDecoder(path string) (audio.Decoder, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open narration file: %w", err)
	}

	decoded, err := mp3.NewDecoder(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to decode narration: %w", err)
	}

	ctx, err := otoContext(decoded.SampleRate())
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to open audio device: %w", err)
	}

	return &OtoDecoder{
		file:   file,
		player: ctx.NewPlayer(decoded),
	}, nil
}

var _ audio.Decoder = (*OtoDecoder)(nil)

func (d *OtoDecoder) Play(done func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.paused = false
	d.player.Play()

	if !d.watching {
		d.watching = true
		go d.watch(done)
	}
}

// watch polls the player until the source is drained, then fires the
// completion callback once. Pausing suspends the poll rather than
// ending it.
func (d *OtoDecoder) watch(done func()) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return
		}
		if d.paused {
			d.mu.Unlock()
			continue
		}
		if !d.player.IsPlaying() {
			d.mu.Unlock()
			if done != nil {
				done()
			}
			return
		}
		d.mu.Unlock()
	}
}

func (d *OtoDecoder) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.paused = true
	d.player.Pause()
}

func (d *OtoDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	err := d.player.Close()
	if fileErr := d.file.Close(); err == nil {
		err = fileErr
	}
	return err
}
