package audio

import (
	"fmt"
	"sync"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

// BeepOutput plays through the beep speaker. The speaker is stereo, so the
// mono signal is copied to both channels regardless of the requested count.
type BeepOutput struct {
	slot       sourceSlot
	mono       []float32 // owned by the speaker goroutine
	sampleRate int
	open       bool
	playing    bool
	mu         sync.Mutex
}

func NewBeepOutput() *BeepOutput {
	return &BeepOutput{}
}

func (b *BeepOutput) Open(sampleRate, channels, bufferSize int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open {
		return fmt.Errorf("stream already open")
	}
	if err := speaker.Init(beep.SampleRate(sampleRate), bufferSize); err != nil {
		return fmt.Errorf("%w: speaker init: %w", ErrOutputDevice, err)
	}
	b.sampleRate = sampleRate
	b.mono = make([]float32, bufferSize)
	b.open = true
	return nil
}

func (b *BeepOutput) stream(samples [][2]float64) (int, bool) {
	if len(b.mono) < len(samples) {
		b.mono = make([]float32, len(samples))
	}
	mono := b.mono[:len(samples)]
	b.slot.render(mono)
	for i, s := range mono {
		samples[i][0] = float64(s)
		samples[i][1] = float64(s)
	}
	return len(samples), true
}

func (b *BeepOutput) Start(src Source) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return ErrNotOpen
	}
	b.slot.set(src)
	if !b.playing {
		speaker.Play(beep.StreamerFunc(b.stream))
		b.playing = true
	}
	return nil
}

func (b *BeepOutput) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil
	}
	b.slot.set(nil)
	speaker.Clear()
	speaker.Close()
	b.open = false
	b.playing = false
	return nil
}

func (b *BeepOutput) IsPlaying() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.playing
}

// Err always returns nil; the speaker only reports failures from Init
func (b *BeepOutput) Err() error { return nil }
