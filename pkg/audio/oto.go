package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

var (
	// Global Oto context singleton. Oto allows one context per process.
	globalOtoMutex sync.Mutex
	globalContext  *oto.Context
	globalRate     int
	globalChannels int
	globalPlayers  int
)

const bytesPerSample = 4 // float32

// OtoOutput uses Oto v3 for cross-platform audio. The device pulls
// samples through Read, which renders straight from the Source.
type OtoOutput struct {
	slot       sourceSlot
	player     *oto.Player
	mono       []float32 // owned by the device goroutine
	sampleRate int
	channels   int
	bufferSize int
	started    bool
	mu         sync.Mutex
}

// NewOtoOutput creates a new Oto output
func NewOtoOutput() *OtoOutput {
	return &OtoOutput{}
}

func sharedContext(sampleRate, channels, bufferSize int) (*oto.Context, error) {
	globalOtoMutex.Lock()
	defer globalOtoMutex.Unlock()

	if globalContext != nil {
		if globalRate != sampleRate || globalChannels != channels {
			return nil, fmt.Errorf("%w: context already running at %d Hz, %d channels",
				ErrOutputDevice, globalRate, globalChannels)
		}
		globalPlayers++
		return globalContext, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Duration(bufferSize) * time.Second / time.Duration(sampleRate),
	}
	context, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create oto context: %w", ErrOutputDevice, err)
	}
	<-ready

	globalContext = context
	globalRate = sampleRate
	globalChannels = channels
	globalPlayers++
	return context, nil
}

// Open opens the audio device
func (o *OtoOutput) Open(sampleRate, channels, bufferSize int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		return fmt.Errorf("stream already open")
	}
	if channels < 1 {
		channels = 1
	}

	context, err := sharedContext(sampleRate, channels, bufferSize)
	if err != nil {
		return err
	}

	o.sampleRate = sampleRate
	o.channels = channels
	o.bufferSize = bufferSize
	o.mono = make([]float32, bufferSize)

	o.player = context.NewPlayer(o)
	o.player.SetBufferSize(bufferSize * channels * bytesPerSample)
	return nil
}

// Start installs src and begins playback
func (o *OtoOutput) Start(src Source) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player == nil {
		return ErrNotOpen
	}
	o.slot.set(src)
	if !o.started {
		o.player.Play()
		o.started = true
	}
	return nil
}

// Read implements io.Reader for the Oto player. Each mono sample is
// duplicated across channels and encoded as float32 little-endian.
func (o *OtoOutput) Read(p []byte) (int, error) {
	frameBytes := o.channels * bytesPerSample
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}
	if len(o.mono) < frames {
		o.mono = make([]float32, frames)
	}
	mono := o.mono[:frames]
	o.slot.render(mono)

	off := 0
	for _, s := range mono {
		bits := math.Float32bits(s)
		for c := 0; c < o.channels; c++ {
			binary.LittleEndian.PutUint32(p[off:], bits)
			off += bytesPerSample
		}
	}
	return off, nil
}

// Close stops playback and releases the player
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player == nil {
		return nil
	}

	o.slot.set(nil)
	o.player.Pause()
	o.player.Close()
	o.player = nil
	o.started = false

	globalOtoMutex.Lock()
	globalPlayers--
	// Don't suspend context - keep it alive for reuse
	globalOtoMutex.Unlock()
	return nil
}

// IsPlaying returns true if playing
func (o *OtoOutput) IsPlaying() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.player != nil && o.player.IsPlaying()
}

// Err reports a failure of the player or the shared context
func (o *OtoOutput) Err() error {
	o.mu.Lock()
	player := o.player
	o.mu.Unlock()

	if player != nil {
		if err := player.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrOutputDevice, err)
		}
	}

	globalOtoMutex.Lock()
	context := globalContext
	globalOtoMutex.Unlock()
	if context != nil {
		if err := context.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrOutputDevice, err)
		}
	}
	return nil
}
