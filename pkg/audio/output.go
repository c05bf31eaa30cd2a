package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrOutputDevice wraps failures reported by the underlying audio device
	ErrOutputDevice = errors.New("audio output device failure")

	// ErrNotOpen is returned when an output is started or used before Open
	ErrNotOpen = errors.New("output not open")
)

// Source produces mono float32 samples in [-1, 1].
// Render must fill the whole buffer; outputs call it from their own goroutine.
type Source interface {
	Render(buf []float32)
}

// SourceFunc adapts a function to the Source interface
type SourceFunc func(buf []float32)

func (f SourceFunc) Render(buf []float32) { f(buf) }

// Output interface for audio output implementations.
// Outputs pull blocks from a Source; they never buffer more than bufferSize
// frames ahead of the device.
type Output interface {
	Open(sampleRate, channels, bufferSize int) error
	Start(src Source) error
	Close() error
	IsPlaying() bool

	// Err returns a non-nil error wrapping ErrOutputDevice once the device has failed
	Err() error
}

type sourceBox struct{ src Source }

// sourceSlot holds the active source for lock-free access from the audio thread
type sourceSlot struct {
	p atomic.Pointer[sourceBox]
}

func (s *sourceSlot) set(src Source) {
	if src == nil {
		s.p.Store(nil)
		return
	}
	s.p.Store(&sourceBox{src: src})
}

// render fills buf from the current source, or with silence when there is none
func (s *sourceSlot) render(buf []float32) {
	if b := s.p.Load(); b != nil {
		b.src.Render(buf)
		return
	}
	clear(buf)
}

// BufferOutput is a simple buffer-based output for testing.
// Nothing is rendered until Pull is called.
type BufferOutput struct {
	slot       sourceSlot
	buffer     []float32
	sampleRate int
	channels   int
	bufferSize int
	open       bool
	err        error
	mu         sync.Mutex
}

// NewBufferOutput creates a new buffer output
func NewBufferOutput() *BufferOutput {
	return &BufferOutput{}
}

// Open opens the buffer output
func (b *BufferOutput) Open(sampleRate, channels, bufferSize int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sampleRate = sampleRate
	b.channels = channels
	b.bufferSize = bufferSize
	b.buffer = make([]float32, 0, sampleRate) // 1 second buffer
	b.open = true
	return nil
}

// Start installs the source that Pull renders from
func (b *BufferOutput) Start(src Source) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return ErrNotOpen
	}
	b.slot.set(src)
	return nil
}

// Close closes the buffer output
func (b *BufferOutput) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.open = false
	b.slot.set(nil)
	return nil
}

// Pull renders n mono frames, appends them to the buffer and returns them.
// It plays the role of the device callback.
func (b *BufferOutput) Pull(n int) []float32 {
	b.mu.Lock()
	open := b.open
	b.mu.Unlock()

	block := make([]float32, n)
	if open {
		b.slot.render(block)
	}

	b.mu.Lock()
	b.buffer = append(b.buffer, block...)
	b.mu.Unlock()
	return block
}

// PullBlocks calls Pull count times with the configured buffer size
func (b *BufferOutput) PullBlocks(count int) []float32 {
	b.mu.Lock()
	n := b.bufferSize
	b.mu.Unlock()

	out := make([]float32, 0, count*n)
	for i := 0; i < count; i++ {
		out = append(out, b.Pull(n)...)
	}
	return out
}

// IsPlaying reports whether the output is open
func (b *BufferOutput) IsPlaying() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// Fail simulates a device failure
func (b *BufferOutput) Fail(cause error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = fmt.Errorf("%w: %w", ErrOutputDevice, cause)
}

func (b *BufferOutput) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// GetBuffer returns the accumulated audio buffer
func (b *BufferOutput) GetBuffer() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]float32, len(b.buffer))
	copy(result, b.buffer)
	return result
}

// Clear clears the buffer
func (b *BufferOutput) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buffer = b.buffer[:0]
}

// FallbackOutput pulls and discards audio at real-time pace.
// It stands in for a device on machines without one.
type FallbackOutput struct {
	slot       sourceSlot
	sampleRate int
	bufferSize int
	playing    bool
	stop       chan struct{}
	done       chan struct{}
	mu         sync.Mutex
}

func NewFallbackOutput() *FallbackOutput {
	return &FallbackOutput{}
}

func (f *FallbackOutput) Open(sampleRate, channels, bufferSize int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if sampleRate <= 0 || bufferSize <= 0 {
		return fmt.Errorf("invalid stream parameters: rate %d, buffer %d", sampleRate, bufferSize)
	}
	f.sampleRate = sampleRate
	f.bufferSize = bufferSize
	return nil
}

func (f *FallbackOutput) Start(src Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sampleRate == 0 {
		return ErrNotOpen
	}
	f.slot.set(src)
	if f.playing {
		return nil
	}
	f.playing = true
	f.stop = make(chan struct{})
	f.done = make(chan struct{})
	go f.pump(f.bufferSize, f.sampleRate, f.stop, f.done)
	return nil
}

// pump is the playback loop standing in for the device callback
func (f *FallbackOutput) pump(bufferSize, sampleRate int, stop, done chan struct{}) {
	defer close(done)

	buffer := make([]float32, bufferSize)
	period := time.Duration(bufferSize) * time.Second / time.Duration(sampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			f.slot.render(buffer)
		}
	}
}

func (f *FallbackOutput) Close() error {
	f.mu.Lock()
	if !f.playing {
		f.mu.Unlock()
		return nil
	}
	f.playing = false
	close(f.stop)
	done := f.done
	f.mu.Unlock()

	<-done
	f.slot.set(nil)
	return nil
}

func (f *FallbackOutput) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *FallbackOutput) Err() error { return nil }
