package session

import (
	"log/slog"
	"time"

	"github.com/olivierh59500/piano-code/pkg/notes"
	"github.com/olivierh59500/piano-code/pkg/synth"
)

const (
	DefaultSampleRate = 44100
	DefaultBufferSize = 1024
	DefaultVolume     = 0.7
	DefaultDuration   = time.Second
	DefaultVoiceGain  = 0.5

	// VolumeStep is the change applied by VolumeUp and VolumeDown
	VolumeStep = 0.05
)

type config struct {
	sampleRate int
	bufferSize int
	basetone   notes.Basetone
	instrument synth.Instrument
	volume     float64
	duration   time.Duration
	gain       float64
	logger     *slog.Logger
	onChange   func(Settings)
}

func defaultConfig() config {
	return config{
		sampleRate: DefaultSampleRate,
		bufferSize: DefaultBufferSize,
		basetone:   notes.C,
		instrument: synth.Piano,
		volume:     DefaultVolume,
		duration:   DefaultDuration,
		gain:       DefaultVoiceGain,
	}
}

// Option configures a Session
type Option func(*config)

// WithSampleRate sets the output sample rate in Hz
func WithSampleRate(rate int) Option {
	return func(c *config) { c.sampleRate = rate }
}

// WithBufferSize sets the number of frames rendered per device request
func WithBufferSize(frames int) Option {
	return func(c *config) { c.bufferSize = frames }
}

// WithBasetone sets the initial basetone
func WithBasetone(b notes.Basetone) Option {
	return func(c *config) { c.basetone = b }
}

// WithInstrument sets the instrument used when a note does not override it
func WithInstrument(i synth.Instrument) Option {
	return func(c *config) { c.instrument = i }
}

// WithVolume sets the initial master volume in [0, 1]
func WithVolume(v float64) Option {
	return func(c *config) { c.volume = v }
}

// WithDuration sets the default note length; zero or negative holds notes until stopped
func WithDuration(d time.Duration) Option {
	return func(c *config) { c.duration = d }
}

// WithVoiceGain sets the default per-voice gain in [0, 1]
func WithVoiceGain(g float64) Option {
	return func(c *config) { c.gain = g }
}

// WithLogger sets the logger; slog.Default() is used otherwise
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithOnSettingsChanged registers fn to run after the basetone, instrument or
// volume changes. fn is called without any session lock held, from the
// goroutine that made the change.
func WithOnSettingsChanged(fn func(Settings)) Option {
	return func(c *config) { c.onChange = fn }
}

type noteConfig struct {
	instrument synth.Instrument
	duration   time.Duration
	gain       float64
}

// NoteOption overrides session defaults for a single note or chord
type NoteOption func(*noteConfig)

// NoteInstrument plays the note on i instead of the session instrument
func NoteInstrument(i synth.Instrument) NoteOption {
	return func(n *noteConfig) { n.instrument = i }
}

// NoteDuration sets the time before automatic release
func NoteDuration(d time.Duration) NoteOption {
	return func(n *noteConfig) { n.duration = d }
}

// Sustained holds the note until StopNote or StopAll
func Sustained() NoteOption {
	return func(n *noteConfig) { n.duration = 0 }
}

// NoteGain sets the per-voice gain in [0, 1]
func NoteGain(g float64) NoteOption {
	return func(n *noteConfig) { n.gain = g }
}
