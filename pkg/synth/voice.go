package synth

import (
	"sync/atomic"
	"time"

	"github.com/olivierh59500/piano-code/pkg/notes"
)

// VoiceID identifies a voice within a session
type VoiceID uint64

// VoiceConfig describes a note to be sounded
type VoiceConfig struct {
	Instrument Instrument
	Frequency  float64       // Hz, already validated by the caller
	Duration   time.Duration // time before automatic release; <= 0 holds until Release
	Gain       float64
	SampleRate int
	Symbol     *notes.Symbol // nil for raw frequencies
}

// Voice is one sounding note.
//
// Everything except the stop flag and the published phase/position is owned by
// the goroutine calling Render; Release may be called from any goroutine.
type Voice struct {
	id         VoiceID
	instrument Instrument
	recipe     Recipe
	env        EnvelopeParams
	freq       float64
	gain       float64
	symbol     notes.Symbol
	hasSymbol  bool
	sampleRate float64
	length     int64 // samples before automatic release, -1 when held

	releasePos int64 // render side: sample index of note-off, -1 until released

	pos   atomic.Int64
	stop  atomic.Bool
	phase atomic.Int32
}

// NewVoice creates a voice at the start of its attack phase
func NewVoice(id VoiceID, cfg VoiceConfig) *Voice {
	v := &Voice{
		id:         id,
		instrument: cfg.Instrument,
		recipe:     cfg.Instrument.Recipe(),
		env:        cfg.Instrument.Envelope(),
		freq:       cfg.Frequency,
		gain:       cfg.Gain,
		sampleRate: float64(cfg.SampleRate),
		length:     -1,
		releasePos: -1,
	}
	if cfg.Symbol != nil {
		v.symbol = *cfg.Symbol
		v.hasSymbol = true
	}
	if cfg.Duration > 0 {
		v.length = int64(cfg.Duration.Seconds() * v.sampleRate)
		if v.length < 1 {
			v.length = 1
		}
	}
	v.phase.Store(int32(PhaseAttack))
	return v
}

func (v *Voice) ID() VoiceID            { return v.id }
func (v *Voice) Instrument() Instrument { return v.instrument }
func (v *Voice) Frequency() float64     { return v.freq }
func (v *Voice) Gain() float64          { return v.gain }

// Symbol returns the note symbol the voice was created from, if any
func (v *Voice) Symbol() (notes.Symbol, bool) {
	return v.symbol, v.hasSymbol
}

// Held reports whether the voice sustains until released
func (v *Voice) Held() bool {
	return v.length < 0
}

// Phase returns the envelope stage published by the last Render
func (v *Voice) Phase() Phase {
	return Phase(v.phase.Load())
}

// Done reports whether the release has completed
func (v *Voice) Done() bool {
	return v.Phase() == PhaseFinished
}

// Elapsed returns how much audio the voice has rendered
func (v *Voice) Elapsed() time.Duration {
	return time.Duration(float64(v.pos.Load()) / v.sampleRate * float64(time.Second))
}

// Release schedules the release phase. It takes effect at the next Render call
// and is a no-op for voices already releasing or finished.
func (v *Voice) Release() {
	v.stop.Store(true)
}

// Render writes the next len(raw) samples of the unshaped waveform into raw and
// the matching envelope levels into env, then advances the voice. It reports
// whether the voice finished during this block.
func (v *Voice) Render(raw, env []float64) bool {
	pos := v.pos.Load()
	n := int64(len(raw))

	if v.releasePos < 0 {
		switch {
		case v.stop.Load():
			v.releasePos = pos
		case v.length >= 0 && pos+n > v.length:
			v.releasePos = max(v.length, pos)
		}
	}

	releasedAt := NotReleased
	if v.releasePos >= 0 {
		releasedAt = float64(v.releasePos) / v.sampleRate
	}

	v.recipe.Fill(raw, v.freq, pos, v.sampleRate)
	v.env.Fill(env[:n], pos, v.sampleRate, releasedAt)

	pos += n
	v.pos.Store(pos)

	ph := v.env.PhaseAt(float64(pos)/v.sampleRate, releasedAt)
	v.phase.Store(int32(ph))
	return ph == PhaseFinished
}
