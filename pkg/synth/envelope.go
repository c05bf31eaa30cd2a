package synth

// Phase is the envelope stage of a voice
type Phase int32

const (
	PhaseAttack Phase = iota
	PhaseDecay
	PhaseSustain
	PhaseRelease
	PhaseFinished
)

var phaseNames = [...]string{"attack", "decay", "sustain", "release", "finished"}

func (p Phase) String() string {
	if p < PhaseAttack || p > PhaseFinished {
		return "unknown"
	}
	return phaseNames[p]
}

// EnvelopeParams is a linear ADSR profile.
// Attack, Decay and Release are durations in seconds; Sustain is a level in [0, 1].
type EnvelopeParams struct {
	Attack  float64
	Decay   float64
	Sustain float64
	Release float64
}

// NotReleased is passed as the release time of a note that is still held
const NotReleased = -1.0

// Level returns the amplitude multiplier at t seconds after note start.
//
// releasedAt is the note-off time in seconds, or NotReleased. Release ramps
// linearly from the level reached at releasedAt down to zero over Release
// seconds. A note released before attack+decay completes goes straight from
// its current attack or decay level into release, so decay and sustain are
// skipped rather than compressed. The result is always in [0, 1].
func (e EnvelopeParams) Level(t, releasedAt float64) float64 {
	if releasedAt >= 0 && t >= releasedAt {
		if e.Release <= 0 {
			return 0
		}
		start := e.held(releasedAt)
		return clamp01(start * (1 - (t-releasedAt)/e.Release))
	}
	return e.held(t)
}

// held is the level of a note that has not been released
func (e EnvelopeParams) held(t float64) float64 {
	switch {
	case t <= 0:
		return 0
	case t < e.Attack:
		return clamp01(t / e.Attack)
	case t < e.Attack+e.Decay:
		return clamp01(1 - (1-e.Sustain)*(t-e.Attack)/e.Decay)
	default:
		return clamp01(e.Sustain)
	}
}

// PhaseAt returns the envelope stage at t seconds after note start
func (e EnvelopeParams) PhaseAt(t, releasedAt float64) Phase {
	if releasedAt >= 0 && t >= releasedAt {
		if t-releasedAt >= e.Release {
			return PhaseFinished
		}
		return PhaseRelease
	}
	switch {
	case t < e.Attack:
		return PhaseAttack
	case t < e.Attack+e.Decay:
		return PhaseDecay
	default:
		return PhaseSustain
	}
}

// Fill writes envelope levels for consecutive samples starting at sample index start
func (e EnvelopeParams) Fill(dst []float64, start int64, sampleRate, releasedAt float64) {
	for i := range dst {
		dst[i] = e.Level(float64(start+int64(i))/sampleRate, releasedAt)
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
