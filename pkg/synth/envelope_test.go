package synth

import (
	"math"
	"testing"
)

func TestEnvelopePhasesNeverGoBackwards(t *testing.T) {
	for _, inst := range Instruments() {
		e := inst.Envelope()
		releasedAt := e.Attack + e.Decay + 0.1
		prev := PhaseAttack
		for i := 0; i < 44100; i++ {
			ts := float64(i) / 44100
			ph := e.PhaseAt(ts, releasedAt)
			if ph < prev {
				t.Fatalf("%s: phase went from %s to %s at t=%.4f", inst, prev, ph, ts)
			}
			prev = ph
		}
		if prev != PhaseFinished {
			t.Errorf("%s: ended in %s, want finished", inst, prev)
		}
	}
}

func TestEnvelopeLevelBounds(t *testing.T) {
	for _, inst := range Instruments() {
		e := inst.Envelope()
		for _, releasedAt := range []float64{NotReleased, 0, e.Attack / 2, e.Attack + e.Decay/2, 0.8} {
			for i := 0; i < 2*44100; i += 7 {
				ts := float64(i) / 44100
				l := e.Level(ts, releasedAt)
				if l < 0 || l > 1 || math.IsNaN(l) {
					t.Fatalf("%s: Level(%v, %v) = %v", inst, ts, releasedAt, l)
				}
			}
		}
	}
}

func TestEnvelopeShape(t *testing.T) {
	e := EnvelopeParams{Attack: 0.1, Decay: 0.2, Sustain: 0.5, Release: 0.4}

	tests := []struct {
		t, releasedAt float64
		want          float64
	}{
		{0, NotReleased, 0},
		{0.05, NotReleased, 0.5},
		{0.1, NotReleased, 1},
		{0.2, NotReleased, 0.75},
		{0.3, NotReleased, 0.5},
		{5, NotReleased, 0.5},
		{1.2, 1.0, 0.25},
		{1.4, 1.0, 0},
		{2.0, 1.0, 0},
	}
	for _, tt := range tests {
		if got := e.Level(tt.t, tt.releasedAt); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Level(%v, %v) = %v, want %v", tt.t, tt.releasedAt, got, tt.want)
		}
	}
}

func TestEnvelopeReleaseDuringAttack(t *testing.T) {
	e := EnvelopeParams{Attack: 0.1, Decay: 0.2, Sustain: 0.5, Release: 0.4}
	releasedAt := 0.05

	before := e.Level(releasedAt-1e-6, releasedAt)
	at := e.Level(releasedAt, releasedAt)
	if math.Abs(before-at) > 1e-4 {
		t.Errorf("level jumped from %v to %v at release", before, at)
	}
	if ph := e.PhaseAt(releasedAt+0.01, releasedAt); ph != PhaseRelease {
		t.Errorf("phase after early release = %s, want release", ph)
	}
	if l := e.Level(releasedAt+0.2, releasedAt); math.Abs(l-0.25) > 1e-9 {
		t.Errorf("halfway through release level = %v, want 0.25", l)
	}
	if ph := e.PhaseAt(releasedAt+e.Release+1e-9, releasedAt); ph != PhaseFinished {
		t.Errorf("phase after release = %s, want finished", ph)
	}
}

func TestEnvelopeZeroRelease(t *testing.T) {
	e := EnvelopeParams{Attack: 0.01, Decay: 0.01, Sustain: 1}
	if l := e.Level(0.5, 0.5); l != 0 {
		t.Errorf("level at release with zero release time = %v", l)
	}
	if ph := e.PhaseAt(0.5, 0.5); ph != PhaseFinished {
		t.Errorf("phase = %s, want finished", ph)
	}
}

func TestEnvelopeFillMatchesLevel(t *testing.T) {
	e := Piano.Envelope()
	dst := make([]float64, 512)
	e.Fill(dst, 1000, 44100, 0.02)
	for i, v := range dst {
		want := e.Level(float64(1000+i)/44100, 0.02)
		if v != want {
			t.Fatalf("dst[%d] = %v, want %v", i, v, want)
		}
	}
}

func TestPhaseString(t *testing.T) {
	if PhaseSustain.String() != "sustain" || Phase(42).String() != "unknown" {
		t.Errorf("unexpected phase names: %s %s", PhaseSustain, Phase(42))
	}
}
