package synth

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// SoftClip is the limiter applied to the master bus
func SoftClip(x float64) float64 {
	return math.Tanh(x)
}

// Mixer sums voices into an output block. It keeps scratch buffers between
// calls and must only be used from one goroutine.
type Mixer struct {
	raw, env, tmp, bus []float64
	finished           []VoiceID
}

// NewMixer allocates scratch space for blocks of up to blockSize samples.
// Larger blocks grow the buffers on demand.
func NewMixer(blockSize int) *Mixer {
	m := &Mixer{}
	m.grow(blockSize)
	return m
}

func (m *Mixer) grow(n int) {
	if cap(m.bus) >= n {
		return
	}
	m.raw = make([]float64, n)
	m.env = make([]float64, n)
	m.tmp = make([]float64, n)
	m.bus = make([]float64, n)
}

// Mix renders every voice into dst, applies the master volume and soft clip,
// and returns the IDs of voices that finished. The returned slice is reused by
// the next call.
func (m *Mixer) Mix(dst []float32, voices []*Voice, volume float64) []VoiceID {
	n := len(dst)
	m.grow(n)
	raw, env, tmp, bus := m.raw[:n], m.env[:n], m.tmp[:n], m.bus[:n]
	clear(bus)
	m.finished = m.finished[:0]

	for _, v := range voices {
		if v.Done() {
			m.finished = append(m.finished, v.ID())
			continue
		}
		done := v.Render(raw, env)
		vecmath.MulBlock(tmp, raw, env)
		vecmath.ScaleBlock(raw, tmp, v.Gain())
		vecmath.AddBlockInPlace(bus, raw)
		if done {
			m.finished = append(m.finished, v.ID())
		}
	}

	vecmath.ScaleBlock(tmp, bus, volume)
	for i, x := range tmp {
		dst[i] = float32(SoftClip(x))
	}
	return m.finished
}
