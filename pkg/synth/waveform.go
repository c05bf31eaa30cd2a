package synth

import "math"

const twoPi = 2 * math.Pi

// Sample returns the raw waveform of inst at time t (seconds since note start).
// The result is normalized to [-1, 1]. freq must be positive; callers validate it.
func Sample(inst Instrument, freq, t float64) float64 {
	r := inst.Recipe()
	return r.at(freq, t)
}

func (r *Recipe) at(freq, t float64) float64 {
	w := twoPi * freq * t
	sum := 0.0
	for _, p := range r.Partials {
		sum += p.Weight * math.Sin(w*p.Ratio)
	}
	if r.VibratoDepth != 0 {
		sum *= 1 + r.VibratoDepth*math.Sin(twoPi*r.VibratoRate*t)
	}
	return sum * r.norm
}

// Fill writes raw samples of the recipe starting at sample index start
func (r *Recipe) Fill(dst []float64, freq float64, start int64, sampleRate float64) {
	for i := range dst {
		dst[i] = r.at(freq, float64(start+int64(i))/sampleRate)
	}
}
