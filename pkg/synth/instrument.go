package synth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInstrument is returned when an instrument name or value is unknown
var ErrInvalidInstrument = errors.New("invalid instrument")

// Instrument selects a harmonic recipe and an envelope profile
type Instrument int

const (
	Piano Instrument = iota
	Guitar
	Saxophone
	Violin
	numInstruments
)

// Partial is one sine component of a recipe: frequency ratio to the fundamental and weight
type Partial struct {
	Ratio  float64
	Weight float64
}

// Recipe describes the harmonic content of an instrument
type Recipe struct {
	Partials []Partial

	// Amplitude vibrato applied to the summed partials (0 disables it)
	VibratoRate  float64 // Hz
	VibratoDepth float64 // fraction of full scale

	norm float64 // 1 / (sum of weights * (1 + depth))
}

type profile struct {
	name     string
	recipe   Recipe
	envelope EnvelopeParams
}

// Fixed instrument table. Envelope timings are per instrument: short attack
// for struck and plucked strings, slow attack and vibrato for the bow.
var catalog = [numInstruments]profile{
	Piano: {
		name: "piano",
		recipe: Recipe{Partials: []Partial{
			{Ratio: 1, Weight: 1},
			{Ratio: 2, Weight: 0.5},
			{Ratio: 3, Weight: 0.25},
		}},
		envelope: EnvelopeParams{Attack: 0.005, Decay: 0.35, Sustain: 0.35, Release: 0.25},
	},
	Guitar: {
		name: "guitar",
		recipe: Recipe{Partials: []Partial{
			{Ratio: 1, Weight: 1},
			{Ratio: 1.5, Weight: 0.3},
			{Ratio: 2, Weight: 0.2},
		}},
		envelope: EnvelopeParams{Attack: 0.003, Decay: 0.5, Sustain: 0.2, Release: 0.2},
	},
	Saxophone: {
		name: "saxophone",
		recipe: Recipe{Partials: []Partial{
			{Ratio: 1, Weight: 1},
			{Ratio: 3, Weight: 0.6},
			{Ratio: 5, Weight: 0.4},
		}},
		envelope: EnvelopeParams{Attack: 0.05, Decay: 0.1, Sustain: 0.85, Release: 0.12},
	},
	Violin: {
		name: "violin",
		recipe: Recipe{
			Partials: []Partial{
				{Ratio: 1, Weight: 1},
				{Ratio: 2, Weight: 0.4},
				{Ratio: 4, Weight: 0.3},
			},
			VibratoRate:  6,
			VibratoDepth: 0.02,
		},
		envelope: EnvelopeParams{Attack: 0.12, Decay: 0.15, Sustain: 0.8, Release: 0.3},
	},
}

func init() {
	for i := range catalog {
		r := &catalog[i].recipe
		sum := 0.0
		for _, p := range r.Partials {
			sum += p.Weight
		}
		r.norm = 1 / (sum * (1 + r.VibratoDepth))
	}
}

// Instruments returns the catalog in cycle order
func Instruments() []Instrument {
	out := make([]Instrument, numInstruments)
	for i := range out {
		out[i] = Instrument(i)
	}
	return out
}

// ParseInstrument looks up an instrument by name, ignoring case
func ParseInstrument(name string) (Instrument, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, p := range catalog {
		if p.name == key {
			return Instrument(i), nil
		}
	}
	return Piano, fmt.Errorf("%w: %q", ErrInvalidInstrument, name)
}

// Valid reports whether i is in the catalog
func (i Instrument) Valid() bool {
	return i >= Piano && i < numInstruments
}

// Next returns the following instrument, wrapping to Piano after Violin
func (i Instrument) Next() Instrument {
	return (i + 1) % numInstruments
}

// Recipe returns the harmonic recipe of the instrument
func (i Instrument) Recipe() Recipe {
	if !i.Valid() {
		return catalog[Piano].recipe
	}
	return catalog[i].recipe
}

// Envelope returns the default ADSR profile of the instrument
func (i Instrument) Envelope() EnvelopeParams {
	if !i.Valid() {
		return catalog[Piano].envelope
	}
	return catalog[i].envelope
}

func (i Instrument) String() string {
	if !i.Valid() {
		return fmt.Sprintf("Instrument(%d)", int(i))
	}
	return catalog[i].name
}

// MarshalText implements encoding.TextMarshaler
func (i Instrument) MarshalText() ([]byte, error) {
	if !i.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidInstrument, int(i))
	}
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (i *Instrument) UnmarshalText(text []byte) error {
	v, err := ParseInstrument(string(text))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// MaxRelease returns the longest release time in the catalog, in seconds
func MaxRelease() float64 {
	longest := 0.0
	for _, p := range catalog {
		longest = max(longest, p.envelope.Release)
	}
	return longest
}
