package notes

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Tuning references. C4 is derived from A4 in twelve-tone equal temperament.
const (
	ReferenceA4 = 440.0
	ReferenceC4 = ReferenceA4 * 0.5946035575013605 // 2^(-9/12)
)

// ErrInvalidBasetone is returned when a basetone name or value is unknown
var ErrInvalidBasetone = errors.New("invalid basetone")

// Basetone is the chromatic pitch class used as "do" (scale degree 1)
type Basetone int

const (
	C Basetone = iota
	CSharp
	D
	DSharp
	E
	F
	FSharp
	G
	GSharp
	A
	ASharp
	B
)

var basetoneNames = [...]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Flat spellings accepted by ParseBasetone in addition to the sharp names
var flatAliases = map[string]Basetone{
	"DB": CSharp,
	"EB": DSharp,
	"GB": FSharp,
	"AB": GSharp,
	"BB": ASharp,
}

// Basetones returns all pitch classes in chromatic order starting at C
func Basetones() []Basetone {
	out := make([]Basetone, len(basetoneNames))
	for i := range out {
		out[i] = Basetone(i)
	}
	return out
}

// ParseBasetone parses a pitch class name such as "C", "f#" or "Bb"
func ParseBasetone(name string) (Basetone, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range basetoneNames {
		if n == key {
			return Basetone(i), nil
		}
	}
	if b, ok := flatAliases[key]; ok {
		return b, nil
	}
	return C, fmt.Errorf("%w: %q", ErrInvalidBasetone, name)
}

// Valid reports whether b is one of the 12 pitch classes
func (b Basetone) Valid() bool {
	return b >= C && b <= B
}

// Semitones returns the offset of b above C
func (b Basetone) Semitones() int {
	return int(b)
}

// Frequency returns the frequency of b in the reference (4th) octave
func (b Basetone) Frequency() float64 {
	return ReferenceC4 * math.Exp2(float64(b.Semitones())/12)
}

// Next returns the following pitch class, wrapping from B to C
func (b Basetone) Next() Basetone {
	return Basetone((int(b) + 1) % len(basetoneNames))
}

func (b Basetone) String() string {
	if !b.Valid() {
		return fmt.Sprintf("Basetone(%d)", int(b))
	}
	return basetoneNames[b]
}

// MarshalText implements encoding.TextMarshaler
func (b Basetone) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBasetone, int(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (b *Basetone) UnmarshalText(text []byte) error {
	v, err := ParseBasetone(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}
