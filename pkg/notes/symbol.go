// Package notes maps solfège note symbols and a basetone to equal-tempered
// frequencies.
//
// A symbol is written as an optional octave marker ('.' for the low octave,
// '^' for the high octave), an optional accidental ('#' or 'b') and a scale
// degree from 1 (do) to 7 (ti). Degree 1 of the base octave sounds the
// basetone itself in the 4th octave, so "1" in C resolves to about 261.63 Hz.
package notes

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidSymbol is returned for unknown degrees, octaves or accidentals
var ErrInvalidSymbol = errors.New("invalid note symbol")

// Octave selects the octave of a note relative to the basetone
type Octave int

const (
	Low Octave = iota - 1
	Base
	High
)

// Accidental raises or lowers a degree by one semitone
type Accidental int

const (
	Flat Accidental = iota - 1
	Natural
	Sharp
)

// Degree is a scale step within the major scale, 1 (do) through 7 (ti)
type Degree int

// semitone offsets of the major scale degrees
var majorScale = [...]int{0, 2, 4, 5, 7, 9, 11}

var solfege = [...]string{"do", "re", "mi", "fa", "sol", "la", "ti"}

// Symbol identifies a note independently of the basetone
type Symbol struct {
	Octave     Octave
	Accidental Accidental
	Degree     Degree
}

// Note builds a natural symbol in the given octave
func Note(o Octave, d Degree) Symbol {
	return Symbol{Octave: o, Degree: d}
}

// ParseSymbol parses the textual form used by keyboard layouts, e.g. ".5", "3", "^#4"
func ParseSymbol(text string) (Symbol, error) {
	s := strings.TrimSpace(text)
	var sym Symbol

	if s == "" {
		return sym, fmt.Errorf("%w: empty", ErrInvalidSymbol)
	}

	switch s[0] {
	case '.':
		sym.Octave = Low
		s = s[1:]
	case '^':
		sym.Octave = High
		s = s[1:]
	}

	if s != "" {
		switch s[0] {
		case '#':
			sym.Accidental = Sharp
			s = s[1:]
		case 'b':
			sym.Accidental = Flat
			s = s[1:]
		}
	}

	if len(s) != 1 || s[0] < '1' || s[0] > '7' {
		return Symbol{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, text)
	}
	sym.Degree = Degree(s[0] - '0')
	return sym, nil
}

// MustParseSymbol is like ParseSymbol but panics on error. Intended for tables and tests.
func MustParseSymbol(text string) Symbol {
	sym, err := ParseSymbol(text)
	if err != nil {
		panic(err)
	}
	return sym
}

// Validate checks every field of the symbol
func (s Symbol) Validate() error {
	if s.Degree < 1 || s.Degree > 7 {
		return fmt.Errorf("%w: degree %d", ErrInvalidSymbol, int(s.Degree))
	}
	if s.Octave < Low || s.Octave > High {
		return fmt.Errorf("%w: octave %d", ErrInvalidSymbol, int(s.Octave))
	}
	if s.Accidental < Flat || s.Accidental > Sharp {
		return fmt.Errorf("%w: accidental %d", ErrInvalidSymbol, int(s.Accidental))
	}
	return nil
}

// Semitones returns the offset of the symbol above the basetone in the base octave
func (s Symbol) Semitones() (int, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	return majorScale[s.Degree-1] + int(s.Accidental) + 12*int(s.Octave), nil
}

// Frequency resolves the symbol against a basetone
func (s Symbol) Frequency(b Basetone) (float64, error) {
	return Resolve(s, b)
}

// Resolve returns the frequency in Hz of sym when b is "do".
//
// f = ReferenceC4 * 2^((basetone + degree offset + accidental + 12*octave) / 12)
func Resolve(sym Symbol, b Basetone) (float64, error) {
	semis, err := sym.Semitones()
	if err != nil {
		return 0, err
	}
	if !b.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidBasetone, int(b))
	}
	return ReferenceC4 * math.Exp2(float64(b.Semitones()+semis)/12), nil
}

// String returns the canonical textual form accepted by ParseSymbol
func (s Symbol) String() string {
	var sb strings.Builder
	switch s.Octave {
	case Low:
		sb.WriteByte('.')
	case High:
		sb.WriteByte('^')
	}
	switch s.Accidental {
	case Sharp:
		sb.WriteByte('#')
	case Flat:
		sb.WriteByte('b')
	}
	fmt.Fprintf(&sb, "%d", int(s.Degree))
	return sb.String()
}

// Solfege returns a display name such as "low sol", "do#" or "high ti"
func (s Symbol) Solfege() string {
	if s.Validate() != nil {
		return s.String()
	}
	name := solfege[s.Degree-1]
	switch s.Accidental {
	case Sharp:
		name += "#"
	case Flat:
		name += "b"
	}
	switch s.Octave {
	case Low:
		return "low " + name
	case High:
		return "high " + name
	}
	return name
}

// MarshalText implements encoding.TextMarshaler
func (s Symbol) MarshalText() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Symbol) UnmarshalText(text []byte) error {
	v, err := ParseSymbol(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
