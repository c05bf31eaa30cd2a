package notes

import (
	"errors"
	"math"
	"testing"
)

const tolerance = 1e-9

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol*math.Max(1, math.Abs(b))
}

func TestResolveReference(t *testing.T) {
	f, err := Resolve(Note(Base, 1), C)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if math.Abs(f-261.63) > 0.01 {
		t.Errorf("base 1 in C = %.4f Hz, want ~261.63", f)
	}

	a, err := Resolve(Note(Base, 6), C)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !approxEqual(a, ReferenceA4, tolerance) {
		t.Errorf("base 6 in C = %.6f Hz, want %v", a, ReferenceA4)
	}
}

func TestBasetoneFrequenciesMatchTable(t *testing.T) {
	// 4th octave, rounded to 0.01 Hz.
	want := map[Basetone]float64{
		C: 261.63, CSharp: 277.18, D: 293.66, DSharp: 311.13,
		E: 329.63, F: 349.23, FSharp: 369.99, G: 392.00,
		GSharp: 415.30, A: 440.00, ASharp: 466.16, B: 493.88,
	}
	for b, hz := range want {
		f, err := Resolve(Note(Base, 1), b)
		if err != nil {
			t.Fatalf("%s: %v", b, err)
		}
		if math.Abs(f-hz) > 0.01 {
			t.Errorf("%s: got %.4f Hz, want %.2f", b, f, hz)
		}
		if !approxEqual(b.Frequency(), f, tolerance) {
			t.Errorf("%s: Frequency() = %v, Resolve = %v", b, b.Frequency(), f)
		}
	}
}

func TestResolveMonotonicInDegree(t *testing.T) {
	for _, b := range Basetones() {
		for _, o := range []Octave{Low, Base, High} {
			prev := 0.0
			for d := Degree(1); d <= 7; d++ {
				f, err := Resolve(Note(o, d), b)
				if err != nil {
					t.Fatalf("%s %d: %v", b, d, err)
				}
				if f <= prev {
					t.Errorf("%s octave %d: degree %d (%.3f) not above previous (%.3f)", b, o, d, f, prev)
				}
				prev = f
			}
		}
	}
}

func TestResolveOctaveRatios(t *testing.T) {
	for _, b := range Basetones() {
		base, _ := Resolve(Note(Base, 1), b)
		high, _ := Resolve(Note(High, 1), b)
		low, _ := Resolve(Note(Low, 1), b)

		if !approxEqual(high, 2*base, tolerance) {
			t.Errorf("%s: high %v != 2 * base %v", b, high, base)
		}
		if !approxEqual(low, base/2, tolerance) {
			t.Errorf("%s: low %v != base/2 %v", b, low, base/2)
		}
	}
}

func TestResolveAccidentals(t *testing.T) {
	sharp4, _ := Resolve(MustParseSymbol("#4"), C)
	flat5, _ := Resolve(MustParseSymbol("b5"), C)
	if !approxEqual(sharp4, flat5, tolerance) {
		t.Errorf("#4 (%v) and b5 (%v) should be enharmonic", sharp4, flat5)
	}

	natural, _ := Resolve(MustParseSymbol("1"), D)
	raised, _ := Resolve(MustParseSymbol("#1"), D)
	if !approxEqual(raised/natural, math.Exp2(1.0/12), tolerance) {
		t.Errorf("sharp ratio = %v, want one semitone", raised/natural)
	}
}

func TestResolveInvalidDegree(t *testing.T) {
	for _, d := range []Degree{0, 8, -1} {
		_, err := Resolve(Note(Base, d), C)
		if !errors.Is(err, ErrInvalidSymbol) {
			t.Errorf("degree %d: err = %v, want ErrInvalidSymbol", d, err)
		}
	}
}

func TestResolveDeterministic(t *testing.T) {
	sym := MustParseSymbol("^b7")
	first, _ := Resolve(sym, FSharp)
	for i := 0; i < 100; i++ {
		f, _ := Resolve(sym, FSharp)
		if f != first {
			t.Fatalf("iteration %d: %v != %v", i, f, first)
		}
	}
}

func TestParseSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want Symbol
	}{
		{"1", Symbol{Base, Natural, 1}},
		{".5", Symbol{Low, Natural, 5}},
		{"^7", Symbol{High, Natural, 7}},
		{"#4", Symbol{Base, Sharp, 4}},
		{".#1", Symbol{Low, Sharp, 1}},
		{"^b3", Symbol{High, Flat, 3}},
		{" 2 ", Symbol{Base, Natural, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSymbol(tt.in)
			if err != nil {
				t.Fatalf("ParseSymbol(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseSymbol(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			again, err := ParseSymbol(got.String())
			if err != nil || again != got {
				t.Errorf("reparse of %q = %+v, %v", got.String(), again, err)
			}
		})
	}
}

func TestParseSymbolErrors(t *testing.T) {
	for _, in := range []string{"", "0", "8", "^", ".#", "x1", "11", "#b1", "^^1"} {
		if _, err := ParseSymbol(in); !errors.Is(err, ErrInvalidSymbol) {
			t.Errorf("ParseSymbol(%q) err = %v, want ErrInvalidSymbol", in, err)
		}
	}
}

func TestParseBasetone(t *testing.T) {
	tests := map[string]Basetone{
		"C":  C,
		"c#": CSharp,
		"Db": CSharp,
		"G":  G,
		"bb": ASharp,
		" B": B,
	}
	for in, want := range tests {
		got, err := ParseBasetone(in)
		if err != nil {
			t.Errorf("ParseBasetone(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseBasetone(%q) = %s, want %s", in, got, want)
		}
	}

	for _, in := range []string{"", "H", "C##", "Cb"} {
		if _, err := ParseBasetone(in); !errors.Is(err, ErrInvalidBasetone) {
			t.Errorf("ParseBasetone(%q) err = %v, want ErrInvalidBasetone", in, err)
		}
	}
}

func TestBasetoneNextWraps(t *testing.T) {
	if B.Next() != C {
		t.Errorf("B.Next() = %s, want C", B.Next())
	}
	seen := map[Basetone]bool{}
	b := C
	for i := 0; i < 12; i++ {
		seen[b] = true
		b = b.Next()
	}
	if len(seen) != 12 || b != C {
		t.Errorf("cycle visited %d tones and ended on %s", len(seen), b)
	}
}

func TestSolfege(t *testing.T) {
	tests := map[string]string{
		"1":   "do",
		".5":  "low sol",
		"^7":  "high ti",
		"#4":  "fa#",
		".#1": "low do#",
	}
	for in, want := range tests {
		if got := MustParseSymbol(in).Solfege(); got != want {
			t.Errorf("Solfege(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTextMarshalling(t *testing.T) {
	var sym Symbol
	if err := sym.UnmarshalText([]byte("^#5")); err != nil {
		t.Fatal(err)
	}
	out, err := sym.MarshalText()
	if err != nil || string(out) != "^#5" {
		t.Errorf("MarshalText = %q, %v", out, err)
	}

	var b Basetone
	if err := b.UnmarshalText([]byte("eb")); err != nil || b != DSharp {
		t.Errorf("UnmarshalText(eb) = %s, %v", b, err)
	}
	if _, err := Basetone(12).MarshalText(); !errors.Is(err, ErrInvalidBasetone) {
		t.Errorf("MarshalText(12) err = %v", err)
	}
}
