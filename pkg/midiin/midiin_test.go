package midiin

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"gitlab.com/gomidi/midi/v2"

	"github.com/olivierh59500/piano-code/pkg/session"
	"github.com/olivierh59500/piano-code/pkg/synth"
)

type call struct {
	op string
	hz float64
	id synth.VoiceID
}

// fakeEngine records the commands it receives
type fakeEngine struct {
	calls  []call
	nextID synth.VoiceID
	fail   error
}

func (f *fakeEngine) PlayFrequency(hz float64, opts ...session.NoteOption) (synth.VoiceID, error) {
	if f.fail != nil {
		return 0, f.fail
	}
	f.nextID++
	f.calls = append(f.calls, call{op: "play", hz: hz, id: f.nextID})
	return f.nextID, nil
}

func (f *fakeEngine) StopNote(id synth.VoiceID) error {
	f.calls = append(f.calls, call{op: "stop", id: id})
	return nil
}

func (f *fakeEngine) StopAll() error {
	f.calls = append(f.calls, call{op: "stopall"})
	return nil
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestKeyFrequency(t *testing.T) {
	tests := map[uint8]float64{69: 440, 60: 261.6256, 81: 880, 57: 220}
	for key, want := range tests {
		if got := KeyFrequency(key); math.Abs(got-want) > 1e-3 {
			t.Errorf("KeyFrequency(%d) = %v, want %v", key, got, want)
		}
	}
}

func TestNoteOnOff(t *testing.T) {
	eng := &fakeEngine{}
	h := NewHandler(eng, quiet)

	if err := h.Handle(midi.NoteOn(0, 69, 100)); err != nil {
		t.Fatal(err)
	}
	if h.Held() != 1 {
		t.Fatalf("held = %d", h.Held())
	}
	if err := h.Handle(midi.NoteOff(0, 69)); err != nil {
		t.Fatal(err)
	}
	// note on with zero velocity is a note off
	_ = h.Handle(midi.NoteOn(1, 60, 90))
	_ = h.Handle(midi.NoteOn(1, 60, 0))

	want := []call{
		{op: "play", hz: 440, id: 1},
		{op: "stop", id: 1},
		{op: "play", hz: KeyFrequency(60), id: 2},
		{op: "stop", id: 2},
	}
	if len(eng.calls) != len(want) {
		t.Fatalf("calls = %+v", eng.calls)
	}
	for i := range want {
		if eng.calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, eng.calls[i], want[i])
		}
	}
	if h.Held() != 0 {
		t.Errorf("held = %d after note off", h.Held())
	}
}

func TestRetriggerStopsPreviousVoice(t *testing.T) {
	eng := &fakeEngine{}
	h := NewHandler(eng, quiet)
	_ = h.Handle(midi.NoteOn(0, 64, 80))
	_ = h.Handle(midi.NoteOn(0, 64, 80))

	if len(eng.calls) != 3 || eng.calls[1] != (call{op: "stop", id: 1}) {
		t.Errorf("calls = %+v", eng.calls)
	}
	if h.Held() != 1 {
		t.Errorf("held = %d", h.Held())
	}
}

func TestAllNotesOff(t *testing.T) {
	eng := &fakeEngine{}
	h := NewHandler(eng, quiet)
	_ = h.Handle(midi.NoteOn(0, 60, 80))
	_ = h.Handle(midi.NoteOn(0, 64, 80))

	if err := h.Handle(midi.ControlChange(0, ccAllNotesOff, 0)); err != nil {
		t.Fatal(err)
	}
	if last := eng.calls[len(eng.calls)-1]; last.op != "stopall" {
		t.Errorf("last call = %+v", last)
	}
	if h.Held() != 0 {
		t.Errorf("held = %d", h.Held())
	}

	n := len(eng.calls)
	_ = h.Handle(midi.ControlChange(0, 7, 100))
	if len(eng.calls) != n {
		t.Error("volume CC produced engine calls")
	}
}

func TestPlayErrorIsReturned(t *testing.T) {
	eng := &fakeEngine{fail: session.ErrClosed}
	h := NewHandler(eng, quiet)
	if err := h.Handle(midi.NoteOn(0, 60, 80)); !errors.Is(err, session.ErrClosed) {
		t.Errorf("err = %v", err)
	}
	if h.Held() != 0 {
		t.Errorf("failed note is held")
	}
}
