// Package midiin plays session voices from a MIDI input port.
//
// A MIDI driver must be registered by the program, typically with a blank
// import of gitlab.com/gomidi/midi/v2/drivers/rtmididrv.
package midiin

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"gitlab.com/gomidi/midi/v2"

	"github.com/olivierh59500/piano-code/pkg/notes"
	"github.com/olivierh59500/piano-code/pkg/session"
	"github.com/olivierh59500/piano-code/pkg/synth"
)

const (
	ccAllSoundOff = 120
	ccAllNotesOff = 123
)

// Engine is the part of a session driven by MIDI input
type Engine interface {
	PlayFrequency(hz float64, opts ...session.NoteOption) (synth.VoiceID, error)
	StopNote(id synth.VoiceID) error
	StopAll() error
}

// KeyFrequency returns the equal-tempered frequency of a MIDI key (69 = A4)
func KeyFrequency(key uint8) float64 {
	return notes.ReferenceA4 * math.Exp2((float64(key)-69)/12)
}

type noteKey struct{ ch, key uint8 }

// Handler maps note on/off messages to sustained voices
type Handler struct {
	engine Engine
	gain   float64
	log    *slog.Logger

	mu     sync.Mutex
	voices map[noteKey]synth.VoiceID
}

// NewHandler creates a handler. Velocity 127 plays at the default voice gain.
func NewHandler(engine Engine, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		engine: engine,
		gain:   session.DefaultVoiceGain,
		log:    log,
		voices: make(map[noteKey]synth.VoiceID),
	}
}

// Handle applies one MIDI message
func (h *Handler) Handle(msg midi.Message) error {
	var ch, key, vel, cc, val uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return h.noteOn(ch, key, vel)
	case msg.GetNoteEnd(&ch, &key):
		return h.noteOff(ch, key)
	case msg.GetControlChange(&ch, &cc, &val):
		if cc == ccAllSoundOff || cc == ccAllNotesOff {
			h.log.Debug("midi all notes off", "ch", ch)
			h.mu.Lock()
			clear(h.voices)
			h.mu.Unlock()
			return h.engine.StopAll()
		}
	}
	h.log.Debug("unhandled MIDI message", "msg", msg.String())
	return nil
}

func (h *Handler) noteOn(ch, key, vel uint8) error {
	k := noteKey{ch, key}

	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.voices[k]; ok {
		if err := h.engine.StopNote(prev); err != nil {
			return err
		}
	}
	hz := KeyFrequency(key)
	id, err := h.engine.PlayFrequency(hz, session.Sustained(), session.NoteGain(h.gain*float64(vel)/127))
	if err != nil {
		delete(h.voices, k)
		return fmt.Errorf("midi key %d: %w", key, err)
	}
	h.voices[k] = id
	h.log.Debug("midi note on", "ch", ch, "key", key, "vel", vel, "hz", hz)
	return nil
}

func (h *Handler) noteOff(ch, key uint8) error {
	k := noteKey{ch, key}

	h.mu.Lock()
	id, ok := h.voices[k]
	delete(h.voices, k)
	h.mu.Unlock()

	if !ok {
		return nil
	}
	h.log.Debug("midi note off", "ch", ch, "key", key)
	return h.engine.StopNote(id)
}

// Held returns the number of keys currently down
func (h *Handler) Held() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.voices)
}

// Ports lists the names of the available MIDI input ports
func Ports() []string {
	var names []string
	for _, in := range midi.GetInPorts() {
		names = append(names, in.String())
	}
	return names
}

// Listen opens the named input port and feeds its messages to h until stop is called
func Listen(port string, h *Handler) (stop func(), err error) {
	in, err := midi.FindInPort(port)
	if err != nil {
		return nil, fmt.Errorf("MIDI input %q not found: %w", port, err)
	}
	stop, err = midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		if err := h.Handle(msg); err != nil {
			h.log.Warn("midi message dropped", "err", err)
		}
	}, midi.HandleError(func(listenErr error) {
		h.log.Warn("MIDI listener error, device likely disconnected", "port", port, "err", listenErr)
	}))
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", port, err)
	}
	h.log.Info("MIDI input connected", "port", port)
	return stop, nil
}
