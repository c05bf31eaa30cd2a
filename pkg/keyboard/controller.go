// Package keyboard turns key events into session commands using the active
// layout. Both the terminal and the GUI front-ends drive a Controller.
package keyboard

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/olivierh59500/piano-code/pkg/layout"
	"github.com/olivierh59500/piano-code/pkg/notes"
	"github.com/olivierh59500/piano-code/pkg/session"
	"github.com/olivierh59500/piano-code/pkg/synth"
)

// Engine is the part of a session the controller drives
type Engine interface {
	Play(sym notes.Symbol, opts ...session.NoteOption) (synth.VoiceID, error)
	StopNote(id synth.VoiceID) error
	StopAll() error
	SetBasetone(b notes.Basetone) error
	SetInstrument(i synth.Instrument) error
	VolumeUp() (float64, error)
	VolumeDown() (float64, error)
	Resolve(sym notes.Symbol) (float64, error)
	Settings() session.Settings
}

// Kind tells the front-end what a key press did
type Kind int

const (
	Ignored Kind = iota
	Played
	Released
	Stopped
	BasetonePrompt // the front-end should ask for a basetone and call SetBasetone
	BasetoneChanged
	InstrumentChanged
	LayoutChanged
	VolumeChanged
	Quit
)

var kindNames = [...]string{
	"ignored", "played", "released", "stopped", "basetone prompt",
	"basetone changed", "instrument changed", "layout changed", "volume changed", "quit",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Result describes the effect of a key event
type Result struct {
	Kind       Kind
	Key        string
	Symbol     notes.Symbol
	Voice      synth.VoiceID
	Frequency  float64
	Basetone   notes.Basetone
	Instrument synth.Instrument
	Volume     float64
	Layout     *layout.Layout
}

// StopKey is the key that always stops every voice
const StopKey = " "

// Controller dispatches keys to an Engine
type Controller struct {
	engine  Engine
	layouts *layout.Set
	log     *slog.Logger

	keyMu sync.Mutex // serializes held-key transitions, taken before mu
	mu    sync.Mutex
	held  map[string]synth.VoiceID
}

// New creates a controller on the current layout of layouts and applies the
// layout's basetone
func New(engine Engine, layouts *layout.Set, log *slog.Logger) (*Controller, error) {
	if layouts == nil || layouts.Size() == 0 {
		return nil, fmt.Errorf("no keyboard layouts")
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		engine:  engine,
		layouts: layouts,
		log:     log,
		held:    make(map[string]synth.VoiceID),
	}
	if err := engine.SetBasetone(layouts.Current().Basetone); err != nil {
		return nil, err
	}
	return c, nil
}

// Layout returns the active layout
func (c *Controller) Layout() *layout.Layout {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layouts.Current()
}

// Layouts returns the number of available layouts
func (c *Controller) Layouts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layouts.Size()
}

// LayoutTitles lists the layout titles in cycling order
func (c *Controller) LayoutTitles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layouts.Titles()
}

func normalize(key string) string {
	if key == "space" {
		return StopKey
	}
	return strings.ToLower(key)
}

// Press handles a tapped key. Notes play with the session's default duration.
func (c *Controller) Press(key string) (Result, error) {
	return c.dispatch(normalize(key), false)
}

// Hold handles a key going down. Notes sustain until Release is called for the
// same key.
func (c *Controller) Hold(key string) (Result, error) {
	return c.dispatch(normalize(key), true)
}

// Release handles a key going up
func (c *Controller) Release(key string) (Result, error) {
	key = normalize(key)

	c.keyMu.Lock()
	defer c.keyMu.Unlock()

	c.mu.Lock()
	id, ok := c.held[key]
	delete(c.held, key)
	c.mu.Unlock()

	if !ok {
		return Result{Kind: Ignored, Key: key}, nil
	}
	if err := c.engine.StopNote(id); err != nil {
		return Result{Key: key}, err
	}
	return Result{Kind: Released, Key: key, Voice: id}, nil
}

func (c *Controller) dispatch(key string, hold bool) (Result, error) {
	if key == StopKey {
		return c.stop(key)
	}

	l := c.Layout()
	if action, ok := l.Control(key); ok {
		return c.control(key, action)
	}
	sym, ok := l.Note(key)
	if !ok {
		return Result{Kind: Ignored, Key: key}, nil
	}
	return c.play(key, sym, hold)
}

func (c *Controller) play(key string, sym notes.Symbol, hold bool) (Result, error) {
	if hold {
		// the check, the new voice and its registration form one step
		c.keyMu.Lock()
		defer c.keyMu.Unlock()

		c.mu.Lock()
		_, repeat := c.held[key]
		c.mu.Unlock()
		if repeat {
			// auto-repeat of a key that is already down
			return Result{Kind: Ignored, Key: key, Symbol: sym}, nil
		}
	}

	hz, err := c.engine.Resolve(sym)
	if err != nil {
		return Result{Key: key}, err
	}
	var opts []session.NoteOption
	if hold {
		opts = append(opts, session.Sustained())
	}
	id, err := c.engine.Play(sym, opts...)
	if err != nil {
		return Result{Key: key}, err
	}
	if hold {
		c.mu.Lock()
		c.held[key] = id
		c.mu.Unlock()
	}
	c.log.Debug("key played", "key", key, "note", sym, "hz", hz)
	return Result{Kind: Played, Key: key, Symbol: sym, Voice: id, Frequency: hz}, nil
}

func (c *Controller) stop(key string) (Result, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()

	c.mu.Lock()
	clear(c.held)
	c.mu.Unlock()

	if err := c.engine.StopAll(); err != nil {
		return Result{Key: key}, err
	}
	return Result{Kind: Stopped, Key: key}, nil
}

func (c *Controller) control(key string, action layout.Action) (Result, error) {
	switch action {
	case layout.Stop:
		return c.stop(key)
	case layout.Quit:
		return Result{Kind: Quit, Key: key}, nil
	case layout.ChangeBasetone:
		return Result{Kind: BasetonePrompt, Key: key, Basetone: c.engine.Settings().Basetone}, nil
	case layout.ChangeInstrument:
		return c.NextInstrument()
	case layout.ChangeLayout:
		return c.NextLayout()
	case layout.VolumeUp:
		v, err := c.engine.VolumeUp()
		return Result{Kind: VolumeChanged, Key: key, Volume: v}, err
	case layout.VolumeDown:
		v, err := c.engine.VolumeDown()
		return Result{Kind: VolumeChanged, Key: key, Volume: v}, err
	}
	return Result{Kind: Ignored, Key: key}, nil
}

// SetBasetone parses name and applies it. The previous basetone is kept on error.
func (c *Controller) SetBasetone(name string) (Result, error) {
	b, err := notes.ParseBasetone(name)
	if err != nil {
		return Result{Basetone: c.engine.Settings().Basetone}, err
	}
	if err := c.engine.SetBasetone(b); err != nil {
		return Result{}, err
	}
	return Result{Kind: BasetoneChanged, Basetone: b}, nil
}

// NextBasetone moves to the following chromatic basetone
func (c *Controller) NextBasetone() (Result, error) {
	b := c.engine.Settings().Basetone.Next()
	if err := c.engine.SetBasetone(b); err != nil {
		return Result{}, err
	}
	return Result{Kind: BasetoneChanged, Basetone: b}, nil
}

// NextInstrument cycles Piano, Guitar, Saxophone, Violin
func (c *Controller) NextInstrument() (Result, error) {
	i := c.engine.Settings().Instrument.Next()
	if err := c.engine.SetInstrument(i); err != nil {
		return Result{}, err
	}
	return Result{Kind: InstrumentChanged, Instrument: i}, nil
}

// NextLayout switches to the following layout and applies its basetone.
// Held notes are released since their keys may no longer map to them.
func (c *Controller) NextLayout() (Result, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()

	c.mu.Lock()
	if c.layouts.Size() <= 1 {
		l := c.layouts.Current()
		c.mu.Unlock()
		return Result{Kind: Ignored, Layout: l}, nil
	}
	l := c.layouts.Next()
	held := make([]synth.VoiceID, 0, len(c.held))
	for _, id := range c.held {
		held = append(held, id)
	}
	clear(c.held)
	c.mu.Unlock()

	for _, id := range held {
		if err := c.engine.StopNote(id); err != nil {
			return Result{}, err
		}
	}
	if err := c.engine.SetBasetone(l.Basetone); err != nil {
		return Result{}, err
	}
	c.log.Info("layout changed", "title", l.Title, "basetone", l.Basetone)
	return Result{Kind: LayoutChanged, Layout: l, Basetone: l.Basetone}, nil
}
