// Package layout loads keyboard layouts: which computer key plays which note
// symbol, which keys trigger controls, and the basetone the layout starts in.
// Layout files may be JSON or YAML.
package layout

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/olivierh59500/piano-code/pkg/notes"
)

// ErrInvalidLayout is returned for layouts that are missing required fields or
// contain unknown symbols, basetones or actions
var ErrInvalidLayout = errors.New("invalid layout")

// Action is a control bound to a key
type Action string

const (
	ChangeBasetone   Action = "change_basetone"
	ChangeInstrument Action = "change_instrument"
	ChangeLayout     Action = "change_layout"
	Stop             Action = "stop"
	Quit             Action = "quit"
	VolumeUp         Action = "volume_up"
	VolumeDown       Action = "volume_down"
)

var actions = []Action{ChangeBasetone, ChangeInstrument, ChangeLayout, Stop, Quit, VolumeUp, VolumeDown}

// Valid reports whether a is a known action
func (a Action) Valid() bool {
	return slices.Contains(actions, a)
}

// Layout is a parsed keyboard layout
type Layout struct {
	Title       string
	Description string
	Basetone    notes.Basetone
	Keys        map[string]notes.Symbol
	Controls    map[string]Action

	// Path is the file the layout was loaded from, empty for built-in layouts
	Path string
}

// file mirrors the on-disk format
type file struct {
	Title       string            `yaml:"title"`
	Description string            `yaml:"description"`
	Basetone    string            `yaml:"basetone"`
	KeyMappings map[string]string `yaml:"key_mappings"`
	Controls    map[string]string `yaml:"controls"`
}

//go:embed default.json
var defaultLayout []byte

// Default returns the built-in layout
func Default() *Layout {
	l, err := Parse(defaultLayout)
	if err != nil {
		panic(fmt.Sprintf("built-in layout: %v", err))
	}
	return l
}

// Load reads and parses a layout file
func Load(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	l, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	l.Path = path
	return l, nil
}

// Parse decodes a layout document. JSON is accepted since it is valid YAML.
// Keys are matched case-insensitively and stored in lower case.
func Parse(data []byte) (*Layout, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLayout, err)
	}
	if strings.TrimSpace(f.Title) == "" {
		return nil, fmt.Errorf("%w: missing title", ErrInvalidLayout)
	}
	if len(f.KeyMappings) == 0 {
		return nil, fmt.Errorf("%w: no key_mappings", ErrInvalidLayout)
	}

	l := &Layout{
		Title:       f.Title,
		Description: f.Description,
		Basetone:    notes.C,
		Keys:        make(map[string]notes.Symbol, len(f.KeyMappings)),
		Controls:    make(map[string]Action, len(f.Controls)),
	}

	if f.Basetone != "" {
		b, err := notes.ParseBasetone(f.Basetone)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidLayout, err)
		}
		l.Basetone = b
	}

	for key, text := range f.KeyMappings {
		k, err := normalizeKey(key)
		if err != nil {
			return nil, err
		}
		sym, err := notes.ParseSymbol(text)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %w", ErrInvalidLayout, key, err)
		}
		l.Keys[k] = sym
	}

	for key, name := range f.Controls {
		k, err := normalizeKey(key)
		if err != nil {
			return nil, err
		}
		a := Action(strings.ToLower(strings.TrimSpace(name)))
		if !a.Valid() {
			return nil, fmt.Errorf("%w: key %q: unknown action %q", ErrInvalidLayout, key, name)
		}
		l.Controls[k] = a
	}

	return l, nil
}

func normalizeKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidLayout)
	}
	return strings.ToLower(key), nil
}

// Note returns the symbol mapped to key
func (l *Layout) Note(key string) (notes.Symbol, bool) {
	sym, ok := l.Keys[strings.ToLower(key)]
	return sym, ok
}

// Control returns the action bound to key
func (l *Layout) Control(key string) (Action, bool) {
	a, ok := l.Controls[strings.ToLower(key)]
	return a, ok
}

// NoteKeys returns the mapped keys ordered by pitch, then by key
func (l *Layout) NoteKeys() []string {
	keys := make([]string, 0, len(l.Keys))
	for k := range l.Keys {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		// symbols were validated by Parse
		sa, _ := l.Keys[a].Semitones()
		sb, _ := l.Keys[b].Semitones()
		if sa != sb {
			return sa - sb
		}
		return strings.Compare(a, b)
	})
	return keys
}

// ControlKeys returns the control keys in sorted order
func (l *Layout) ControlKeys() []string {
	keys := make([]string, 0, len(l.Controls))
	for k := range l.Controls {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
