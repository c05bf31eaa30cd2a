// Package prefs remembers the instrument, basetone and volume between runs.
// The file is YAML; JSON preference files are read as well.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/olivierh59500/piano-code/pkg/notes"
	"github.com/olivierh59500/piano-code/pkg/session"
	"github.com/olivierh59500/piano-code/pkg/synth"
)

// FileName is the preferences file inside the user config directory
const FileName = "preferences.yaml"

// Preferences holds the saved settings. Nil fields were never saved.
type Preferences struct {
	Instrument *synth.Instrument
	Basetone   *notes.Basetone
	Volume     *float64
}

// file mirrors the on-disk format
type file struct {
	Instrument string   `yaml:"instrument,omitempty"`
	Basetone   string   `yaml:"basetone,omitempty"`
	Volume     *float64 `yaml:"volume,omitempty"`
}

// FromSettings captures the persisted part of a session snapshot
func FromSettings(st session.Settings) Preferences {
	inst, tone, vol := st.Instrument, st.Basetone, st.Volume
	return Preferences{Instrument: &inst, Basetone: &tone, Volume: &vol}
}

// Options turns the saved values into session options
func (p Preferences) Options() []session.Option {
	var opts []session.Option
	if p.Instrument != nil {
		opts = append(opts, session.WithInstrument(*p.Instrument))
	}
	if p.Basetone != nil {
		opts = append(opts, session.WithBasetone(*p.Basetone))
	}
	if p.Volume != nil {
		opts = append(opts, session.WithVolume(*p.Volume))
	}
	return opts
}

// DefaultPath returns FileName under the user config directory
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "piano-code", FileName), nil
}

// Store reads and writes one preferences file
type Store struct {
	path string
	log  *slog.Logger
	mu   sync.Mutex
}

// NewStore creates a store for path
func NewStore(path string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{path: path, log: log}
}

// Path returns the file the store uses
func (s *Store) Path() string {
	return s.path
}

// Load reads the preferences. A missing file yields empty preferences.
// Unknown instruments, basetones or an out of range volume are errors.
func (s *Store) Load() (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Preferences{}, nil
	}
	if err != nil {
		return Preferences{}, err
	}
	p, err := Parse(data)
	if err != nil {
		return Preferences{}, fmt.Errorf("%s: %w", s.path, err)
	}
	s.log.Debug("loaded preferences", "path", s.path)
	return p, nil
}

// Parse decodes a preferences document
func Parse(data []byte) (Preferences, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Preferences{}, err
	}

	var p Preferences
	if f.Instrument != "" {
		inst, err := synth.ParseInstrument(f.Instrument)
		if err != nil {
			return Preferences{}, err
		}
		p.Instrument = &inst
	}
	if f.Basetone != "" {
		b, err := notes.ParseBasetone(f.Basetone)
		if err != nil {
			return Preferences{}, err
		}
		p.Basetone = &b
	}
	if f.Volume != nil {
		if v := *f.Volume; v < 0 || v > 1 {
			return Preferences{}, fmt.Errorf("%w: %v", session.ErrInvalidVolume, v)
		}
		p.Volume = f.Volume
	}
	return p, nil
}

// Save writes p, creating the directory if needed. The file is replaced
// atomically so a crash never leaves a truncated file behind.
func (s *Store) Save(p Preferences) error {
	var f file
	if p.Instrument != nil {
		f.Instrument = p.Instrument.String()
	}
	if p.Basetone != nil {
		f.Basetone = p.Basetone.String()
	}
	f.Volume = p.Volume

	data, err := yaml.Marshal(&f)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".prefs-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return err
	}
	s.log.Debug("saved preferences", "path", s.path)
	return nil
}

// Hook returns a session settings hook that saves every change. Failures are
// logged; playing goes on without persistence.
func (s *Store) Hook() func(session.Settings) {
	return func(st session.Settings) {
		if err := s.Save(FromSettings(st)); err != nil {
			s.log.Error("could not save preferences", "path", s.path, "err", err)
		}
	}
}
