package layout

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Set is an ordered collection of layouts with a cursor
type Set struct {
	Layouts []*Layout
	current int
}

// NewSet creates a set positioned on its first layout
func NewSet(layouts ...*Layout) *Set {
	return &Set{Layouts: layouts}
}

// Add appends a layout to the set
func (s *Set) Add(l *Layout) {
	s.Layouts = append(s.Layouts, l)
}

// Size returns the number of layouts in the set
func (s *Set) Size() int {
	return len(s.Layouts)
}

// Get returns the layout at the specified index
func (s *Set) Get(index int) (*Layout, error) {
	if index < 0 || index >= len(s.Layouts) {
		return nil, fmt.Errorf("index out of range")
	}
	return s.Layouts[index], nil
}

// Index returns the position of the cursor
func (s *Set) Index() int {
	return s.current
}

// Current returns the layout under the cursor, or nil for an empty set
func (s *Set) Current() *Layout {
	if len(s.Layouts) == 0 {
		return nil
	}
	return s.Layouts[s.current]
}

// Select moves the cursor to index
func (s *Set) Select(index int) error {
	if index < 0 || index >= len(s.Layouts) {
		return fmt.Errorf("index out of range")
	}
	s.current = index
	return nil
}

// Next advances the cursor, wrapping around, and returns the new current layout
func (s *Set) Next() *Layout {
	if len(s.Layouts) == 0 {
		return nil
	}
	s.current = (s.current + 1) % len(s.Layouts)
	return s.Layouts[s.current]
}

// Find returns the index of the layout loaded from path, or -1
func (s *Set) Find(path string) int {
	want := filepath.Clean(path)
	return slices.IndexFunc(s.Layouts, func(l *Layout) bool {
		return l.Path != "" && filepath.Clean(l.Path) == want
	})
}

// Titles returns the layout titles in order
func (s *Set) Titles() []string {
	titles := make([]string, len(s.Layouts))
	for i, l := range s.Layouts {
		titles[i] = l.Title
	}
	return titles
}

// IsLayoutFile reports whether name has a layout file extension
func IsLayoutFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// Discover loads every layout file in dir, sorted by file name. Files that
// fail to parse are skipped with a warning.
func Discover(dir string, log *slog.Logger) (*Set, error) {
	if log == nil {
		log = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	set := NewSet()
	for _, e := range entries {
		if e.IsDir() || !IsLayoutFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		l, err := Load(path)
		if err != nil {
			log.Warn("skipping layout", "path", path, "err", err)
			continue
		}
		set.Add(l)
	}
	log.Debug("discovered layouts", "dir", dir, "count", set.Size())
	return set, nil
}
