package layout

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/olivierh59500/piano-code/pkg/notes"
)

const jsonLayout = `{
  "title": "Test Layout",
  "description": "two rows",
  "basetone": "G",
  "key_mappings": {"A": ".1", "s": "#4", "d": "^7"},
  "controls": {"1": "change_basetone", "x": "Stop"}
}`

const yamlLayout = `
title: YAML Layout
basetone: eb
key_mappings:
  z: "1"
  x: "3"
  c: "5"
controls:
  q: quit
`

func TestParseJSON(t *testing.T) {
	l, err := Parse([]byte(jsonLayout))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if l.Title != "Test Layout" || l.Description != "two rows" || l.Basetone != notes.G {
		t.Errorf("header = %q %q %s", l.Title, l.Description, l.Basetone)
	}

	tests := map[string]string{"a": ".1", "A": ".1", "s": "#4", "d": "^7"}
	for key, want := range tests {
		sym, ok := l.Note(key)
		if !ok || sym != notes.MustParseSymbol(want) {
			t.Errorf("Note(%q) = %v, %v, want %s", key, sym, ok, want)
		}
	}
	if _, ok := l.Note("q"); ok {
		t.Error("unmapped key resolved")
	}

	if a, ok := l.Control("x"); !ok || a != Stop {
		t.Errorf("Control(x) = %q, %v", a, ok)
	}
	if a, ok := l.Control("1"); !ok || a != ChangeBasetone {
		t.Errorf("Control(1) = %q, %v", a, ok)
	}
}

func TestParseYAML(t *testing.T) {
	l, err := Parse([]byte(yamlLayout))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if l.Basetone != notes.DSharp {
		t.Errorf("basetone = %s, want D#", l.Basetone)
	}
	if got := l.NoteKeys(); len(got) != 3 || got[0] != "z" || got[2] != "c" {
		t.Errorf("NoteKeys() = %v", got)
	}
	if got := l.ControlKeys(); len(got) != 1 || got[0] != "q" {
		t.Errorf("ControlKeys() = %v", got)
	}
}

func TestParseDefaultsBasetone(t *testing.T) {
	l, err := Parse([]byte(`{"title": "t", "key_mappings": {"a": "1"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if l.Basetone != notes.C {
		t.Errorf("basetone = %s, want C", l.Basetone)
	}
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"syntax":         `{"title": `,
		"no title":       `{"key_mappings": {"a": "1"}}`,
		"no mappings":    `{"title": "t"}`,
		"bad symbol":     `{"title": "t", "key_mappings": {"a": "9"}}`,
		"bad basetone":   `{"title": "t", "basetone": "H", "key_mappings": {"a": "1"}}`,
		"unknown action": `{"title": "t", "key_mappings": {"a": "1"}, "controls": {"b": "explode"}}`,
		"empty key":      `{"title": "t", "key_mappings": {"": "1"}}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); !errors.Is(err, ErrInvalidLayout) {
				t.Errorf("err = %v, want ErrInvalidLayout", err)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	l := Default()
	if l.Path != "" {
		t.Errorf("built-in layout has path %q", l.Path)
	}
	if len(l.Keys) == 0 || len(l.Controls) == 0 {
		t.Fatal("built-in layout is empty")
	}
	if a, _ := l.Control("3"); a != ChangeLayout {
		t.Errorf("Control(3) = %q", a)
	}
	for key := range l.Keys {
		if _, clash := l.Controls[key]; clash {
			t.Errorf("key %q is both a note and a control", key)
		}
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b_layout.json", jsonLayout)
	writeFile(t, dir, "a_layout.yaml", yamlLayout)
	writeFile(t, dir, "broken.json", `{"title": "oops"}`)
	writeFile(t, dir, "notes.txt", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "sub.json"), 0o755); err != nil {
		t.Fatal(err)
	}

	set, err := Discover(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	titles := set.Titles()
	if len(titles) != 2 || titles[0] != "YAML Layout" || titles[1] != "Test Layout" {
		t.Fatalf("titles = %v", titles)
	}
	if i := set.Find(filepath.Join(dir, "b_layout.json")); i != 1 {
		t.Errorf("Find = %d, want 1", i)
	}
	if i := set.Find(filepath.Join(dir, "missing.json")); i != -1 {
		t.Errorf("Find(missing) = %d", i)
	}

	if _, err := Discover(filepath.Join(dir, "nope"), nil); err == nil {
		t.Error("Discover on a missing directory succeeded")
	}
}

func TestLoadReportsPath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", `{"title": "t", "key_mappings": {"a": "0"}}`)
	_, err := Load(path)
	if !errors.Is(err, ErrInvalidLayout) || !errors.Is(err, notes.ErrInvalidSymbol) {
		t.Errorf("err = %v", err)
	}
	if _, err := Load(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v", err)
	}
}

func TestSetCycle(t *testing.T) {
	set := NewSet()
	if set.Current() != nil || set.Next() != nil {
		t.Fatal("empty set returned a layout")
	}

	a, b, c := &Layout{Title: "a"}, &Layout{Title: "b"}, &Layout{Title: "c"}
	set.Add(a)
	set.Add(b)
	set.Add(c)
	if set.Size() != 3 || set.Current() != a {
		t.Fatalf("size %d, current %v", set.Size(), set.Current())
	}
	if set.Next() != b || set.Next() != c || set.Next() != a {
		t.Error("Next does not cycle in order")
	}
	if err := set.Select(2); err != nil || set.Current() != c || set.Index() != 2 {
		t.Errorf("Select(2): %v, current %v", err, set.Current())
	}
	if err := set.Select(3); err == nil {
		t.Error("Select(3) succeeded")
	}
	if _, err := set.Get(-1); err == nil {
		t.Error("Get(-1) succeeded")
	}
}
