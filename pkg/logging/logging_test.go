package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := New(Config{Stderr: &buf})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	log.Debug("hidden")
	log.Info("shown", "key", 1)
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("console = %q", out)
	}
}

func TestFileGetsDebug(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "piano_code.log")
	log, closer, err := New(Config{Stderr: &buf, File: path})
	if err != nil {
		t.Fatal(err)
	}

	log.With("component", "test").Debug("detail")
	log.Info("started")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	file := string(data)
	if !strings.Contains(file, "detail") || !strings.Contains(file, "component=test") || !strings.Contains(file, "started") {
		t.Errorf("log file = %q", file)
	}
	if strings.Contains(buf.String(), "detail") {
		t.Errorf("debug record reached the console at info level: %q", buf.String())
	}
}
