//go:build gui

package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/olivierh59500/piano-code/pkg/audio"
	"github.com/olivierh59500/piano-code/pkg/layout"
	"github.com/olivierh59500/piano-code/pkg/logging"
	"github.com/olivierh59500/piano-code/pkg/prefs"
	"github.com/olivierh59500/piano-code/pkg/session"
)

var (
	layoutDir = flag.String("layouts", "", "Directory of keyboard layouts to cycle through")
	bufSize   = flag.Int("buffer", session.DefaultBufferSize, "Buffer size (frames)")
	debug     = flag.Bool("debug", false, "Enable debug logging")
	logFile   = flag.String("log", "", "Also log to this file, rotated at 10 MB")
	prefsFile = flag.String("prefs", "", "Preferences file (default: user config dir, \"none\" disables)")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] [layout-file]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logger, logCloser, err := logging.New(logging.Config{Debug: *debug, File: *logFile})
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	store, saved := loadPrefs(*prefsFile, logger)

	layouts := layout.NewSet()
	if *layoutDir != "" {
		found, err := layout.Discover(*layoutDir, logger)
		if err != nil {
			log.Fatalf("Failed to read layouts: %v", err)
		}
		layouts = found
	}
	// Check if a layout file was passed as argument
	if flag.NArg() > 0 {
		l, err := layout.Load(flag.Arg(0))
		if err != nil {
			log.Fatalf("Failed to load layout: %v", err)
		}
		layouts.Layouts = append([]*layout.Layout{l}, layouts.Layouts...)
	}
	if layouts.Size() == 0 {
		layouts.Add(layout.Default())
	}

	opts := append(saved.Options(),
		session.WithBufferSize(*bufSize),
		session.WithLogger(logger),
	)
	if store != nil {
		opts = append(opts, session.WithOnSettingsChanged(store.Hook()))
	}
	sess, err := session.New(audio.NewOtoOutput(), opts...)
	if err != nil && errors.Is(err, audio.ErrOutputDevice) {
		logger.Warn("failed to open audio device, falling back to silent output", "err", err)
		sess, err = session.New(audio.NewFallbackOutput(), opts...)
	}
	if err != nil {
		log.Fatalf("Audio unavailable: %v", err)
	}

	gui, err := NewPianoGUI(sess, layouts, logger)
	if err != nil {
		sess.Close()
		log.Fatalf("Failed to start: %v", err)
	}
	// the layout set its own basetone, the saved one wins at startup
	if saved.Basetone != nil {
		if err := gui.sess.SetBasetone(*saved.Basetone); err != nil {
			logger.Warn("could not restore basetone", "err", err)
		}
		gui.refresh()
	}
	gui.Run()
}

func loadPrefs(path string, logger *slog.Logger) (*prefs.Store, prefs.Preferences) {
	if path == "none" {
		return nil, prefs.Preferences{}
	}
	if path == "" {
		p, err := prefs.DefaultPath()
		if err != nil {
			logger.Warn("preferences disabled", "err", err)
			return nil, prefs.Preferences{}
		}
		path = p
	}
	store := prefs.NewStore(path, logger)
	saved, err := store.Load()
	if err != nil {
		logger.Warn("could not load preferences", "err", err)
	}
	return store, saved
}
