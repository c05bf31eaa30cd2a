package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olivierh59500/piano-code/pkg/audio"
	"github.com/olivierh59500/piano-code/pkg/keyboard"
	"github.com/olivierh59500/piano-code/pkg/layout"
	"github.com/olivierh59500/piano-code/pkg/logging"
	"github.com/olivierh59500/piano-code/pkg/midiin"
	"github.com/olivierh59500/piano-code/pkg/notes"
	"github.com/olivierh59500/piano-code/pkg/prefs"
	"github.com/olivierh59500/piano-code/pkg/session"
	"github.com/olivierh59500/piano-code/pkg/synth"
)

var (
	sampleRate = flag.Int("rate", session.DefaultSampleRate, "Sample rate (Hz)")
	bufferSize = flag.Int("buffer", session.DefaultBufferSize, "Buffer size (frames)")
	volume     = flag.Float64("volume", session.DefaultVolume, "Master volume (0.0 to 1.0)")
	instrument = flag.String("instrument", "piano", "Instrument (piano, guitar, saxophone, violin)")
	basetone   = flag.String("basetone", "", "Basetone, overrides the layout (C, C#, D, ... B)")
	duration   = flag.Duration("duration", session.DefaultDuration, "Note duration (0 holds until stopped)")
	output     = flag.String("output", "oto", "Output backend (oto, beep, null)")
	layoutFile = flag.String("layout", "", "Keyboard layout file (JSON or YAML)")
	layoutDir  = flag.String("layouts", "", "Directory of keyboard layouts to cycle through")
	mode       = flag.String("mode", "realtime", "Input mode (realtime, simple)")
	midiPort   = flag.String("midi", "", "MIDI input port name (\"list\" to show ports)")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	logFile    = flag.String("log", "", "Also log to this file, rotated at 10 MB")
	prefsFile  = flag.String("prefs", "", "Preferences file (default: user config dir, \"none\" disables)")
)

var logger = slog.Default()

// initLogger installs the command logger as the slog default
func initLogger(debug bool, file string) io.Closer {
	l, closer, err := logging.New(logging.Config{Debug: debug, File: file})
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	logger = l
	slog.SetDefault(logger)
	return closer
}

// openPrefs loads the saved preferences and fills in every preference-backed
// flag the user did not pass
func openPrefs(path string) *prefs.Store {
	if path == "none" {
		return nil
	}
	if path == "" {
		p, err := prefs.DefaultPath()
		if err != nil {
			logger.Warn("preferences disabled", "err", err)
			return nil
		}
		path = p
	}
	store := prefs.NewStore(path, logger)
	saved, err := store.Load()
	if err != nil {
		logger.Warn("could not load preferences", "err", err)
		return store
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if saved.Instrument != nil && !set["instrument"] {
		*instrument = saved.Instrument.String()
	}
	if saved.Basetone != nil && !set["basetone"] {
		*basetone = saved.Basetone.String()
	}
	if saved.Volume != nil && !set["volume"] {
		*volume = *saved.Volume
	}
	return store
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Piano Code - play solfege notes from the computer keyboard\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	logCloser := initLogger(*debug, *logFile)

	if *midiPort == "list" {
		for _, name := range midiin.Ports() {
			fmt.Println(name)
		}
		return
	}

	store := openPrefs(*prefsFile)

	inst, err := synth.ParseInstrument(*instrument)
	if err != nil {
		log.Fatalf("Invalid instrument: %v", err)
	}

	layouts, err := loadLayouts(*layoutFile, *layoutDir)
	if err != nil {
		log.Fatalf("Failed to load keyboard layouts: %v", err)
	}

	sess, err := openSession(inst, store)
	if err != nil {
		log.Fatalf("Audio unavailable: %v", err)
	}

	ctl, err := keyboard.New(sess, layouts, logger)
	if err != nil {
		sess.Close()
		log.Fatalf("Failed to start keyboard: %v", err)
	}
	if *basetone != "" {
		if _, err := ctl.SetBasetone(*basetone); err != nil {
			sess.Close()
			log.Fatalf("Invalid basetone: %v", err)
		}
	}

	var stopMidi func()
	if *midiPort != "" {
		stopMidi, err = midiin.Listen(*midiPort, midiin.NewHandler(sess, logger))
		if err != nil {
			logger.Warn("MIDI input disabled", "err", err)
		}
	}

	code := run(sess, ctl)
	if stopMidi != nil {
		stopMidi()
	}
	if err := sess.Close(); err != nil {
		logger.Error("closing session", "err", err)
	}
	logCloser.Close()
	os.Exit(code)
}

// loadLayouts builds the layout set: every layout in dir, the file named by
// file (added when dir does not contain it), or the built-in layout
func loadLayouts(file, dir string) (*layout.Set, error) {
	set := layout.NewSet()
	if dir != "" {
		found, err := layout.Discover(dir, logger)
		if err != nil {
			return nil, err
		}
		set = found
	}

	if file != "" {
		if i := set.Find(file); i >= 0 {
			if err := set.Select(i); err != nil {
				return nil, err
			}
		} else {
			l, err := layout.Load(file)
			if err != nil {
				return nil, err
			}
			set.Layouts = append([]*layout.Layout{l}, set.Layouts...)
		}
	}

	if set.Size() == 0 {
		set.Add(layout.Default())
	}
	return set, nil
}

func newOutput(name string) (audio.Output, error) {
	switch name {
	case "oto":
		return audio.NewOtoOutput(), nil
	case "beep":
		return audio.NewBeepOutput(), nil
	case "null":
		return audio.NewFallbackOutput(), nil
	}
	return nil, fmt.Errorf("unknown output backend: %s", name)
}

func openSession(inst synth.Instrument, store *prefs.Store) (*session.Session, error) {
	out, err := newOutput(*output)
	if err != nil {
		return nil, err
	}
	opts := []session.Option{
		session.WithSampleRate(*sampleRate),
		session.WithBufferSize(*bufferSize),
		session.WithVolume(*volume),
		session.WithInstrument(inst),
		session.WithDuration(*duration),
		session.WithLogger(logger),
	}
	if store != nil {
		opts = append(opts, session.WithOnSettingsChanged(store.Hook()))
	}

	sess, err := session.New(out, opts...)
	if err != nil && errors.Is(err, audio.ErrOutputDevice) && *output != "null" {
		logger.Warn("failed to open audio device, falling back to silent output", "err", err)
		sess, err = session.New(audio.NewFallbackOutput(), opts...)
	}
	return sess, err
}

// run drives the terminal until the user quits, a signal arrives or the
// audio device fails. It returns the process exit code.
func run(sess *session.Session, ctl *keyboard.Controller) int {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	t, err := newTerminal(*mode, sess, ctl)
	if err != nil {
		logger.Error("terminal setup failed", "err", err)
		return 1
	}
	defer t.restore()

	t.printHelp()

	// Watch for device failures
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			t.println("Stopping...")
			return 0

		case in, ok := <-t.input:
			if !ok {
				t.println("Goodbye!")
				return 0
			}
			if t.handle(in) {
				t.println("Goodbye!")
				return 0
			}

		case <-ticker.C:
			if err := sess.Err(); err != nil {
				t.println("Audio unavailable: %v", err)
				return 1
			}
		}
	}
}

func basetoneList() string {
	s := ""
	for i, b := range notes.Basetones() {
		if i > 0 {
			s += ", "
		}
		s += b.String()
	}
	return s
}
