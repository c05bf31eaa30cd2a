package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/olivierh59500/piano-code/pkg/audio"
	"github.com/olivierh59500/piano-code/pkg/keyboard"
	"github.com/olivierh59500/piano-code/pkg/layout"
	"github.com/olivierh59500/piano-code/pkg/notes"
	"github.com/olivierh59500/piano-code/pkg/session"
)

const (
	keyCtrlC     = 3
	keyCtrlD     = 4
	keyBackspace = 8
	keyEnter     = '\r'
	keyEsc       = 27
	keyDelete    = 127
)

// terminal reads keys in raw mode (one event per byte) or lines in simple
// mode, and prints feedback
type terminal struct {
	sess *session.Session
	ctl  *keyboard.Controller
	out  io.Writer

	raw       bool
	fd        int
	oldState  *term.State
	closeOnce sync.Once

	input chan string

	prompting bool
	answer    strings.Builder
}

func newTerminal(mode string, sess *session.Session, ctl *keyboard.Controller) (*terminal, error) {
	t := &terminal{
		sess:  sess,
		ctl:   ctl,
		out:   os.Stdout,
		fd:    int(os.Stdin.Fd()),
		input: make(chan string, 16),
	}

	switch mode {
	case "realtime":
		if !term.IsTerminal(t.fd) {
			logger.Warn("stdin is not a terminal, falling back to simple input mode")
			break
		}
		state, err := term.MakeRaw(t.fd)
		if err != nil {
			logger.Warn("raw mode unavailable, falling back to simple input mode", "err", err)
			break
		}
		t.oldState = state
		t.raw = true
		go t.readKeys()
		return t, nil
	case "simple":
	default:
		return nil, fmt.Errorf("unknown input mode: %s", mode)
	}

	go t.readLines()
	return t, nil
}

func (t *terminal) readKeys() {
	defer close(t.input)
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return
		}
		if n == 1 {
			t.input <- string(buf)
		}
	}
}

func (t *terminal) readLines() {
	defer close(t.input)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		t.input <- scanner.Text()
	}
}

func (t *terminal) restore() {
	t.closeOnce.Do(func() {
		if t.raw {
			term.Restore(t.fd, t.oldState)
		}
	})
}

// println prints one line, translating newlines while the terminal is raw
func (t *terminal) println(format string, args ...any) {
	s := fmt.Sprintf(format, args...) + "\n"
	if t.raw {
		s = strings.ReplaceAll(s, "\n", "\r\n")
	}
	fmt.Fprint(t.out, s)
}

func (t *terminal) print(s string) {
	fmt.Fprint(t.out, s)
}

// handle processes one input event and reports whether to quit
func (t *terminal) handle(in string) bool {
	if t.prompting {
		t.promptInput(in)
		return false
	}
	if t.raw {
		switch in[0] {
		case keyEsc, keyCtrlC, keyCtrlD:
			return true
		}
		return t.key(in)
	}
	return t.line(in)
}

// line handles a command typed in simple mode
func (t *terminal) line(in string) bool {
	text := strings.ToLower(strings.TrimSpace(in))
	if text == "" {
		if strings.Contains(in, " ") {
			return t.key(keyboard.StopKey)
		}
		return false
	}

	switch text {
	case "quit", "exit":
		return true
	case "help":
		t.printHelp()
		return false
	case "layouts":
		t.printLayouts()
		return false
	case "space":
		return t.key(keyboard.StopKey)
	}

	l := t.ctl.Layout()
	if _, ok := l.Control(text); ok || len(text) == 1 {
		return t.key(text)
	}
	// several keys on one line play one after the other
	for _, r := range in {
		k := string(r)
		if _, ok := l.Note(k); ok || k == keyboard.StopKey {
			if t.key(k) {
				return true
			}
		}
	}
	return false
}

func (t *terminal) key(k string) bool {
	r, err := t.ctl.Press(k)
	if err != nil {
		if errors.Is(err, audio.ErrOutputDevice) {
			t.println("Audio unavailable: %v", err)
			return true
		}
		t.println("Error: %v", err)
		return false
	}

	switch r.Kind {
	case keyboard.Played:
		t.println("%-4s %-10s %7.2f Hz", r.Symbol, r.Symbol.Solfege(), r.Frequency)
	case keyboard.Stopped:
		t.println("Sound stopped")
	case keyboard.BasetonePrompt:
		t.startPrompt(r.Basetone)
	case keyboard.InstrumentChanged:
		t.println("Instrument changed: %s", r.Instrument)
	case keyboard.LayoutChanged:
		t.println("Layout changed to: %s (basetone %s)", r.Layout.Title, r.Basetone)
		t.printKeyboard(r.Layout)
	case keyboard.VolumeChanged:
		t.println("Volume: %.0f%%", r.Volume*100)
	case keyboard.Quit:
		return true
	case keyboard.Ignored:
		if r.Layout != nil {
			t.println("Only one layout available")
		}
	}
	return false
}

func (t *terminal) startPrompt(current notes.Basetone) {
	t.println("")
	t.println("Current basetone: %s", current)
	t.println("Available tones: %s", basetoneList())
	t.println("Type new basetone and press Enter (empty or Esc to cancel):")
	t.print("> ")
	t.prompting = true
	t.answer.Reset()
}

// promptInput collects the basetone answer: key by key in raw mode, as a
// whole line in simple mode
func (t *terminal) promptInput(in string) {
	if !t.raw {
		t.submitPrompt(in)
		return
	}

	switch c := in[0]; {
	case c == keyEsc || c == keyCtrlC:
		t.prompting = false
		t.println("")
		t.println("Basetone change cancelled")
	case c == keyEnter || c == '\n':
		t.println("")
		t.submitPrompt(t.answer.String())
	case c == keyDelete || c == keyBackspace:
		if s := t.answer.String(); s != "" {
			t.answer.Reset()
			t.answer.WriteString(s[:len(s)-1])
			t.print("\b \b")
		}
	case c >= ' ' && c < keyDelete:
		t.answer.WriteByte(c)
		t.print(in)
	}
}

func (t *terminal) submitPrompt(answer string) {
	t.prompting = false
	answer = strings.TrimSpace(answer)
	if answer == "" {
		t.println("Basetone change cancelled")
		return
	}
	r, err := t.ctl.SetBasetone(answer)
	if err != nil {
		t.println("Invalid basetone: %s", answer)
		return
	}
	t.println("Basetone changed to: %s", r.Basetone)
}

func (t *terminal) printHelp() {
	l := t.ctl.Layout()
	st := t.sess.Settings()

	t.println("")
	t.println("Piano Code")
	t.println("%s", strings.Repeat("=", 60))
	t.println("Layout:     %s", l.Title)
	if l.Description != "" {
		t.println("            %s", l.Description)
	}
	t.println("Basetone:   %s (pitch of note 1, do)", st.Basetone)
	t.println("Instrument: %s", st.Instrument)
	t.println("Volume:     %.0f%%", st.Volume*100)
	if n := t.ctl.Layouts(); n > 1 {
		t.println("Layouts:    %d available", n)
	}
	t.println("")
	t.printKeyboard(l)

	t.println("")
	t.println("Controls:")
	for _, k := range l.ControlKeys() {
		a, _ := l.Control(k)
		t.println("  %-6s %s", k, actionHelp(a))
	}
	if t.raw {
		t.println("  SPACE  stop all notes")
		t.println("  ESC    quit")
	} else {
		t.println("Type keys and press Enter. Commands: help, layouts, space, quit")
	}
	t.println("")
}

func (t *terminal) printKeyboard(l *layout.Layout) {
	t.println("Keyboard:")
	for _, k := range l.NoteKeys() {
		sym, _ := l.Note(k)
		t.println("  %-6s %-4s %s", k, sym, sym.Solfege())
	}
}

func (t *terminal) printLayouts() {
	current := t.ctl.Layout().Title
	t.println("Layouts:")
	for i, title := range t.ctl.LayoutTitles() {
		mark := ""
		if title == current {
			mark = " (current)"
		}
		t.println("  %d. %s%s", i+1, title, mark)
	}
}

func actionHelp(a layout.Action) string {
	switch a {
	case layout.ChangeBasetone:
		return "change basetone"
	case layout.ChangeInstrument:
		return "cycle instrument (piano, guitar, saxophone, violin)"
	case layout.ChangeLayout:
		return "cycle keyboard layout"
	case layout.Stop:
		return "stop all notes"
	case layout.Quit:
		return "quit"
	case layout.VolumeUp:
		return "volume up"
	case layout.VolumeDown:
		return "volume down"
	}
	return string(a)
}
