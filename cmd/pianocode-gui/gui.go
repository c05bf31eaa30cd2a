//go:build gui

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	fynelayout "fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/olivierh59500/piano-code/pkg/audio"
	"github.com/olivierh59500/piano-code/pkg/keyboard"
	"github.com/olivierh59500/piano-code/pkg/layout"
	"github.com/olivierh59500/piano-code/pkg/notes"
	"github.com/olivierh59500/piano-code/pkg/session"
	"github.com/olivierh59500/piano-code/pkg/synth"
)

type PianoGUI struct {
	app    fyne.App
	window fyne.Window

	sess *session.Session
	ctl  *keyboard.Controller
	log  *slog.Logger

	// UI Elements
	layoutLabel      *widget.Label
	descriptionLabel *widget.Label
	noteLabel        *widget.Label
	basetoneSelect   *widget.Select
	instrumentSelect *widget.Select
	volumeSlider     *widget.Slider
	volumeLabel      *widget.Label
	layoutButton     *widget.Button
	stopButton       *widget.Button
	keyList          *widget.List
	statusLabel      *widget.Label

	keys []string

	ticker *time.Ticker
	done   chan struct{}
	failed bool
}

func NewPianoGUI(sess *session.Session, layouts *layout.Set, log *slog.Logger) (*PianoGUI, error) {
	ctl, err := keyboard.New(sess, layouts, log)
	if err != nil {
		return nil, err
	}
	p := &PianoGUI{
		app:  app.New(),
		sess: sess,
		ctl:  ctl,
		log:  log,
		done: make(chan struct{}),
	}
	p.createUI()
	return p, nil
}

func (p *PianoGUI) createUI() {
	p.window = p.app.NewWindow("Piano Code")
	p.window.Resize(fyne.NewSize(720, 560))

	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Next Layout", p.nextLayout),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Quit", p.app.Quit),
	)
	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", p.showAbout),
	)
	p.window.SetMainMenu(fyne.NewMainMenu(fileMenu, helpMenu))

	split := container.NewHSplit(p.createMainContent(), p.createKeyContent())
	split.SetOffset(0.55)
	p.window.SetContent(split)

	if dc, ok := p.window.Canvas().(desktop.Canvas); ok {
		dc.SetOnKeyDown(p.keyDown)
		dc.SetOnKeyUp(p.keyUp)
	} else {
		// no key up events, notes play for the default duration
		p.window.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
			if key := keyString(ev.Name); key != "" {
				p.show(p.ctl.Press(key))
			}
		})
	}
	p.window.SetOnClosed(p.cleanup)

	p.refresh()
	p.startUpdateTicker()
}

func (p *PianoGUI) createMainContent() fyne.CanvasObject {
	p.layoutLabel = widget.NewLabel("")
	p.layoutLabel.TextStyle = fyne.TextStyle{Bold: true}
	p.descriptionLabel = widget.NewLabel("")
	p.descriptionLabel.Wrapping = fyne.TextWrapWord
	layoutCard := widget.NewCard("Layout", "", container.NewVBox(p.layoutLabel, p.descriptionLabel))

	p.noteLabel = widget.NewLabelWithStyle("-", fyne.TextAlignCenter, fyne.TextStyle{Bold: true, Monospace: true})
	noteCard := widget.NewCard("Last Note", "", p.noteLabel)

	var tones []string
	for _, b := range notes.Basetones() {
		tones = append(tones, b.String())
	}
	p.basetoneSelect = widget.NewSelect(tones, func(name string) {
		if name == p.sess.Settings().Basetone.String() {
			return
		}
		if _, err := p.ctl.SetBasetone(name); err != nil {
			p.showError(err)
		}
	})

	var instruments []string
	for _, i := range synth.Instruments() {
		instruments = append(instruments, i.String())
	}
	p.instrumentSelect = widget.NewSelect(instruments, func(name string) {
		inst, err := synth.ParseInstrument(name)
		if err != nil || inst == p.sess.Settings().Instrument {
			return
		}
		if err := p.sess.SetInstrument(inst); err != nil {
			p.showError(err)
		}
	})

	p.volumeSlider = widget.NewSlider(0, 1)
	p.volumeSlider.Step = session.VolumeStep
	p.volumeLabel = widget.NewLabel("")
	p.volumeSlider.OnChanged = func(value float64) {
		if err := p.sess.SetVolume(value); err != nil {
			p.showError(err)
			return
		}
		p.volumeLabel.SetText(fmt.Sprintf("%.0f%%", value*100))
	}
	volumeContainer := container.NewBorder(
		nil, nil,
		container.NewHBox(widget.NewIcon(theme.VolumeUpIcon()), widget.NewLabel("Volume:")),
		p.volumeLabel,
		p.volumeSlider,
	)

	settings := container.New(fynelayout.NewFormLayout(),
		widget.NewLabel("Basetone:"), p.basetoneSelect,
		widget.NewLabel("Instrument:"), p.instrumentSelect,
	)

	p.stopButton = widget.NewButtonWithIcon("Stop", theme.MediaStopIcon(), func() {
		p.show(p.ctl.Press(keyboard.StopKey))
	})
	p.layoutButton = widget.NewButtonWithIcon("Next Layout", theme.ViewRefreshIcon(), p.nextLayout)
	buttons := container.NewHBox(fynelayout.NewSpacer(), p.stopButton, p.layoutButton, fynelayout.NewSpacer())

	tipCard := widget.NewCard("", "", widget.NewLabelWithStyle(
		"Hold a mapped key to play, release it to stop. Space stops everything.",
		fyne.TextAlignCenter,
		fyne.TextStyle{Italic: true},
	))

	p.statusLabel = widget.NewLabel("Ready")
	statusBar := container.NewBorder(widget.NewSeparator(), nil, nil, p.statusLabel, nil)

	content := container.NewVBox(
		layoutCard,
		noteCard,
		widget.NewSeparator(),
		settings,
		volumeContainer,
		buttons,
		fynelayout.NewSpacer(),
		tipCard,
		statusBar,
	)
	return container.NewPadded(content)
}

func (p *PianoGUI) createKeyContent() fyne.CanvasObject {
	p.keyList = widget.NewList(
		func() int {
			return len(p.keys)
		},
		func() fyne.CanvasObject {
			key := widget.NewLabelWithStyle("", fyne.TextAlignLeading, fyne.TextStyle{Monospace: true})
			name := widget.NewLabel("")
			return container.NewBorder(nil, nil, key, nil, name)
		},
		func(id widget.ListItemID, item fyne.CanvasObject) {
			box := item.(*fyne.Container)
			nameLabel := box.Objects[0].(*widget.Label)
			keyLabel := box.Objects[1].(*widget.Label)
			if id >= len(p.keys) {
				return
			}
			k := p.keys[id]
			sym, _ := p.ctl.Layout().Note(k)
			keyLabel.SetText(fmt.Sprintf("[%s]", k))
			nameLabel.SetText(fmt.Sprintf("%-4s %s", sym, sym.Solfege()))
		},
	)
	return widget.NewCard("Keyboard", "", container.NewScroll(p.keyList))
}

func (p *PianoGUI) keyDown(ev *fyne.KeyEvent) {
	if ev.Name == fyne.KeyEscape {
		p.app.Quit()
		return
	}
	if key := keyString(ev.Name); key != "" {
		p.show(p.ctl.Hold(key))
	}
}

func (p *PianoGUI) keyUp(ev *fyne.KeyEvent) {
	if key := keyString(ev.Name); key != "" {
		p.show(p.ctl.Release(key))
	}
}

func (p *PianoGUI) nextLayout() {
	p.show(p.ctl.NextLayout())
}

// show reflects a key result in the window. It runs on the UI goroutine.
func (p *PianoGUI) show(r keyboard.Result, err error) {
	if err != nil {
		p.showError(err)
		return
	}
	switch r.Kind {
	case keyboard.Played:
		p.noteLabel.SetText(fmt.Sprintf("%s  %s  %.2f Hz", r.Symbol, r.Symbol.Solfege(), r.Frequency))
	case keyboard.Stopped:
		p.noteLabel.SetText("-")
	case keyboard.BasetonePrompt:
		// no text prompt here, the key steps through the basetones
		p.show(p.ctl.NextBasetone())
	case keyboard.BasetoneChanged, keyboard.InstrumentChanged, keyboard.VolumeChanged, keyboard.LayoutChanged:
		p.refresh()
	case keyboard.Quit:
		p.app.Quit()
	}
}

// refresh copies the session settings and the active layout into the widgets
func (p *PianoGUI) refresh() {
	st := p.sess.Settings()
	l := p.ctl.Layout()

	p.layoutLabel.SetText(l.Title)
	p.descriptionLabel.SetText(l.Description)
	p.layoutButton.Disable()
	if p.ctl.Layouts() > 1 {
		p.layoutButton.Enable()
	}

	p.basetoneSelect.SetSelected(st.Basetone.String())
	p.instrumentSelect.SetSelected(st.Instrument.String())
	p.volumeSlider.SetValue(st.Volume)
	p.volumeLabel.SetText(fmt.Sprintf("%.0f%%", st.Volume*100))

	p.keys = l.NoteKeys()
	p.keyList.Refresh()
}

func (p *PianoGUI) showError(err error) {
	p.log.Warn("command failed", "err", err)
	if errors.Is(err, audio.ErrOutputDevice) {
		p.fail(err)
		return
	}
	dialog.ShowError(err, p.window)
}

// fail reports a lost audio device once and disables playing
func (p *PianoGUI) fail(err error) {
	if p.failed {
		return
	}
	p.failed = true
	p.statusLabel.SetText("Audio unavailable")
	p.stopButton.Disable()
	dialog.ShowError(err, p.window)
}

func (p *PianoGUI) startUpdateTicker() {
	p.ticker = time.NewTicker(100 * time.Millisecond)

	go func() {
		for {
			select {
			case <-p.ticker.C:
				err := p.sess.Err()
				active := p.sess.ActiveVoices()
				fyne.Do(func() {
					if err != nil {
						p.fail(err)
						return
					}
					if active > 0 {
						p.statusLabel.SetText(fmt.Sprintf("Playing (%d voices)", active))
					} else {
						p.statusLabel.SetText("Ready")
					}
				})
			case <-p.done:
				return
			}
		}
	}()
}

func (p *PianoGUI) showAbout() {
	var b strings.Builder
	for _, bt := range notes.Basetones() {
		fmt.Fprintf(&b, "%s ", bt)
	}
	aboutContent := container.NewVBox(
		widget.NewLabelWithStyle("Piano Code", fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
		widget.NewLabel(""),
		widget.NewLabel("Play numbered solfege notes from the computer keyboard"),
		widget.NewLabel("1 to 7 are do re mi fa sol la si, '.' lowers and '^' raises an octave"),
		widget.NewLabel("Basetones: "+strings.TrimSpace(b.String())),
	)
	dialog.ShowCustom("About Piano Code", "OK", aboutContent, p.window)
}

func (p *PianoGUI) cleanup() {
	if p.ticker != nil {
		p.ticker.Stop()
		close(p.done)
	}
	if err := p.sess.Close(); err != nil {
		p.log.Error("closing session", "err", err)
	}
}

func (p *PianoGUI) Run() {
	p.window.ShowAndRun()
}

// keyString converts a fyne key name to a layout key. Letters are lower
// cased; punctuation keys are named by their character.
func keyString(name fyne.KeyName) string {
	if name == fyne.KeySpace {
		return keyboard.StopKey
	}
	if len(name) != 1 {
		return ""
	}
	return strings.ToLower(string(name))
}
