// Package session owns the set of sounding voices and exposes the control
// surface used by the front-ends. A Session is also the audio.Source its
// output device pulls from.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olivierh59500/piano-code/pkg/audio"
	"github.com/olivierh59500/piano-code/pkg/notes"
	"github.com/olivierh59500/piano-code/pkg/synth"
)

var (
	// ErrInvalidFrequency is returned by PlayFrequency for a non-positive or inaudible frequency
	ErrInvalidFrequency = errors.New("invalid frequency")
	// ErrInvalidVolume is returned for a volume or gain outside [0, 1]
	ErrInvalidVolume = errors.New("invalid volume")
	// ErrClosed is returned by every command after Close
	ErrClosed = errors.New("session closed")
)

// MaxFrequency is the highest frequency accepted by PlayFrequency, further
// limited to the Nyquist frequency of the session
const MaxFrequency = 20000.0

// Settings is a snapshot of the session state
type Settings struct {
	SampleRate   int
	BufferSize   int
	Duration     time.Duration
	Instrument   synth.Instrument
	Basetone     notes.Basetone
	Volume       float64
	ActiveVoices int
}

// Session is a playback session
type Session struct {
	out        audio.Output
	log        *slog.Logger
	sampleRate int
	bufferSize int
	gain       float64
	onChange   func(Settings)

	mu         sync.Mutex // guards everything below
	basetone   notes.Basetone
	instrument synth.Instrument
	duration   time.Duration
	voices     map[synth.VoiceID]*synth.Voice
	nextID     synth.VoiceID
	closed     bool
	failed     error

	volume atomic.Uint64 // math.Float64bits

	renderMu sync.Mutex // serializes Render
	mixer    *synth.Mixer
	live     []*synth.Voice
	renders  atomic.Uint64
}

// New opens out and starts pulling audio from the session
func New(out audio.Output, opts ...Option) (*Session, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	switch {
	case cfg.sampleRate <= 0:
		return nil, fmt.Errorf("invalid sample rate %d", cfg.sampleRate)
	case cfg.bufferSize <= 0:
		return nil, fmt.Errorf("invalid buffer size %d", cfg.bufferSize)
	case !cfg.basetone.Valid():
		return nil, fmt.Errorf("%w: %d", notes.ErrInvalidBasetone, int(cfg.basetone))
	case !cfg.instrument.Valid():
		return nil, fmt.Errorf("%w: %d", synth.ErrInvalidInstrument, int(cfg.instrument))
	}
	if err := checkLevel(cfg.volume); err != nil {
		return nil, err
	}
	if err := checkLevel(cfg.gain); err != nil {
		return nil, fmt.Errorf("voice gain: %w", err)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	s := &Session{
		out:        out,
		log:        cfg.logger,
		sampleRate: cfg.sampleRate,
		bufferSize: cfg.bufferSize,
		gain:       cfg.gain,
		onChange:   cfg.onChange,
		basetone:   cfg.basetone,
		instrument: cfg.instrument,
		duration:   cfg.duration,
		voices:     make(map[synth.VoiceID]*synth.Voice),
		nextID:     1,
		mixer:      synth.NewMixer(cfg.bufferSize),
	}
	s.volume.Store(math.Float64bits(cfg.volume))

	if err := out.Open(cfg.sampleRate, 1, cfg.bufferSize); err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	if err := out.Start(s); err != nil {
		out.Close()
		return nil, fmt.Errorf("start output: %w", err)
	}

	s.log.Debug("session started",
		"rate", cfg.sampleRate,
		"buffer", cfg.bufferSize,
		"instrument", cfg.instrument,
		"basetone", cfg.basetone,
		"volume", cfg.volume)
	return s, nil
}

func checkLevel(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: %v (want 0..1)", ErrInvalidVolume, v)
	}
	return nil
}

// usableLocked returns the reason the session cannot accept commands, if any.
// It latches the first device failure and silences every voice.
func (s *Session) usableLocked() error {
	if s.failed != nil {
		return s.failed
	}
	if err := s.out.Err(); err != nil {
		if !errors.Is(err, audio.ErrOutputDevice) {
			err = fmt.Errorf("%w: %w", audio.ErrOutputDevice, err)
		}
		s.failed = err
		clear(s.voices)
		s.log.Error("audio output failed", "err", err)
		return err
	}
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Err returns the device failure that stopped the session, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}

func (s *Session) noteConfigLocked(opts []NoteOption) (noteConfig, error) {
	nc := noteConfig{instrument: s.instrument, duration: s.duration, gain: s.gain}
	for _, opt := range opts {
		opt(&nc)
	}
	if !nc.instrument.Valid() {
		return nc, fmt.Errorf("%w: %d", synth.ErrInvalidInstrument, int(nc.instrument))
	}
	if err := checkLevel(nc.gain); err != nil {
		return nc, fmt.Errorf("note gain: %w", err)
	}
	return nc, nil
}

func (s *Session) addVoiceLocked(nc noteConfig, hz float64, sym *notes.Symbol) synth.VoiceID {
	id := s.nextID
	s.nextID++
	s.voices[id] = synth.NewVoice(id, synth.VoiceConfig{
		Instrument: nc.instrument,
		Frequency:  hz,
		Duration:   nc.duration,
		Gain:       nc.gain,
		SampleRate: s.sampleRate,
		Symbol:     sym,
	})
	return id
}

// Play resolves sym against the current basetone and starts a voice
func (s *Session) Play(sym notes.Symbol, opts ...NoteOption) (synth.VoiceID, error) {
	ids, err := s.PlayChord([]notes.Symbol{sym}, opts...)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// PlayChord starts one voice per symbol. Either every note starts, on the same
// render block, or none does. An empty chord is a no-op.
func (s *Session) PlayChord(syms []notes.Symbol, opts ...NoteOption) ([]synth.VoiceID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return nil, err
	}
	if len(syms) == 0 {
		return nil, nil
	}
	nc, err := s.noteConfigLocked(opts)
	if err != nil {
		return nil, err
	}

	freqs := make([]float64, len(syms))
	for i, sym := range syms {
		hz, err := notes.Resolve(sym, s.basetone)
		if err != nil {
			return nil, err
		}
		freqs[i] = hz
	}

	ids := make([]synth.VoiceID, len(syms))
	for i := range syms {
		ids[i] = s.addVoiceLocked(nc, freqs[i], &syms[i])
	}
	s.log.Debug("note on", "notes", syms, "basetone", s.basetone, "instrument", nc.instrument)
	return ids, nil
}

// PlayFrequency starts a voice at hz without going through the note table
func (s *Session) PlayFrequency(hz float64, opts ...NoteOption) (synth.VoiceID, error) {
	if limit := min(MaxFrequency, float64(s.sampleRate)/2); math.IsNaN(hz) || hz <= 0 || hz > limit {
		return 0, fmt.Errorf("%w: %v Hz (want 0 < hz <= %v)", ErrInvalidFrequency, hz, limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return 0, err
	}
	nc, err := s.noteConfigLocked(opts)
	if err != nil {
		return 0, err
	}
	id := s.addVoiceLocked(nc, hz, nil)
	s.log.Debug("frequency on", "hz", hz, "instrument", nc.instrument)
	return id, nil
}

// StopNote moves a voice into its release phase. Unknown or finished voices are ignored.
func (s *Session) StopNote(id synth.VoiceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	if v, ok := s.voices[id]; ok {
		v.Release()
	}
	return nil
}

// StopAll releases every sounding voice
func (s *Session) StopAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	for _, v := range s.voices {
		v.Release()
	}
	return nil
}

// SetBasetone changes the root used for subsequent notes
func (s *Session) SetBasetone(b notes.Basetone) error {
	if !b.Valid() {
		return fmt.Errorf("%w: %d", notes.ErrInvalidBasetone, int(b))
	}

	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	changed := s.basetone != b
	if changed {
		s.log.Info("basetone changed", "from", s.basetone, "to", b)
		s.basetone = b
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return nil
}

// SetInstrument changes the instrument used for subsequent notes
func (s *Session) SetInstrument(i synth.Instrument) error {
	if !i.Valid() {
		return fmt.Errorf("%w: %d", synth.ErrInvalidInstrument, int(i))
	}

	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	changed := s.instrument != i
	if changed {
		s.log.Info("instrument changed", "from", s.instrument, "to", i)
		s.instrument = i
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return nil
}

// SetDuration changes the default note length; zero or negative holds notes
func (s *Session) SetDuration(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	s.duration = d
	return nil
}

// Volume returns the master volume
func (s *Session) Volume() float64 {
	return math.Float64frombits(s.volume.Load())
}

// SetVolume sets the master volume. It applies to voices already sounding.
func (s *Session) SetVolume(v float64) error {
	if err := checkLevel(v); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	changed := s.setVolumeLocked(v)
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return nil
}

// setVolumeLocked stores v and reports whether it differs from the old volume
func (s *Session) setVolumeLocked(v float64) bool {
	if math.Float64bits(v) == s.volume.Swap(math.Float64bits(v)) {
		return false
	}
	s.log.Debug("volume changed", "volume", v)
	return true
}

// notify passes a settings snapshot to the change hook
func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange(s.Settings())
	}
}

// AdjustVolume adds delta to the master volume, clamping to [0, 1], and
// returns the new value
func (s *Session) AdjustVolume(delta float64) (float64, error) {
	if math.IsNaN(delta) {
		return s.Volume(), fmt.Errorf("%w: delta is NaN", ErrInvalidVolume)
	}

	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return s.Volume(), err
	}
	v := math.Round((s.Volume()+delta)*1000) / 1000
	v = max(0, min(1, v))
	changed := s.setVolumeLocked(v)
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return v, nil
}

// VolumeUp raises the master volume by VolumeStep
func (s *Session) VolumeUp() (float64, error) { return s.AdjustVolume(VolumeStep) }

// VolumeDown lowers the master volume by VolumeStep
func (s *Session) VolumeDown() (float64, error) { return s.AdjustVolume(-VolumeStep) }

// Settings returns a snapshot of the session state
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Settings{
		SampleRate:   s.sampleRate,
		BufferSize:   s.bufferSize,
		Duration:     s.duration,
		Instrument:   s.instrument,
		Basetone:     s.basetone,
		Volume:       s.Volume(),
		ActiveVoices: len(s.voices),
	}
}

// ActiveVoices returns the number of voices not yet removed by the renderer
func (s *Session) ActiveVoices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.voices)
}

// VoiceInfo describes a voice that has not been removed yet
type VoiceInfo struct {
	ID         synth.VoiceID
	Frequency  float64
	Instrument synth.Instrument
	Phase      synth.Phase
	Held       bool
}

// Voices returns a snapshot of the live voices in no particular order
func (s *Session) Voices() []VoiceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]VoiceInfo, 0, len(s.voices))
	for _, v := range s.voices {
		out = append(out, VoiceInfo{
			ID:         v.ID(),
			Frequency:  v.Frequency(),
			Instrument: v.Instrument(),
			Phase:      v.Phase(),
			Held:       v.Held(),
		})
	}
	return out
}

// Resolve returns the frequency sym would sound at with the current basetone
func (s *Session) Resolve(sym notes.Symbol) (float64, error) {
	s.mu.Lock()
	b := s.basetone
	s.mu.Unlock()
	return notes.Resolve(sym, b)
}

// Phase returns the envelope phase of a voice. Voices that have been removed
// report PhaseFinished and false.
func (s *Session) Phase(id synth.VoiceID) (synth.Phase, bool) {
	s.mu.Lock()
	v, ok := s.voices[id]
	s.mu.Unlock()

	if !ok {
		return synth.PhaseFinished, false
	}
	return v.Phase(), true
}

// Render fills buf with the next block of the mix. It is called by the output
// device and holds the voice lock only to snapshot and prune the voice set.
func (s *Session) Render(buf []float32) {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	s.mu.Lock()
	s.live = s.live[:0]
	for _, v := range s.voices {
		s.live = append(s.live, v)
	}
	s.mu.Unlock()

	finished := s.mixer.Mix(buf, s.live, s.Volume())

	if len(finished) > 0 {
		s.mu.Lock()
		for _, id := range finished {
			delete(s.voices, id)
		}
		s.mu.Unlock()
	}
	clear(s.live)
	s.renders.Add(1)
}

// Close releases every voice, lets the release tails play out while the
// device keeps pulling, then closes the output. Waiting is bounded by the
// longest release plus one buffer; whatever is still sounding after that is cut.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	healthy := s.usableLocked() == nil
	s.closed = true
	for _, v := range s.voices {
		v.Release()
	}
	pending := len(s.voices)
	s.mu.Unlock()

	if healthy && pending > 0 && s.out.IsPlaying() {
		s.drain()
	}

	s.mu.Lock()
	if n := len(s.voices); n > 0 {
		s.log.Debug("truncating voices", "count", n)
	}
	clear(s.voices)
	s.mu.Unlock()

	if err := s.out.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	s.log.Debug("session closed")
	return nil
}

// drain waits for released voices to finish or for the device to stop pulling
func (s *Session) drain() {
	block := time.Duration(s.bufferSize) * time.Second / time.Duration(s.sampleRate)
	deadline := time.Now().Add(time.Duration(synth.MaxRelease()*float64(time.Second)) + block)
	stall := max(4*block, 20*time.Millisecond)
	poll := max(block/2, time.Millisecond)

	lastRenders := s.renders.Load()
	lastProgress := time.Now()
	for time.Now().Before(deadline) {
		if s.ActiveVoices() == 0 {
			return
		}
		time.Sleep(poll)

		if r := s.renders.Load(); r != lastRenders {
			lastRenders = r
			lastProgress = time.Now()
		} else if time.Since(lastProgress) > stall {
			s.log.Debug("output stopped pulling during close")
			return
		}
	}
}
