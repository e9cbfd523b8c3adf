package gosf2synth

import (
	"errors"
	"fmt"

	"github.com/GeoffreyPlitt/debuggo"
)

var synthDebug = debuggo.Debug("sf2synth:synth")

// DefaultMasterVolume is the output gain of a new synthesizer.
const DefaultMasterVolume = 0.5

// declickTime is the length of the fade applied to the last output of a
// stolen voice, in seconds.
const declickTime = 0.005

// declick is the fading tail of a voice that was cut off.
type declick struct {
	left      float32
	right     float32
	remaining int
}

// Synthesizer renders stereo audio from MIDI channel messages using a
// SoundFont bank. It is not safe for concurrent use.
type Synthesizer struct {
	soundFont *SoundFont
	settings  Settings

	channels      [ChannelCount]*ChannelState
	presets       map[int]*Preset
	defaultPreset *Preset

	pool    *voicePool
	regions []EffectiveRegion
	noteID  uint64

	blockLeft  []float32
	blockRight []float32
	blockRead  int

	declicks      []declick
	declickLength int

	masterVolume float64
}

// NewSynthesizer creates a synthesizer for a loaded bank. All voice and
// block buffers are allocated here.
func NewSynthesizer(sf *SoundFont, settings Settings) (*Synthesizer, error) {
	if sf == nil {
		return nil, &StateError{Op: "create synthesizer", Err: errors.New("soundfont is nil")}
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}

	s := &Synthesizer{
		soundFont:     sf,
		settings:      settings,
		presets:       make(map[int]*Preset, len(sf.Presets)),
		pool:          newVoicePool(settings),
		regions:       make([]EffectiveRegion, 16),
		blockLeft:     make([]float32, settings.BlockSize),
		blockRight:    make([]float32, settings.BlockSize),
		blockRead:     settings.BlockSize,
		declicks:      make([]declick, settings.MaximumPolyphony),
		declickLength: int(declickTime * float64(settings.SampleRate)),
		masterVolume:  DefaultMasterVolume,
	}
	for i := range s.regions {
		s.regions[i].Modulators = make([]Modulator, 0, 16)
	}
	s.regions = s.regions[:0]
	if s.declickLength < 1 {
		s.declickLength = 1
	}

	for i := range sf.Presets {
		p := &sf.Presets[i]
		id := presetID(p.Bank, p.Program)
		if _, ok := s.presets[id]; !ok {
			s.presets[id] = p
		} else {
			synthDebug("Warning: duplicate preset %d:%d '%s', keeping the first", p.Bank, p.Program, p.Name)
		}
		if s.defaultPreset == nil || id < presetID(s.defaultPreset.Bank, s.defaultPreset.Program) {
			s.defaultPreset = p
		}
	}
	for i := range s.channels {
		s.channels[i] = newChannelState(i)
	}

	synthDebug("Created synthesizer: sample rate %d Hz, block %d, polyphony %d, filter %v",
		settings.SampleRate, settings.BlockSize, settings.MaximumPolyphony, settings.EnableLowPassFilter)
	return s, nil
}

// Ready reports whether the synthesizer can render.
func (s *Synthesizer) Ready() bool {
	return s != nil && s.soundFont != nil && s.pool != nil
}

func (s *Synthesizer) check(op string) error {
	if !s.Ready() {
		return &StateError{Op: op, Err: ErrNotInitialized}
	}
	return nil
}

// SoundFont returns the bank the synthesizer plays.
func (s *Synthesizer) SoundFont() *SoundFont { return s.soundFont }

// Settings returns the settings the synthesizer was created with.
func (s *Synthesizer) Settings() Settings { return s.settings }

// Channel returns the state of a MIDI channel, or nil if out of range.
func (s *Synthesizer) Channel(channel int) *ChannelState {
	if !s.Ready() || channel < 0 || channel >= ChannelCount {
		return nil
	}
	return s.channels[channel]
}

// MasterVolume returns the linear gain applied to the mix.
func (s *Synthesizer) MasterVolume() float64 { return s.masterVolume }

// SetMasterVolume sets the mix gain; negative values become 0.
func (s *Synthesizer) SetMasterVolume(v float64) {
	if v < 0 {
		v = 0
	}
	s.masterVolume = v
}

// ActiveVoiceCount returns the number of sounding voices.
func (s *Synthesizer) ActiveVoiceCount() int {
	if !s.Ready() {
		return 0
	}
	return s.pool.activeCount
}

// findPreset resolves a bank/program selection, falling back to bank 0 for
// melodic channels, to the standard kit for percussion, then to the
// lowest-numbered preset.
func (s *Synthesizer) findPreset(bank, program int) *Preset {
	if p, ok := s.presets[presetID(bank, program)]; ok {
		return p
	}
	if bank >= PercussionBank {
		if p, ok := s.presets[presetID(PercussionBank, program)]; ok {
			return p
		}
		if p, ok := s.presets[presetID(PercussionBank, 0)]; ok {
			return p
		}
	} else if p, ok := s.presets[presetID(0, program)]; ok {
		return p
	}
	return s.defaultPreset
}

func validChannel(channel int) bool {
	if channel < 0 || channel >= ChannelCount {
		synthDebug("Ignoring message for channel %d", channel)
		return false
	}
	return true
}

// NoteOn starts every region of the channel's preset that matches key and
// velocity. A velocity of zero is a note-off.
func (s *Synthesizer) NoteOn(channel, key, velocity int) error {
	if err := s.check("note on"); err != nil {
		return err
	}
	if !validChannel(channel) {
		return nil
	}
	key = clampInt(key, 0, 127)
	velocity = clampInt(velocity, 0, 127)
	if velocity == 0 {
		return s.NoteOff(channel, key)
	}

	ch := s.channels[channel]
	preset := s.findPreset(ch.bankNumber, ch.patchNumber)
	if preset == nil {
		return nil
	}

	s.noteID++
	s.regions = preset.Resolve(key, velocity, s.regions)
	for i := range s.regions {
		r := &s.regions[i]
		v, stolen := s.pool.request(channel, r.ExclusiveClass(), s.noteID)
		if stolen {
			s.addDeclick(v)
		}
		v.start(r, s.soundFont.WaveData, ch, channel, key, velocity, s.noteID)
	}
	return nil
}

// NoteOff releases the voices of a key, deferred while the hold pedal is down.
func (s *Synthesizer) NoteOff(channel, key int) error {
	if err := s.check("note off"); err != nil {
		return err
	}
	if !validChannel(channel) {
		return nil
	}
	s.pool.noteOff(channel, clampInt(key, 0, 127))
	return nil
}

// NoteOffAll releases every voice, or with immediate silences them at once.
func (s *Synthesizer) NoteOffAll(immediate bool) error {
	if err := s.check("note off all"); err != nil {
		return err
	}
	s.pool.noteOffAll(-1, immediate, s.addDeclick)
	return nil
}

// NoteOffAllChannel is NoteOffAll restricted to one channel.
func (s *Synthesizer) NoteOffAllChannel(channel int, immediate bool) error {
	if err := s.check("note off all"); err != nil {
		return err
	}
	if !validChannel(channel) {
		return nil
	}
	s.pool.noteOffAll(channel, immediate, s.addDeclick)
	return nil
}

// ControlChange applies a controller message. Values are clamped to 0..127.
func (s *Synthesizer) ControlChange(channel, controller, value int) error {
	if err := s.check("control change"); err != nil {
		return err
	}
	if !validChannel(channel) {
		return nil
	}
	ch := s.channels[channel]
	switch controller {
	case ccAllSoundOff:
		s.pool.noteOffAll(channel, true, s.addDeclick)
	case ccAllNotesOff:
		s.pool.noteOffAll(channel, false, nil)
	case ccResetControllers:
		ch.resetAllControllers()
		s.pool.releaseHeld(channel)
	default:
		held := ch.holdPedal
		ch.setController(controller, value)
		if held && !ch.holdPedal {
			s.pool.releaseHeld(channel)
		}
	}
	return nil
}

// ProgramChange selects the program for subsequent notes on a channel.
func (s *Synthesizer) ProgramChange(channel, program int) error {
	if err := s.check("program change"); err != nil {
		return err
	}
	if !validChannel(channel) {
		return nil
	}
	ch := s.channels[channel]
	ch.patchNumber = clampInt(program, 0, 127)
	if p := s.findPreset(ch.bankNumber, ch.patchNumber); p != nil {
		synthDebug("Channel %d program %d:%d -> '%s'", channel, ch.bankNumber, ch.patchNumber, p.Name)
	}
	return nil
}

// PitchBend sets the 14-bit pitch wheel position, 8192 being centered.
func (s *Synthesizer) PitchBend(channel, value int) error {
	if err := s.check("pitch bend"); err != nil {
		return err
	}
	if !validChannel(channel) {
		return nil
	}
	s.channels[channel].pitchBend = clampInt(value, 0, 16383)
	return nil
}

// ChannelPressure sets the channel aftertouch value.
func (s *Synthesizer) ChannelPressure(channel, value int) error {
	if err := s.check("channel pressure"); err != nil {
		return err
	}
	if !validChannel(channel) {
		return nil
	}
	s.channels[channel].channelPressure = clampInt(value, 0, 127)
	return nil
}

// ProcessMidiMessage dispatches a channel voice message by status nibble.
func (s *Synthesizer) ProcessMidiMessage(channel, command, data1, data2 int) error {
	switch command & 0xF0 {
	case 0x80:
		return s.NoteOff(channel, data1)
	case 0x90:
		return s.NoteOn(channel, data1, data2)
	case 0xB0:
		return s.ControlChange(channel, data1, data2)
	case 0xC0:
		return s.ProgramChange(channel, data1)
	case 0xD0:
		return s.ChannelPressure(channel, data1)
	case 0xE0:
		return s.PitchBend(channel, data2<<7|data1)
	}
	return s.check("midi message")
}

// Reset silences every voice and restores all channels to power-on state.
func (s *Synthesizer) Reset() error {
	if err := s.check("reset"); err != nil {
		return err
	}
	s.pool.clear()
	for _, ch := range s.channels {
		ch.reset()
	}
	for i := range s.declicks {
		s.declicks[i] = declick{}
	}
	s.blockRead = s.settings.BlockSize
	synthDebug("Synthesizer reset")
	return nil
}

// Render fills left and right with the next len(left) frames, replacing
// their contents. right must be at least as long as left.
func (s *Synthesizer) Render(left, right []float32) error {
	if err := s.check("render"); err != nil {
		return err
	}
	if len(right) < len(left) {
		return fmt.Errorf("failed to render: right buffer has %d frames, left has %d", len(right), len(left))
	}

	blockSize := s.settings.BlockSize
	wrote := 0
	for wrote < len(left) {
		if s.blockRead == blockSize {
			s.renderBlock()
			s.blockRead = 0
		}
		n := blockSize - s.blockRead
		if rest := len(left) - wrote; n > rest {
			n = rest
		}
		copy(left[wrote:wrote+n], s.blockLeft[s.blockRead:s.blockRead+n])
		copy(right[wrote:wrote+n], s.blockRight[s.blockRead:s.blockRead+n])
		s.blockRead += n
		wrote += n
	}
	return nil
}

// RenderInterleaved fills dst with interleaved stereo frames.
func (s *Synthesizer) RenderInterleaved(dst []float32) error {
	if err := s.check("render"); err != nil {
		return err
	}
	if len(dst)%2 != 0 {
		return fmt.Errorf("failed to render: interleaved buffer length %d is odd", len(dst))
	}

	blockSize := s.settings.BlockSize
	frames := len(dst) / 2
	wrote := 0
	for wrote < frames {
		if s.blockRead == blockSize {
			s.renderBlock()
			s.blockRead = 0
		}
		n := blockSize - s.blockRead
		if rest := frames - wrote; n > rest {
			n = rest
		}
		for i := 0; i < n; i++ {
			dst[2*(wrote+i)] = s.blockLeft[s.blockRead+i]
			dst[2*(wrote+i)+1] = s.blockRight[s.blockRead+i]
		}
		s.blockRead += n
		wrote += n
	}
	return nil
}

func (s *Synthesizer) renderBlock() {
	for i := range s.blockLeft {
		s.blockLeft[i] = 0
		s.blockRight[i] = 0
	}

	s.pool.process(nil)
	for _, v := range s.pool.active() {
		s.mixVoice(v)
	}
	s.mixDeclicks()

	if s.masterVolume != 1 {
		g := float32(s.masterVolume)
		for i := range s.blockLeft {
			s.blockLeft[i] *= g
			s.blockRight[i] *= g
		}
	}
}

// mixVoice adds a voice block, ramping its gains linearly across the block.
func (s *Synthesizer) mixVoice(v *Voice) {
	n := len(v.block)
	prevL, prevR := v.previousGainLeft, v.previousGainRight
	curL, curR := v.currentGainLeft, v.currentGainRight
	if prevL == 0 && prevR == 0 && curL == 0 && curR == 0 {
		v.lastLeft, v.lastRight = 0, 0
		return
	}

	stepL := (curL - prevL) / float32(n)
	stepR := (curR - prevR) / float32(n)
	for t, x := range v.block {
		gl := prevL + stepL*float32(t+1)
		gr := prevR + stepR*float32(t+1)
		s.blockLeft[t] += x * gl
		s.blockRight[t] += x * gr
	}
	last := v.block[n-1]
	v.lastLeft, v.lastRight = last*curL, last*curR
}

// addDeclick queues the fade-out of a voice that is about to be cut off.
func (s *Synthesizer) addDeclick(v *Voice) {
	if v.lastLeft == 0 && v.lastRight == 0 {
		return
	}
	slot := 0
	for i := range s.declicks {
		if s.declicks[i].remaining < s.declicks[slot].remaining {
			slot = i
		}
		if s.declicks[i].remaining == 0 {
			slot = i
			break
		}
	}
	s.declicks[slot] = declick{left: v.lastLeft, right: v.lastRight, remaining: s.declickLength}
	v.lastLeft, v.lastRight = 0, 0
}

func (s *Synthesizer) mixDeclicks() {
	length := float32(s.declickLength)
	for i := range s.declicks {
		d := &s.declicks[i]
		for t := 0; t < len(s.blockLeft) && d.remaining > 0; t++ {
			d.remaining--
			g := float32(d.remaining) / length
			s.blockLeft[t] += d.left * g
			s.blockRight[t] += d.right * g
		}
	}
}
