package gosf2synth

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/maddyblue/go-dsp/fft"
)

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Settings)
		field  string
	}{
		{"defaults", func(s *Settings) {}, ""},
		{"sample rate too low", func(s *Settings) { s.SampleRate = 4000 }, "sample rate"},
		{"sample rate too high", func(s *Settings) { s.SampleRate = 384000 }, "sample rate"},
		{"block size too small", func(s *Settings) { s.BlockSize = 4 }, "block size"},
		{"block size too large", func(s *Settings) { s.BlockSize = 2048 }, "block size"},
		{"no voices", func(s *Settings) { s.MaximumPolyphony = 0 }, "maximum polyphony"},
		{"too many voices", func(s *Settings) { s.MaximumPolyphony = 257 }, "maximum polyphony"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := DefaultSettings(44100)
			test.modify(&s)
			err := s.Validate()
			if test.field == "" {
				if err != nil {
					t.Errorf("Expected valid settings, got %v", err)
				}
				return
			}
			var rangeErr *RangeError
			if !errors.As(err, &rangeErr) {
				t.Fatalf("Expected *RangeError, got %v", err)
			}
			if rangeErr.Field != test.field {
				t.Errorf("Expected field '%s', got '%s'", test.field, rangeErr.Field)
			}
		})
	}
}

func TestNewSynthesizerErrors(t *testing.T) {
	if _, err := NewSynthesizer(nil, DefaultSettings(44100)); err == nil {
		t.Error("Expected error for nil soundfont")
	}

	sf := loadTestBank(t, sineBankBuilder())
	_, err := NewSynthesizer(sf, DefaultSettings(1000))
	var rangeErr *RangeError
	if !errors.As(err, &rangeErr) {
		t.Errorf("Expected wrapped *RangeError, got %v", err)
	}
}

func TestZeroValueSynthesizer(t *testing.T) {
	var s Synthesizer
	if s.Ready() {
		t.Error("Expected zero-value synthesizer not to be ready")
	}

	left := make([]float32, 64)
	right := make([]float32, 64)
	calls := []struct {
		name string
		call func() error
	}{
		{"render", func() error { return s.Render(left, right) }},
		{"render interleaved", func() error { return s.RenderInterleaved(left) }},
		{"note on", func() error { return s.NoteOn(0, 60, 100) }},
		{"note off", func() error { return s.NoteOff(0, 60) }},
		{"control change", func() error { return s.ControlChange(0, 7, 100) }},
		{"reset", func() error { return s.Reset() }},
	}
	for _, c := range calls {
		t.Run(c.name, func(t *testing.T) {
			err := c.call()
			var stateErr *StateError
			if !errors.As(err, &stateErr) {
				t.Fatalf("Expected *StateError, got %v", err)
			}
			if !errors.Is(err, ErrNotInitialized) {
				t.Errorf("Expected ErrNotInitialized, got %v", err)
			}
		})
	}
}

func TestRenderSilenceWithoutNotes(t *testing.T) {
	synth := createTestSynth(t, loadTestBank(t, sineBankBuilder()), 8)
	left, right := renderFrames(t, synth, 1000)
	if peak(left) != 0 || peak(right) != 0 {
		t.Errorf("Expected silence, got peaks %f / %f", peak(left), peak(right))
	}

	if err := synth.Render(make([]float32, 10), make([]float32, 5)); err == nil {
		t.Error("Expected error for short right buffer")
	}
}

func TestVelocityZeroIsSilent(t *testing.T) {
	synth := createTestSynth(t, loadTestBank(t, sineBankBuilder()), 8)
	if err := synth.NoteOn(0, 69, 0); err != nil {
		t.Fatalf("NoteOn failed: %v", err)
	}
	if synth.ActiveVoiceCount() != 0 {
		t.Errorf("Expected no voices, got %d", synth.ActiveVoiceCount())
	}
	left, right := renderFrames(t, synth, 4096)
	if peak(left) != 0 || peak(right) != 0 {
		t.Errorf("Expected silence, got peaks %f / %f", peak(left), peak(right))
	}
}

// dominantFrequency returns the strongest FFT bin of a signal, in Hz.
func dominantFrequency(signal []float32, sampleRate int) float64 {
	input := make([]float64, len(signal))
	for i, x := range signal {
		input[i] = float64(x)
	}
	spectrum := fft.FFTReal(input)

	best := 1
	for i := 1; i < len(input)/2; i++ {
		if cmplx.Abs(spectrum[i]) > cmplx.Abs(spectrum[best]) {
			best = i
		}
	}
	return float64(best) * float64(sampleRate) / float64(len(input))
}

func TestSineBankPitch(t *testing.T) {
	tests := []struct {
		name     string
		key      int
		gens     []Generator
		expected float64
	}{
		{"root key", 69, nil, 440},
		{"octave up", 81, nil, 880},
		{"fine tune down", 70, []Generator{{Type: GenFineTune, Value: -50}}, 440 * math.Pow(2, 50.0/1200)},
		{"coarse tune", 69, []Generator{{Type: GenCoarseTune, Value: -12}}, 220},
	}

	const n = 16384
	binWidth := float64(testSampleRate) / n
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			synth := createTestSynth(t, loadTestBank(t, sineBankBuilder(test.gens...)), 8)
			if err := synth.NoteOn(0, test.key, 100); err != nil {
				t.Fatalf("NoteOn failed: %v", err)
			}

			renderFrames(t, synth, 2048)
			left, _ := renderFrames(t, synth, n)
			if peak(left) == 0 {
				t.Fatal("Expected sound from the sine bank")
			}
			freq := dominantFrequency(left, testSampleRate)
			if math.Abs(freq-test.expected) > 2*binWidth {
				t.Errorf("Expected dominant frequency near %.1f Hz, got %.1f Hz", test.expected, freq)
			}
		})
	}
}

func TestDefaultCutoffLeavesFilterOpen(t *testing.T) {
	sf := loadTestBank(t, sineBankBuilder())
	render := func(filter bool) []float32 {
		settings := DefaultSettings(22050)
		settings.EnableLowPassFilter = filter
		synth, err := NewSynthesizer(sf, settings)
		if err != nil {
			t.Fatalf("Failed to create synthesizer: %v", err)
		}
		synth.NoteOn(0, 93, 100)
		left, right := make([]float32, 4096), make([]float32, 4096)
		if err := synth.Render(left, right); err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		return left
	}

	filtered := render(true)
	unfiltered := render(false)
	if peak(unfiltered) == 0 {
		t.Fatal("Expected sound from the sine bank")
	}
	for i := range filtered {
		if filtered[i] != unfiltered[i] {
			t.Fatalf("Frame %d: expected %f with the filter open, got %f", i, unfiltered[i], filtered[i])
		}
	}
}

func TestNoteEnvelopeDuration(t *testing.T) {
	// Attack 0.1 s, hold 0.1 s, decay 0.3 s to silence, release 0.2 s.
	sf := loadTestBank(t, sineBankBuilder(
		Generator{Type: GenAttackVolumeEnvelope, Value: -3986},
		Generator{Type: GenHoldVolumeEnvelope, Value: -3986},
		Generator{Type: GenDecayVolumeEnvelope, Value: -2084},
		Generator{Type: GenSustainVolumeEnvelope, Value: 1440},
		Generator{Type: GenReleaseVolumeEnvelope, Value: -2786},
	))
	synth := createTestSynth(t, sf, 8)
	if err := synth.NoteOn(0, 69, 127); err != nil {
		t.Fatalf("NoteOn failed: %v", err)
	}

	block := 441
	blocks := 0
	for synth.ActiveVoiceCount() > 0 {
		renderFrames(t, synth, block)
		blocks++
		if blocks > 1000 {
			t.Fatal("Voice never finished")
		}
	}
	seconds := float64(blocks*block) / testSampleRate
	// The decay reaches -60 dB at 60% of its nominal time.
	expected := 0.1 + 0.1 + 0.6*0.3
	if math.Abs(seconds-expected) > 0.05 {
		t.Errorf("Expected voice to end after about %.2f s, got %.2f s", expected, seconds)
	}
}

func TestNoteOffReleases(t *testing.T) {
	sf := loadTestBank(t, sineBankBuilder(Generator{Type: GenReleaseVolumeEnvelope, Value: -2786}))
	synth := createTestSynth(t, sf, 8)
	synth.NoteOn(0, 69, 100)
	renderFrames(t, synth, 4410)
	if synth.ActiveVoiceCount() != 1 {
		t.Fatalf("Expected 1 voice while held, got %d", synth.ActiveVoiceCount())
	}

	synth.NoteOff(0, 69)
	renderFrames(t, synth, 2205)
	if synth.ActiveVoiceCount() != 1 {
		t.Errorf("Expected voice still releasing after 50 ms, got %d", synth.ActiveVoiceCount())
	}
	renderFrames(t, synth, 22050)
	if synth.ActiveVoiceCount() != 0 {
		t.Errorf("Expected voice finished after release, got %d", synth.ActiveVoiceCount())
	}
}

func TestHoldPedalDefersRelease(t *testing.T) {
	sf := loadTestBank(t, sineBankBuilder(Generator{Type: GenReleaseVolumeEnvelope, Value: -4000}))
	synth := createTestSynth(t, sf, 8)

	synth.ControlChange(0, ccHoldPedal, 127)
	synth.NoteOn(0, 69, 100)
	renderFrames(t, synth, 1024)
	synth.NoteOff(0, 69)
	renderFrames(t, synth, 22050)
	if synth.ActiveVoiceCount() != 1 {
		t.Fatalf("Expected voice held by the pedal, got %d voices", synth.ActiveVoiceCount())
	}
	if stage := synth.pool.active()[0].Stage(); stage == EnvelopeRelease {
		t.Errorf("Expected held voice to stay out of release, got %s", stage)
	}

	synth.ControlChange(0, ccHoldPedal, 0)
	renderFrames(t, synth, 22050)
	if synth.ActiveVoiceCount() != 0 {
		t.Errorf("Expected pedal-up to release the voice, got %d voices", synth.ActiveVoiceCount())
	}
}

func TestPolyphonyLimitAndStealing(t *testing.T) {
	sf := loadTestBank(t, sineBankBuilder(Generator{Type: GenReleaseVolumeEnvelope, Value: 1200}))
	const capacity = 4
	synth := createTestSynth(t, sf, capacity)

	for key := 60; key < 60+capacity; key++ {
		synth.NoteOn(0, key, 100)
	}
	renderFrames(t, synth, 4410)

	// Key 61 is released and fades slowly; it becomes the quietest voice.
	synth.NoteOff(0, 61)
	renderFrames(t, synth, 4410)

	synth.NoteOn(0, 80, 100)
	if n := synth.ActiveVoiceCount(); n != capacity {
		t.Fatalf("Expected %d voices, got %d", capacity, n)
	}

	keys := map[int]bool{}
	for _, v := range synth.pool.active() {
		keys[v.Key()] = true
	}
	if keys[61] {
		t.Error("Expected the released voice to be stolen")
	}
	for _, key := range []int{60, 62, 63, 80} {
		if !keys[key] {
			t.Errorf("Expected key %d to keep sounding", key)
		}
	}

	for i := 0; i < 20; i++ {
		synth.NoteOn(0, 40+i, 100)
		if n := synth.ActiveVoiceCount(); n > capacity {
			t.Fatalf("Expected at most %d voices, got %d", capacity, n)
		}
	}
}

func TestStolenVoiceIsDeclicked(t *testing.T) {
	synth := createTestSynth(t, loadTestBank(t, sineBankBuilder()), 1)
	synth.NoteOn(0, 69, 127)
	renderFrames(t, synth, 4410)

	synth.NoteOn(0, 57, 127)
	active := 0
	for _, d := range synth.declicks {
		if d.remaining > 0 {
			active++
		}
	}
	if active != 1 {
		t.Errorf("Expected one declick ramp for the stolen voice, got %d", active)
	}

	renderFrames(t, synth, synth.declickLength+synth.settings.BlockSize)
	for _, d := range synth.declicks {
		if d.remaining != 0 {
			t.Errorf("Expected declick ramp to finish, %d frames left", d.remaining)
		}
	}
}

func TestPanExtremes(t *testing.T) {
	tests := []struct {
		name      string
		pan       int16
		leftLoud  bool
		rightLoud bool
	}{
		{"hard left", -500, true, false},
		{"center", 0, true, true},
		{"hard right", 500, false, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sf := loadTestBank(t, sineBankBuilder(Generator{Type: GenPan, Value: test.pan}))
			synth := createTestSynth(t, sf, 4)
			synth.NoteOn(0, 69, 127)
			left, right := renderFrames(t, synth, 8192)

			l, r := rms(left[4096:]), rms(right[4096:])
			if test.leftLoud != (l > 1e-3) {
				t.Errorf("Expected left loud=%v, rms %f", test.leftLoud, l)
			}
			if test.rightLoud != (r > 1e-3) {
				t.Errorf("Expected right loud=%v, rms %f", test.rightLoud, r)
			}
			if test.leftLoud && test.rightLoud && math.Abs(l-r) > 0.01*l {
				t.Errorf("Expected equal channels at center, got %f / %f", l, r)
			}
		})
	}
}

func TestChannelPanController(t *testing.T) {
	synth := createTestSynth(t, loadTestBank(t, sineBankBuilder()), 4)
	synth.ControlChange(0, ccPan, 0)
	synth.NoteOn(0, 69, 127)
	left, right := renderFrames(t, synth, 8192)
	if rms(right[4096:]) > 1e-3 {
		t.Errorf("Expected CC10=0 to silence the right channel, rms %f", rms(right[4096:]))
	}
	if rms(left[4096:]) < 1e-3 {
		t.Error("Expected sound on the left channel")
	}
}

func TestNonLoopingVoiceFinishes(t *testing.T) {
	b := NewBankBuilder("One Shot")
	s := b.AddSample(SampleSpec{Name: "shot", Data: sineSamples(4410, 100, 0.8), SampleRate: 44100, OriginalPitch: 60})
	inst := b.AddInstrument("Shot", nil, InstrumentZoneSpec{Sample: s})
	b.AddPreset("Shot", 0, 0, nil, PresetZoneSpec{Instrument: inst})
	synth := createTestSynth(t, loadTestBank(t, b), 4)

	synth.NoteOn(0, 60, 100)
	renderFrames(t, synth, 2205)
	if synth.ActiveVoiceCount() != 1 {
		t.Fatalf("Expected voice while the sample plays, got %d", synth.ActiveVoiceCount())
	}
	renderFrames(t, synth, 4410)
	if synth.ActiveVoiceCount() != 0 {
		t.Errorf("Expected voice to finish at the sample end, got %d", synth.ActiveVoiceCount())
	}
}

func TestLoopingVoiceSustains(t *testing.T) {
	synth := createTestSynth(t, loadTestBank(t, sineBankBuilder()), 4)
	synth.NoteOn(0, 69, 100)
	for i := 0; i < 20; i++ {
		left, _ := renderFrames(t, synth, 4410)
		if rms(left) < 1e-3 {
			t.Fatalf("Expected looping sample to keep sounding, silent after %d blocks", i)
		}
	}
}

func TestExclusiveClassReplacesVoice(t *testing.T) {
	sf := loadTestBank(t, sineBankBuilder(Generator{Type: GenExclusiveClass, Value: 1}))
	synth := createTestSynth(t, sf, 8)

	synth.NoteOn(0, 60, 100)
	synth.NoteOn(0, 62, 100)
	if n := synth.ActiveVoiceCount(); n != 1 {
		t.Errorf("Expected exclusive class to keep one voice, got %d", n)
	}
	if key := synth.pool.active()[0].Key(); key != 62 {
		t.Errorf("Expected the newest note to sound, got key %d", key)
	}

	synth.NoteOn(1, 64, 100)
	if n := synth.ActiveVoiceCount(); n != 2 {
		t.Errorf("Expected other channels to be unaffected, got %d voices", n)
	}
}

func TestNoteOffAll(t *testing.T) {
	sf := loadTestBank(t, sineBankBuilder(Generator{Type: GenReleaseVolumeEnvelope, Value: 0}))
	synth := createTestSynth(t, sf, 8)
	synth.NoteOn(0, 60, 100)
	synth.NoteOn(1, 64, 100)

	synth.NoteOffAllChannel(1, true)
	if n := synth.ActiveVoiceCount(); n != 1 {
		t.Errorf("Expected one voice after silencing channel 1, got %d", n)
	}

	synth.NoteOffAll(false)
	if n := synth.ActiveVoiceCount(); n != 1 {
		t.Errorf("Expected release to keep the voice sounding, got %d", n)
	}
	if stage := synth.pool.active()[0].Stage(); stage != EnvelopeRelease {
		t.Errorf("Expected release stage, got %s", stage)
	}

	synth.NoteOffAll(true)
	if n := synth.ActiveVoiceCount(); n != 0 {
		t.Errorf("Expected no voices after immediate note-off, got %d", n)
	}
}

func TestControlChangeModes(t *testing.T) {
	synth := createTestSynth(t, loadTestBank(t, sineBankBuilder()), 8)
	synth.NoteOn(2, 60, 100)
	synth.ControlChange(2, ccAllSoundOff, 0)
	if n := synth.ActiveVoiceCount(); n != 0 {
		t.Errorf("Expected all sound off to remove voices, got %d", n)
	}

	ch := synth.Channel(2)
	synth.ControlChange(2, ccExpression, 20)
	synth.ControlChange(2, ccHoldPedal, 127)
	synth.PitchBend(2, 0)
	synth.ControlChange(2, ccResetControllers, 0)
	if ch.Expression() != 127.0*128/16383 {
		t.Errorf("Expected expression reset to 127, got %f", ch.Expression())
	}
	if ch.HoldPedal() {
		t.Error("Expected hold pedal reset")
	}
	if ch.PitchBend() != 0 {
		t.Errorf("Expected pitch bend centered, got %f", ch.PitchBend())
	}
}

func TestProgramChangeFallback(t *testing.T) {
	b := NewBankBuilder("Programs")
	s := b.AddSample(SampleSpec{Name: "s", Data: sineSamples(1000, 100, 0.5), SampleRate: 44100, OriginalPitch: 60})
	inst := b.AddInstrument("i", nil, InstrumentZoneSpec{Sample: s})
	b.AddPreset("Piano", 0, 0, nil, PresetZoneSpec{Instrument: inst})
	b.AddPreset("Organ", 0, 16, nil, PresetZoneSpec{Instrument: inst})
	b.AddPreset("Standard Kit", PercussionBank, 0, nil, PresetZoneSpec{Instrument: inst})
	synth := createTestSynth(t, loadTestBank(t, b), 8)

	tests := []struct {
		name     string
		bank     int
		program  int
		expected string
	}{
		{"exact", 0, 16, "Organ"},
		{"unknown bank falls back to bank 0", 5, 16, "Organ"},
		{"unknown program falls back to lowest preset", 0, 40, "Piano"},
		{"percussion falls back to standard kit", PercussionBank, 25, "Standard Kit"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := synth.findPreset(test.bank, test.program)
			if p == nil || p.Name != test.expected {
				t.Errorf("Expected preset '%s', got %+v", test.expected, p)
			}
		})
	}

	if ch := synth.Channel(PercussionChannel); ch.Bank() != PercussionBank {
		t.Errorf("Expected percussion channel on bank %d, got %d", PercussionBank, ch.Bank())
	}
	synth.ControlChange(PercussionChannel, ccBankSelect, 0)
	if ch := synth.Channel(PercussionChannel); ch.Bank() != PercussionBank {
		t.Errorf("Expected bank select 0 to keep the percussion bank, got %d", ch.Bank())
	}

	synth.ProgramChange(3, 200)
	if p := synth.Channel(3).Program(); p != 127 {
		t.Errorf("Expected program clamped to 127, got %d", p)
	}
}

func TestProcessMidiMessage(t *testing.T) {
	synth := createTestSynth(t, loadTestBank(t, sineBankBuilder()), 8)

	synth.ProcessMidiMessage(0, 0x90, 60, 100)
	if synth.ActiveVoiceCount() != 1 {
		t.Errorf("Expected note on from 0x90, got %d voices", synth.ActiveVoiceCount())
	}
	synth.ProcessMidiMessage(0, 0xE0, 0, 0x40)
	if bend := synth.Channel(0).PitchBend(); bend != 0 {
		t.Errorf("Expected centered bend from 0x2000, got %f", bend)
	}
	synth.ProcessMidiMessage(0, 0xE0, 0x7F, 0x7F)
	if bend := synth.Channel(0).PitchBend(); math.Abs(bend-2) > 0.001 {
		t.Errorf("Expected full bend of 2 semitones, got %f", bend)
	}
	synth.ProcessMidiMessage(0, 0xC0, 16, 0)
	if p := synth.Channel(0).Program(); p != 16 {
		t.Errorf("Expected program 16, got %d", p)
	}
	synth.ProcessMidiMessage(0, 0xD0, 90, 0)
	if synth.Channel(0).channelPressure != 90 {
		t.Errorf("Expected channel pressure 90, got %d", synth.Channel(0).channelPressure)
	}

	if err := synth.ProcessMidiMessage(20, 0x90, 60, 100); err != nil {
		t.Errorf("Expected invalid channel to be ignored, got %v", err)
	}
}

func TestRenderInterleavedMatchesRender(t *testing.T) {
	sf := loadTestBank(t, sineBankBuilder())
	a := createTestSynth(t, sf, 8)
	b := createTestSynth(t, sf, 8)
	a.NoteOn(0, 69, 100)
	b.NoteOn(0, 69, 100)

	left, right := renderFrames(t, a, 1000)
	interleaved := make([]float32, 2000)
	// Odd chunk sizes exercise the internal block buffer.
	for offset := 0; offset < len(interleaved); {
		n := 2 * 37
		if offset+n > len(interleaved) {
			n = len(interleaved) - offset
		}
		if err := b.RenderInterleaved(interleaved[offset : offset+n]); err != nil {
			t.Fatalf("RenderInterleaved failed: %v", err)
		}
		offset += n
	}
	for i := range left {
		if interleaved[2*i] != left[i] || interleaved[2*i+1] != right[i] {
			t.Fatalf("Frame %d differs: %f/%f vs %f/%f", i, interleaved[2*i], interleaved[2*i+1], left[i], right[i])
		}
	}

	if err := b.RenderInterleaved(make([]float32, 3)); err == nil {
		t.Error("Expected error for odd interleaved length")
	}
}

func TestMasterVolume(t *testing.T) {
	sf := loadTestBank(t, sineBankBuilder())
	quiet := createTestSynth(t, sf, 4)
	loud := createTestSynth(t, sf, 4)
	if quiet.MasterVolume() != DefaultMasterVolume {
		t.Errorf("Expected default master volume %f, got %f", DefaultMasterVolume, quiet.MasterVolume())
	}
	loud.SetMasterVolume(2 * DefaultMasterVolume)

	quiet.NoteOn(0, 69, 100)
	loud.NoteOn(0, 69, 100)
	ql, _ := renderFrames(t, quiet, 4096)
	ll, _ := renderFrames(t, loud, 4096)
	if ratio := rms(ll) / rms(ql); math.Abs(ratio-2) > 0.01 {
		t.Errorf("Expected doubled master volume to double the level, got ratio %f", ratio)
	}
}

func TestResetRestoresChannels(t *testing.T) {
	synth := createTestSynth(t, loadTestBank(t, sineBankBuilder()), 4)
	synth.ControlChange(0, ccVolume, 10)
	synth.ProgramChange(0, 5)
	synth.NoteOn(0, 60, 100)

	if err := synth.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if synth.ActiveVoiceCount() != 0 {
		t.Errorf("Expected no voices after reset, got %d", synth.ActiveVoiceCount())
	}
	ch := synth.Channel(0)
	if ch.Program() != 0 {
		t.Errorf("Expected program 0 after reset, got %d", ch.Program())
	}
	if math.Abs(ch.Volume()-100.0*128/16383) > 1e-9 {
		t.Errorf("Expected volume 100 after reset, got %f", ch.Volume())
	}
}
