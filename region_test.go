package gosf2synth

import (
	"testing"
)

// layeredBank has one instrument with a global zone and two split zones,
// and one preset that adds its own global and local values on top.
func layeredBank(t *testing.T) *SoundFont {
	t.Helper()
	b := NewBankBuilder("Layers")
	s := b.AddSample(SampleSpec{Name: "s", Data: sineSamples(200, 20, 0.5), SampleRate: 44100, OriginalPitch: 60, PitchCorrection: 3, LoopStart: 20, LoopEnd: 180})
	inst := b.AddInstrument("Split",
		&ZoneSpec{Generators: []Generator{
			{Type: GenInitialAttenuation, Value: 100},
			{Type: GenFineTune, Value: 10},
			{Type: GenVelocityRange, Value: RangeValue(10, 127)},
		}},
		InstrumentZoneSpec{ZoneSpec: ZoneSpec{Generators: []Generator{
			{Type: GenKeyRange, Value: RangeValue(0, 63)},
			{Type: GenInitialAttenuation, Value: 200},
			{Type: GenSampleModes, Value: int16(LoopContinuous)},
			{Type: GenStartLoopAddressOffset, Value: 5},
		}}, Sample: s},
		InstrumentZoneSpec{ZoneSpec: ZoneSpec{Generators: []Generator{
			{Type: GenKeyRange, Value: RangeValue(64, 127)},
			{Type: GenOverridingRootKey, Value: 72},
			{Type: GenExclusiveClass, Value: 3},
		}}, Sample: s},
	)
	b.AddPreset("Layered", 0, 0,
		&ZoneSpec{Generators: []Generator{
			{Type: GenPan, Value: -100},
			{Type: GenReverbEffectsSend, Value: 250},
		}},
		PresetZoneSpec{ZoneSpec: ZoneSpec{Generators: []Generator{
			{Type: GenCoarseTune, Value: 2},
			{Type: GenFineTune, Value: 50},
			{Type: GenReverbEffectsSend, Value: 900},
			{Type: GenSampleModes, Value: int16(LoopUntilNoteRelease)},
		}}, Instrument: inst},
	)
	return loadTestBank(t, b)
}

func TestResolveZoneSelection(t *testing.T) {
	sf := layeredBank(t)
	preset := sf.FindPreset(0, 0)

	tests := []struct {
		name     string
		key      int
		velocity int
		expected int
	}{
		{"lower split", 40, 100, 1},
		{"upper split", 80, 100, 1},
		{"split boundary low", 63, 100, 1},
		{"split boundary high", 64, 100, 1},
		{"velocity below global range", 60, 5, 0},
		{"velocity at global range", 60, 10, 1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			regions := preset.Resolve(test.key, test.velocity, nil)
			if len(regions) != test.expected {
				t.Errorf("Expected %d regions, got %d", test.expected, len(regions))
			}
		})
	}
}

func TestResolveGeneratorLayering(t *testing.T) {
	sf := layeredBank(t)
	preset := sf.FindPreset(0, 0)

	low := preset.Resolve(40, 100, nil)
	if len(low) != 1 {
		t.Fatalf("Expected 1 region, got %d", len(low))
	}
	r := &low[0]

	tests := []struct {
		name     string
		gen      GeneratorType
		expected int32
	}{
		{"local overrides instrument global", GenInitialAttenuation, 200},
		{"instrument value wins over preset", GenFineTune, 10},
		{"preset offset on default", GenCoarseTune, 2},
		{"preset global offset", GenPan, -100},
		{"preset local overrides preset global", GenReverbEffectsSend, 900},
		{"sample mode is instrument only", GenSampleModes, int32(LoopContinuous)},
		{"untouched default", GenScaleTuning, 100},
		{"timecent default", GenReleaseVolumeEnvelope, minTimecent},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := r.Value(test.gen); got != test.expected {
				t.Errorf("Expected %s=%d, got %d", test.gen, test.expected, got)
			}
		})
	}

	if r.SampleStartLoop() != r.Sample.StartLoop+5 {
		t.Errorf("Expected loop start %d, got %d", r.Sample.StartLoop+5, r.SampleStartLoop())
	}
	if r.LoopMode() != LoopContinuous {
		t.Errorf("Expected continuous loop, got %d", r.LoopMode())
	}
	if r.RootKey() != 60 {
		t.Errorf("Expected root key from sample 60, got %d", r.RootKey())
	}
	if r.FineTune() != 13 {
		t.Errorf("Expected fine tune 10 + correction 3, got %d", r.FineTune())
	}

	high := preset.Resolve(80, 100, nil)
	if len(high) != 1 {
		t.Fatalf("Expected 1 region, got %d", len(high))
	}
	if high[0].RootKey() != 72 {
		t.Errorf("Expected overriding root key 72, got %d", high[0].RootKey())
	}
	if high[0].ExclusiveClass() != 3 {
		t.Errorf("Expected exclusive class 3, got %d", high[0].ExclusiveClass())
	}
	if high[0].LoopMode() != LoopNone {
		t.Errorf("Expected no loop for upper split, got %d", high[0].LoopMode())
	}
	if got := high[0].Value(GenInitialAttenuation); got != 100 {
		t.Errorf("Expected attenuation from instrument global 100, got %d", got)
	}
}

func TestResolveClampsSummedValues(t *testing.T) {
	b := NewBankBuilder("Clamp")
	s := b.AddSample(SampleSpec{Name: "s", Data: make([]int16, 100), SampleRate: 44100, OriginalPitch: 60})
	inst := b.AddInstrument("i", nil, InstrumentZoneSpec{Sample: s})
	b.AddPreset("p", 0, 0,
		&ZoneSpec{Generators: []Generator{{Type: GenPan, Value: 700}}},
		PresetZoneSpec{ZoneSpec: ZoneSpec{Generators: []Generator{{Type: GenCoarseTune, Value: 300}}}, Instrument: inst},
	)
	sf := loadTestBank(t, b)

	regions := sf.FindPreset(0, 0).Resolve(60, 100, nil)
	if len(regions) != 1 {
		t.Fatalf("Expected 1 region, got %d", len(regions))
	}
	if got := regions[0].Value(GenCoarseTune); got != 120 {
		t.Errorf("Expected coarse tune clamped to 120, got %d", got)
	}
	if got := regions[0].Value(GenPan); got != 500 {
		t.Errorf("Expected pan clamped to 500, got %d", got)
	}
}

func TestResolveModulators(t *testing.T) {
	cc1 := NewModulatorSource(ccModulation, true, false, false, CurveLinear)
	b := NewBankBuilder("Mods")
	s := b.AddSample(SampleSpec{Name: "s", Data: make([]int16, 100), SampleRate: 44100, OriginalPitch: 60})
	inst := b.AddInstrument("i", nil, InstrumentZoneSpec{
		ZoneSpec: ZoneSpec{Modulators: []Modulator{{Source: cc1, Destination: GenVibratoLFOToPitch, Amount: 50}}},
		Sample:   s,
	})
	b.AddPreset("p", 0, 0, nil, PresetZoneSpec{
		ZoneSpec: ZoneSpec{Modulators: []Modulator{
			{Source: cc1, Destination: GenInitialFilterCutoffFrequency, Amount: -2400},
			{Source: cc1, Destination: GeneratorType(0x8001), Amount: 10},
		}},
		Instrument: inst,
	})
	sf := loadTestBank(t, b)

	regions := sf.FindPreset(0, 0).Resolve(60, 100, nil)
	if len(regions) != 1 {
		t.Fatalf("Expected 1 region, got %d", len(regions))
	}
	mods := regions[0].Modulators
	// Default velocity modulator, instrument, preset; the linked one is dropped.
	if len(mods) != 3 {
		t.Fatalf("Expected 3 modulators, got %d", len(mods))
	}
	if mods[0] != defaultVelocityModulator {
		t.Errorf("Expected default velocity modulator first, got %+v", mods[0])
	}
	if mods[1].Destination != GenVibratoLFOToPitch {
		t.Errorf("Expected instrument modulator second, got %s", mods[1].Destination)
	}
	if mods[2].Destination != GenInitialFilterCutoffFrequency {
		t.Errorf("Expected preset modulator third, got %s", mods[2].Destination)
	}
}

func TestResolveReusesScratch(t *testing.T) {
	sf := layeredBank(t)
	preset := sf.FindPreset(0, 0)

	scratch := make([]EffectiveRegion, 0, 4)
	scratch = preset.Resolve(40, 100, scratch)
	first := &scratch[0]
	scratch = preset.Resolve(80, 100, scratch)
	if &scratch[0] != first {
		t.Error("Expected scratch storage to be reused")
	}
	if scratch[0].RootKey() != 72 {
		t.Errorf("Expected region to be rebuilt for key 80, got root %d", scratch[0].RootKey())
	}
}
