package gosf2synth

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// ImportSfz converts an SFZ instrument and its WAV/FLAC samples into a bank
// with one preset at bank 0, program 0.
func ImportSfz(path string) (*BankBuilder, error) {
	sfzData, err := ParseSfzFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to import SFZ: %w", err)
	}
	if len(sfzData.Regions) == 0 {
		return nil, fmt.Errorf("failed to import SFZ: %s has no regions", path)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	imp := &sfzImporter{
		builder:   NewBankBuilder(name),
		cache:     NewSampleCache(),
		sampleDir: filepath.Join(filepath.Dir(path), sfzData.Control.GetStringOpcode("default_path")),
		indexes:   make(map[string][]int),
	}
	imp.builder.Info.Comments = "Imported from " + filepath.Base(path)

	var zones []InstrumentZoneSpec
	for i, region := range sfzData.Regions {
		regionZones, err := imp.regionZones(region)
		if err != nil {
			return nil, fmt.Errorf("failed to import region %d: %w", i, err)
		}
		zones = append(zones, regionZones...)
	}

	inst := imp.builder.AddInstrument(name, nil, zones...)
	imp.builder.AddPreset(name, 0, 0, nil, PresetZoneSpec{Instrument: inst})
	parserDebug("Imported %s: %d regions, %d zones, %d samples", path, len(sfzData.Regions), len(zones), len(imp.builder.samples))
	return imp.builder, nil
}

type sfzImporter struct {
	builder   *BankBuilder
	cache     *SampleCache
	sampleDir string
	indexes   map[string][]int // sample path -> bank sample index per channel
}

// samples adds each channel of a sample file once and returns their indexes.
func (imp *sfzImporter) samples(samplePath string) ([]int, int, error) {
	sample, err := imp.cache.LoadSampleRelative(imp.sampleDir, samplePath)
	if err != nil {
		return nil, 0, err
	}
	if idx, ok := imp.indexes[sample.FilePath]; ok {
		return idx, sample.Length, nil
	}

	base := strings.TrimSuffix(filepath.Base(sample.FilePath), filepath.Ext(sample.FilePath))
	stereo := len(sample.Channels) >= 2
	var idx []int
	for ch := 0; ch < len(sample.Channels) && ch < 2; ch++ {
		spec := SampleSpec{
			Name:          sampleName(base, ch, stereo),
			Data:          sample.Channels[ch],
			SampleRate:    sample.SampleRate,
			OriginalPitch: 60,
			LoopStart:     0,
			LoopEnd:       sample.Length,
		}
		if stereo {
			spec.Type = SampleLeft
			if ch == 1 {
				spec.Type = SampleRight
			}
			spec.Link = len(imp.builder.samples) + 1 - 2*ch
		}
		idx = append(idx, imp.builder.AddSample(spec))
	}
	imp.indexes[sample.FilePath] = idx
	return idx, sample.Length, nil
}

// sampleName fits a sample name into the 20-byte header field.
func sampleName(base string, channel int, stereo bool) string {
	suffix := ""
	if stereo {
		suffix = "_L"
		if channel == 1 {
			suffix = "_R"
		}
	}
	if limit := 19 - len(suffix); len(base) > limit {
		base = base[:limit]
	}
	return base + suffix
}

func (imp *sfzImporter) regionZones(region *SfzSection) ([]InstrumentZoneSpec, error) {
	samplePath := region.GetInheritedStringOpcode("sample")
	if samplePath == "" {
		return nil, fmt.Errorf("region has no sample")
	}
	idx, length, err := imp.samples(samplePath)
	if err != nil {
		return nil, err
	}

	gens := sfzGenerators(region, length)
	if len(idx) == 1 {
		return []InstrumentZoneSpec{{ZoneSpec: ZoneSpec{Generators: gens}, Sample: idx[0]}}, nil
	}

	zones := make([]InstrumentZoneSpec, len(idx))
	for ch := range idx {
		pan := int16(-500)
		if ch == 1 {
			pan = 500
		}
		chGens := append([]Generator{{Type: GenPan, Value: pan}}, withoutGenerator(gens, GenPan)...)
		zones[ch] = InstrumentZoneSpec{ZoneSpec: ZoneSpec{Generators: chGens}, Sample: idx[ch]}
	}
	return zones, nil
}

func withoutGenerator(gens []Generator, t GeneratorType) []Generator {
	out := make([]Generator, 0, len(gens))
	for _, g := range gens {
		if g.Type != t {
			out = append(out, g)
		}
	}
	return out
}

func secondsToTimecents(s float64) int16 {
	if s <= 0.001 {
		return minTimecent
	}
	return int16(clamp(math.Round(1200*math.Log2(s)), minTimecent, 8000))
}

func hertzToAbsoluteCents(hz float64) int16 {
	return int16(clamp(math.Round(1200*math.Log2(hz/8.176)), 1500, 13500))
}

// addressGenerators splits an offset into its fine and 32768-point coarse parts.
func addressGenerators(fine, coarse GeneratorType, offset int) []Generator {
	var gens []Generator
	if c := offset / 32768; c != 0 {
		gens = append(gens, Generator{Type: coarse, Value: int16(c)})
	}
	if f := offset % 32768; f != 0 {
		gens = append(gens, Generator{Type: fine, Value: int16(f)})
	}
	return gens
}

// sfzGenerators maps the opcodes of a region, with inheritance, onto SF2 generators.
func sfzGenerators(region *SfzSection, length int) []Generator {
	var gens []Generator
	add := func(t GeneratorType, v int) {
		gens = append(gens, Generator{Type: t, Value: int16(t.Clamp(int32(v)))})
	}

	lokey := region.GetInheritedIntOpcode("lokey", 0)
	hikey := region.GetInheritedIntOpcode("hikey", 127)
	key := region.GetInheritedIntOpcode("key", -1)
	if key >= 0 {
		lokey, hikey = key, key
	}
	gens = append(gens, Generator{Type: GenKeyRange, Value: RangeValue(clampInt(lokey, 0, 127), clampInt(hikey, 0, 127))})
	lovel := region.GetInheritedIntOpcode("lovel", 0)
	hivel := region.GetInheritedIntOpcode("hivel", 127)
	gens = append(gens, Generator{Type: GenVelocityRange, Value: RangeValue(clampInt(lovel, 0, 127), clampInt(hivel, 0, 127))})

	root := 60
	if key >= 0 {
		root = key
	}
	add(GenOverridingRootKey, region.GetInheritedIntOpcode("pitch_keycenter", root))

	if region.HasInheritedOpcode("transpose") {
		add(GenCoarseTune, region.GetInheritedIntOpcode("transpose", 0))
	}
	if region.HasInheritedOpcode("tune") {
		add(GenFineTune, int(region.GetInheritedFloatOpcode("tune", 0)))
	}
	if region.HasInheritedOpcode("pitch_keytrack") {
		add(GenScaleTuning, int(region.GetInheritedFloatOpcode("pitch_keytrack", 100)))
	}
	if region.HasInheritedOpcode("volume") {
		// Only attenuation can be expressed; boosts are dropped.
		add(GenInitialAttenuation, int(math.Round(-10*region.GetInheritedFloatOpcode("volume", 0))))
	}
	if region.HasInheritedOpcode("pan") {
		add(GenPan, int(math.Round(5*region.GetInheritedFloatOpcode("pan", 0))))
	}

	envelope := []struct {
		opcode string
		gen    GeneratorType
	}{
		{"ampeg_delay", GenDelayVolumeEnvelope},
		{"ampeg_attack", GenAttackVolumeEnvelope},
		{"ampeg_hold", GenHoldVolumeEnvelope},
		{"ampeg_decay", GenDecayVolumeEnvelope},
		{"ampeg_release", GenReleaseVolumeEnvelope},
	}
	for _, e := range envelope {
		if region.HasInheritedOpcode(e.opcode) {
			gens = append(gens, Generator{Type: e.gen, Value: secondsToTimecents(region.GetInheritedFloatOpcode(e.opcode, 0))})
		}
	}
	if region.HasInheritedOpcode("ampeg_sustain") {
		pct := clamp(region.GetInheritedFloatOpcode("ampeg_sustain", 100), 0, 100)
		cb := 1440.0
		if pct > 0 {
			cb = -200 * math.Log10(pct/100)
		}
		add(GenSustainVolumeEnvelope, int(math.Round(cb)))
	}

	if region.HasInheritedOpcode("cutoff") {
		gens = append(gens, Generator{Type: GenInitialFilterCutoffFrequency, Value: hertzToAbsoluteCents(region.GetInheritedFloatOpcode("cutoff", 20000))})
	}
	if region.HasInheritedOpcode("resonance") {
		add(GenInitialFilterQ, int(math.Round(10*region.GetInheritedFloatOpcode("resonance", 0))))
	}

	if offset := region.GetInheritedIntOpcode("offset", 0); offset > 0 {
		gens = append(gens, addressGenerators(GenStartAddressOffset, GenStartAddressCoarseOffset, offset)...)
	}
	if region.HasInheritedOpcode("end") {
		end := clampInt(region.GetInheritedIntOpcode("end", length-1)+1, 0, length)
		gens = append(gens, addressGenerators(GenEndAddressOffset, GenEndAddressCoarseOffset, end-length)...)
	}

	loopMode := region.GetInheritedStringOpcode("loop_mode")
	hasLoop := region.HasInheritedOpcode("loop_start") || region.HasInheritedOpcode("loop_end")
	switch {
	case loopMode == "loop_continuous" || (loopMode == "" && hasLoop):
		add(GenSampleModes, int(LoopContinuous))
	case loopMode == "loop_sustain":
		add(GenSampleModes, int(LoopUntilNoteRelease))
	}
	if start := region.GetInheritedIntOpcode("loop_start", 0); start > 0 {
		gens = append(gens, addressGenerators(GenStartLoopAddressOffset, GenStartLoopAddressCoarseOffset, start)...)
	}
	if region.HasInheritedOpcode("loop_end") {
		end := clampInt(region.GetInheritedIntOpcode("loop_end", length-1)+1, 0, length)
		gens = append(gens, addressGenerators(GenEndLoopAddressOffset, GenEndLoopAddressCoarseOffset, end-length)...)
	}

	if region.HasInheritedOpcode("off_by") {
		if group := region.GetInheritedIntOpcode("group", 0); group > 0 {
			add(GenExclusiveClass, group)
		}
	}
	return gens
}
