package gosf2synth

// LoopMode is the sampleModes generator value.
type LoopMode int

const (
	LoopNone             LoopMode = 0
	LoopContinuous       LoopMode = 1
	LoopUnused           LoopMode = 2 // treated as no loop
	LoopUntilNoteRelease LoopMode = 3
)

// EffectiveRegion is the flattened generator and modulator set of one
// matching (preset zone, instrument zone) pair for a note.
type EffectiveRegion struct {
	Preset     *Preset
	Instrument *Instrument
	Sample     *SampleHeader
	Modulators []Modulator

	gens [GeneratorCount]int32
}

// Resolve appends to dst[:0] one EffectiveRegion for every instrument zone
// reached through a preset zone whose ranges contain key and velocity.
// Storage in dst is reused, so a caller-owned scratch slice keeps note-on
// free of allocations once it has grown.
func (p *Preset) Resolve(key, velocity int, dst []EffectiveRegion) []EffectiveRegion {
	dst = dst[:0]
	for i := range p.Zones {
		pz := &p.Zones[i]
		if !zoneContains(&pz.Zone, p.GlobalZone, key, velocity) {
			continue
		}
		inst := pz.Instrument
		for j := range inst.Zones {
			iz := &inst.Zones[j]
			if !zoneContains(&iz.Zone, inst.GlobalZone, key, velocity) {
				continue
			}
			if len(dst) < cap(dst) {
				dst = dst[:len(dst)+1]
			} else {
				dst = append(dst, EffectiveRegion{})
			}
			dst[len(dst)-1].build(p, pz, iz)
		}
	}
	return dst
}

// zoneContains applies the local ranges, falling back to the global zone
// for ranges the local zone leaves unspecified.
func zoneContains(local, global *Zone, key, velocity int) bool {
	if !local.Contains(key, velocity) {
		return false
	}
	if global == nil {
		return true
	}
	if !local.Has(GenKeyRange) && global.Has(GenKeyRange) {
		if lo, hi := global.KeyRange(); key < lo || key > hi {
			return false
		}
	}
	if !local.Has(GenVelocityRange) && global.Has(GenVelocityRange) {
		if lo, hi := global.VelocityRange(); velocity < lo || velocity > hi {
			return false
		}
	}
	return true
}

// presetRelative reports whether a preset-level value of the generator is
// meaningful as an offset. Sample addressing, ranges, overrides and
// identifiers are instrument-only.
func presetRelative(t GeneratorType) bool {
	switch t {
	case GenStartAddressOffset, GenEndAddressOffset, GenStartLoopAddressOffset, GenEndLoopAddressOffset,
		GenStartAddressCoarseOffset, GenEndAddressCoarseOffset, GenStartLoopAddressCoarseOffset, GenEndLoopAddressCoarseOffset,
		GenKeyNumber, GenVelocity, GenSampleModes, GenExclusiveClass, GenOverridingRootKey,
		GenSampleID, GenInstrument, GenKeyRange, GenVelocityRange:
		return false
	}
	return true
}

func (r *EffectiveRegion) build(p *Preset, pz *PresetZone, iz *InstrumentZone) {
	inst := pz.Instrument
	r.Preset = p
	r.Instrument = inst
	r.Sample = iz.Sample

	for i := range r.gens {
		t := GeneratorType(i)
		v := t.Default()
		fromInstrument := false
		if inst.GlobalZone != nil {
			if x, ok := inst.GlobalZone.Value(t); ok {
				v, fromInstrument = int32(x), true
			}
		}
		if x, ok := iz.Value(t); ok {
			v, fromInstrument = int32(x), true
		}
		if !fromInstrument && presetRelative(t) {
			if x, ok := pz.Value(t); ok {
				v += int32(x)
			} else if p.GlobalZone != nil {
				if x, ok := p.GlobalZone.Value(t); ok {
					v += int32(x)
				}
			}
		}
		if !t.isRange() {
			v = t.Clamp(v)
		}
		r.gens[i] = v
	}

	r.Modulators = append(r.Modulators[:0], defaultVelocityModulator)
	r.Modulators = appendUsable(r.Modulators, inst.GlobalZone)
	r.Modulators = appendUsable(r.Modulators, &iz.Zone)
	r.Modulators = appendUsable(r.Modulators, p.GlobalZone)
	r.Modulators = appendUsable(r.Modulators, &pz.Zone)
}

func appendUsable(dst []Modulator, z *Zone) []Modulator {
	if z == nil {
		return dst
	}
	for i := range z.Modulators {
		if z.Modulators[i].usable() {
			dst = append(dst, z.Modulators[i])
		}
	}
	return dst
}

// Value returns the effective value of a generator.
func (r *EffectiveRegion) Value(t GeneratorType) int32 {
	if int(t) >= GeneratorCount {
		return 0
	}
	return r.gens[t]
}

func (r *EffectiveRegion) SampleStart() int {
	return r.Sample.Start + int(r.gens[GenStartAddressOffset]) + 32768*int(r.gens[GenStartAddressCoarseOffset])
}

func (r *EffectiveRegion) SampleEnd() int {
	return r.Sample.End + int(r.gens[GenEndAddressOffset]) + 32768*int(r.gens[GenEndAddressCoarseOffset])
}

func (r *EffectiveRegion) SampleStartLoop() int {
	return r.Sample.StartLoop + int(r.gens[GenStartLoopAddressOffset]) + 32768*int(r.gens[GenStartLoopAddressCoarseOffset])
}

func (r *EffectiveRegion) SampleEndLoop() int {
	return r.Sample.EndLoop + int(r.gens[GenEndLoopAddressOffset]) + 32768*int(r.gens[GenEndLoopAddressCoarseOffset])
}

// RootKey is the overriding root key if set, else the sample's original pitch.
func (r *EffectiveRegion) RootKey() int {
	if k := r.gens[GenOverridingRootKey]; k >= 0 {
		return int(k)
	}
	return r.Sample.OriginalPitch
}

// FineTune is the fine tune generator plus the sample pitch correction, in cents.
func (r *EffectiveRegion) FineTune() int {
	return int(r.gens[GenFineTune]) + r.Sample.PitchCorrection
}

func (r *EffectiveRegion) LoopMode() LoopMode {
	switch m := LoopMode(r.gens[GenSampleModes]); m {
	case LoopContinuous, LoopUntilNoteRelease:
		return m
	default:
		return LoopNone
	}
}

func (r *EffectiveRegion) ExclusiveClass() int {
	return int(r.gens[GenExclusiveClass])
}
