package gosf2synth

import (
	"encoding/binary"
)

// Zone is a generator and modulator set with an optional key and velocity
// range. A zone that carries no instrument (preset level) or sample
// (instrument level) reference and comes first is the global zone.
type Zone struct {
	Generators []Generator
	Modulators []Modulator

	values [GeneratorCount]int16
	set    uint64 // bit i set when generator i is present
}

func newZone(gens []Generator, mods []Modulator) Zone {
	z := Zone{Generators: gens, Modulators: mods}
	for _, g := range gens {
		if int(g.Type) >= GeneratorCount {
			continue
		}
		z.values[g.Type] = g.Value
		z.set |= 1 << uint(g.Type)
	}
	return z
}

// Has reports whether the zone specifies the generator.
func (z *Zone) Has(t GeneratorType) bool {
	return int(t) < GeneratorCount && z.set&(1<<uint(t)) != 0
}

// Value returns the generator value and whether the zone specifies it.
func (z *Zone) Value(t GeneratorType) (int16, bool) {
	if !z.Has(t) {
		return 0, false
	}
	return z.values[t], true
}

// KeyRange returns the inclusive key range, 0..127 when unspecified.
func (z *Zone) KeyRange() (lo, hi int) {
	return z.rangeOf(GenKeyRange)
}

// VelocityRange returns the inclusive velocity range, 0..127 when unspecified.
func (z *Zone) VelocityRange() (lo, hi int) {
	return z.rangeOf(GenVelocityRange)
}

func (z *Zone) rangeOf(t GeneratorType) (lo, hi int) {
	v, ok := z.Value(t)
	if !ok {
		return 0, 127
	}
	return Generator{Type: t, Value: v}.Range()
}

// Contains reports whether key and velocity fall inside the zone ranges.
func (z *Zone) Contains(key, velocity int) bool {
	klo, khi := z.KeyRange()
	if key < klo || key > khi {
		return false
	}
	vlo, vhi := z.VelocityRange()
	return velocity >= vlo && velocity <= vhi
}

// bag is one pbag/ibag record.
type bag struct {
	generatorIndex int
	modulatorIndex int
}

const bagRecordSize = 4

func readBags(chunk string, data []byte) ([]bag, error) {
	if len(data)%bagRecordSize != 0 {
		return nil, newFormatError(chunk, "size %d is not a multiple of %d", len(data), bagRecordSize)
	}
	bags := make([]bag, len(data)/bagRecordSize)
	for i := range bags {
		rec := data[i*bagRecordSize:]
		bags[i] = bag{
			generatorIndex: int(binary.LittleEndian.Uint16(rec[0:])),
			modulatorIndex: int(binary.LittleEndian.Uint16(rec[2:])),
		}
	}
	return bags, nil
}

// buildZones slices the generator and modulator tables into zones for the
// bag range [first, last). bags must include the terminal record.
func buildZones(chunk string, bags []bag, first, last int, gens []Generator, mods []Modulator, haveMods bool) ([]Zone, error) {
	if first < 0 || last < first || last >= len(bags) {
		return nil, newFormatError(chunk, "zone range %d..%d is outside %d bags", first, last, len(bags))
	}
	zones := make([]Zone, 0, last-first)
	for i := first; i < last; i++ {
		g0, g1 := bags[i].generatorIndex, bags[i+1].generatorIndex
		if g1 < g0 || g1 > len(gens) {
			return nil, newFormatError(chunk, "bag %d generator range %d..%d is invalid", i, g0, g1)
		}
		var zoneMods []Modulator
		m0, m1 := bags[i].modulatorIndex, bags[i+1].modulatorIndex
		if haveMods {
			if m1 < m0 || m1 > len(mods) {
				return nil, newFormatError(chunk, "bag %d modulator range %d..%d is invalid", i, m0, m1)
			}
			zoneMods = mods[m0:m1]
		}
		zones = append(zones, newZone(gens[g0:g1], zoneMods))
	}
	return zones, nil
}
