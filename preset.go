package gosf2synth

import (
	"encoding/binary"
)

// PercussionBank is the bank number of GM percussion presets.
const PercussionBank = 128

// PresetZone is a preset zone bound to its instrument.
type PresetZone struct {
	Zone
	InstrumentIndex int
	Instrument      *Instrument
}

// Preset is identified by a (bank, program) pair. Several presets may share
// a pair; lookups take the first one in file order.
type Preset struct {
	Name       string
	Program    int
	Bank       int
	Library    int
	Genre      int
	Morphology int
	GlobalZone *Zone
	Zones      []PresetZone
}

type presetRecord struct {
	name       string
	program    int
	bank       int
	bagIndex   int
	library    int
	genre      int
	morphology int
}

const presetRecordSize = 38

func readPresetRecords(data []byte) ([]presetRecord, error) {
	if len(data)%presetRecordSize != 0 {
		return nil, newFormatError("phdr", "size %d is not a multiple of %d", len(data), presetRecordSize)
	}
	count := len(data) / presetRecordSize
	if count < 2 {
		return nil, newFormatError("phdr", "no presets found")
	}
	records := make([]presetRecord, count)
	for i := range records {
		rec := data[i*presetRecordSize:]
		records[i] = presetRecord{
			name:       fixedString(rec[:20]),
			program:    int(binary.LittleEndian.Uint16(rec[20:])),
			bank:       int(binary.LittleEndian.Uint16(rec[22:])),
			bagIndex:   int(binary.LittleEndian.Uint16(rec[24:])),
			library:    int(binary.LittleEndian.Uint32(rec[26:])),
			genre:      int(binary.LittleEndian.Uint32(rec[30:])),
			morphology: int(binary.LittleEndian.Uint32(rec[34:])),
		}
	}
	if name := records[count-1].name; name != "EOP" {
		return nil, newFormatError("phdr", "terminal record is '%s', want 'EOP'", name)
	}
	return records, nil
}

func buildPresets(records []presetRecord, bags []bag, gens []Generator, mods []Modulator, haveMods bool, instruments []Instrument) ([]Preset, error) {
	presets := make([]Preset, len(records)-1)
	for i := range presets {
		first, last := records[i].bagIndex, records[i+1].bagIndex
		zones, err := buildZones("pbag", bags, first, last, gens, mods, haveMods)
		if err != nil {
			return nil, err
		}

		r := records[i]
		p := &presets[i]
		p.Name = r.name
		p.Program = r.program
		p.Bank = r.bank
		p.Library = r.library
		p.Genre = r.genre
		p.Morphology = r.morphology
		for j := range zones {
			z := zones[j]
			id, ok := z.Value(GenInstrument)
			if !ok {
				if j == 0 {
					p.GlobalZone = &zones[j]
				} else {
					soundfontDebug("Warning: preset '%s' zone %d has no instrument, ignoring", p.Name, j)
				}
				continue
			}
			index := int(uint16(id))
			if index >= len(instruments) {
				return nil, newFormatError("pgen", "preset '%s' references instrument %d of %d", p.Name, index, len(instruments))
			}
			p.Zones = append(p.Zones, PresetZone{
				Zone:            z,
				InstrumentIndex: index,
				Instrument:      &instruments[index],
			})
		}
	}
	return presets, nil
}

// presetID packs a bank/program pair into a lookup key.
func presetID(bank, program int) int {
	return bank<<16 | program
}
