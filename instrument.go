package gosf2synth

import (
	"encoding/binary"
)

// InstrumentZone is an instrument zone bound to its sample.
type InstrumentZone struct {
	Zone
	SampleIndex int
	Sample      *SampleHeader
}

// Instrument is a named list of zones, each playing one sample.
type Instrument struct {
	Name       string
	GlobalZone *Zone
	Zones      []InstrumentZone
}

type instrumentRecord struct {
	name     string
	bagIndex int
}

const instrumentRecordSize = 22

func readInstrumentRecords(data []byte) ([]instrumentRecord, error) {
	if len(data)%instrumentRecordSize != 0 {
		return nil, newFormatError("inst", "size %d is not a multiple of %d", len(data), instrumentRecordSize)
	}
	count := len(data) / instrumentRecordSize
	if count < 2 {
		return nil, newFormatError("inst", "no instruments found")
	}
	records := make([]instrumentRecord, count)
	for i := range records {
		rec := data[i*instrumentRecordSize:]
		records[i] = instrumentRecord{
			name:     fixedString(rec[:20]),
			bagIndex: int(binary.LittleEndian.Uint16(rec[20:])),
		}
	}
	if name := records[count-1].name; name != "EOI" {
		return nil, newFormatError("inst", "terminal record is '%s', want 'EOI'", name)
	}
	return records, nil
}

func buildInstruments(records []instrumentRecord, bags []bag, gens []Generator, mods []Modulator, haveMods bool, samples []SampleHeader) ([]Instrument, error) {
	instruments := make([]Instrument, len(records)-1)
	for i := range instruments {
		first, last := records[i].bagIndex, records[i+1].bagIndex
		zones, err := buildZones("ibag", bags, first, last, gens, mods, haveMods)
		if err != nil {
			return nil, err
		}

		inst := &instruments[i]
		inst.Name = records[i].name
		for j := range zones {
			z := zones[j]
			id, ok := z.Value(GenSampleID)
			if !ok {
				if j == 0 {
					inst.GlobalZone = &zones[j]
				} else {
					soundfontDebug("Warning: instrument '%s' zone %d has no sample, ignoring", inst.Name, j)
				}
				continue
			}
			index := int(uint16(id))
			if index >= len(samples) {
				return nil, newFormatError("igen", "instrument '%s' references sample %d of %d", inst.Name, index, len(samples))
			}
			inst.Zones = append(inst.Zones, InstrumentZone{
				Zone:        z,
				SampleIndex: index,
				Sample:      &samples[index],
			})
		}
	}
	return instruments, nil
}
