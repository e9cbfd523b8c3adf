package gosf2synth

import (
	"encoding/binary"
)

// SampleType is the sfSampleLink field of a sample header.
type SampleType uint16

const (
	SampleMono      SampleType = 1
	SampleRight     SampleType = 2
	SampleLeft      SampleType = 4
	SampleLinked    SampleType = 8
	SampleROMMono   SampleType = 0x8001
	SampleROMRight  SampleType = 0x8002
	SampleROMLeft   SampleType = 0x8004
	SampleROMLinked SampleType = 0x8008
)

// IsROM reports whether the sample lives in a ROM the bank does not carry.
func (t SampleType) IsROM() bool {
	return t&0x8000 != 0
}

// SampleHeader describes one sample inside the shared wave data. All
// positions are absolute indices into SoundFont.WaveData.
type SampleHeader struct {
	Name            string
	Start           int
	End             int
	StartLoop       int
	EndLoop         int
	SampleRate      int
	OriginalPitch   int // MIDI key of the recorded pitch
	PitchCorrection int // cents
	Link            int
	Type            SampleType
}

// Length returns the number of sample points between Start and End.
func (s *SampleHeader) Length() int {
	return s.End - s.Start
}

const sampleHeaderRecordSize = 46

func readSampleHeaders(data []byte) ([]SampleHeader, error) {
	if len(data)%sampleHeaderRecordSize != 0 {
		return nil, newFormatError("shdr", "size %d is not a multiple of %d", len(data), sampleHeaderRecordSize)
	}
	count := len(data) / sampleHeaderRecordSize
	if count < 2 {
		return nil, newFormatError("shdr", "no sample headers found")
	}

	last := data[(count-1)*sampleHeaderRecordSize:]
	if name := fixedString(last[:20]); name != "EOS" {
		return nil, newFormatError("shdr", "terminal record is '%s', want 'EOS'", name)
	}

	headers := make([]SampleHeader, count-1)
	for i := range headers {
		rec := data[i*sampleHeaderRecordSize:]
		headers[i] = SampleHeader{
			Name:            fixedString(rec[:20]),
			Start:           int(binary.LittleEndian.Uint32(rec[20:])),
			End:             int(binary.LittleEndian.Uint32(rec[24:])),
			StartLoop:       int(binary.LittleEndian.Uint32(rec[28:])),
			EndLoop:         int(binary.LittleEndian.Uint32(rec[32:])),
			SampleRate:      int(binary.LittleEndian.Uint32(rec[36:])),
			OriginalPitch:   int(rec[40]),
			PitchCorrection: int(int8(rec[41])),
			Link:            int(binary.LittleEndian.Uint16(rec[42:])),
			Type:            SampleType(binary.LittleEndian.Uint16(rec[44:])),
		}
	}
	return headers, nil
}

// validateSampleHeaders rejects headers that point outside the wave data.
func validateSampleHeaders(headers []SampleHeader, waveLength int) error {
	for i := range headers {
		h := &headers[i]
		if h.Type.IsROM() {
			continue
		}
		if h.Start < 0 || h.End < h.Start || h.End > waveLength {
			return newFormatError("shdr", "sample %d ('%s') range %d..%d is outside the %d sample points of smpl",
				i, h.Name, h.Start, h.End, waveLength)
		}
		if h.SampleRate <= 0 {
			return newFormatError("shdr", "sample %d ('%s') has sample rate %d", i, h.Name, h.SampleRate)
		}
	}
	return nil
}
