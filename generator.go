package gosf2synth

import (
	"encoding/binary"
	"fmt"
	"math"
)

// GeneratorType identifies an SF2 generator operator.
type GeneratorType uint16

const (
	GenStartAddressOffset GeneratorType = iota
	GenEndAddressOffset
	GenStartLoopAddressOffset
	GenEndLoopAddressOffset
	GenStartAddressCoarseOffset
	GenModulationLFOToPitch
	GenVibratoLFOToPitch
	GenModulationEnvelopeToPitch
	GenInitialFilterCutoffFrequency
	GenInitialFilterQ
	GenModulationLFOToFilterCutoffFrequency
	GenModulationEnvelopeToFilterCutoffFrequency
	GenEndAddressCoarseOffset
	GenModulationLFOToVolume
	GenUnused1
	GenChorusEffectsSend
	GenReverbEffectsSend
	GenPan
	GenUnused2
	GenUnused3
	GenUnused4
	GenDelayModulationLFO
	GenFrequencyModulationLFO
	GenDelayVibratoLFO
	GenFrequencyVibratoLFO
	GenDelayModulationEnvelope
	GenAttackModulationEnvelope
	GenHoldModulationEnvelope
	GenDecayModulationEnvelope
	GenSustainModulationEnvelope
	GenReleaseModulationEnvelope
	GenKeyNumberToModulationEnvelopeHold
	GenKeyNumberToModulationEnvelopeDecay
	GenDelayVolumeEnvelope
	GenAttackVolumeEnvelope
	GenHoldVolumeEnvelope
	GenDecayVolumeEnvelope
	GenSustainVolumeEnvelope
	GenReleaseVolumeEnvelope
	GenKeyNumberToVolumeEnvelopeHold
	GenKeyNumberToVolumeEnvelopeDecay
	GenInstrument
	GenReserved1
	GenKeyRange
	GenVelocityRange
	GenStartLoopAddressCoarseOffset
	GenKeyNumber
	GenVelocity
	GenInitialAttenuation
	GenReserved2
	GenEndLoopAddressCoarseOffset
	GenCoarseTune
	GenFineTune
	GenSampleID
	GenSampleModes
	GenReserved3
	GenScaleTuning
	GenExclusiveClass
	GenOverridingRootKey
	GenUnused5
	GenUnusedEnd

	// GeneratorCount is the number of defined generator operators.
	GeneratorCount = int(GenUnusedEnd) + 1
)

// generatorSpec describes how a generator value is interpreted.
type generatorSpec struct {
	name string
	def  int32 // instrument-level default
	min  int32
	max  int32
}

const (
	fullRange   = 0x7F00 // lo=0, hi=127 packed as two bytes
	minTimecent = -12000
)

var generatorSpecs = [GeneratorCount]generatorSpec{
	GenStartAddressOffset:                        {"startAddrsOffset", 0, math.MinInt32, math.MaxInt32},
	GenEndAddressOffset:                          {"endAddrsOffset", 0, math.MinInt32, math.MaxInt32},
	GenStartLoopAddressOffset:                    {"startloopAddrsOffset", 0, math.MinInt32, math.MaxInt32},
	GenEndLoopAddressOffset:                      {"endloopAddrsOffset", 0, math.MinInt32, math.MaxInt32},
	GenStartAddressCoarseOffset:                  {"startAddrsCoarseOffset", 0, math.MinInt32, math.MaxInt32},
	GenModulationLFOToPitch:                      {"modLfoToPitch", 0, -12000, 12000},
	GenVibratoLFOToPitch:                         {"vibLfoToPitch", 0, -12000, 12000},
	GenModulationEnvelopeToPitch:                 {"modEnvToPitch", 0, -12000, 12000},
	GenInitialFilterCutoffFrequency:              {"initialFilterFc", 13500, 1500, 13500},
	GenInitialFilterQ:                            {"initialFilterQ", 0, 0, 960},
	GenModulationLFOToFilterCutoffFrequency:      {"modLfoToFilterFc", 0, -12000, 12000},
	GenModulationEnvelopeToFilterCutoffFrequency: {"modEnvToFilterFc", 0, -12000, 12000},
	GenEndAddressCoarseOffset:                    {"endAddrsCoarseOffset", 0, math.MinInt32, math.MaxInt32},
	GenModulationLFOToVolume:                     {"modLfoToVolume", 0, -960, 960},
	GenUnused1:                                   {"unused1", 0, 0, 0},
	GenChorusEffectsSend:                         {"chorusEffectsSend", 0, 0, 1000},
	GenReverbEffectsSend:                         {"reverbEffectsSend", 0, 0, 1000},
	GenPan:                                       {"pan", 0, -500, 500},
	GenUnused2:                                   {"unused2", 0, 0, 0},
	GenUnused3:                                   {"unused3", 0, 0, 0},
	GenUnused4:                                   {"unused4", 0, 0, 0},
	GenDelayModulationLFO:                        {"delayModLFO", minTimecent, minTimecent, 5000},
	GenFrequencyModulationLFO:                    {"freqModLFO", 0, -16000, 4500},
	GenDelayVibratoLFO:                           {"delayVibLFO", minTimecent, minTimecent, 5000},
	GenFrequencyVibratoLFO:                       {"freqVibLFO", 0, -16000, 4500},
	GenDelayModulationEnvelope:                   {"delayModEnv", minTimecent, minTimecent, 5000},
	GenAttackModulationEnvelope:                  {"attackModEnv", minTimecent, minTimecent, 8000},
	GenHoldModulationEnvelope:                    {"holdModEnv", minTimecent, minTimecent, 5000},
	GenDecayModulationEnvelope:                   {"decayModEnv", minTimecent, minTimecent, 8000},
	GenSustainModulationEnvelope:                 {"sustainModEnv", 0, 0, 1000},
	GenReleaseModulationEnvelope:                 {"releaseModEnv", minTimecent, minTimecent, 8000},
	GenKeyNumberToModulationEnvelopeHold:         {"keynumToModEnvHold", 0, -1200, 1200},
	GenKeyNumberToModulationEnvelopeDecay:        {"keynumToModEnvDecay", 0, -1200, 1200},
	GenDelayVolumeEnvelope:                       {"delayVolEnv", minTimecent, minTimecent, 5000},
	GenAttackVolumeEnvelope:                      {"attackVolEnv", minTimecent, minTimecent, 8000},
	GenHoldVolumeEnvelope:                        {"holdVolEnv", minTimecent, minTimecent, 5000},
	GenDecayVolumeEnvelope:                       {"decayVolEnv", minTimecent, minTimecent, 8000},
	GenSustainVolumeEnvelope:                     {"sustainVolEnv", 0, 0, 1440},
	GenReleaseVolumeEnvelope:                     {"releaseVolEnv", minTimecent, minTimecent, 8000},
	GenKeyNumberToVolumeEnvelopeHold:             {"keynumToVolEnvHold", 0, -1200, 1200},
	GenKeyNumberToVolumeEnvelopeDecay:            {"keynumToVolEnvDecay", 0, -1200, 1200},
	GenInstrument:                                {"instrument", 0, 0, math.MaxUint16},
	GenReserved1:                                 {"reserved1", 0, 0, 0},
	GenKeyRange:                                  {"keyRange", fullRange, 0, math.MaxUint16},
	GenVelocityRange:                             {"velRange", fullRange, 0, math.MaxUint16},
	GenStartLoopAddressCoarseOffset:              {"startloopAddrsCoarseOffset", 0, math.MinInt32, math.MaxInt32},
	GenKeyNumber:                                 {"keynum", -1, -1, 127},
	GenVelocity:                                  {"velocity", -1, -1, 127},
	GenInitialAttenuation:                        {"initialAttenuation", 0, 0, 1440},
	GenReserved2:                                 {"reserved2", 0, 0, 0},
	GenEndLoopAddressCoarseOffset:                {"endloopAddrsCoarseOffset", 0, math.MinInt32, math.MaxInt32},
	GenCoarseTune:                                {"coarseTune", 0, -120, 120},
	GenFineTune:                                  {"fineTune", 0, -99, 99},
	GenSampleID:                                  {"sampleID", 0, 0, math.MaxUint16},
	GenSampleModes:                               {"sampleModes", 0, 0, 3},
	GenReserved3:                                 {"reserved3", 0, 0, 0},
	GenScaleTuning:                               {"scaleTuning", 100, 0, 1200},
	GenExclusiveClass:                            {"exclusiveClass", 0, 0, 127},
	GenOverridingRootKey:                         {"overridingRootKey", -1, -1, 127},
	GenUnused5:                                   {"unused5", 0, 0, 0},
	GenUnusedEnd:                                 {"endOper", 0, 0, 0},
}

// String returns the SF2 name of the generator.
func (g GeneratorType) String() string {
	if int(g) < GeneratorCount {
		return generatorSpecs[g].name
	}
	return fmt.Sprintf("generator(%d)", uint16(g))
}

// Default returns the instrument-level default value of the generator.
func (g GeneratorType) Default() int32 {
	if int(g) < GeneratorCount {
		return generatorSpecs[g].def
	}
	return 0
}

// Clamp limits v to the valid range of the generator.
func (g GeneratorType) Clamp(v int32) int32 {
	if int(g) >= GeneratorCount {
		return v
	}
	spec := generatorSpecs[g]
	if v < spec.min {
		return spec.min
	}
	if v > spec.max {
		return spec.max
	}
	return v
}

// isRange reports whether the generator packs a lo/hi byte pair.
func (g GeneratorType) isRange() bool {
	return g == GenKeyRange || g == GenVelocityRange
}

// Generator is one (type, value) pair from a pgen or igen record.
type Generator struct {
	Type  GeneratorType
	Value int16
}

// Range returns the lo/hi bytes of a key or velocity range generator.
func (g Generator) Range() (lo, hi int) {
	u := uint16(g.Value)
	return int(u & 0xFF), int(u >> 8)
}

// RangeValue packs a lo/hi pair the way keyRange and velRange store it.
func RangeValue(lo, hi int) int16 {
	return int16(uint16(lo&0xFF) | uint16(hi&0xFF)<<8)
}

const generatorRecordSize = 4

func readGenerators(chunk string, data []byte) ([]Generator, error) {
	if len(data)%generatorRecordSize != 0 {
		return nil, newFormatError(chunk, "size %d is not a multiple of %d", len(data), generatorRecordSize)
	}
	count := len(data) / generatorRecordSize
	if count == 0 {
		return nil, newFormatError(chunk, "missing terminal record")
	}
	// The last record is the terminator.
	gens := make([]Generator, count-1)
	for i := range gens {
		rec := data[i*generatorRecordSize:]
		gens[i] = Generator{
			Type:  GeneratorType(binary.LittleEndian.Uint16(rec[0:])),
			Value: int16(binary.LittleEndian.Uint16(rec[2:])),
		}
	}
	return gens, nil
}
