package gosf2synth

import (
	"encoding/binary"
	"math"
)

// ModulatorCurve is the transfer curve applied to a modulator source.
type ModulatorCurve uint8

const (
	CurveLinear ModulatorCurve = iota
	CurveConcave
	CurveConvex
	CurveSwitch
)

// General controller indexes used when the CC flag of a source is clear.
const (
	SourceNoController          = 0
	SourceNoteOnVelocity        = 2
	SourceNoteOnKeyNumber       = 3
	SourcePolyPressure          = 10
	SourceChannelPressure       = 13
	SourcePitchWheel            = 14
	SourcePitchWheelSensitivity = 16
	SourceLink                  = 127
)

// ModulatorSource is a packed SF2 source operator.
type ModulatorSource uint16

// NewModulatorSource packs a source operator.
func NewModulatorSource(index int, midiCC, negative, bipolar bool, curve ModulatorCurve) ModulatorSource {
	s := uint16(index & 0x7F)
	if midiCC {
		s |= 0x80
	}
	if negative {
		s |= 0x100
	}
	if bipolar {
		s |= 0x200
	}
	s |= uint16(curve) << 10
	return ModulatorSource(s)
}

func (s ModulatorSource) Index() int             { return int(s & 0x7F) }
func (s ModulatorSource) IsCC() bool             { return s&0x80 != 0 }
func (s ModulatorSource) IsNegative() bool       { return s&0x100 != 0 }
func (s ModulatorSource) IsBipolar() bool        { return s&0x200 != 0 }
func (s ModulatorSource) Curve() ModulatorCurve  { return ModulatorCurve(s >> 10) }
func (s ModulatorSource) isNone() bool           { return !s.IsCC() && s.Index() == SourceNoController }
func (s ModulatorSource) isNoteStatic() bool     { return !s.IsCC() && (s.Index() == SourceNoteOnVelocity || s.Index() == SourceNoteOnKeyNumber) }
func (s ModulatorSource) isStatic() bool         { return s.isNone() || s.isNoteStatic() }
func (s ModulatorSource) isSupportedCurve() bool { return s.Curve() <= CurveSwitch }

// Modulator routes a controller to a generator: the destination receives
// Amount × Source × AmountSource on top of its static value.
type Modulator struct {
	Source       ModulatorSource
	Destination  GeneratorType
	Amount       int16
	AmountSource ModulatorSource
	AbsTransform bool
}

// defaultVelocityModulator is the SF2 default "note-on velocity to initial
// attenuation" rule: negative concave unipolar, 960 cB.
var defaultVelocityModulator = Modulator{
	Source:      NewModulatorSource(SourceNoteOnVelocity, false, true, false, CurveConcave),
	Destination: GenInitialAttenuation,
	Amount:      960,
}

// isDynamic reports whether the modulator depends on real-time controllers.
func (m *Modulator) isDynamic() bool {
	return !m.Source.isStatic() || !m.AmountSource.isStatic()
}

// modulatorInputs carries the controller snapshot a modulator reads.
type modulatorInputs struct {
	key      int
	velocity int
	channel  *ChannelState
}

// value returns the modulator output in destination generator units.
func (m *Modulator) value(in *modulatorInputs) float64 {
	src := sourceValue(m.Source, in)
	if src == 0 {
		return 0
	}
	amt := sourceValue(m.AmountSource, in)
	v := float64(m.Amount) * src * amt
	if m.AbsTransform && v < 0 {
		v = -v
	}
	return v
}

func sourceValue(s ModulatorSource, in *modulatorInputs) float64 {
	if s.isNone() {
		return 1
	}
	var x float64
	if s.IsCC() {
		if in.channel != nil {
			x = float64(in.channel.controllers[s.Index()]) / 128
		}
	} else {
		switch s.Index() {
		case SourceNoteOnVelocity:
			x = float64(in.velocity) / 128
		case SourceNoteOnKeyNumber:
			x = float64(in.key) / 128
		case SourceChannelPressure:
			if in.channel != nil {
				x = float64(in.channel.channelPressure) / 128
			}
		case SourcePitchWheel:
			if in.channel != nil {
				x = float64(in.channel.pitchBend) / 16384
			}
		case SourcePitchWheelSensitivity:
			if in.channel != nil {
				x = float64(in.channel.pitchBendRange) / 128
			}
		default:
			return 0
		}
	}
	if s.IsNegative() {
		x = 1 - x
	}
	if s.IsBipolar() {
		u := 2*x - 1
		if u < 0 {
			return -applyCurve(s.Curve(), -u)
		}
		return applyCurve(s.Curve(), u)
	}
	return applyCurve(s.Curve(), x)
}

func applyCurve(c ModulatorCurve, x float64) float64 {
	switch c {
	case CurveConcave:
		return concave(x)
	case CurveConvex:
		return 1 - concave(1-x)
	case CurveSwitch:
		if x >= 0.5 {
			return 1
		}
		return 0
	default:
		return x
	}
}

// concave maps [0,1] onto the SF2 concave curve, which follows the
// attenuation of a squared amplitude over a 96 dB range.
func concave(x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	y := -(5.0 / 12.0) * math.Log10(1-x)
	if y > 1 {
		return 1
	}
	return y
}

const modulatorRecordSize = 10

func readModulators(chunk string, data []byte) ([]Modulator, error) {
	if len(data)%modulatorRecordSize != 0 {
		return nil, newFormatError(chunk, "size %d is not a multiple of %d", len(data), modulatorRecordSize)
	}
	count := len(data) / modulatorRecordSize
	if count == 0 {
		return nil, nil
	}
	// The last record is the terminator.
	mods := make([]Modulator, count-1)
	for i := range mods {
		rec := data[i*modulatorRecordSize:]
		mods[i] = Modulator{
			Source:       ModulatorSource(binary.LittleEndian.Uint16(rec[0:])),
			Destination:  GeneratorType(binary.LittleEndian.Uint16(rec[2:])),
			Amount:       int16(binary.LittleEndian.Uint16(rec[4:])),
			AmountSource: ModulatorSource(binary.LittleEndian.Uint16(rec[6:])),
			AbsTransform: binary.LittleEndian.Uint16(rec[8:]) == 2,
		}
	}
	return mods, nil
}

// usable reports whether the engine can apply the modulator. Linked
// modulators and unknown destinations are ignored.
func (m *Modulator) usable() bool {
	if uint16(m.Destination)&0x8000 != 0 || int(m.Destination) >= GeneratorCount {
		return false
	}
	if !m.Source.IsCC() && m.Source.Index() == SourceLink {
		return false
	}
	return m.Source.isSupportedCurve() && m.AmountSource.isSupportedCurve()
}
