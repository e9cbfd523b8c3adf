package gosf2synth

// PercussionChannel is the zero-based GM drum channel.
const PercussionChannel = 9

// ChannelCount is the number of MIDI channels a synthesizer serves.
const ChannelCount = 16

// MIDI controller numbers the engine interprets.
const (
	ccBankSelect       = 0
	ccModulation       = 1
	ccDataEntry        = 6
	ccVolume           = 7
	ccPan              = 10
	ccExpression       = 11
	ccModulationLSB    = 33
	ccDataEntryLSB     = 38
	ccVolumeLSB        = 39
	ccPanLSB           = 42
	ccExpressionLSB    = 43
	ccHoldPedal        = 64
	ccReverbSend       = 91
	ccChorusSend       = 93
	ccNRPNFine         = 98
	ccNRPNCoarse       = 99
	ccRPNFine          = 100
	ccRPNCoarse        = 101
	ccAllSoundOff      = 120
	ccResetControllers = 121
	ccAllNotesOff      = 123
	ccLoopPoint        = 111
)

const (
	rpnPitchBendRange = 0
	rpnFineTune       = 1
	rpnCoarseTune     = 2
	rpnNone           = -1
)

// ChannelState holds the controller state of one MIDI channel. Raw 7-bit
// values live in controllers; MSB/LSB pairs are combined on read.
type ChannelState struct {
	number       int
	isPercussion bool

	bankNumber  int
	patchNumber int

	controllers     [128]uint8
	holdPedal       bool
	rpn             int
	dataEntry       int // 14-bit
	channelPressure int
	pitchBend       int // 0..16383, center 8192
	pitchBendRange  float64
	fineTune        float64 // cents
	coarseTune      float64 // semitones
}

func newChannelState(number int) *ChannelState {
	ch := &ChannelState{number: number, isPercussion: number == PercussionChannel}
	ch.reset()
	return ch
}

// reset restores power-on state, including bank and program.
func (ch *ChannelState) reset() {
	ch.bankNumber = 0
	if ch.isPercussion {
		ch.bankNumber = PercussionBank
	}
	ch.patchNumber = 0
	ch.controllers = [128]uint8{}
	ch.controllers[ccVolume] = 100
	ch.controllers[ccPan] = 64
	ch.controllers[ccReverbSend] = 40
	ch.pitchBendRange = 2
	ch.fineTune = 0
	ch.coarseTune = 0
	ch.resetAllControllers()
}

// resetAllControllers implements CC 121. Volume, pan, sends, bank and
// program are kept.
func (ch *ChannelState) resetAllControllers() {
	ch.controllers[ccModulation] = 0
	ch.controllers[ccModulationLSB] = 0
	ch.controllers[ccExpression] = 127
	ch.controllers[ccExpressionLSB] = 0
	ch.controllers[ccHoldPedal] = 0
	ch.holdPedal = false
	ch.rpn = rpnNone
	ch.controllers[ccRPNFine] = 127
	ch.controllers[ccRPNCoarse] = 127
	ch.dataEntry = 0
	ch.channelPressure = 0
	ch.pitchBend = 8192
}

func (ch *ChannelState) setBank(value int) {
	if ch.isPercussion {
		ch.bankNumber = PercussionBank + value
	} else {
		ch.bankNumber = value
	}
}

// setController stores a controller value and applies its side effects.
// Mode messages (120, 121, 123) are handled by the synthesizer.
func (ch *ChannelState) setController(cc, value int) {
	cc = clampInt(cc, 0, 127)
	value = clampInt(value, 0, 127)
	ch.controllers[cc] = uint8(value)

	switch cc {
	case ccBankSelect:
		ch.setBank(value)
	case ccModulation, ccVolume, ccPan, ccExpression:
		// A new MSB clears the LSB.
		ch.controllers[cc+32] = 0
	case ccHoldPedal:
		ch.holdPedal = value >= 64
	case ccRPNFine, ccRPNCoarse:
		ch.rpn = int(ch.controllers[ccRPNCoarse])<<7 | int(ch.controllers[ccRPNFine])
		if ch.rpn == 0x3FFF {
			ch.rpn = rpnNone
		}
	case ccNRPNFine, ccNRPNCoarse:
		ch.rpn = rpnNone
	case ccDataEntry:
		ch.dataEntry = value << 7
		ch.applyDataEntry()
	case ccDataEntryLSB:
		ch.dataEntry = ch.dataEntry&^0x7F | value
		ch.applyDataEntry()
	}
}

func (ch *ChannelState) applyDataEntry() {
	switch ch.rpn {
	case rpnPitchBendRange:
		ch.pitchBendRange = float64(ch.dataEntry>>7) + 0.01*float64(ch.dataEntry&0x7F)
	case rpnFineTune:
		ch.fineTune = 100 * float64(ch.dataEntry-8192) / 8192
	case rpnCoarseTune:
		ch.coarseTune = float64(ch.dataEntry>>7) - 64
	}
}

func (ch *ChannelState) combined(msb int) int {
	return int(ch.controllers[msb])<<7 | int(ch.controllers[msb+32])
}

// Bank returns the selected bank number.
func (ch *ChannelState) Bank() int { return ch.bankNumber }

// Program returns the selected program number.
func (ch *ChannelState) Program() int { return ch.patchNumber }

// Modulation is the vibrato depth added by the modulation wheel, in cents.
func (ch *ChannelState) Modulation() float64 {
	return 50 * float64(ch.combined(ccModulation)) / 16383
}

// Volume is the channel volume in [0, 1].
func (ch *ChannelState) Volume() float64 {
	return float64(ch.combined(ccVolume)) / 16383
}

// Expression is the channel expression in [0, 1].
func (ch *ChannelState) Expression() float64 {
	return float64(ch.combined(ccExpression)) / 16383
}

// Pan is the channel pan in percent, -50 (left) to 50 (right).
func (ch *ChannelState) Pan() float64 {
	return 100*float64(ch.combined(ccPan))/16383 - 50
}

// PitchBend is the current bend in semitones.
func (ch *ChannelState) PitchBend() float64 {
	return ch.pitchBendRange * float64(ch.pitchBend-8192) / 8192
}

// Tune is the RPN coarse plus fine tuning in semitones.
func (ch *ChannelState) Tune() float64 {
	return ch.coarseTune + 0.01*ch.fineTune
}

// HoldPedal reports whether CC 64 is at 64 or above.
func (ch *ChannelState) HoldPedal() bool { return ch.holdPedal }

// ReverbSend is the CC 91 level in [0, 1].
func (ch *ChannelState) ReverbSend() float64 { return float64(ch.controllers[ccReverbSend]) / 127 }

// ChorusSend is the CC 93 level in [0, 1].
func (ch *ChannelState) ChorusSend() float64 { return float64(ch.controllers[ccChorusSend]) / 127 }
