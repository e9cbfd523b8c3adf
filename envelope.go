package gosf2synth

import "math"

// EnvelopeStage is the current segment of an envelope.
type EnvelopeStage int

const (
	EnvelopeDelay EnvelopeStage = iota
	EnvelopeAttack
	EnvelopeHold
	EnvelopeDecay
	EnvelopeSustain
	EnvelopeRelease
	EnvelopeFinished
)

func (s EnvelopeStage) String() string {
	switch s {
	case EnvelopeDelay:
		return "delay"
	case EnvelopeAttack:
		return "attack"
	case EnvelopeHold:
		return "hold"
	case EnvelopeDecay:
		return "decay"
	case EnvelopeSustain:
		return "sustain"
	case EnvelopeRelease:
		return "release"
	default:
		return "finished"
	}
}

// envelopeParams are the six segment parameters of an envelope. Times are
// in seconds, sustain is a level in [0, 1].
type envelopeParams struct {
	delay   float64
	attack  float64
	hold    float64
	decay   float64
	sustain float64
	release float64
}

// exponentialSlope is ln(1e-5): decay and release fall by 100 dB over their
// nominal time.
var exponentialSlope = math.Log(1e-5)

// volumeEnvelope is advanced once per block. Attack is linear in amplitude,
// decay and release are exponential.
type volumeEnvelope struct {
	sampleRate float64

	attackSlope  float64
	decaySlope   float64
	releaseSlope float64

	attackStart float64
	holdStart   float64
	decayStart  float64

	sustainLevel float64
	releaseLevel float64
	releaseStart float64

	processed int
	stage     EnvelopeStage
	value     float64
	priority  float64
}

func (e *volumeEnvelope) start(p envelopeParams, sampleRate float64) {
	e.sampleRate = sampleRate
	e.attackSlope = 1 / math.Max(p.attack, 1e-6)
	e.decaySlope = exponentialSlope / math.Max(p.decay, 1e-6)
	e.releaseSlope = exponentialSlope / math.Max(p.release, 1e-6)

	e.attackStart = p.delay
	e.holdStart = e.attackStart + p.attack
	e.decayStart = e.holdStart + p.hold

	e.sustainLevel = clamp(p.sustain, 0, 1)
	e.releaseLevel = 0
	e.releaseStart = 0

	e.processed = 0
	e.stage = EnvelopeDelay
	e.value = 0
	e.process(0)
}

// release moves any pre-release stage to Release, starting from the current level.
func (e *volumeEnvelope) release() {
	if e.stage >= EnvelopeRelease {
		return
	}
	e.releaseLevel = e.value
	e.releaseStart = float64(e.processed) / e.sampleRate
	e.stage = EnvelopeRelease
}

// process advances the envelope by n frames and reports whether it is still audible.
func (e *volumeEnvelope) process(n int) bool {
	e.processed += n
	t := float64(e.processed) / e.sampleRate

	for {
		switch e.stage {
		case EnvelopeDelay:
			if t < e.attackStart {
				e.value = 0
				e.priority = 4
				return true
			}
			e.stage = EnvelopeAttack
		case EnvelopeAttack:
			if t < e.holdStart {
				e.value = e.attackSlope * (t - e.attackStart)
				e.priority = 3 + e.value
				return true
			}
			e.stage = EnvelopeHold
		case EnvelopeHold:
			if t < e.decayStart {
				e.value = 1
				e.priority = 2 + e.value
				return true
			}
			e.stage = EnvelopeDecay
		case EnvelopeDecay:
			e.value = math.Exp(e.decaySlope * (t - e.decayStart))
			if e.value <= e.sustainLevel {
				e.value = e.sustainLevel
				e.stage = EnvelopeSustain
			}
			e.priority = 1 + e.value
			if e.value < nonAudible {
				e.stage = EnvelopeFinished
				e.value = 0
				return false
			}
			return true
		case EnvelopeSustain:
			e.value = e.sustainLevel
			e.priority = 1 + e.value
			if e.value < nonAudible {
				e.stage = EnvelopeFinished
				e.value = 0
				return false
			}
			return true
		case EnvelopeRelease:
			e.value = e.releaseLevel * math.Exp(e.releaseSlope*(t-e.releaseStart))
			e.priority = e.value
			if e.value < nonAudible {
				e.stage = EnvelopeFinished
				e.value = 0
				return false
			}
			return true
		default:
			e.value = 0
			e.priority = 0
			return false
		}
	}
}

// modulationEnvelope has linear segments throughout. It never ends a voice.
type modulationEnvelope struct {
	sampleRate float64

	attackTime   float64
	decayTime    float64
	releaseTime  float64
	attackStart  float64
	holdStart    float64
	decayStart   float64
	decayEnd     float64
	sustainLevel float64

	releaseLevel float64
	releaseStart float64

	processed int
	stage     EnvelopeStage
	value     float64
}

func (e *modulationEnvelope) start(p envelopeParams, sampleRate float64) {
	e.sampleRate = sampleRate
	e.attackTime = p.attack
	e.decayTime = p.decay
	e.releaseTime = p.release
	e.sustainLevel = clamp(p.sustain, 0, 1)

	e.attackStart = p.delay
	e.holdStart = e.attackStart + p.attack
	e.decayStart = e.holdStart + p.hold
	// A full decay runs from 1 to 0; a partial one stops at the sustain level.
	e.decayEnd = e.decayStart + (1-e.sustainLevel)*p.decay

	e.releaseLevel = 0
	e.releaseStart = 0
	e.processed = 0
	e.stage = EnvelopeDelay
	e.value = 0
	e.process(0)
}

func (e *modulationEnvelope) release() {
	if e.stage >= EnvelopeRelease {
		return
	}
	e.releaseLevel = e.value
	e.releaseStart = float64(e.processed) / e.sampleRate
	e.stage = EnvelopeRelease
}

func (e *modulationEnvelope) process(n int) {
	e.processed += n
	t := float64(e.processed) / e.sampleRate

	for {
		switch e.stage {
		case EnvelopeDelay:
			if t < e.attackStart {
				e.value = 0
				return
			}
			e.stage = EnvelopeAttack
		case EnvelopeAttack:
			if t < e.holdStart {
				e.value = (t - e.attackStart) / math.Max(e.attackTime, 1e-6)
				return
			}
			e.stage = EnvelopeHold
		case EnvelopeHold:
			if t < e.decayStart {
				e.value = 1
				return
			}
			e.stage = EnvelopeDecay
		case EnvelopeDecay:
			if t < e.decayEnd {
				e.value = 1 - (t-e.decayStart)/math.Max(e.decayTime, 1e-6)
				return
			}
			e.stage = EnvelopeSustain
		case EnvelopeSustain:
			e.value = e.sustainLevel
			return
		case EnvelopeRelease:
			e.value = e.releaseLevel - e.releaseLevel*(t-e.releaseStart)/math.Max(e.releaseTime, 1e-6)
			if e.value <= 0 {
				e.value = 0
				e.stage = EnvelopeFinished
			}
			return
		default:
			e.value = 0
			return
		}
	}
}
