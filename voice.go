package gosf2synth

import (
	"math"

	"github.com/GeoffreyPlitt/debuggo"
)

var voiceDebug = debuggo.Debug("sf2synth:voice")

type voiceState int

const (
	voicePlaying voiceState = iota
	voiceReleaseRequested
	voiceReleased
)

// Voice is one sounding note: an oscillator over one sample, two envelopes,
// two LFOs and a filter, rendered a block at a time.
type Voice struct {
	sampleRate   float64
	enableFilter bool
	block        []float32

	ch             *ChannelState
	channel        int
	noteKey        int // key as played, matched by note-off
	noteID         uint64
	key            int
	velocity       int
	exclusiveClass int
	sequence       uint64
	state          voiceState

	gens       [GeneratorCount]int32
	mods       []Modulator
	modValues  [GeneratorCount]float64
	hasDynamic bool

	volEnv volumeEnvelope
	modEnv modulationEnvelope
	vibLFO lfo
	modLFO lfo
	osc    oscillator
	filter biquad

	noteGain       float64
	cutoff         float64 // absolute cents
	resonance      float64 // linear peak gain
	vibLfoToPitch  float64 // cents
	modLfoToPitch  float64 // cents
	modEnvToPitch  float64 // cents
	modLfoToCutoff float64 // cents
	modEnvToCutoff float64 // cents
	modLfoToVolume float64 // centibels
	instrumentPan  float64 // percent

	fineTune float64 // cents, including sample pitch correction

	blocks            int
	previousGainLeft  float32
	previousGainRight float32
	currentGainLeft   float32
	currentGainRight  float32
	lastLeft          float32
	lastRight         float32
}

func newVoice(s Settings) *Voice {
	v := &Voice{
		sampleRate:   float64(s.SampleRate),
		enableFilter: s.EnableLowPassFilter,
		block:        make([]float32, s.BlockSize),
		mods:         make([]Modulator, 0, 16),
	}
	v.filter.sampleRate = v.sampleRate
	return v
}

// Channel returns the MIDI channel the voice plays on.
func (v *Voice) Channel() int { return v.channel }

// Key returns the MIDI key that started the voice.
func (v *Voice) Key() int { return v.key }

// Stage returns the volume envelope stage.
func (v *Voice) Stage() EnvelopeStage { return v.volEnv.stage }

// priority orders voices for stealing; the lowest is stolen first.
func (v *Voice) priority() float64 { return v.volEnv.priority }

func (v *Voice) start(r *EffectiveRegion, wave []int16, ch *ChannelState, channel, key, velocity int, noteID uint64) {
	v.ch = ch
	v.channel = channel
	v.noteKey = key
	v.noteID = noteID
	v.key = key
	v.velocity = velocity
	v.state = voicePlaying
	v.blocks = 0
	v.previousGainLeft, v.previousGainRight = 0, 0
	v.currentGainLeft, v.currentGainRight = 0, 0
	v.lastLeft, v.lastRight = 0, 0

	v.gens = r.gens
	if k := v.gens[GenKeyNumber]; k >= 0 {
		v.key = int(k)
	}
	if vel := v.gens[GenVelocity]; vel >= 0 {
		v.velocity = int(vel)
	}
	v.exclusiveClass = r.ExclusiveClass()
	v.fineTune = float64(r.FineTune())

	v.mods = append(v.mods[:0], r.Modulators...)
	v.hasDynamic = false
	for i := range v.mods {
		if v.mods[i].isDynamic() {
			v.hasDynamic = true
			break
		}
	}
	v.evaluateModulators()

	key = v.key
	v.volEnv.start(envelopeParams{
		delay:   timecentsToSeconds(v.gen(GenDelayVolumeEnvelope)),
		attack:  timecentsToSeconds(v.gen(GenAttackVolumeEnvelope)),
		hold:    timecentsToSeconds(v.gen(GenHoldVolumeEnvelope)) * keyNumberToMultiplier(v.gen(GenKeyNumberToVolumeEnvelopeHold), key),
		decay:   timecentsToSeconds(v.gen(GenDecayVolumeEnvelope)) * keyNumberToMultiplier(v.gen(GenKeyNumberToVolumeEnvelopeDecay), key),
		sustain: centibelsToGain(v.gen(GenSustainVolumeEnvelope)),
		release: timecentsToSeconds(v.gen(GenReleaseVolumeEnvelope)),
	}, v.sampleRate)
	v.modEnv.start(envelopeParams{
		delay:   timecentsToSeconds(v.gen(GenDelayModulationEnvelope)),
		attack:  timecentsToSeconds(v.gen(GenAttackModulationEnvelope)),
		hold:    timecentsToSeconds(v.gen(GenHoldModulationEnvelope)) * keyNumberToMultiplier(v.gen(GenKeyNumberToModulationEnvelopeHold), key),
		decay:   timecentsToSeconds(v.gen(GenDecayModulationEnvelope)) * keyNumberToMultiplier(v.gen(GenKeyNumberToModulationEnvelopeDecay), key),
		sustain: 1 - 0.001*v.gen(GenSustainModulationEnvelope),
		release: timecentsToSeconds(v.gen(GenReleaseModulationEnvelope)),
	}, v.sampleRate)
	v.vibLFO.start(WaveSine, timecentsToSeconds(v.gen(GenDelayVibratoLFO)), absoluteCentsToHertz(v.gen(GenFrequencyVibratoLFO)), v.sampleRate)
	v.modLFO.start(WaveTriangle, timecentsToSeconds(v.gen(GenDelayModulationLFO)), absoluteCentsToHertz(v.gen(GenFrequencyModulationLFO)), v.sampleRate)

	v.osc.start(wave, oscillatorParams{
		mode:       r.LoopMode(),
		sampleRate: r.Sample.SampleRate,
		start:      r.SampleStart(),
		end:        r.SampleEnd(),
		startLoop:  r.SampleStartLoop(),
		endLoop:    r.SampleEndLoop(),
		rootKey:    r.RootKey(),
		scale:      int(v.gens[GenScaleTuning]),
	}, v.sampleRate)
	v.filter.clearBuffer()
	v.filter.active = false
	v.derive()

	voiceDebug("Voice start: channel=%d key=%d velocity=%d sample='%s' root=%d mode=%d",
		channel, v.key, v.velocity, r.Sample.Name, r.RootKey(), r.LoopMode())
}

// gen returns a generator value with modulator contributions added.
func (v *Voice) gen(t GeneratorType) float64 {
	return float64(v.gens[t]) + v.modValues[t]
}

func (v *Voice) evaluateModulators() {
	v.modValues = [GeneratorCount]float64{}
	in := modulatorInputs{key: v.key, velocity: v.velocity, channel: v.ch}
	for i := range v.mods {
		m := &v.mods[i]
		v.modValues[m.Destination] += m.value(&in)
	}
}

// derive recomputes the block-rate parameters from generators and modulators.
func (v *Voice) derive() {
	v.noteGain = centibelsToGain(math.Max(v.gen(GenInitialAttenuation), 0))
	v.cutoff = v.gen(GenInitialFilterCutoffFrequency)
	v.resonance = decibelsToLinear(v.gen(GenInitialFilterQ) / 10)
	v.vibLfoToPitch = v.gen(GenVibratoLFOToPitch)
	v.modLfoToPitch = v.gen(GenModulationLFOToPitch)
	v.modEnvToPitch = v.gen(GenModulationEnvelopeToPitch)
	v.modLfoToCutoff = v.gen(GenModulationLFOToFilterCutoffFrequency)
	v.modEnvToCutoff = v.gen(GenModulationEnvelopeToFilterCutoffFrequency)
	v.modLfoToVolume = v.gen(GenModulationLFOToVolume)
	v.instrumentPan = clamp(v.gen(GenPan)/10, -50, 50)
	v.osc.tune = v.gen(GenCoarseTune) + 0.01*(v.fineTune+v.modValues[GenFineTune])
}

// release moves the voice into its release stage, or marks it for release
// when the hold pedal is down.
func (v *Voice) release() {
	if v.state != voicePlaying {
		return
	}
	if v.ch != nil && v.ch.holdPedal {
		v.state = voiceReleaseRequested
		return
	}
	v.releaseNow()
}

func (v *Voice) releaseNow() {
	v.state = voiceReleased
	v.volEnv.release()
	v.modEnv.release()
	v.osc.release()
}

// kill ends the voice at the next block.
func (v *Voice) kill() {
	v.volEnv.stage = EnvelopeFinished
}

// process renders one block into v.block and updates the mix gains. It
// reports false once the voice has finished.
func (v *Voice) process() bool {
	if v.state == voiceReleaseRequested && !v.ch.holdPedal {
		v.releaseNow()
	}

	if v.hasDynamic {
		v.evaluateModulators()
		v.derive()
	}

	n := len(v.block)
	if !v.volEnv.process(n) {
		return false
	}
	v.modEnv.process(n)
	v.vibLFO.process(n)
	v.modLFO.process(n)

	vibPitch := v.vibLFO.value * (v.vibLfoToPitch + v.ch.Modulation())
	modLfoPitch := v.modLFO.value * v.modLfoToPitch
	modEnvPitch := v.modEnv.value * v.modEnvToPitch
	pitch := float64(v.key) + 0.01*(vibPitch+modLfoPitch+modEnvPitch) + v.ch.Tune() + v.ch.PitchBend()
	if !v.osc.process(v.block, pitch) {
		return false
	}

	if v.enableFilter {
		cents := v.cutoff + v.modLFO.value*v.modLfoToCutoff + v.modEnv.value*v.modEnvToCutoff
		v.filter.setLowPass(absoluteCentsToHertz(cents), v.resonance)
		v.filter.process(v.block)
	}

	channelGain := v.ch.Volume() * v.ch.Expression()
	tremolo := decibelsToLinear(v.modLFO.value * v.modLfoToVolume / 10)
	mixGain := v.noteGain * channelGain * channelGain * tremolo * v.volEnv.value

	angle := math.Pi / 200 * clamp(v.ch.Pan()+v.instrumentPan+50, 0, 100)
	v.previousGainLeft, v.previousGainRight = v.currentGainLeft, v.currentGainRight
	v.currentGainLeft = float32(mixGain * math.Cos(angle))
	v.currentGainRight = float32(mixGain * math.Sin(angle))
	if v.blocks == 0 {
		v.previousGainLeft, v.previousGainRight = v.currentGainLeft, v.currentGainRight
	}
	v.blocks++
	return true
}
