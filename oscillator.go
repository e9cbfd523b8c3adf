package gosf2synth

import "math"

// oscillator reads a region of the shared wave data at a fractional
// position with linear interpolation.
type oscillator struct {
	data []int16
	mode LoopMode

	sampleStart int
	sampleEnd   int
	startLoop   int
	endLoop     int

	rootKey         int
	tune            float64 // semitones, set by the voice
	pitchScale      float64 // scaleTuning / 100
	sampleRateRatio float64

	looping  bool
	position float64
}

type oscillatorParams struct {
	mode       LoopMode
	sampleRate int
	start      int
	end        int
	startLoop  int
	endLoop    int
	rootKey    int
	scale      int // cents per key
}

func (o *oscillator) start(data []int16, p oscillatorParams, outputRate float64) {
	o.data = data
	o.mode = p.mode

	// Addresses are clamped into the wave data so a bad bank cannot read out of bounds.
	n := len(data)
	o.sampleStart = clampInt(p.start, 0, n)
	o.sampleEnd = clampInt(p.end, o.sampleStart, n)
	o.startLoop = clampInt(p.startLoop, o.sampleStart, o.sampleEnd)
	o.endLoop = clampInt(p.endLoop, o.startLoop, o.sampleEnd)

	o.rootKey = p.rootKey
	o.tune = 0
	o.pitchScale = 0.01 * float64(p.scale)
	o.sampleRateRatio = float64(p.sampleRate) / outputRate

	o.looping = o.mode != LoopNone && o.endLoop-o.startLoop > 0
	o.position = float64(o.sampleStart)
}

// release stops looping for loop-until-release samples so playback runs on
// to the sample end.
func (o *oscillator) release() {
	if o.mode == LoopUntilNoteRelease {
		o.looping = false
	}
}

// ratio returns the read increment for a pitch given in fractional keys.
func (o *oscillator) ratio(pitch float64) float64 {
	change := o.pitchScale*(pitch-float64(o.rootKey)) + o.tune
	return o.sampleRateRatio * math.Pow(2, change/12)
}

// process fills block and reports whether the sample is still playing.
func (o *oscillator) process(block []float32, pitch float64) bool {
	step := o.ratio(pitch)
	if o.looping {
		o.fillLoop(block, step)
		return true
	}
	return o.fillNoLoop(block, step)
}

func (o *oscillator) fillNoLoop(block []float32, step float64) bool {
	for t := range block {
		index := int(o.position)
		if index >= o.sampleEnd {
			if t == 0 {
				return false
			}
			for i := t; i < len(block); i++ {
				block[i] = 0
			}
			return true
		}

		x1 := float64(o.data[index])
		x2 := x1
		if index+1 < o.sampleEnd {
			x2 = float64(o.data[index+1])
		}
		a := o.position - float64(index)
		block[t] = float32((x1 + a*(x2-x1)) / 32768)

		o.position += step
	}
	return true
}

func (o *oscillator) fillLoop(block []float32, step float64) {
	loopLength := float64(o.endLoop - o.startLoop)
	for t := range block {
		for o.position >= float64(o.endLoop) {
			o.position -= loopLength
		}

		index1 := int(o.position)
		index2 := index1 + 1
		if index2 >= o.endLoop {
			index2 -= o.endLoop - o.startLoop
		}

		x1 := float64(o.data[index1])
		x2 := float64(o.data[index2])
		a := o.position - float64(index1)
		block[t] = float32((x1 + a*(x2-x1)) / 32768)

		o.position += step
	}
}
