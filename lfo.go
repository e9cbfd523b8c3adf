package gosf2synth

import "math"

// LFO waveforms.
const (
	WaveSine = iota
	WaveTriangle
)

// lfo is a delayed low-frequency oscillator advanced once per block.
// Its output is in [-1, 1].
type lfo struct {
	waveform   int
	sampleRate float64
	delay      float64 // seconds
	rateHz     float64
	phase      float64 // [0, 1)
	processed  int
	value      float64
}

func (l *lfo) start(waveform int, delay, rateHz, sampleRate float64) {
	l.waveform = waveform
	l.sampleRate = sampleRate
	l.delay = delay
	l.rateHz = rateHz
	l.phase = 0
	l.processed = 0
	l.value = 0
}

// process advances the LFO by n frames.
func (l *lfo) process(n int) {
	l.processed += n
	t := float64(l.processed) / l.sampleRate
	if t < l.delay || l.rateHz <= 0 {
		l.value = 0
		return
	}

	l.phase = math.Mod((t-l.delay)*l.rateHz, 1)
	switch l.waveform {
	case WaveSine:
		l.value = math.Sin(2 * math.Pi * l.phase)
	default:
		// Triangle starting at zero and rising.
		switch {
		case l.phase < 0.25:
			l.value = 4 * l.phase
		case l.phase < 0.75:
			l.value = 2 - 4*l.phase
		default:
			l.value = 4*l.phase - 4
		}
	}
}
