package gosf2synth

import "math"

// resonancePeakOffset shifts Q so the resonance peak, not the -3 dB point,
// lands at the requested height.
var resonancePeakOffset = 1 - 1/math.Sqrt2

// biquad is a resonant low-pass filter in direct form I. Coefficients are
// recomputed once per block.
type biquad struct {
	sampleRate float64
	active     bool

	a0, a1, a2, a3, a4 float64
	x1, x2, y1, y2     float64
}

func (f *biquad) clearBuffer() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}

// setLowPass configures the filter for a cutoff in Hz and a resonance as a
// linear peak gain. A cutoff at or above 0.45 of the sample rate leaves the
// filter open.
func (f *biquad) setLowPass(cutoff, resonance float64) {
	ceiling := 0.45 * f.sampleRate
	if cutoff >= ceiling {
		if f.active {
			f.clearBuffer()
		}
		f.active = false
		return
	}
	cutoff = clamp(cutoff, 10, ceiling)
	if resonance < 1 {
		resonance = 1
	}
	q := resonance - resonancePeakOffset/(1+6*(resonance-1))

	w := 2 * math.Pi * cutoff / f.sampleRate
	cosw := math.Cos(w)
	alpha := math.Sin(w) / (2 * q)

	b0 := (1 - cosw) / 2
	b1 := 1 - cosw
	b2 := (1 - cosw) / 2
	a0 := 1 + alpha
	a1 := -2 * cosw
	a2 := 1 - alpha

	f.a0 = b0 / a0
	f.a1 = b1 / a0
	f.a2 = b2 / a0
	f.a3 = a1 / a0
	f.a4 = a2 / a0
	f.active = true
}

func (f *biquad) process(block []float32) {
	if !f.active {
		return
	}
	for i, v := range block {
		x := float64(v)
		y := f.a0*x + f.a1*f.x1 + f.a2*f.x2 - f.a3*f.y1 - f.a4*f.y2
		f.x2, f.x1 = f.x1, x
		f.y2, f.y1 = f.y1, y
		block[i] = float32(y)
	}
}
