package gosf2synth

import "math"

// nonAudible is the envelope level under which a voice is considered silent (-60 dB).
const nonAudible = 1e-3

// timecentsToSeconds converts an SF2 timecent value to seconds.
func timecentsToSeconds(tc float64) float64 {
	return math.Pow(2, tc/1200)
}

// absoluteCentsToHertz converts absolute cents (8.176 Hz reference) to Hz.
func absoluteCentsToHertz(cents float64) float64 {
	return 8.176 * math.Pow(2, cents/1200)
}

// centibelsToGain converts an attenuation in centibels to a linear amplitude.
func centibelsToGain(cb float64) float64 {
	return math.Pow(10, -cb/200)
}

// decibelsToLinear converts a gain in dB to a linear amplitude.
func decibelsToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// keyNumberToMultiplier returns the time scale of the keynumTo*Hold/Decay
// generators: cents per key relative to key 60.
func keyNumberToMultiplier(cents float64, key int) float64 {
	return timecentsToSeconds(cents * float64(60-key))
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func clampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
