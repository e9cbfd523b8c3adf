package gosf2synth

import (
	"bytes"
	"math"
	"os"
	"testing"
)

const (
	testSampleRate = 44100
	// A 100-point period at 44000 Hz is exactly 440 Hz.
	sineSampleRate = 44000
	sinePeriod     = 100
)

// sineSamples returns n points of a sine with the given period in points.
func sineSamples(n, period int, amplitude float64) []int16 {
	data := make([]int16, n)
	for i := range data {
		data[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*float64(i)/float64(period)))
	}
	return data
}

// sineBankBuilder returns a builder with one looping 440 Hz sine sample,
// one instrument playing it over the whole keyboard with gens, and one
// preset at 0:0.
func sineBankBuilder(gens ...Generator) *BankBuilder {
	b := NewBankBuilder("Sine Test")
	sample := b.AddSample(SampleSpec{
		Name:          "sine440",
		Data:          sineSamples(10*sinePeriod, sinePeriod, 0.8),
		SampleRate:    sineSampleRate,
		OriginalPitch: 69,
		LoopStart:     0,
		LoopEnd:       10 * sinePeriod,
	})
	zoneGens := append([]Generator{{Type: GenSampleModes, Value: int16(LoopContinuous)}}, gens...)
	inst := b.AddInstrument("Sine", nil, InstrumentZoneSpec{ZoneSpec: ZoneSpec{Generators: zoneGens}, Sample: sample})
	b.AddPreset("Sine", 0, 0, nil, PresetZoneSpec{Instrument: inst})
	return b
}

// loadTestBank serializes a builder and parses the result.
func loadTestBank(t *testing.T, b *BankBuilder) *SoundFont {
	t.Helper()
	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("Failed to build test bank: %v", err)
	}
	sf, err := ParseSoundFont(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to parse test bank: %v", err)
	}
	return sf
}

// createTestSynth creates a synthesizer with default settings and the given polyphony.
func createTestSynth(t *testing.T, sf *SoundFont, polyphony int) *Synthesizer {
	t.Helper()
	settings := DefaultSettings(testSampleRate)
	settings.MaximumPolyphony = polyphony
	synth, err := NewSynthesizer(sf, settings)
	if err != nil {
		t.Fatalf("Failed to create synthesizer: %v", err)
	}
	return synth
}

// renderFrames renders n frames and fails the test on error.
func renderFrames(t *testing.T, synth *Synthesizer, n int) ([]float32, []float32) {
	t.Helper()
	left := make([]float32, n)
	right := make([]float32, n)
	if err := synth.Render(left, right); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	return left, right
}

func peak(buf []float32) float64 {
	p := 0.0
	for _, x := range buf {
		p = math.Max(p, math.Abs(float64(x)))
	}
	return p
}

func rms(buf []float32) float64 {
	if len(buf) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range buf {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum / float64(len(buf)))
}

// createTestSfzFile creates a temporary SFZ file with given content and returns cleanup function
func createTestSfzFile(t *testing.T, content string) (string, func()) {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "test_*.sfz")
	if err != nil {
		t.Fatalf("Failed to create temp SFZ file: %v", err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to write to temp SFZ file: %v", err)
	}
	tmpFile.Close()

	cleanup := func() {
		os.Remove(tmpFile.Name())
	}

	return tmpFile.Name(), cleanup
}

// assertOpcode checks that a section has the expected opcode value
func assertOpcode(t *testing.T, section *SfzSection, opcode, expected string) {
	t.Helper()
	actual := section.GetStringOpcode(opcode)
	if actual != expected {
		t.Errorf("Expected %s=%s, got %s", opcode, expected, actual)
	}
}

// assertIntOpcode checks that a section has the expected int opcode value
func assertIntOpcode(t *testing.T, section *SfzSection, opcode string, expected int) {
	t.Helper()
	actual := section.GetIntOpcode(opcode, -999)
	if actual != expected {
		t.Errorf("Expected %s=%d, got %d", opcode, expected, actual)
	}
}

// assertFloatOpcode checks that a section has the expected float opcode value
func assertFloatOpcode(t *testing.T, section *SfzSection, opcode string, expected float64) {
	t.Helper()
	actual := section.GetFloatOpcode(opcode, -999.0)
	if math.Abs(actual-expected) > 0.001 {
		t.Errorf("Expected %s=%.3f, got %.3f", opcode, expected, actual)
	}
}
