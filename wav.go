package gosf2synth

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/GeoffreyPlitt/debuggo"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var wavDebug = debuggo.Debug("sf2synth:wav")

// normalizePeak is the peak level normalized output is scaled to.
const normalizePeak = 0.99

// WriteWAV encodes a stereo float signal as a 16-bit PCM WAV file. With
// normalize, the signal is scaled so its peak reaches 0.99; otherwise
// samples are clipped to [-1, 1].
func WriteWAV(w io.WriteSeeker, left, right []float32, sampleRate int, normalize bool) error {
	if len(right) < len(left) {
		return fmt.Errorf("failed to write WAV: right channel has %d frames, left has %d", len(right), len(left))
	}

	gain := 1.0
	if normalize {
		gain = normalizeGain(left, right)
	}

	data := make([]int, 2*len(left))
	for i := range left {
		data[2*i] = toPCM16(float64(left[i]) * gain)
		data[2*i+1] = toPCM16(float64(right[i]) * gain)
	}

	encoder := wav.NewEncoder(w, sampleRate, 16, 2, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := encoder.Write(buf); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to finish WAV file: %w", err)
	}
	wavDebug("Wrote %d frames at %d Hz", len(left), sampleRate)
	return nil
}

// normalizeGain returns the gain that brings the peak of both channels to
// normalizePeak. Silence is left unscaled.
func normalizeGain(left, right []float32) float64 {
	peak := 0.0
	for i := range left {
		peak = math.Max(peak, math.Abs(float64(left[i])))
		peak = math.Max(peak, math.Abs(float64(right[i])))
	}
	if peak == 0 {
		return 1
	}
	wavDebug("Normalizing: peak %.4f, gain %.4f", peak, normalizePeak/peak)
	return normalizePeak / peak
}

func toPCM16(x float64) int {
	x = clamp(x, -1, 1)
	return int(math.Round(x * 32767))
}

// WriteRawPCM writes interleaved little-endian 16-bit stereo frames with no
// header, normalized like WriteWAV.
func WriteRawPCM(w io.Writer, left, right []float32, normalize bool) error {
	if len(right) < len(left) {
		return fmt.Errorf("failed to write PCM: right channel has %d frames, left has %d", len(right), len(left))
	}
	gain := 1.0
	if normalize {
		gain = normalizeGain(left, right)
	}
	data := make([]int16, 2*len(left))
	for i := range left {
		data[2*i] = int16(toPCM16(float64(left[i]) * gain))
		data[2*i+1] = int16(toPCM16(float64(right[i]) * gain))
	}
	if err := binary.Write(w, binary.LittleEndian, data); err != nil {
		return fmt.Errorf("failed to write PCM data: %w", err)
	}
	wavDebug("Wrote %d raw frames", len(left))
	return nil
}
