package gosf2synth

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/GeoffreyPlitt/debuggo"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
)

var sampleDebug = debuggo.Debug("sf2synth:sample")

// Sample represents a loaded audio file, converted to 16-bit points
type Sample struct {
	FilePath   string    // Original file path
	Channels   [][]int16 // One slice per channel
	SampleRate int       // Sample rate in Hz
	Length     int       // Number of samples per channel
}

// SampleCache manages loaded samples to avoid duplicate loading
type SampleCache struct {
	samples map[string]*Sample // File path -> Sample
}

// NewSampleCache creates a new sample cache
func NewSampleCache() *SampleCache {
	return &SampleCache{
		samples: make(map[string]*Sample),
	}
}

// LoadSample loads a WAV or FLAC file and returns a Sample, using cache if available
func (sc *SampleCache) LoadSample(filePath string) (*Sample, error) {
	if sample, exists := sc.samples[filePath]; exists {
		sampleDebug("Sample already cached: %s", filePath)
		return sample, nil
	}

	sampleDebug("Loading new sample: %s", filePath)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("sample file not found: %s", filePath)
	}

	ext := strings.ToLower(filepath.Ext(filePath))

	var sample *Sample
	var err error

	switch ext {
	case ".wav":
		sample, err = sc.loadWAV(filePath)
	case ".flac":
		sample, err = sc.loadFLAC(filePath)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .wav, .flac)", ext)
	}

	if err != nil {
		return nil, err
	}

	sc.samples[filePath] = sample

	sampleDebug("Loaded sample: %s (rate: %d Hz, channels: %d, length: %d samples)",
		filePath, sample.SampleRate, len(sample.Channels), sample.Length)

	return sample, nil
}

// to16 scales a PCM value of the given bit depth to 16 bits.
func to16(v int, bitDepth int) int16 {
	switch {
	case bitDepth == 8:
		// 8-bit WAV data is unsigned.
		return int16((v - 128) << 8)
	case bitDepth > 16:
		return int16(v >> uint(bitDepth-16))
	case bitDepth < 16 && bitDepth > 0:
		return int16(v << uint(16-bitDepth))
	default:
		return int16(v)
	}
}

func deinterleave(data []int, channels, bitDepth int) [][]int16 {
	if channels < 1 {
		channels = 1
	}
	length := len(data) / channels
	out := make([][]int16, channels)
	for ch := range out {
		out[ch] = make([]int16, length)
		for i := 0; i < length; i++ {
			out[ch][i] = to16(data[i*channels+ch], bitDepth)
		}
	}
	return out
}

// loadWAV loads a WAV file
func (sc *SampleCache) loadWAV(filePath string) (*Sample, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file %s: %w", filePath, err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file: %s", filePath)
	}

	audioData, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data from %s: %w", filePath, err)
	}

	channels := int(audioData.Format.NumChannels)
	data := deinterleave(audioData.Data, channels, int(decoder.BitDepth))
	return &Sample{
		FilePath:   filePath,
		Channels:   data,
		SampleRate: int(audioData.Format.SampleRate),
		Length:     len(data[0]),
	}, nil
}

// loadFLAC loads a FLAC file
func (sc *SampleCache) loadFLAC(filePath string) (*Sample, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file %s: %w", filePath, err)
	}
	defer file.Close()

	stream, err := flac.New(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create FLAC decoder for %s: %w", filePath, err)
	}
	defer stream.Close()

	info := stream.Info
	if info == nil {
		return nil, fmt.Errorf("no stream info available for FLAC file: %s", filePath)
	}

	channels := int(info.NChannels)
	bitsPerSample := int(info.BitsPerSample)
	data := make([][]int16, channels)

	for {
		frame, err := stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read FLAC frame from %s: %w", filePath, err)
		}

		for ch := 0; ch < channels; ch++ {
			for _, v := range frame.Subframes[ch].Samples {
				data[ch] = append(data[ch], to16(int(v), bitsPerSample))
			}
		}
	}

	return &Sample{
		FilePath:   filePath,
		Channels:   data,
		SampleRate: int(info.SampleRate),
		Length:     len(data[0]),
	}, nil
}

// LoadSampleRelative loads a sample with a path relative to the SFZ file directory
func (sc *SampleCache) LoadSampleRelative(sfzDir, relativePath string) (*Sample, error) {
	relativePath = filepath.FromSlash(strings.ReplaceAll(relativePath, "\\", "/"))
	return sc.LoadSample(filepath.Join(sfzDir, relativePath))
}

// GetSample returns a cached sample if it exists
func (sc *SampleCache) GetSample(filePath string) (*Sample, bool) {
	sample, exists := sc.samples[filePath]
	return sample, exists
}

// Clear removes all samples from the cache
func (sc *SampleCache) Clear() {
	sc.samples = make(map[string]*Sample)
	sampleDebug("Sample cache cleared")
}

// Size returns the number of cached samples
func (sc *SampleCache) Size() int {
	return len(sc.samples)
}
