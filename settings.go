package gosf2synth

// Supported ranges for Settings fields.
const (
	MinSampleRate = 8000
	MaxSampleRate = 192000

	MinBlockSize = 8
	MaxBlockSize = 1024

	MinPolyphony = 1
	MaxPolyphony = 256

	DefaultBlockSize        = 64
	DefaultMaximumPolyphony = 64
)

// Settings controls a Synthesizer. All buffers are sized from these values
// when the synthesizer is created.
type Settings struct {
	SampleRate          int  // output sample rate in Hz
	BlockSize           int  // frames rendered per internal block
	MaximumPolyphony    int  // voice pool capacity
	EnableLowPassFilter bool // per-voice resonant low-pass stage
}

// DefaultSettings returns settings for the given sample rate with the
// default block size, polyphony and the filter enabled.
func DefaultSettings(sampleRate int) Settings {
	return Settings{
		SampleRate:          sampleRate,
		BlockSize:           DefaultBlockSize,
		MaximumPolyphony:    DefaultMaximumPolyphony,
		EnableLowPassFilter: true,
	}
}

// Validate returns a *RangeError for the first out-of-range field.
func (s Settings) Validate() error {
	if s.SampleRate < MinSampleRate || s.SampleRate > MaxSampleRate {
		return &RangeError{Field: "sample rate", Value: s.SampleRate, Min: MinSampleRate, Max: MaxSampleRate}
	}
	if s.BlockSize < MinBlockSize || s.BlockSize > MaxBlockSize {
		return &RangeError{Field: "block size", Value: s.BlockSize, Min: MinBlockSize, Max: MaxBlockSize}
	}
	if s.MaximumPolyphony < MinPolyphony || s.MaximumPolyphony > MaxPolyphony {
		return &RangeError{Field: "maximum polyphony", Value: s.MaximumPolyphony, Min: MinPolyphony, Max: MaxPolyphony}
	}
	return nil
}
