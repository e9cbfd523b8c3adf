package gosf2synth

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/GeoffreyPlitt/debuggo"
	"gitlab.com/gomidi/midi/v2/smf"
)

var sequencerDebug = debuggo.Debug("sf2synth:sequencer")

// defaultTempo is 120 BPM in microseconds per quarter note.
const defaultTempo = 500000

// midiMessage is a channel message at an absolute time.
type midiMessage struct {
	time    float64 // seconds
	channel int
	command int
	data1   int
	data2   int
}

// MidiFile is a Standard MIDI File flattened into one time-ordered list of
// channel messages.
type MidiFile struct {
	messages  []midiMessage
	length    float64
	loopIndex int
	loopTime  float64
}

// LoadMidiFile reads a Standard MIDI File from disk.
func LoadMidiFile(path string) (*MidiFile, error) {
	sequencerDebug("Loading MIDI file: %s", path)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MIDI file: %w", err)
	}
	defer file.Close()

	mf, err := ParseMidiFile(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return mf, nil
}

type timedEvent struct {
	tick  uint64
	track int
	order int
	msg   smf.Message
}

// ParseMidiFile decodes a Standard MIDI File. Tempo changes from any track
// apply to all tracks; a CC 111 marks the loop start.
func ParseMidiFile(r io.Reader) (*MidiFile, error) {
	br := bufio.NewReader(r)
	// smf cannot compute times for SMPTE divisions, so those are refused
	// from the header before decoding.
	if header, err := br.Peek(14); err == nil && string(header[:4]) == "MThd" {
		if division := binary.BigEndian.Uint16(header[12:]); division&0x8000 != 0 {
			return nil, fmt.Errorf("unsupported MIDI time format: SMPTE division 0x%04X", division)
		}
	}
	s, err := smf.ReadFrom(br)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI file: %w", err)
	}
	ticks, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("unsupported MIDI time format %v", s.TimeFormat)
	}
	resolution := float64(ticks.Resolution())
	if resolution == 0 {
		return nil, fmt.Errorf("MIDI file has zero resolution")
	}

	var events []timedEvent
	for ti, track := range s.Tracks {
		var tick uint64
		for ei, ev := range track {
			tick += uint64(ev.Delta)
			events = append(events, timedEvent{tick: tick, track: ti, order: ei, msg: ev.Message})
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return events[i].track < events[j].track
	})

	mf := &MidiFile{loopIndex: 0}
	tempo := float64(defaultTempo)
	var lastTick uint64
	var now float64
	loopFound := false
	for _, ev := range events {
		now += float64(ev.tick-lastTick) * tempo / (resolution * 1e6)
		lastTick = ev.tick

		var bpm float64
		if ev.msg.GetMetaTempo(&bpm) {
			if bpm > 0 {
				tempo = 60e6 / bpm
			}
			continue
		}

		raw := []byte(ev.msg)
		if len(raw) == 0 || raw[0] < 0x80 || raw[0] >= 0xF0 {
			continue
		}
		m := midiMessage{time: now, channel: int(raw[0] & 0x0F), command: int(raw[0] & 0xF0)}
		if len(raw) > 1 {
			m.data1 = int(raw[1])
		}
		if len(raw) > 2 {
			m.data2 = int(raw[2])
		}
		if m.command == 0xB0 && m.data1 == ccLoopPoint && !loopFound {
			mf.loopIndex = len(mf.messages)
			mf.loopTime = now
			loopFound = true
		}
		mf.messages = append(mf.messages, m)
	}
	mf.length = now

	sequencerDebug("Parsed MIDI file: %d tracks, %d channel messages, %.2fs", len(s.Tracks), len(mf.messages), mf.length)
	return mf, nil
}

// Length returns the duration of the file in seconds.
func (f *MidiFile) Length() float64 { return f.length }

// MessageCount returns the number of channel messages in the file.
func (f *MidiFile) MessageCount() int { return len(f.messages) }

// MidiFileSequencer plays a MidiFile through a Synthesizer. Messages are
// dispatched at block boundaries. A synthesizer driven by a sequencer must
// not be rendered directly at the same time.
type MidiFileSequencer struct {
	synth *Synthesizer
	file  *MidiFile
	loop  bool
	speed float64

	blockRead    int
	currentTime  float64
	messageIndex int
}

// NewMidiFileSequencer creates a sequencer driving synth.
func NewMidiFileSequencer(synth *Synthesizer) (*MidiFileSequencer, error) {
	if !synth.Ready() {
		return nil, &StateError{Op: "create sequencer", Err: ErrNotInitialized}
	}
	return &MidiFileSequencer{synth: synth, speed: 1, blockRead: synth.settings.BlockSize}, nil
}

// Play starts a file from the beginning, resetting the synthesizer.
func (seq *MidiFileSequencer) Play(file *MidiFile, loop bool) error {
	if file == nil {
		return fmt.Errorf("failed to play: MIDI file is nil")
	}
	seq.file = file
	seq.loop = loop
	seq.blockRead = seq.synth.settings.BlockSize
	seq.currentTime = 0
	seq.messageIndex = 0
	sequencerDebug("Play: %d messages, loop=%v", len(file.messages), loop)
	return seq.synth.Reset()
}

// Stop ends playback and silences the synthesizer.
func (seq *MidiFileSequencer) Stop() error {
	seq.file = nil
	seq.blockRead = seq.synth.settings.BlockSize
	seq.currentTime = 0
	seq.messageIndex = 0
	return seq.synth.Reset()
}

// Speed returns the playback speed multiplier.
func (seq *MidiFileSequencer) Speed() float64 { return seq.speed }

// SetSpeed sets the playback speed multiplier; negative values are rejected.
func (seq *MidiFileSequencer) SetSpeed(speed float64) error {
	if speed < 0 {
		return fmt.Errorf("playback speed must be non-negative, got %g", speed)
	}
	seq.speed = speed
	return nil
}

// Position returns the playback position in seconds.
func (seq *MidiFileSequencer) Position() float64 { return seq.currentTime }

// EndOfSequence reports whether a non-looping file has dispatched all messages.
func (seq *MidiFileSequencer) EndOfSequence() bool {
	if seq.file == nil {
		return true
	}
	return !seq.loop && seq.messageIndex >= len(seq.file.messages)
}

// Render fills left and right, dispatching messages as playback time passes.
func (seq *MidiFileSequencer) Render(left, right []float32) error {
	if err := seq.synth.check("render"); err != nil {
		return err
	}
	if len(right) < len(left) {
		return fmt.Errorf("failed to render: right buffer has %d frames, left has %d", len(right), len(left))
	}

	s := seq.synth
	blockSize := s.settings.BlockSize
	wrote := 0
	for wrote < len(left) {
		if seq.blockRead == blockSize {
			seq.processMessages()
			s.renderBlock()
			seq.blockRead = 0
			seq.currentTime += seq.speed * float64(blockSize) / float64(s.settings.SampleRate)
		}
		n := blockSize - seq.blockRead
		if rest := len(left) - wrote; n > rest {
			n = rest
		}
		copy(left[wrote:wrote+n], s.blockLeft[seq.blockRead:seq.blockRead+n])
		copy(right[wrote:wrote+n], s.blockRight[seq.blockRead:seq.blockRead+n])
		seq.blockRead += n
		wrote += n
	}
	return nil
}

func (seq *MidiFileSequencer) processMessages() {
	if seq.file == nil {
		return
	}
	msgs := seq.file.messages
	for seq.messageIndex < len(msgs) && msgs[seq.messageIndex].time <= seq.currentTime {
		m := msgs[seq.messageIndex]
		seq.synth.ProcessMidiMessage(m.channel, m.command, m.data1, m.data2)
		seq.messageIndex++
	}

	if seq.messageIndex >= len(msgs) && seq.loop && seq.currentTime >= seq.file.length {
		sequencerDebug("Looping to %.2fs", seq.file.loopTime)
		seq.currentTime = seq.file.loopTime
		seq.messageIndex = seq.file.loopIndex
		seq.synth.NoteOffAll(false)
	}
}
