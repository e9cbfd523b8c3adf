package gosf2synth

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/GeoffreyPlitt/debuggo"
	"github.com/go-audio/riff"
)

var soundfontDebug = debuggo.Debug("sf2synth:soundfont")

var (
	listID = [4]byte{'L', 'I', 'S', 'T'}
	sfbkID = [4]byte{'s', 'f', 'b', 'k'}
)

// SoundFont is a fully loaded, immutable SF2 bank.
type SoundFont struct {
	Info          SoundFontInfo
	BitsPerSample int
	WaveData      []int16 // shared by every voice; never modified after load
	SampleHeaders []SampleHeader
	Instruments   []Instrument
	Presets       []Preset
}

// subchunk is a raw chunk inside a LIST.
type subchunk struct {
	id   string
	data []byte
}

// LoadSoundFont reads and parses an SF2 file.
func LoadSoundFont(path string) (*SoundFont, error) {
	soundfontDebug("Loading soundfont: %s", path)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open soundfont: %w", err)
	}
	defer file.Close()

	sf, err := ParseSoundFont(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return sf, nil
}

// ParseSoundFont parses an SF2 stream. Any structural problem is reported as
// a *FormatError and no partial bank is returned.
func ParseSoundFont(r io.Reader) (*SoundFont, error) {
	parser := riff.New(r)
	if err := parser.ParseHeaders(); err != nil {
		return nil, &FormatError{Reason: "failed to read RIFF header", Err: err}
	}
	if parser.Format != sfbkID {
		return nil, newFormatError("RIFF", "form type is '%s', want 'sfbk'", string(parser.Format[:]))
	}

	lists := make(map[string][]subchunk)
	remaining := int(parser.Size) - len(parser.Format)
	for {
		chunk, err := parser.NextChunk()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &FormatError{Reason: "failed to read chunk header", Err: err}
		}
		remaining -= 8
		data, err := readChunk(chunk, remaining)
		if err != nil {
			return nil, err
		}
		remaining -= chunk.Size
		if chunk.ID != listID {
			soundfontDebug("Warning: skipping top-level chunk '%s'", string(chunk.ID[:]))
			continue
		}
		if len(data) < 4 {
			return nil, newFormatError("LIST", "list is %d bytes, too short for a type", len(data))
		}
		listType := string(data[:4])
		subs, err := readSubchunks(listType, data[4:])
		if err != nil {
			return nil, err
		}
		soundfontDebug("Read LIST '%s' with %d sub-chunks", listType, len(subs))
		lists[listType] = subs
	}

	sf := &SoundFont{}
	info, err := parseInfo(lists["INFO"])
	if err != nil {
		return nil, err
	}
	sf.Info = info

	if err := sf.parseSampleData(lists["sdta"]); err != nil {
		return nil, err
	}
	if err := sf.parseParameters(lists["pdta"]); err != nil {
		return nil, err
	}

	soundfontDebug("Loaded '%s': %d presets, %d instruments, %d samples, %d sample points",
		sf.Info.BankName, len(sf.Presets), len(sf.Instruments), len(sf.SampleHeaders), len(sf.WaveData))
	return sf, nil
}

// readChunk reads a chunk body of at most limit bytes, the space left in the
// enclosing container. riff reports sizes rounded up to the pad byte, so the
// body may carry one trailing zero.
func readChunk(chunk *riff.Chunk, limit int) ([]byte, error) {
	id := string(chunk.ID[:])
	if chunk.Size < 0 {
		return nil, newFormatError(id, "negative chunk size %d", chunk.Size)
	}
	// The pad byte of the last chunk may be left out of the container size.
	if chunk.Size > limit+1 {
		return nil, newFormatError(id, "chunk size %d exceeds the %d bytes left in its container", chunk.Size, limit)
	}
	var buf bytes.Buffer
	n, err := io.CopyN(&buf, chunk, int64(chunk.Size))
	if err != nil {
		// A missing pad byte after the last chunk is tolerated.
		if errors.Is(err, io.EOF) && int(n) == chunk.Size-1 {
			return buf.Bytes(), nil
		}
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, &FormatError{Chunk: id, Reason: fmt.Sprintf("chunk is truncated: read %d of %d bytes", n, chunk.Size), Err: err}
	}
	return buf.Bytes(), nil
}

func readSubchunks(listType string, payload []byte) ([]subchunk, error) {
	parser := riff.New(bytes.NewReader(payload))
	var subs []subchunk
	remaining := len(payload)
	for {
		chunk, err := parser.NextChunk()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &FormatError{Chunk: listType, Reason: "failed to read sub-chunk header", Err: err}
		}
		remaining -= 8
		data, err := readChunk(chunk, remaining)
		if err != nil {
			return nil, err
		}
		remaining -= chunk.Size
		subs = append(subs, subchunk{id: string(chunk.ID[:]), data: data})
	}
	return subs, nil
}

func findSubchunk(subs []subchunk, id string) ([]byte, bool) {
	for _, sc := range subs {
		if sc.id == id {
			return sc.data, true
		}
	}
	return nil, false
}

func (sf *SoundFont) parseSampleData(subs []subchunk) error {
	data, ok := findSubchunk(subs, "smpl")
	if !ok {
		return newFormatError("smpl", "mandatory chunk is missing")
	}
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	sf.BitsPerSample = 16
	sf.WaveData = make([]int16, len(data)/2)
	for i := range sf.WaveData {
		sf.WaveData[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	if _, ok := findSubchunk(subs, "sm24"); ok {
		soundfontDebug("Ignoring sm24 chunk, playing 16-bit data")
	}
	return nil
}

func (sf *SoundFont) parseParameters(subs []subchunk) error {
	required := func(id string) ([]byte, error) {
		data, ok := findSubchunk(subs, id)
		if !ok {
			return nil, newFormatError(id, "mandatory chunk is missing")
		}
		return data, nil
	}

	phdr, err := required("phdr")
	if err != nil {
		return err
	}
	pbag, err := required("pbag")
	if err != nil {
		return err
	}
	pgen, err := required("pgen")
	if err != nil {
		return err
	}
	inst, err := required("inst")
	if err != nil {
		return err
	}
	ibag, err := required("ibag")
	if err != nil {
		return err
	}
	igen, err := required("igen")
	if err != nil {
		return err
	}
	shdr, err := required("shdr")
	if err != nil {
		return err
	}

	headers, err := readSampleHeaders(shdr)
	if err != nil {
		return err
	}
	if err := validateSampleHeaders(headers, len(sf.WaveData)); err != nil {
		return err
	}
	sf.SampleHeaders = headers

	instRecords, err := readInstrumentRecords(inst)
	if err != nil {
		return err
	}
	instBags, err := readBags("ibag", ibag)
	if err != nil {
		return err
	}
	instGens, err := readGenerators("igen", igen)
	if err != nil {
		return err
	}
	pmodData, havePmod := findSubchunk(subs, "pmod")
	imodData, haveImod := findSubchunk(subs, "imod")
	instMods, err := readModulators("imod", imodData)
	if err != nil {
		return err
	}
	if err := checkBagCount("ibag", len(instBags), instRecords[len(instRecords)-1].bagIndex); err != nil {
		return err
	}
	sf.Instruments, err = buildInstruments(instRecords, instBags, instGens, instMods, haveImod, sf.SampleHeaders)
	if err != nil {
		return err
	}

	presetRecords, err := readPresetRecords(phdr)
	if err != nil {
		return err
	}
	presetBags, err := readBags("pbag", pbag)
	if err != nil {
		return err
	}
	presetGens, err := readGenerators("pgen", pgen)
	if err != nil {
		return err
	}
	presetMods, err := readModulators("pmod", pmodData)
	if err != nil {
		return err
	}
	if err := checkBagCount("pbag", len(presetBags), presetRecords[len(presetRecords)-1].bagIndex); err != nil {
		return err
	}
	sf.Presets, err = buildPresets(presetRecords, presetBags, presetGens, presetMods, havePmod, sf.Instruments)
	return err
}

// checkBagCount verifies that the terminal header points at the terminal bag.
func checkBagCount(chunk string, bags, terminalIndex int) error {
	if terminalIndex >= bags {
		return newFormatError(chunk, "terminal header references bag %d but only %d bags exist", terminalIndex, bags)
	}
	return nil
}

// FindPreset returns the first preset with the given bank and program.
func (sf *SoundFont) FindPreset(bank, program int) *Preset {
	for i := range sf.Presets {
		if sf.Presets[i].Bank == bank && sf.Presets[i].Program == program {
			return &sf.Presets[i]
		}
	}
	return nil
}
