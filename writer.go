package gosf2synth

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/GeoffreyPlitt/debuggo"
)

var writerDebug = debuggo.Debug("sf2synth:writer")

// samplePadding is the number of zero points written after every sample.
const samplePadding = 46

// SampleSpec describes a sample to add to a bank. Loop points are relative
// to the start of Data.
type SampleSpec struct {
	Name            string
	Data            []int16
	SampleRate      int
	OriginalPitch   int
	PitchCorrection int
	LoopStart       int
	LoopEnd         int
	Link            int
	Type            SampleType
}

// ZoneSpec is a generator and modulator list. Range generators are moved
// to the front when written.
type ZoneSpec struct {
	Generators []Generator
	Modulators []Modulator
}

// InstrumentZoneSpec is a zone playing the sample at index Sample.
type InstrumentZoneSpec struct {
	ZoneSpec
	Sample int
}

// PresetZoneSpec is a zone playing the instrument at index Instrument.
type PresetZoneSpec struct {
	ZoneSpec
	Instrument int
}

type builderInstrument struct {
	name   string
	global *ZoneSpec
	zones  []InstrumentZoneSpec
}

type builderPreset struct {
	name    string
	bank    int
	program int
	global  *ZoneSpec
	zones   []PresetZoneSpec
}

// BankBuilder assembles a SoundFont bank in memory and serializes it.
type BankBuilder struct {
	Info        SoundFontInfo
	samples     []SampleSpec
	instruments []builderInstrument
	presets     []builderPreset
}

// NewBankBuilder returns a builder for a bank with the given name.
func NewBankBuilder(name string) *BankBuilder {
	return &BankBuilder{
		Info: SoundFontInfo{
			Version:           Version{Major: 2, Minor: 1},
			TargetSoundEngine: "EMU8000",
			BankName:          name,
			Tools:             "gosf2synth",
		},
	}
}

// AddSample appends a sample and returns its index.
func (b *BankBuilder) AddSample(s SampleSpec) int {
	if s.Type == 0 {
		s.Type = SampleMono
	}
	b.samples = append(b.samples, s)
	return len(b.samples) - 1
}

// AddInstrument appends an instrument and returns its index. global may be nil.
func (b *BankBuilder) AddInstrument(name string, global *ZoneSpec, zones ...InstrumentZoneSpec) int {
	b.instruments = append(b.instruments, builderInstrument{name: name, global: global, zones: zones})
	return len(b.instruments) - 1
}

// AddPreset appends a preset and returns its index. global may be nil.
func (b *BankBuilder) AddPreset(name string, bank, program int, global *ZoneSpec, zones ...PresetZoneSpec) int {
	b.presets = append(b.presets, builderPreset{name: name, bank: bank, program: program, global: global, zones: zones})
	return len(b.presets) - 1
}

// Counts returns the number of presets, instruments and samples added.
func (b *BankBuilder) Counts() (presets, instruments, samples int) {
	return len(b.presets), len(b.instruments), len(b.samples)
}

// Bytes serializes the bank.
func (b *BankBuilder) Bytes() ([]byte, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	body.WriteString("sfbk")
	writeChunk(&body, "LIST", b.infoList())
	writeChunk(&body, "LIST", b.sampleList())
	writeChunk(&body, "LIST", b.parameterList())

	var out bytes.Buffer
	writeChunk(&out, "RIFF", body.Bytes())
	writerDebug("Serialized bank '%s': %d presets, %d instruments, %d samples, %d bytes",
		b.Info.BankName, len(b.presets), len(b.instruments), len(b.samples), out.Len())
	return out.Bytes(), nil
}

// WriteTo writes the serialized bank to w.
func (b *BankBuilder) WriteTo(w io.Writer) (int64, error) {
	data, err := b.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	if err != nil {
		return int64(n), fmt.Errorf("failed to write soundfont: %w", err)
	}
	return int64(n), nil
}

func (b *BankBuilder) validate() error {
	if len(b.presets) == 0 || len(b.instruments) == 0 || len(b.samples) == 0 {
		return fmt.Errorf("bank needs at least one preset, instrument and sample (have %d, %d, %d)",
			len(b.presets), len(b.instruments), len(b.samples))
	}
	for _, inst := range b.instruments {
		for _, z := range inst.zones {
			if z.Sample < 0 || z.Sample >= len(b.samples) {
				return fmt.Errorf("instrument '%s' references sample %d of %d", inst.name, z.Sample, len(b.samples))
			}
		}
	}
	for _, p := range b.presets {
		for _, z := range p.zones {
			if z.Instrument < 0 || z.Instrument >= len(b.instruments) {
				return fmt.Errorf("preset '%s' references instrument %d of %d", p.name, z.Instrument, len(b.instruments))
			}
		}
	}
	return nil
}

func writeChunk(w *bytes.Buffer, id string, data []byte) {
	w.WriteString(id)
	binary.Write(w, binary.LittleEndian, uint32(len(data)))
	w.Write(data)
	if len(data)%2 != 0 {
		w.WriteByte(0)
	}
}

// putName writes a NUL-padded fixed-width name.
func putName(w *bytes.Buffer, name string, width int) {
	field := make([]byte, width)
	copy(field[:width-1], name)
	w.Write(field)
}

func zstr(s string) []byte {
	data := append([]byte(s), 0)
	if len(data)%2 != 0 {
		data = append(data, 0)
	}
	return data
}

func (b *BankBuilder) infoList() []byte {
	var list bytes.Buffer
	list.WriteString("INFO")

	version := func(v Version) []byte {
		data := make([]byte, 4)
		binary.LittleEndian.PutUint16(data[0:], uint16(v.Major))
		binary.LittleEndian.PutUint16(data[2:], uint16(v.Minor))
		return data
	}
	info := b.Info
	writeChunk(&list, "ifil", version(info.Version))
	writeChunk(&list, "isng", zstr(info.TargetSoundEngine))
	writeChunk(&list, "INAM", zstr(info.BankName))
	optional := []struct {
		id    string
		value string
	}{
		{"irom", info.ROMName},
		{"ICRD", info.CreationDate},
		{"IENG", info.Author},
		{"IPRD", info.TargetProduct},
		{"ICOP", info.Copyright},
		{"ICMT", info.Comments},
		{"ISFT", info.Tools},
	}
	for _, o := range optional {
		if o.value != "" {
			writeChunk(&list, o.id, zstr(o.value))
		}
	}
	if info.ROMName != "" {
		writeChunk(&list, "iver", version(info.ROMVersion))
	}
	return list.Bytes()
}

func (b *BankBuilder) sampleList() []byte {
	var smpl bytes.Buffer
	for _, s := range b.samples {
		binary.Write(&smpl, binary.LittleEndian, s.Data)
		smpl.Write(make([]byte, 2*samplePadding))
	}
	var list bytes.Buffer
	list.WriteString("sdta")
	writeChunk(&list, "smpl", smpl.Bytes())
	return list.Bytes()
}

// sortedGenerators orders a zone's generators as SF2 requires: keyRange,
// then velRange, then the rest, with the terminal link generator last.
func sortedGenerators(gens []Generator, link GeneratorType, linkValue int, withLink bool) []Generator {
	out := make([]Generator, 0, len(gens)+1)
	for _, g := range gens {
		if g.Type != link {
			out = append(out, g)
		}
	}
	rank := func(t GeneratorType) int {
		switch t {
		case GenKeyRange:
			return 0
		case GenVelocityRange:
			return 1
		}
		return 2
	}
	sort.SliceStable(out, func(i, j int) bool { return rank(out[i].Type) < rank(out[j].Type) })
	if withLink {
		out = append(out, Generator{Type: link, Value: int16(linkValue)})
	}
	return out
}

// zoneTables accumulates bag, generator and modulator records.
type zoneTables struct {
	bags bytes.Buffer
	gens bytes.Buffer
	mods bytes.Buffer
	nGen int
	nMod int
	nBag int
}

func (t *zoneTables) addZone(gens []Generator, mods []Modulator) {
	binary.Write(&t.bags, binary.LittleEndian, [2]uint16{uint16(t.nGen), uint16(t.nMod)})
	t.nBag++
	for _, g := range gens {
		binary.Write(&t.gens, binary.LittleEndian, [2]uint16{uint16(g.Type), uint16(g.Value)})
		t.nGen++
	}
	for _, m := range mods {
		transform := uint16(0)
		if m.AbsTransform {
			transform = 2
		}
		binary.Write(&t.mods, binary.LittleEndian, [5]uint16{
			uint16(m.Source), uint16(m.Destination), uint16(m.Amount), uint16(m.AmountSource), transform,
		})
		t.nMod++
	}
}

// finish appends the terminal bag, generator and modulator records.
func (t *zoneTables) finish() {
	binary.Write(&t.bags, binary.LittleEndian, [2]uint16{uint16(t.nGen), uint16(t.nMod)})
	t.gens.Write(make([]byte, generatorRecordSize))
	t.mods.Write(make([]byte, modulatorRecordSize))
}

func (b *BankBuilder) parameterList() []byte {
	var phdr, inst, shdr bytes.Buffer

	var presetTables zoneTables
	for _, p := range b.presets {
		putName(&phdr, p.name, 20)
		binary.Write(&phdr, binary.LittleEndian, [3]uint16{uint16(p.program), uint16(p.bank), uint16(presetTables.nBag)})
		binary.Write(&phdr, binary.LittleEndian, [3]uint32{0, 0, 0})
		if p.global != nil {
			presetTables.addZone(sortedGenerators(p.global.Generators, GenInstrument, 0, false), p.global.Modulators)
		}
		for _, z := range p.zones {
			presetTables.addZone(sortedGenerators(z.Generators, GenInstrument, z.Instrument, true), z.Modulators)
		}
	}
	putName(&phdr, "EOP", 20)
	binary.Write(&phdr, binary.LittleEndian, [3]uint16{0, 0, uint16(presetTables.nBag)})
	binary.Write(&phdr, binary.LittleEndian, [3]uint32{0, 0, 0})
	presetTables.finish()

	var instTables zoneTables
	for _, in := range b.instruments {
		putName(&inst, in.name, 20)
		binary.Write(&inst, binary.LittleEndian, uint16(instTables.nBag))
		if in.global != nil {
			instTables.addZone(sortedGenerators(in.global.Generators, GenSampleID, 0, false), in.global.Modulators)
		}
		for _, z := range in.zones {
			instTables.addZone(sortedGenerators(z.Generators, GenSampleID, z.Sample, true), z.Modulators)
		}
	}
	putName(&inst, "EOI", 20)
	binary.Write(&inst, binary.LittleEndian, uint16(instTables.nBag))
	instTables.finish()

	start := 0
	for _, s := range b.samples {
		end := start + len(s.Data)
		putName(&shdr, s.Name, 20)
		binary.Write(&shdr, binary.LittleEndian, [5]uint32{
			uint32(start), uint32(end), uint32(start + s.LoopStart), uint32(start + s.LoopEnd), uint32(s.SampleRate),
		})
		shdr.WriteByte(byte(s.OriginalPitch))
		shdr.WriteByte(byte(int8(s.PitchCorrection)))
		binary.Write(&shdr, binary.LittleEndian, [2]uint16{uint16(s.Link), uint16(s.Type)})
		start = end + samplePadding
	}
	putName(&shdr, "EOS", 20)
	shdr.Write(make([]byte, sampleHeaderRecordSize-20))

	var list bytes.Buffer
	list.WriteString("pdta")
	writeChunk(&list, "phdr", phdr.Bytes())
	writeChunk(&list, "pbag", presetTables.bags.Bytes())
	writeChunk(&list, "pmod", presetTables.mods.Bytes())
	writeChunk(&list, "pgen", presetTables.gens.Bytes())
	writeChunk(&list, "inst", inst.Bytes())
	writeChunk(&list, "ibag", instTables.bags.Bytes())
	writeChunk(&list, "imod", instTables.mods.Bytes())
	writeChunk(&list, "igen", instTables.gens.Bytes())
	writeChunk(&list, "shdr", shdr.Bytes())
	return list.Bytes()
}
