package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/GeoffreyPlitt/debuggo"
	"github.com/spf13/cobra"

	"gosf2synth"
)

var debug = debuggo.Debug("sf2synth:cli")

var version = "0.1.0"

// Flags shared by the rendering commands.
var (
	sampleRate int
	blockSize  int
	polyphony  int
	noFilter   bool
	volume     float64
	normalize  bool
	outputPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sf2synth",
	Short: "Render MIDI with SoundFont 2 banks",
	Long: `sf2synth is an offline SoundFont 2 wavetable synthesizer.

It renders Standard MIDI Files or a demo chord to WAV, prints the
contents of a bank, and converts SFZ instruments into SF2 banks.

Set DEBUG=sf2synth:* to see what the engine is doing.`,
	Version:      version,
	SilenceUsage: true,
}

var renderCmd = &cobra.Command{
	Use:   "render <bank.sf2> <song.mid>",
	Short: "Render a MIDI file to WAV",
	Long: `Render a Standard MIDI File through a SoundFont bank.

Examples:
  sf2synth render TimGM6mb.sf2 song.mid -o song.wav
  sf2synth render bank.sf2 song.mid --rate 48000 --tail 2`,
	Args: cobra.ExactArgs(2),
	RunE: runRender,
}

var chordCmd = &cobra.Command{
	Use:   "chord <bank.sf2>",
	Short: "Render a C major chord",
	Long: `Play middle C, E and G with velocity 100 for three seconds.

Examples:
  sf2synth chord TimGM6mb.sf2 -o chord.wav
  sf2synth chord TimGM6mb.sf2 --format pcm -o out.pcm`,
	Args: cobra.ExactArgs(1),
	RunE: runChord,
}

var infoCmd = &cobra.Command{
	Use:   "info <bank.sf2>",
	Short: "Print the presets, instruments and samples of a bank",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var importCmd = &cobra.Command{
	Use:   "import <instrument.sfz>",
	Short: "Convert an SFZ instrument into an SF2 bank",
	Long: `Convert an SFZ instrument and its WAV/FLAC samples into an SF2 bank
with a single preset at bank 0, program 0.

Example:
  sf2synth import piano.sfz -o piano.sf2`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var (
	tailSeconds  float64
	chordSeconds float64
	program      int
	outputFormat string
)

func init() {
	for _, cmd := range []*cobra.Command{renderCmd, chordCmd} {
		cmd.Flags().IntVarP(&sampleRate, "rate", "r", 44100, "output sample rate in Hz")
		cmd.Flags().IntVar(&blockSize, "block", gosf2synth.DefaultBlockSize, "frames per synthesis block")
		cmd.Flags().IntVarP(&polyphony, "polyphony", "p", gosf2synth.DefaultMaximumPolyphony, "maximum number of voices")
		cmd.Flags().BoolVar(&noFilter, "no-filter", false, "disable the per-voice low-pass filter")
		cmd.Flags().Float64Var(&volume, "volume", gosf2synth.DefaultMasterVolume, "master volume")
		cmd.Flags().BoolVar(&normalize, "normalize", true, "scale the output peak to 0.99")
		cmd.Flags().StringVar(&outputFormat, "format", "wav", "output format: wav or pcm")
	}
	renderCmd.Flags().StringVarP(&outputPath, "output", "o", "out.wav", "output file")
	renderCmd.Flags().Float64Var(&tailSeconds, "tail", 1, "seconds rendered after the last MIDI event")
	chordCmd.Flags().StringVarP(&outputPath, "output", "o", "chord.wav", "output file")
	chordCmd.Flags().Float64Var(&chordSeconds, "seconds", 3, "length of the chord")
	chordCmd.Flags().IntVar(&program, "program", 0, "program number to play")
	importCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output SF2 file (default: next to the SFZ)")

	rootCmd.AddCommand(renderCmd, chordCmd, infoCmd, importCmd)
}

func newSynthesizer(bankPath string) (*gosf2synth.Synthesizer, error) {
	sf, err := gosf2synth.LoadSoundFont(bankPath)
	if err != nil {
		return nil, err
	}
	settings := gosf2synth.DefaultSettings(sampleRate)
	settings.BlockSize = blockSize
	settings.MaximumPolyphony = polyphony
	settings.EnableLowPassFilter = !noFilter

	synth, err := gosf2synth.NewSynthesizer(sf, settings)
	if err != nil {
		return nil, err
	}
	synth.SetMasterVolume(volume)
	return synth, nil
}

func writeOutput(left, right []float32) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(outputFormat) {
	case "wav":
		err = gosf2synth.WriteWAV(file, left, right, sampleRate, normalize)
	case "pcm":
		err = gosf2synth.WriteRawPCM(file, left, right, normalize)
	default:
		return fmt.Errorf("unknown output format %q (want wav or pcm)", outputFormat)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%.2fs at %d Hz)\n", outputPath, float64(len(left))/float64(sampleRate), sampleRate)
	return nil
}

func runRender(cmd *cobra.Command, args []string) error {
	synth, err := newSynthesizer(args[0])
	if err != nil {
		return err
	}
	midiFile, err := gosf2synth.LoadMidiFile(args[1])
	if err != nil {
		return err
	}
	seq, err := gosf2synth.NewMidiFileSequencer(synth)
	if err != nil {
		return err
	}
	if err := seq.Play(midiFile, false); err != nil {
		return err
	}

	frames := int((midiFile.Length() + tailSeconds) * float64(sampleRate))
	left := make([]float32, frames)
	right := make([]float32, frames)
	debug("Rendering %d frames of %s", frames, args[1])
	if err := seq.Render(left, right); err != nil {
		return err
	}
	return writeOutput(left, right)
}

func runChord(cmd *cobra.Command, args []string) error {
	synth, err := newSynthesizer(args[0])
	if err != nil {
		return err
	}
	if err := synth.ProgramChange(0, program); err != nil {
		return err
	}
	for _, key := range []int{60, 64, 67} {
		if err := synth.NoteOn(0, key, 100); err != nil {
			return err
		}
	}

	frames := int(chordSeconds * float64(sampleRate))
	left := make([]float32, frames)
	right := make([]float32, frames)
	if err := synth.Render(left, right); err != nil {
		return err
	}
	return writeOutput(left, right)
}

func runInfo(cmd *cobra.Command, args []string) error {
	sf, err := gosf2synth.LoadSoundFont(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	info := sf.Info
	fmt.Fprintf(out, "Bank:      %s\n", info.BankName)
	fmt.Fprintf(out, "Version:   %s (%s)\n", info.Version, info.TargetSoundEngine)
	if info.Author != "" {
		fmt.Fprintf(out, "Author:    %s\n", info.Author)
	}
	if info.Copyright != "" {
		fmt.Fprintf(out, "Copyright: %s\n", info.Copyright)
	}
	if info.Comments != "" {
		fmt.Fprintf(out, "Comments:  %s\n", info.Comments)
	}
	fmt.Fprintf(out, "Wave data: %d points, %d bits\n", len(sf.WaveData), sf.BitsPerSample)

	fmt.Fprintf(out, "\nPresets (%d):\n", len(sf.Presets))
	for _, p := range sf.Presets {
		fmt.Fprintf(out, "  %03d:%03d  %-20s  %d zones\n", p.Bank, p.Program, p.Name, len(p.Zones))
	}
	fmt.Fprintf(out, "\nInstruments (%d):\n", len(sf.Instruments))
	for _, inst := range sf.Instruments {
		fmt.Fprintf(out, "  %-20s  %d zones\n", inst.Name, len(inst.Zones))
	}
	fmt.Fprintf(out, "\nSamples (%d):\n", len(sf.SampleHeaders))
	for _, s := range sf.SampleHeaders {
		fmt.Fprintf(out, "  %-20s  %6d Hz  key %3d  %8d points\n", s.Name, s.SampleRate, s.OriginalPitch, s.Length())
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	builder, err := gosf2synth.ImportSfz(args[0])
	if err != nil {
		return err
	}
	path := outputPath
	if path == "" {
		path = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".sf2"
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create bank file: %w", err)
	}
	defer file.Close()

	n, err := builder.WriteTo(file)
	if err != nil {
		return fmt.Errorf("failed to write bank: %w", err)
	}
	presets, instruments, samples := builder.Counts()
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %d bytes, %d presets, %d instruments, %d samples\n",
		path, n, presets, instruments, samples)
	return nil
}
