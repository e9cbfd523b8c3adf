package gosf2synth

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/GeoffreyPlitt/debuggo"
)

var parserDebug = debuggo.Debug("sf2synth:sfz")

// SfzData represents the parsed SFZ file structure
type SfzData struct {
	Control *SfzSection
	Global  *SfzSection
	Groups  []*SfzSection
	Regions []*SfzSection
}

// SfzSection represents a section in the SFZ file (control, global, group, or region)
type SfzSection struct {
	Type    string            // "control", "global", "group", or "region"
	Opcodes map[string]string // opcode name -> value
	Parent  *SfzSection       // region -> group -> global
}

// ParseSfzFile parses an SFZ file and returns the structured data
func ParseSfzFile(filePath string) (*SfzData, error) {
	parserDebug("Starting to parse SFZ file: %s", filePath)

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SFZ file: %w", err)
	}
	defer file.Close()

	sfzData := &SfzData{
		Groups:  make([]*SfzSection, 0),
		Regions: make([]*SfzSection, 0),
	}

	scanner := bufio.NewScanner(file)
	lineNum := 0
	var currentSection *SfzSection
	var currentGroup *SfzSection

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, "//"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}

		// Skip empty lines and comments
		if line == "" {
			continue
		}

		parserDebug("Parsing line %d: %s", lineNum, line)

		// A line may hold several headers, each followed by opcodes.
		for line != "" {
			if strings.HasPrefix(line, "<") {
				end := strings.Index(line, ">")
				if end == -1 {
					parserDebug("Warning: Unterminated header at line %d: %s", lineNum, line)
					break
				}
				sectionType := strings.ToLower(line[1:end])
				line = strings.TrimSpace(line[end+1:])
				parserDebug("Found section: %s", sectionType)

				currentSection = &SfzSection{
					Type:    sectionType,
					Opcodes: make(map[string]string),
				}

				switch sectionType {
				case "control":
					sfzData.Control = currentSection
				case "global":
					sfzData.Global = currentSection
				case "group":
					currentSection.Parent = sfzData.Global
					currentGroup = currentSection
					sfzData.Groups = append(sfzData.Groups, currentSection)
				case "region":
					if currentGroup != nil {
						currentSection.Parent = currentGroup
					} else {
						currentSection.Parent = sfzData.Global
					}
					sfzData.Regions = append(sfzData.Regions, currentSection)
				default:
					parserDebug("Warning: Unknown section type: %s", sectionType)
				}
				continue
			}

			next := strings.Index(line, "<")
			if next == -1 {
				next = len(line)
			}
			if currentSection != nil {
				parseOpcodes(line[:next], currentSection, lineNum)
			} else {
				parserDebug("Warning: Opcode found outside of section at line %d: %s", lineNum, line)
			}
			line = strings.TrimSpace(line[next:])
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading SFZ file: %w", err)
	}

	parserDebug("Parsing complete. Found %d regions, %d groups", len(sfzData.Regions), len(sfzData.Groups))
	return sfzData, nil
}

// parseOpcodes parses a line containing opcodes and adds them to the section.
// A value runs until the next opcode, so sample paths may contain spaces.
func parseOpcodes(line string, section *SfzSection, lineNum int) {
	parts := strings.Fields(line)

	var opcode string
	for _, part := range parts {
		equalIndex := strings.Index(part, "=")
		if equalIndex == -1 {
			if opcode != "" {
				section.Opcodes[opcode] += " " + part
			}
			continue
		}

		opcode = strings.ToLower(strings.TrimSpace(part[:equalIndex]))
		value := strings.TrimSpace(part[equalIndex+1:])

		if isKnownOpcode(opcode) {
			section.Opcodes[opcode] = value
			parserDebug("Parsed opcode: %s = %s", opcode, value)
		} else {
			parserDebug("Warning: Unknown opcode '%s' at line %d", opcode, lineNum)
			opcode = ""
		}
	}
}

// isKnownOpcode checks if an opcode is in our supported list
func isKnownOpcode(opcode string) bool {
	knownOpcodes := map[string]bool{
		// Critical Core
		"sample":       true,
		"default_path": true,

		// Key/Velocity Mapping
		"lokey": true,
		"hikey": true,
		"lovel": true,
		"hivel": true,
		"key":   true,

		// Basic Playback
		"volume":          true,
		"pitch_keycenter": true,
		"pitch_keytrack":  true,
		"offset":          true,
		"end":             true,

		// Envelope
		"ampeg_delay":   true,
		"ampeg_attack":  true,
		"ampeg_hold":    true,
		"ampeg_decay":   true,
		"ampeg_sustain": true,
		"ampeg_release": true,

		// Filter
		"cutoff":    true,
		"resonance": true,

		// Common Adjustments
		"tune":      true,
		"pan":       true,
		"transpose": true,
		"group":     true,
		"off_by":    true,

		// Looping
		"loop_mode":  true,
		"loop_start": true,
		"loop_end":   true,
	}

	return knownOpcodes[opcode]
}

// Helper functions to extract specific opcode values with type conversion

// GetStringOpcode returns a string opcode value, or empty string if not found
func (s *SfzSection) GetStringOpcode(opcode string) string {
	if s == nil || s.Opcodes == nil {
		return ""
	}
	return s.Opcodes[opcode]
}

// GetIntOpcode returns an integer opcode value, or defaultValue if not found or invalid.
// Key opcodes also accept note names such as c4 or f#3.
func (s *SfzSection) GetIntOpcode(opcode string, defaultValue int) int {
	if s == nil || s.Opcodes == nil {
		return defaultValue
	}

	value, exists := s.Opcodes[opcode]
	if !exists {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		if note, ok := parseNoteName(value); ok {
			return note
		}
		parserDebug("Warning: Invalid integer value for opcode %s: %s", opcode, value)
		return defaultValue
	}

	return intVal
}

// GetFloatOpcode returns a float opcode value, or defaultValue if not found or invalid
func (s *SfzSection) GetFloatOpcode(opcode string, defaultValue float64) float64 {
	if s == nil || s.Opcodes == nil {
		return defaultValue
	}

	value, exists := s.Opcodes[opcode]
	if !exists {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		parserDebug("Warning: Invalid float value for opcode %s: %s", opcode, value)
		return defaultValue
	}

	return floatVal
}

// lookup finds the nearest section, walking region -> group -> global,
// that defines the opcode.
func (s *SfzSection) lookup(opcode string) *SfzSection {
	for sec := s; sec != nil; sec = sec.Parent {
		if _, ok := sec.Opcodes[opcode]; ok {
			return sec
		}
	}
	return nil
}

// HasInheritedOpcode reports whether the section or one of its parents sets the opcode
func (s *SfzSection) HasInheritedOpcode(opcode string) bool {
	return s.lookup(opcode) != nil
}

// GetInheritedStringOpcode returns a string opcode with inheritance (Region → Group → Global)
func (s *SfzSection) GetInheritedStringOpcode(opcode string) string {
	return s.lookup(opcode).GetStringOpcode(opcode)
}

// GetInheritedIntOpcode returns an integer opcode with inheritance (Region → Group → Global)
func (s *SfzSection) GetInheritedIntOpcode(opcode string, defaultValue int) int {
	return s.lookup(opcode).GetIntOpcode(opcode, defaultValue)
}

// GetInheritedFloatOpcode returns a float opcode with inheritance (Region → Group → Global)
func (s *SfzSection) GetInheritedFloatOpcode(opcode string, defaultValue float64) float64 {
	return s.lookup(opcode).GetFloatOpcode(opcode, defaultValue)
}

// parseNoteName converts a note name (c4 = 60, c#4, db4) to a MIDI key.
func parseNoteName(name string) (int, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) < 2 {
		return 0, false
	}
	offsets := map[byte]int{'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11}
	semitone, ok := offsets[name[0]]
	if !ok {
		return 0, false
	}
	rest := name[1:]
	switch rest[0] {
	case '#':
		semitone++
		rest = rest[1:]
	case 'b':
		if len(rest) > 1 {
			semitone--
			rest = rest[1:]
		}
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	key := (octave+1)*12 + semitone
	if key < 0 || key > 127 {
		return 0, false
	}
	return key, true
}
