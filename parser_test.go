package gosf2synth

import (
	"testing"
)

func TestParseSfzFile(t *testing.T) {
	content := `// Test instrument
<control> default_path=samples/

<global> volume=-6.0 tune=+10 pan=0

<group> transpose=0 ampeg_attack=0.01 ampeg_decay=0.1 ampeg_sustain=80 ampeg_release=0.2
<region> sample=sample1.wav lokey=c2 hikey=c4 lovel=1 hivel=64 key=c3 pitch_keycenter=c3 volume=0.0 loop_mode=no_loop
<region> sample=sample2.wav key=d3 lovel=65 hivel=127 pitch_keycenter=d3 volume=-3.0 pan=-50 tune=-20 loop_mode=loop_continuous loop_start=1000 loop_end=8000

<group> cutoff=2000 resonance=3 group=1 off_by=1
<region> sample=Grand Piano C4.wav lokey=60 hikey=72
<region> sample=hat.flac unknown_opcode=5 offset=200 end=4000
`
	path, cleanup := createTestSfzFile(t, content)
	defer cleanup()

	sfzData, err := ParseSfzFile(path)
	if err != nil {
		t.Fatalf("Failed to parse SFZ: %v", err)
	}

	if sfzData.Control == nil {
		t.Fatal("Expected control section to be parsed")
	}
	assertOpcode(t, sfzData.Control, "default_path", "samples/")

	if sfzData.Global == nil {
		t.Fatal("Expected global section to be parsed")
	}
	if sfzData.Global.Type != "global" {
		t.Errorf("Expected global section type to be 'global', got '%s'", sfzData.Global.Type)
	}
	expectedGlobalOpcodes := map[string]string{
		"volume": "-6.0",
		"tune":   "+10",
		"pan":    "0",
	}
	for opcode, expectedValue := range expectedGlobalOpcodes {
		assertOpcode(t, sfzData.Global, opcode, expectedValue)
	}

	if len(sfzData.Groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(sfzData.Groups))
	}
	assertFloatOpcode(t, sfzData.Groups[0], "ampeg_sustain", 80)
	assertFloatOpcode(t, sfzData.Groups[1], "cutoff", 2000)

	if len(sfzData.Regions) != 4 {
		t.Fatalf("Expected 4 regions, got %d", len(sfzData.Regions))
	}

	region1 := sfzData.Regions[0]
	expectedRegion1Opcodes := map[string]string{
		"sample":          "sample1.wav",
		"lokey":           "c2",
		"hikey":           "c4",
		"key":             "c3",
		"pitch_keycenter": "c3",
		"loop_mode":       "no_loop",
	}
	for opcode, expectedValue := range expectedRegion1Opcodes {
		assertOpcode(t, region1, opcode, expectedValue)
	}
	assertIntOpcode(t, region1, "lokey", 36)
	assertIntOpcode(t, region1, "hikey", 60)
	assertIntOpcode(t, region1, "lovel", 1)

	region2 := sfzData.Regions[1]
	assertIntOpcode(t, region2, "key", 50)
	assertFloatOpcode(t, region2, "pan", -50)
	assertIntOpcode(t, region2, "loop_end", 8000)

	// Sample paths keep their spaces.
	assertOpcode(t, sfzData.Regions[2], "sample", "Grand Piano C4.wav")

	region4 := sfzData.Regions[3]
	if _, ok := region4.Opcodes["unknown_opcode"]; ok {
		t.Error("Expected unknown opcode to be dropped")
	}
	assertIntOpcode(t, region4, "offset", 200)

	if region1.Parent != sfzData.Groups[0] {
		t.Error("Expected first region to belong to the first group")
	}
	if sfzData.Regions[2].Parent != sfzData.Groups[1] {
		t.Error("Expected third region to belong to the second group")
	}
	if sfzData.Groups[0].Parent != sfzData.Global {
		t.Error("Expected groups to inherit from global")
	}
}

func TestParseSfzFileNotFound(t *testing.T) {
	_, err := ParseSfzFile("nonexistent.sfz")
	if err == nil {
		t.Fatal("Expected error for nonexistent file")
	}
}

func TestParseSfzHeadersOnOneLine(t *testing.T) {
	path, cleanup := createTestSfzFile(t, "<group>lokey=10<region>sample=a.wav hikey=20 <region> sample=b.wav // trailing comment\n")
	defer cleanup()

	sfzData, err := ParseSfzFile(path)
	if err != nil {
		t.Fatalf("Failed to parse SFZ: %v", err)
	}
	if len(sfzData.Regions) != 2 {
		t.Fatalf("Expected 2 regions, got %d", len(sfzData.Regions))
	}
	assertOpcode(t, sfzData.Regions[0], "sample", "a.wav")
	assertIntOpcode(t, sfzData.Regions[0], "hikey", 20)
	assertOpcode(t, sfzData.Regions[1], "sample", "b.wav")
	if got := sfzData.Regions[1].GetInheritedIntOpcode("lokey", -1); got != 10 {
		t.Errorf("Expected lokey 10 from the group, got %d", got)
	}
}

func TestGetOpcodeHelpers(t *testing.T) {
	section := &SfzSection{
		Type: "region",
		Opcodes: map[string]string{
			"volume":  "-6.5",
			"lokey":   "60",
			"sample":  "test.wav",
			"invalid": "not_a_number",
		},
	}

	if value := section.GetStringOpcode("sample"); value != "test.wav" {
		t.Errorf("Expected 'test.wav', got '%s'", value)
	}
	if value := section.GetStringOpcode("nonexistent"); value != "" {
		t.Errorf("Expected empty string for nonexistent opcode, got '%s'", value)
	}

	if value := section.GetFloatOpcode("volume", 0.0); value != -6.5 {
		t.Errorf("Expected -6.5, got %f", value)
	}
	if value := section.GetFloatOpcode("nonexistent", 99.9); value != 99.9 {
		t.Errorf("Expected default value 99.9, got %f", value)
	}
	if value := section.GetFloatOpcode("invalid", 1.5); value != 1.5 {
		t.Errorf("Expected default value for invalid float, got %f", value)
	}

	if value := section.GetIntOpcode("lokey", 0); value != 60 {
		t.Errorf("Expected 60, got %d", value)
	}
	if value := section.GetIntOpcode("invalid", 42); value != 42 {
		t.Errorf("Expected default value 42 for invalid int, got %d", value)
	}

	var missing *SfzSection
	if value := missing.GetIntOpcode("lokey", 7); value != 7 {
		t.Errorf("Expected default from nil section, got %d", value)
	}
}

func TestParseNoteName(t *testing.T) {
	tests := []struct {
		name     string
		expected int
		ok       bool
	}{
		{"c4", 60, true},
		{"C4", 60, true},
		{"a4", 69, true},
		{"c#4", 61, true},
		{"db4", 61, true},
		{"b3", 59, true},
		{"c-1", 0, true},
		{"g9", 127, true},
		{"a9", 0, false},
		{"h4", 0, false},
		{"c", 0, false},
		{"foo", 0, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			key, ok := parseNoteName(test.name)
			if ok != test.ok {
				t.Fatalf("Expected ok=%v, got %v", test.ok, ok)
			}
			if ok && key != test.expected {
				t.Errorf("Expected key %d, got %d", test.expected, key)
			}
		})
	}
}
