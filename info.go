package gosf2synth

import (
	"encoding/binary"
	"fmt"
)

// Version is a major.minor pair from an ifil or iver chunk.
type Version struct {
	Major int
	Minor int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%02d", v.Major, v.Minor)
}

// SoundFontInfo holds the INFO list of a bank.
type SoundFontInfo struct {
	Version           Version
	TargetSoundEngine string
	BankName          string
	ROMName           string
	ROMVersion        Version
	CreationDate      string
	Author            string
	TargetProduct     string
	Copyright         string
	Comments          string
	Tools             string
}

func parseInfo(subchunks []subchunk) (SoundFontInfo, error) {
	var info SoundFontInfo
	for _, sc := range subchunks {
		switch sc.id {
		case "ifil", "iver":
			if len(sc.data) < 4 {
				return info, newFormatError(sc.id, "version chunk is %d bytes, want 4", len(sc.data))
			}
			v := Version{
				Major: int(binary.LittleEndian.Uint16(sc.data[0:])),
				Minor: int(binary.LittleEndian.Uint16(sc.data[2:])),
			}
			if sc.id == "ifil" {
				info.Version = v
			} else {
				info.ROMVersion = v
			}
		case "isng":
			info.TargetSoundEngine = fixedString(sc.data)
		case "INAM":
			info.BankName = fixedString(sc.data)
		case "irom":
			info.ROMName = fixedString(sc.data)
		case "ICRD":
			info.CreationDate = fixedString(sc.data)
		case "IENG":
			info.Author = fixedString(sc.data)
		case "IPRD":
			info.TargetProduct = fixedString(sc.data)
		case "ICOP":
			info.Copyright = fixedString(sc.data)
		case "ICMT":
			info.Comments = fixedString(sc.data)
		case "ISFT":
			info.Tools = fixedString(sc.data)
		default:
			soundfontDebug("Warning: skipping unknown INFO sub-chunk '%s'", sc.id)
		}
	}
	return info, nil
}

// fixedString returns the bytes up to the first NUL as a string.
func fixedString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
