package chip

import (
	"espflash/errs"

	"gopkg.in/yaml.v2"
)

// Detect maps a 32-bit detect-magic value to the first matching descriptor
// in All (spec §4.3: "the first match wins"). It fails with UnknownChip if
// no descriptor's DetectMagic equals magic.
func Detect(magic uint32) (Descriptor, error) {
	for _, d := range All {
		if d.DetectMagic == magic {
			return d, nil
		}
	}
	return Descriptor{}, errs.New(errs.UnknownChip, "detect")
}

// yamlDump mirrors the fields of Descriptor a caller might want rendered
// for diagnostics, leaving out the StubPayload bytes.
type yamlDump struct {
	Name        string            `yaml:"name"`
	ImageChipID uint16            `yaml:"image_chip_id"`
	DetectMagic string            `yaml:"detect_magic"`
	StatusLen   int               `yaml:"status_len"`
	FlashOffset uint32            `yaml:"flash_offset"`
	XtalDivider int               `yaml:"xtal_divider"`
	FlashSizes  map[string]byte   `yaml:"flash_sizes"`
	MemoryMap   []yamlMemRangeDoc `yaml:"memory_map"`
}

type yamlMemRangeDoc struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
	Tag   string `yaml:"tag"`
}

// Dump renders the descriptor as human-readable YAML, for logging what was
// auto-detected without scraping field-by-field %+v output.
func (d Descriptor) Dump() (string, error) {
	doc := yamlDump{
		Name:        d.Name,
		ImageChipID: d.ImageChipID,
		DetectMagic: hex32(d.DetectMagic),
		StatusLen:   d.StatusLen,
		FlashOffset: d.FlashOffset,
		XtalDivider: d.XtalDivider,
		FlashSizes:  d.FlashSizes,
	}
	for _, r := range d.MemoryMap {
		doc.MemoryMap = append(doc.MemoryMap, yamlMemRangeDoc{
			Start: hex32(r.Start), End: hex32(r.End), Tag: r.Tag,
		})
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", errs.Wrap(errs.Io, "chip_dump", err)
	}
	return string(out), nil
}

func hex32(v uint32) string {
	const hexdigits = "0123456789abcdef"
	b := make([]byte, 10)
	b[0], b[1] = '0', 'x'
	for i := 0; i < 8; i++ {
		shift := uint(28 - 4*i)
		b[2+i] = hexdigits[(v>>shift)&0xf]
	}
	return string(b)
}
