package espflash

import (
	"espflash/chip"
	"espflash/elffile"
	"espflash/image"

	"github.com/juju/errors"
)

// Elf2ImageOptions configures Elf2Image, mirroring esptool.py's
// elf2image subcommand flags that affect the produced binary (flash
// mode/frequency/size, min chip revision, secure pad, SHA digests).
type Elf2ImageOptions struct {
	FlashMode       byte // 0=qio 1=qout 2=dio 3=dout
	FlashFreq       byte // 0=40m 1=26m 2=20m 0xf=80m
	FlashSize       byte // pre-encoded via chip.Descriptor.FlashSizes
	MinRev          byte
	SecurePad       string // "", "1", "2"
	UseSegments     bool   // ELF segments instead of sections
	ElfSHA256Offset int    // 0 = no ELF SHA256 patch
	AppendDigest    bool   // extended-header whole-image SHA256 trailer
}

// Elf2Image implements spec §4.9/§4.10's elf2image: parse an ELF32
// firmware binary, build an Image from its loadable sections (or
// segments, per opts.UseSegments), merge adjacent same-type ranges, and
// serialize it in the format matching d (for ESP8266, V1, or V2 when
// opts.UseSegments is set; extended-header otherwise). Grounded on esptool.py's elf2image() top-level function.
func Elf2Image(elfData []byte, d chip.Descriptor, opts Elf2ImageOptions) ([]byte, error) {
	ef, err := elffile.Parse(elfData)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to parse ELF input")
	}

	img := &image.Image{
		Variant:       d,
		FlashMode:     opts.FlashMode,
		FlashSizeFreq: opts.FlashSize + opts.FlashFreq,
		Entry:         ef.Entrypoint,
		Version:       1,
		SecurePad:     opts.SecurePad,
	}
	if d.Name != "ESP8266" {
		img.HasExtended = true
		img.Ext = image.ExtendedHeader{
			WPPin:        image.WPPinDisabled,
			ChipID:       d.ImageChipID,
			MinRev:       opts.MinRev,
			AppendDigest: opts.AppendDigest,
		}
	} else if opts.UseSegments {
		img.Version = 2
	}

	if opts.UseSegments {
		for _, s := range ef.Segments {
			img.Segments = append(img.Segments, image.NewSegment(s.Addr, s.Data, -1))
		}
	} else {
		for _, s := range ef.Sections {
			img.Segments = append(img.Segments, image.NewSegment(s.Addr, s.Data, -1))
		}
	}

	if opts.ElfSHA256Offset != 0 {
		img.ElfSHA256 = ef.SHA256()
		img.ElfSHA256Offset = opts.ElfSHA256Offset
	}

	img.Segments = image.MergeAdjacent(img.Segments, d)

	return image.Save(img)
}
