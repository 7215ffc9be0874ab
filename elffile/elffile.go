// Package elffile implements the hand-rolled 32-bit ELF reader (spec
// C10) esptool.py uses to pull loadable data straight out of a compiled
// firmware image: PROGBITS sections and PT_LOAD segments with a nonzero
// mapped address, ignoring everything the standard library's debug/elf
// would otherwise validate (section/segment flags, relocations,
// symbol tables) that this tool never needs. Grounded directly on
// esptool.py's ELFFile class; no library in the retrieval pack reads ELF
// files of its own.
package elffile

import (
	"crypto/sha256"
	"encoding/binary"

	"espflash/errs"
)

const (
	fileHeaderLen    = 0x34
	sectionHeaderLen = 0x28
	segmentHeaderLen = 0x20

	secTypeProgbits = 0x01
	secTypeStrtab   = 0x03
	segTypeLoad     = 0x01

	machineXtensa = 0x5E
	machineRISCV  = 0xF3
)

// Section is one PROGBITS section with a nonzero load address and size.
type Section struct {
	Name string
	Addr uint32
	Data []byte
}

// Segment is one PT_LOAD program header with a nonzero load address and
// size (esptool.py names these "PHDR" sections for uniform handling).
type Segment struct {
	Addr uint32
	Data []byte
}

// File is the subset of an ELF32 image espflash needs: its entry point,
// the PROGBITS sections (used to build an image's named segments), and
// the PT_LOAD segments (used instead of the sections when a caller asks
// for segments).
type File struct {
	raw        []byte
	Entrypoint uint32
	Sections   []Section
	Segments   []Segment
}

// Parse reads and validates an in-memory ELF32 image.
func Parse(data []byte) (*File, error) {
	if len(data) < fileHeaderLen {
		return nil, errs.New(errs.Protocol, "read_elf_header")
	}
	ident := data[0:16]
	if ident[0] != 0x7F || string(ident[1:4]) != "ELF" {
		return nil, errs.New(errs.Protocol, "read_elf_header")
	}
	machine := binary.LittleEndian.Uint16(data[18:20])
	if machine != machineXtensa && machine != machineRISCV {
		return nil, errs.New(errs.Protocol, "read_elf_header")
	}
	entrypoint := binary.LittleEndian.Uint32(data[24:28])
	phoff := binary.LittleEndian.Uint32(data[28:32])
	shoff := binary.LittleEndian.Uint32(data[32:36])
	phentsize := binary.LittleEndian.Uint16(data[42:44])
	phnum := binary.LittleEndian.Uint16(data[44:46])
	shentsize := binary.LittleEndian.Uint16(data[46:48])
	shnum := binary.LittleEndian.Uint16(data[48:50])
	shstrndx := binary.LittleEndian.Uint16(data[50:52])

	if shentsize != sectionHeaderLen {
		return nil, errs.New(errs.Protocol, "read_elf_header")
	}
	if shnum == 0 {
		return nil, errs.New(errs.Protocol, "read_elf_header")
	}
	_ = phentsize // not checked; program headers are read at the fixed segmentHeaderLen stride

	f := &File{raw: data, Entrypoint: entrypoint}
	sections, err := readSections(data, shoff, shnum, shstrndx)
	if err != nil {
		return nil, err
	}
	f.Sections = sections

	segments, err := readSegments(data, phoff, phnum)
	if err != nil {
		return nil, err
	}
	f.Segments = segments
	return f, nil
}

func readSections(data []byte, shoff uint32, shnum, shstrndx uint16) ([]Section, error) {
	headerBytes := int(shnum) * sectionHeaderLen
	if int(shoff)+headerBytes > len(data) {
		return nil, errs.New(errs.Protocol, "read_section_header")
	}
	header := data[shoff : int(shoff)+headerBytes]

	type rawSection struct {
		nameOffs uint32
		secType  uint32
		lma      uint32
		size     uint32
		fileOffs uint32
	}
	readOne := func(offs int) rawSection {
		return rawSection{
			nameOffs: binary.LittleEndian.Uint32(header[offs : offs+4]),
			secType:  binary.LittleEndian.Uint32(header[offs+4 : offs+8]),
			lma:      binary.LittleEndian.Uint32(header[offs+12 : offs+16]),
			fileOffs: binary.LittleEndian.Uint32(header[offs+16 : offs+20]),
			size:     binary.LittleEndian.Uint32(header[offs+20 : offs+24]),
		}
	}

	if int(shstrndx)*sectionHeaderLen >= len(header) {
		return nil, errs.New(errs.Protocol, "read_section_header")
	}
	strtabHdr := readOne(int(shstrndx) * sectionHeaderLen)
	if int(strtabHdr.fileOffs)+int(strtabHdr.size) > len(data) {
		return nil, errs.New(errs.Protocol, "read_section_header")
	}
	stringTable := data[strtabHdr.fileOffs : strtabHdr.fileOffs+strtabHdr.size]

	lookupString := func(offs uint32) string {
		if int(offs) >= len(stringTable) {
			return ""
		}
		raw := stringTable[offs:]
		end := 0
		for end < len(raw) && raw[end] != 0 {
			end++
		}
		return string(raw[:end])
	}

	var out []Section
	for offs := 0; offs+sectionHeaderLen <= len(header); offs += sectionHeaderLen {
		s := readOne(offs)
		if s.secType != secTypeProgbits || s.lma == 0 || s.size == 0 {
			continue
		}
		if int(s.fileOffs)+int(s.size) > len(data) {
			return nil, errs.New(errs.Protocol, "read_section_data")
		}
		out = append(out, Section{
			Name: lookupString(s.nameOffs),
			Addr: s.lma,
			Data: append([]byte(nil), data[s.fileOffs:s.fileOffs+s.size]...),
		})
	}
	return out, nil
}

func readSegments(data []byte, phoff uint32, phnum uint16) ([]Segment, error) {
	headerBytes := int(phnum) * segmentHeaderLen
	if int(phoff)+headerBytes > len(data) {
		return nil, errs.New(errs.Protocol, "read_segment_header")
	}
	header := data[phoff : int(phoff)+headerBytes]

	var out []Segment
	for offs := 0; offs+segmentHeaderLen <= len(header); offs += segmentHeaderLen {
		segType := binary.LittleEndian.Uint32(header[offs : offs+4])
		fileOffs := binary.LittleEndian.Uint32(header[offs+4 : offs+8])
		lma := binary.LittleEndian.Uint32(header[offs+12 : offs+16])
		size := binary.LittleEndian.Uint32(header[offs+16 : offs+20])
		if segType != segTypeLoad || lma == 0 || size == 0 {
			continue
		}
		if int(fileOffs)+int(size) > len(data) {
			return nil, errs.New(errs.Protocol, "read_segment_data")
		}
		out = append(out, Segment{Addr: lma, Data: append([]byte(nil), data[fileOffs:fileOffs+size]...)})
	}
	return out, nil
}

// Section looks up a PROGBITS section by name, failing if none matches
// (esptool.py's ELFFile.get_section).
func (f *File) Section(name string) (Section, error) {
	for _, s := range f.Sections {
		if s.Name == name {
			return s, nil
		}
	}
	return Section{}, errs.New(errs.Protocol, "get_section")
}

// SHA256 hashes the whole original file, used for the image SHA patch
// (spec §4.9).
func (f *File) SHA256() []byte {
	sum := sha256.Sum256(f.raw)
	return sum[:]
}
