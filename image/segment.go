// Package image implements the firmware image codecs (spec C9): the V1
// and V2 on-flash formats, flash-mapped segment packing, secure padding,
// SHA-256 digest patching, and segment merging. Grounded on esptool.py's
// BaseFirmwareImage/ESP8266ROMFirmwareImage/ESP8266V2FirmwareImage/
// ESP32FirmwareImage family, collapsed into one descriptor-driven
// implementation rather than a class hierarchy per variant, since
// espflash/chip already carries the per-variant data the original
// expressed through subclassing.
package image

import (
	"espflash/chip"
	"espflash/errs"
)

// SegHeaderLen is the on-disk size of one segment's (load_addr, len)
// header.
const SegHeaderLen = 8

// Sha256DigestLen is the size of an appended ELF-digest trailer.
const Sha256DigestLen = 32

// Segment is one loadable chunk of the image: a load address and its
// bytes, plus bookkeeping that only matters while building/saving.
type Segment struct {
	Addr             uint32
	Data             []byte
	FileOffset       int // -1 if unknown/synthetic
	IncludeInChecksum bool
}

// NewSegment builds a segment, padding "real" (nonzero-address) segments
// to a 4-byte aligned length the way ImageSegment's constructor does.
func NewSegment(addr uint32, data []byte, fileOffset int) Segment {
	s := Segment{Addr: addr, Data: data, FileOffset: fileOffset, IncludeInChecksum: true}
	if addr != 0 {
		s.Data = padTo(s.Data, 4)
	}
	return s
}

// CopyWithNewAddr returns a segment with the same data remapped to a new
// address, discarding file-offset bookkeeping (spec's V2 irom-segment
// remap-to-zero case).
func (s Segment) CopyWithNewAddr(newAddr uint32) Segment {
	return Segment{Addr: newAddr, Data: s.Data, FileOffset: 0, IncludeInChecksum: true}
}

// Split carves splitLen bytes off the front of s and returns them as a new
// segment; s itself keeps the (possibly empty) remainder, its address
// advanced by splitLen.
func (s *Segment) Split(splitLen int) Segment {
	head := Segment{Addr: s.Addr, Data: append([]byte(nil), s.Data[:splitLen]...), FileOffset: -1, IncludeInChecksum: s.IncludeInChecksum}
	s.Data = s.Data[splitLen:]
	s.Addr += uint32(splitLen)
	s.FileOffset = -1
	return head
}

// PadToAlignment right-pads s's data with zero bytes to a multiple of
// alignment.
func (s *Segment) PadToAlignment(alignment int) {
	s.Data = padTo(s.Data, alignment)
}

// MemoryType returns d's mem-map tag covering s's address, or "" if s
// falls in no mapped range (spec §4.9's merge classification key).
func (s Segment) MemoryType(d chip.Descriptor) string {
	return d.MemoryTypeAt(s.Addr)
}

func padTo(data []byte, alignment int) []byte {
	rem := len(data) % alignment
	if rem == 0 {
		return data
	}
	out := make([]byte, len(data)+alignment-rem)
	copy(out, data)
	return out
}

// MergeAdjacent implements spec §4.9's merge rule: segments with identical
// memory-type classification and identical IncludeInChecksum, appearing
// back-to-back both in list order and by address (next.Addr ==
// elem.Addr+len(elem.Data)), are concatenated. Iteration runs backward, as
// esptool.py's merge_adjacent_segments does, so list order is preserved
// and no sorting occurs.
func MergeAdjacent(segments []Segment, d chip.Descriptor) []Segment {
	if len(segments) == 0 {
		return segments
	}
	merged := make([]Segment, len(segments))
	copy(merged, segments)

	out := []Segment{merged[len(merged)-1]}
	for i := len(merged) - 1; i > 0; i-- {
		elem := merged[i-1]
		next := out[0]
		if elem.MemoryType(d) == next.MemoryType(d) &&
			elem.IncludeInChecksum == next.IncludeInChecksum &&
			next.Addr == elem.Addr+uint32(len(elem.Data)) {
			elem.Data = append(append([]byte(nil), elem.Data...), next.Data...)
			out[0] = elem
		} else {
			out = append([]Segment{elem}, out...)
		}
	}
	return out
}

// requireSegmentLimit implements spec §4.9's verify(): at most 16
// segments.
func requireSegmentLimit(segments []Segment) error {
	if len(segments) > 16 {
		return errs.New(errs.Protocol, "verify_image")
	}
	return nil
}
