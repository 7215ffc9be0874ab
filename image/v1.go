package image

import (
	"encoding/binary"

	"espflash/chip"
	"espflash/errs"
)

const imageMagic = 0xE9

// Image is the in-memory representation shared by every on-disk format
// this package handles (spec §4.9's Data Model): a header plus an
// ordered segment list, with the variant-specific fields only some
// formats use.
type Image struct {
	Variant       chip.Descriptor
	FlashMode     byte
	FlashSizeFreq byte
	Entry         uint32
	Segments      []Segment
	Version       int // 1 or 2

	Ext          ExtendedHeader
	HasExtended  bool
	SecurePad    string // "", "1", "2"
	ElfSHA256       []byte
	ElfSHA256Offset int // 0 means unset

	StoredDigest []byte // populated on load when Ext.AppendDigest
	Checksum     byte   // populated on load; recomputed on save
}

// LoadV1 parses the original ("version 1") format: common header, then
// segments, then one XOR checksum byte at the last position of a 16-byte
// aligned run.
func LoadV1(data []byte, d chip.Descriptor) (*Image, error) {
	h, err := decodeCommonHeader(data, imageMagic)
	if err != nil {
		return nil, err
	}
	img := &Image{
		Variant:       d,
		FlashMode:     h.FlashMode,
		FlashSizeFreq: h.FlashSizeFreq,
		Entry:         h.Entry,
		Version:       1,
	}
	pos := 8
	for i := 0; i < int(h.SegmentCount); i++ {
		seg, next, err := decodeSegment(data, pos)
		if err != nil {
			return nil, err
		}
		img.Segments = append(img.Segments, seg)
		pos = next
	}
	cs, _, err := readChecksum(data, pos)
	if err != nil {
		return nil, err
	}
	img.Checksum = cs
	if err := verifyImage(img); err != nil {
		return nil, err
	}
	return img, nil
}

// SaveV1 serializes img in the original format.
func SaveV1(img *Image) ([]byte, error) {
	if err := requireSegmentLimit(img.Segments); err != nil {
		return nil, err
	}
	h := CommonHeader{Magic: imageMagic, SegmentCount: byte(len(img.Segments)), FlashMode: img.FlashMode, FlashSizeFreq: img.FlashSizeFreq, Entry: img.Entry}
	out := h.Encode()
	cs := ChecksumMagic
	for _, seg := range img.Segments {
		data, err := patchSegmentSHA(img, seg, len(out))
		if err != nil {
			return nil, err
		}
		out = appendSegment(out, seg.Addr, data)
		if seg.IncludeInChecksum {
			cs = checksum(data, cs)
		}
	}
	out = appendChecksum(out, cs)
	return out, nil
}

func decodeSegment(data []byte, pos int) (Segment, int, error) {
	if pos+8 > len(data) {
		return Segment{}, 0, errs.New(errs.Protocol, "load_segment")
	}
	addr := binary.LittleEndian.Uint32(data[pos : pos+4])
	size := binary.LittleEndian.Uint32(data[pos+4 : pos+8])
	start := pos + 8
	end := start + int(size)
	if end > len(data) {
		return Segment{}, 0, errs.New(errs.Protocol, "load_segment")
	}
	seg := Segment{Addr: addr, Data: append([]byte(nil), data[start:end]...), FileOffset: pos, IncludeInChecksum: true}
	return seg, end, nil
}

func appendSegment(out []byte, addr uint32, data []byte) []byte {
	hdr := make([]byte, 8)
	binary.LittleEndian.PutUint32(hdr[0:4], addr)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(data)))
	out = append(out, hdr...)
	out = append(out, data...)
	return out
}

// readChecksum skips padding to the next 16-byte boundary and reads the
// single checksum byte there, spec §4.9's "checksum byte lands at the
// last byte of a 16-byte aligned position".
func readChecksum(data []byte, pos int) (byte, int, error) {
	aligned := alignUp(pos+1, 16) - 1
	if aligned >= len(data) {
		return 0, 0, errs.New(errs.Protocol, "read_checksum")
	}
	return data[aligned], aligned + 1, nil
}

func appendChecksum(out []byte, cs byte) []byte {
	aligned := alignUp(len(out)+1, 16) - 1
	for len(out) < aligned {
		out = append(out, 0)
	}
	out = append(out, cs)
	return out
}

func alignUp(n, alignment int) int {
	rem := n % alignment
	if rem == 0 {
		return n
	}
	return n + alignment - rem
}

func verifyImage(img *Image) error {
	if err := requireSegmentLimit(img.Segments); err != nil {
		return err
	}
	want := ChecksumMagic
	for _, seg := range img.Segments {
		if seg.IncludeInChecksum {
			want = checksum(seg.Data, want)
		}
	}
	if want != img.Checksum {
		return errs.New(errs.Verify, "verify_image_checksum")
	}
	if img.HasExtended && img.Ext.AppendDigest {
		if len(img.StoredDigest) != Sha256DigestLen {
			return errs.New(errs.Protocol, "verify_image_digest")
		}
	}
	return nil
}
