package image

import (
	"encoding/binary"

	"espflash/chip"
	"espflash/errs"
)

const (
	imageV2Magic   = 0xEA
	imageV2Segment = 4 // nominal "segment count" field value for the outer header
)

// LoadV2 parses the software-bootloader ("version 2") format: an outer
// header naming one implicit IROM segment, followed by a nested V1 image
// carrying the remaining segments, followed by a whole-file CRC32 trailer.
func LoadV2(data []byte, d chip.Descriptor) (*Image, error) {
	outer, err := decodeCommonHeader(data, imageV2Magic)
	if err != nil {
		return nil, err
	}
	// outer.SegmentCount is nominally imageV2Segment; a mismatch is only
	// ever a warning upstream, never fatal, so it is not checked here.
	pos := 8
	iromSeg, next, err := decodeSegment(data, pos)
	if err != nil {
		return nil, err
	}
	iromSeg.Addr = 0
	iromSeg.IncludeInChecksum = false
	pos = next

	inner, err := decodeCommonHeader(data[pos:], imageMagic)
	if err != nil {
		return nil, err
	}
	pos += 8

	img := &Image{
		Variant:       d,
		FlashMode:     inner.FlashMode,
		FlashSizeFreq: inner.FlashSizeFreq,
		Entry:         inner.Entry,
		Version:       2,
		Segments:      []Segment{iromSeg},
	}
	for i := 0; i < int(inner.SegmentCount); i++ {
		seg, nextPos, err := decodeSegment(data, pos)
		if err != nil {
			return nil, err
		}
		img.Segments = append(img.Segments, seg)
		pos = nextPos
	}
	cs, afterChecksum, err := readChecksum(data, pos)
	if err != nil {
		return nil, err
	}
	img.Checksum = cs

	if len(data) < afterChecksum+4 {
		return nil, errs.New(errs.Protocol, "load_v2_crc")
	}
	wantCRC := binary.LittleEndian.Uint32(data[afterChecksum : afterChecksum+4])
	if crc32Custom(data[:afterChecksum]) != wantCRC {
		return nil, errs.New(errs.Verify, "load_v2_crc")
	}

	if err := verifyImage(img); err != nil {
		return nil, err
	}
	return img, nil
}

// SaveV2 serializes img in the software-bootloader format: outer header,
// the (optional) IROM segment at file address 0 padded to 16 bytes, a
// nested V1 image for the remaining segments, then the whole-file CRC32.
func SaveV2(img *Image) ([]byte, error) {
	if err := requireSegmentLimit(img.Segments); err != nil {
		return nil, err
	}
	iromSeg, rest := splitIROM(img.Segments, img.Variant)

	outer := CommonHeader{Magic: imageV2Magic, SegmentCount: imageV2Segment, FlashMode: img.FlashMode, FlashSizeFreq: img.FlashSizeFreq, Entry: img.Entry}
	out := outer.Encode()

	if iromSeg != nil {
		seg := iromSeg.CopyWithNewAddr(0)
		seg.PadToAlignment(16)
		out = appendSegment(out, seg.Addr, seg.Data)
	}

	inner := CommonHeader{Magic: imageMagic, SegmentCount: byte(len(rest)), FlashMode: img.FlashMode, FlashSizeFreq: img.FlashSizeFreq, Entry: img.Entry}
	out = append(out, inner.Encode()...)
	cs := ChecksumMagic
	for _, seg := range rest {
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

	crc := crc32Custom(out)
	trailer := make([]byte, 4)
	binary.LittleEndian.PutUint32(trailer, crc)
	return append(out, trailer...), nil
}

// splitIROM pulls the single segment mapped into the ESP8266 IROM range
// out of segments, per spec §4.9's "one implicit IROM segment".
func splitIROM(segments []Segment, d chip.Descriptor) (*Segment, []Segment) {
	var irom *Segment
	var rest []Segment
	for i := range segments {
		if d.IsFlashMapped(segments[i].Addr) && irom == nil {
			s := segments[i]
			irom = &s
			continue
		}
		rest = append(rest, segments[i])
	}
	return irom, rest
}
