package image

import (
	"crypto/sha256"
	"sort"

	"espflash/chip"
	"espflash/errs"

	"github.com/samber/lo"
)

const iromAlign = 65536

// LoadExtended parses a newer-variant image: common header, 16-byte
// extended header, segments, checksum, and (if the extended header's
// append_digest flag is set) a trailing 32-byte whole-file SHA-256.
func LoadExtended(data []byte, d chip.Descriptor) (*Image, error) {
	start := 0
	h, err := decodeCommonHeader(data, imageMagic)
	if err != nil {
		return nil, err
	}
	ext, err := decodeExtendedHeader(data[8:24])
	if err != nil {
		return nil, err
	}
	img := &Image{
		Variant:       d,
		FlashMode:     h.FlashMode,
		FlashSizeFreq: h.FlashSizeFreq,
		Entry:         h.Entry,
		Version:       1,
		Ext:           ext,
		HasExtended:   true,
	}
	pos := 24
	for i := 0; i < int(h.SegmentCount); i++ {
		seg, next, err := decodeSegment(data, pos)
		if err != nil {
			return nil, err
		}
		img.Segments = append(img.Segments, seg)
		pos = next
	}
	cs, afterChecksum, err := readChecksum(data, pos)
	if err != nil {
		return nil, err
	}
	img.Checksum = cs

	if ext.AppendDigest {
		if len(data) < afterChecksum+Sha256DigestLen {
			return nil, errs.New(errs.Protocol, "load_extended_digest")
		}
		img.StoredDigest = append([]byte(nil), data[afterChecksum:afterChecksum+Sha256DigestLen]...)
		sum := sha256.Sum256(data[start:afterChecksum])
		calc := sum[:]
		ok := true
		for i := range calc {
			if calc[i] != img.StoredDigest[i] {
				ok = false
				break
			}
		}
		if !ok {
			return nil, errs.New(errs.Verify, "load_extended_digest")
		}
	}

	if err := verifyImage(img); err != nil {
		return nil, err
	}
	return img, nil
}

// SaveExtended serializes img as a newer-variant image: the common +
// extended headers, flash-mapped segments packed at 64 KiB-aligned file
// positions (borrowing padding from RAM segments where possible), an
// optional secure-pad trailer, the checksum, and (if AppendDigest) a
// whole-file SHA-256 trailer.
func SaveExtended(img *Image) ([]byte, error) {
	out := make([]byte, 24) // common + extended header, header byte fixed up at the end
	checksumState := ChecksumMagic
	totalSegments := 0

	flashSegs, ramSegs := splitFlashRAM(img.Segments, img.Variant)
	if err := requireNoDuplicateMapping(flashSegs); err != nil {
		return nil, err
	}

	for len(flashSegs) > 0 {
		seg := flashSegs[0]
		padLen := alignmentPadNeeded(seg, len(out))
		if padLen > 0 {
			var padSeg Segment
			if len(ramSegs) > 0 && padLen > SegHeaderLen {
				padSeg = ramSegs[0].Split(padLen)
				if len(ramSegs[0].Data) == 0 {
					ramSegs = ramSegs[1:]
				}
			} else {
				padSeg = Segment{Addr: 0, Data: make([]byte, padLen), FileOffset: -1, IncludeInChecksum: true}
			}
			data, err := patchSegmentSHA(img, padSeg, len(out))
			if err != nil {
				return nil, err
			}
			out = appendSegment(out, padSeg.Addr, data)
			if padSeg.IncludeInChecksum {
				checksumState = checksum(data, checksumState)
			}
			totalSegments++
		} else {
			data, err := patchSegmentSHA(img, seg, len(out))
			if err != nil {
				return nil, err
			}
			data = padFlashSegmentTail(len(out), data)
			out = appendSegment(out, seg.Addr, data)
			if seg.IncludeInChecksum {
				checksumState = checksum(data, checksumState)
			}
			flashSegs = flashSegs[1:]
			totalSegments++
		}
	}

	for _, seg := range ramSegs {
		data, err := patchSegmentSHA(img, seg, len(out))
		if err != nil {
			return nil, err
		}
		out = appendSegment(out, seg.Addr, data)
		if seg.IncludeInChecksum {
			checksumState = checksum(data, checksumState)
		}
		totalSegments++
	}

	spaceAfterChecksum := 0
	if img.SecurePad != "" {
		if !img.Ext.AppendDigest {
			return nil, errs.New(errs.ShaPatch, "secure_pad_requires_digest")
		}
		alignPast := (len(out) + SegHeaderLen) % iromAlign
		const checksumSpace = 16
		switch img.SecurePad {
		case "1":
			spaceAfterChecksum = 32 + 4 + 64 + 12
		case "2":
			spaceAfterChecksum = 32
		}
		padLen := mod(iromAlign-alignPast-checksumSpace-spaceAfterChecksum, iromAlign)
		padSeg := Segment{Addr: 0, Data: make([]byte, padLen), FileOffset: -1, IncludeInChecksum: true}
		data, err := patchSegmentSHA(img, padSeg, len(out))
		if err != nil {
			return nil, err
		}
		out = appendSegment(out, padSeg.Addr, data)
		if padSeg.IncludeInChecksum {
			checksumState = checksum(data, checksumState)
		}
		totalSegments++
	}

	out = appendChecksum(out, checksumState)
	imageLength := len(out)

	// Fix up the header's segment count field (index 1), which now
	// includes synthesized padding segments.
	out[1] = byte(totalSegments)

	common := CommonHeader{Magic: imageMagic, SegmentCount: byte(totalSegments), FlashMode: img.FlashMode, FlashSizeFreq: img.FlashSizeFreq, Entry: img.Entry}
	copy(out[0:8], common.Encode())
	copy(out[8:24], img.Ext.Encode())

	if img.Ext.AppendDigest {
		sum := sha256.Sum256(out[:imageLength])
		out = append(out, sum[:]...)
	}
	return out, nil
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func splitFlashRAM(segments []Segment, d chip.Descriptor) (flash, ram []Segment) {
	sorted := append([]Segment(nil), segments...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Addr < sorted[j].Addr })
	flash = lo.Filter(sorted, func(s Segment, _ int) bool { return d.IsFlashMapped(s.Addr) })
	ram = lo.Filter(sorted, func(s Segment, _ int) bool { return !d.IsFlashMapped(s.Addr) })
	return flash, ram
}

func requireNoDuplicateMapping(flashSegs []Segment) error {
	if len(flashSegs) == 0 {
		return nil
	}
	lastAddr := flashSegs[0].Addr
	for _, seg := range flashSegs[1:] {
		if seg.Addr/iromAlign == lastAddr/iromAlign {
			return errs.New(errs.DuplicateMapping, "save_extended_image")
		}
		lastAddr = seg.Addr
	}
	return nil
}

// alignmentPadNeeded computes how many data bytes of padding must precede
// seg so that, after writing its 8-byte header, the file position modulo
// iromAlign matches seg.Addr modulo iromAlign (spec §4.9's flash-mapped
// packing rule).
func alignmentPadNeeded(seg Segment, filePos int) int {
	alignPast := int(seg.Addr%iromAlign) - SegHeaderLen
	padLen := (iromAlign - filePos%iromAlign) + alignPast
	if padLen == 0 || padLen == iromAlign {
		return 0
	}
	padLen -= SegHeaderLen
	if padLen < 0 {
		padLen += iromAlign
	}
	return padLen
}

// padFlashSegmentTail works around the ESP-IDF second-stage bootloader's
// MMU mapping bug: if a flash segment ends within 0x24 bytes of the next
// 64 KiB page boundary, the last page never gets mapped, so the segment
// is zero-padded past the boundary.
func padFlashSegmentTail(headerPos int, data []byte) []byte {
	segmentEndPos := headerPos + len(data) + SegHeaderLen
	remainder := segmentEndPos % iromAlign
	if remainder < 0x24 {
		pad := make([]byte, 0x24-remainder)
		return append(append([]byte(nil), data...), pad...)
	}
	return data
}
