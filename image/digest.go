package image

import "espflash/errs"

// patchSegmentSHA implements spec §4.9's SHA patching: if img.ElfSHA256Offset
// falls within this segment's data window (file offset counted from
// headerPos, the position this segment's 8-byte header will occupy), the
// bytes there are replaced by the ELF's SHA-256. The window must lie
// strictly inside the data (not on the header) and must currently be all
// zeros.
func patchSegmentSHA(img *Image, seg Segment, headerPos int) ([]byte, error) {
	if img.ElfSHA256Offset == 0 || len(img.ElfSHA256) == 0 {
		return seg.Data, nil
	}
	segmentLen := len(seg.Data)
	offset := img.ElfSHA256Offset
	if offset < headerPos || offset >= headerPos+segmentLen {
		return seg.Data, nil
	}
	patchOffset := offset - headerPos
	if patchOffset < SegHeaderLen || patchOffset+Sha256DigestLen > segmentLen {
		return nil, errs.New(errs.ShaPatch, "patch_segment_sha256")
	}
	patchOffset -= SegHeaderLen
	for i := 0; i < Sha256DigestLen; i++ {
		if seg.Data[patchOffset+i] != 0 {
			return nil, errs.New(errs.ShaPatch, "patch_segment_sha256")
		}
	}
	out := append([]byte(nil), seg.Data...)
	copy(out[patchOffset:patchOffset+Sha256DigestLen], img.ElfSHA256)
	return out, nil
}
