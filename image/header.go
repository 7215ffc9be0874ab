package image

import (
	"encoding/binary"

	"espflash/errs"
)

// CommonHeader is the 8-byte header shared by V1 images and V2's two
// nested images (spec §4.9): magic || seg_count || flash_mode ||
// size_freq || entry:u32_le.
type CommonHeader struct {
	Magic         byte
	SegmentCount  byte
	FlashMode     byte
	FlashSizeFreq byte
	Entry         uint32
}

func (h CommonHeader) Encode() []byte {
	out := make([]byte, 8)
	out[0] = h.Magic
	out[1] = h.SegmentCount
	out[2] = h.FlashMode
	out[3] = h.FlashSizeFreq
	binary.LittleEndian.PutUint32(out[4:8], h.Entry)
	return out
}

func decodeCommonHeader(data []byte, expectedMagic byte) (CommonHeader, error) {
	if len(data) < 8 {
		return CommonHeader{}, errs.New(errs.Protocol, "load_common_header")
	}
	h := CommonHeader{
		Magic:         data[0],
		SegmentCount:  data[1],
		FlashMode:     data[2],
		FlashSizeFreq: data[3],
		Entry:         binary.LittleEndian.Uint32(data[4:8]),
	}
	if h.Magic != expectedMagic {
		return CommonHeader{}, errs.New(errs.Protocol, "load_common_header")
	}
	return h, nil
}

// ExtendedHeader is the 16-byte header newer variants carry between the
// common header and the first segment (spec §4.9).
type ExtendedHeader struct {
	WPPin        byte
	ClkDrv, QDrv byte
	DDrv, CSDrv  byte
	HDDrv, WPDrv byte
	ChipID       uint16
	MinRev       byte
	AppendDigest bool
}

// WPPinDisabled is esptool.py's WP_PIN_DISABLED sentinel, the value the
// ROM bootloader expects when SPI pin remapping is not in use.
const WPPinDisabled = 0xEE

func (h ExtendedHeader) Encode() []byte {
	out := make([]byte, 16)
	out[0] = h.WPPin
	out[1] = joinNibbles(h.ClkDrv, h.QDrv)
	out[2] = joinNibbles(h.DDrv, h.CSDrv)
	out[3] = joinNibbles(h.HDDrv, h.WPDrv)
	binary.LittleEndian.PutUint16(out[4:6], h.ChipID)
	out[6] = h.MinRev
	// out[7:15] are the 8 reserved zero bytes.
	if h.AppendDigest {
		out[15] = 1
	}
	return out
}

func decodeExtendedHeader(data []byte) (ExtendedHeader, error) {
	if len(data) < 16 {
		return ExtendedHeader{}, errs.New(errs.Protocol, "load_extended_header")
	}
	h := ExtendedHeader{WPPin: data[0]}
	h.ClkDrv, h.QDrv = splitNibbles(data[1])
	h.DDrv, h.CSDrv = splitNibbles(data[2])
	h.HDDrv, h.WPDrv = splitNibbles(data[3])
	h.ChipID = binary.LittleEndian.Uint16(data[4:6])
	h.MinRev = data[6]
	switch data[15] {
	case 0:
		h.AppendDigest = false
	case 1:
		h.AppendDigest = true
	default:
		return ExtendedHeader{}, errs.New(errs.Protocol, "load_extended_header")
	}
	return h, nil
}

func joinNibbles(lo, hi byte) byte {
	return (lo & 0x0F) | ((hi & 0x0F) << 4)
}

func splitNibbles(b byte) (lo, hi byte) {
	return b & 0x0F, (b >> 4) & 0x0F
}
