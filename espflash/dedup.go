package espflash

import (
	"crypto/md5"

	"espflash/connection"
	"espflash/flash"
)

const dedupSectorSize = 0x1000

// dedupImage implements the write-minimization pass from
// mongoose-os/mos's dedupImages: compare each flash sector's current MD5
// against the bytes about to be written there, and split out only the
// sub-ranges that actually differ. Adapted to flash.Writer's single-region
// MD5Sum (no batch multi-sector digest call exists here), so each sector
// is hashed with its own SPI_FLASH_MD5 round trip rather than one request
// covering the whole image.
func dedupImage(c *connection.Connection, img FlashImage) ([]FlashImage, error) {
	w := flash.New(c)
	var out []FlashImage
	addr := img.Addr
	data := img.Data

	offset := 0
	runStart := -1
	for offset < len(data) {
		blockLen := dedupSectorSize
		if offset+blockLen > len(data) {
			blockLen = len(data) - offset
		}
		want := md5.Sum(data[offset : offset+blockLen])
		got, err := w.MD5Sum(addr+uint32(offset), uint32(blockLen))
		if err != nil {
			return nil, err
		}
		matches := got == hexString(want[:])
		if matches {
			if runStart >= 0 {
				out = append(out, FlashImage{
					Name: img.Name,
					Addr: addr + uint32(runStart),
					Data: data[runStart:offset],
				})
				runStart = -1
			}
		} else if runStart < 0 {
			runStart = offset
		}
		offset += blockLen
	}
	if runStart >= 0 {
		out = append(out, FlashImage{Name: img.Name, Addr: addr + uint32(runStart), Data: data[runStart:]})
	}
	return out, nil
}

func hexString(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0xF]
	}
	return string(out)
}
