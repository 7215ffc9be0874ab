package image

import "hash/crc32"

func stdCRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
