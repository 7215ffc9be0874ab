package flash

import (
	"bytes"
	"compress/zlib"
	"time"

	"espflash/protocol"
)

// Compress deflates data at maximum compression level, per spec §4.7's
// deflate write.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeflBegin implements spec §4.7's flash_defl_begin. size is the
// uncompressed length, compSize the deflated payload's length.
func (w *Writer) DeflBegin(size, compSize, offset uint32) (uint32, error) {
	writeSize := w.writeSize()
	blocks := numBlocks(compSize, writeSize)
	eraseBlocks := numBlocks(size, writeSize)

	var requestedSize uint32
	timeout := defaultFlashTimeout
	if w.Conn.IsStub {
		requestedSize = size // stub erases as it writes
	} else {
		requestedSize = eraseBlocks * writeSize // ROM expects erase-rounded size
		timeout = timeoutPerMB(eraseRegionTimeoutPerMB, requestedSize)
	}

	body := make([]byte, 16)
	putU32(body[0:4], requestedSize)
	putU32(body[4:8], blocks)
	putU32(body[8:12], writeSize)
	putU32(body[12:16], offset)
	if w.Conn.Variant.SupportsROMEncryptedBegin && !w.Conn.IsStub {
		body = append(body, 0, 0, 0, 0) // ROM-encrypted defl mode unsupported
	}

	_, err := w.Conn.Transport.CheckCommand("flash_defl_begin", protocol.FlashDeflBegin, body, 0, timeout)
	return blocks, err
}

// DeflBlock implements spec §4.7's flash_defl_block: one checksummed
// compressed chunk.
func (w *Writer) DeflBlock(data []byte, seq uint32, timeout time.Duration) error {
	hdr := make([]byte, 16)
	putU32(hdr[0:4], uint32(len(data)))
	putU32(hdr[4:8], seq)
	body := append(hdr, data...)
	cs := protocol.Checksum(data, 0xEF)
	_, err := w.Conn.Transport.CheckCommand("flash_defl_block", protocol.FlashDeflData, body, uint32(cs), timeout)
	return err
}

// DeflFinish implements spec §4.7's flash_defl_finish. On ROM (not stub),
// sending FLASH_DEFL_END without reboot would exit the bootloader, so it
// is skipped entirely unless reboot is requested or the caller explicitly
// opts into exiting the loader via exitsLoader (spec §9's open question on
// defl_finish_exits_loader: a policy the caller states, not one this
// package guesses).
func (w *Writer) DeflFinish(reboot, exitsLoader bool) error {
	if !reboot && !exitsLoader && !w.Conn.IsStub {
		return nil
	}
	body := make([]byte, 4)
	if !reboot {
		putU32(body, 1)
	}
	_, err := w.Conn.Transport.CheckCommand("flash_defl_finish", protocol.FlashDeflEnd, body, 0, 0)
	return err
}
