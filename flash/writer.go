package flash

import (
	"time"

	"espflash/connection"
	"espflash/errs"
	"espflash/protocol"

	"github.com/golang/glog"
)

const (
	romWriteSize  = 0x400
	stubWriteSize = 0x4000

	chipEraseTimeout       = 120 * time.Second
	eraseRegionTimeoutPerMB = 30 * time.Second
	defaultFlashTimeout    = protocol.DefaultReadTimeout
)

// Writer drives the flash-write family of operations (spec §4.7) against
// an already-connected session.
type Writer struct {
	Conn *connection.Connection
}

// New wraps an established connection for flash operations.
func New(c *connection.Connection) *Writer {
	return &Writer{Conn: c}
}

func (w *Writer) writeSize() uint32 {
	if w.Conn.IsStub {
		return stubWriteSize
	}
	return romWriteSize
}

// WriteSize exposes the active raw write chunk size (0x400 on ROM,
// 0x4000 on stub) for callers splitting their own pre-built block stream.
func (w *Writer) WriteSize() uint32 {
	return w.writeSize()
}

func numBlocks(size, writeSize uint32) uint32 {
	if size == 0 {
		return 0
	}
	return (size + writeSize - 1) / writeSize
}

func timeoutPerMB(perMB time.Duration, size uint32) time.Duration {
	t := time.Duration(size) * perMB / (1 << 20)
	if t < defaultFlashTimeout {
		return defaultFlashTimeout
	}
	return t
}

// Begin implements spec §4.7's flash_begin: erases then primes the target
// for num_blocks of write_size raw writes at offset.
func (w *Writer) Begin(size, offset uint32, beginROMEncrypted bool) (uint32, error) {
	writeSize := w.writeSize()
	blocks := numBlocks(size, writeSize)
	eraseSize := GetEraseSize(offset, size, w.Conn.IsStub || w.Conn.Variant.Name != "ESP8266")

	timeout := defaultFlashTimeout
	if !w.Conn.IsStub {
		timeout = timeoutPerMB(eraseRegionTimeoutPerMB, size)
	}

	body := make([]byte, 16)
	putU32(body[0:4], eraseSize)
	putU32(body[4:8], blocks)
	putU32(body[8:12], writeSize)
	putU32(body[12:16], offset)
	if w.Conn.Variant.SupportsROMEncryptedBegin && !w.Conn.IsStub {
		extra := make([]byte, 4)
		if beginROMEncrypted {
			putU32(extra, 1)
		}
		body = append(body, extra...)
	}

	start := time.Now()
	_, err := w.Conn.Transport.CheckCommand("flash_begin", protocol.FlashBegin, body, 0, timeout)
	if err == nil && size != 0 && !w.Conn.IsStub {
		glog.V(1).Infof("flash_begin: erase took %s", time.Since(start))
	}
	return blocks, err
}

// Block implements spec §4.7's flash_block: one checksummed raw chunk.
func (w *Writer) Block(data []byte, seq uint32, timeout time.Duration) error {
	hdr := make([]byte, 16)
	putU32(hdr[0:4], uint32(len(data)))
	putU32(hdr[4:8], seq)
	body := append(hdr, data...)
	cs := protocol.Checksum(data, 0xEF)
	_, err := w.Conn.Transport.CheckCommand("flash_block", protocol.FlashData, body, uint32(cs), timeout)
	return err
}

// EncryptedBlock implements spec §4.7's encrypted write. On newer-variant
// ROM the encrypted path is the plain FLASH_DATA opcode, triggered instead
// by Begin's beginROMEncrypted flag; this method is for the stub's
// dedicated opcode and any ROM that lacks the ROM-encrypted-begin flag.
func (w *Writer) EncryptedBlock(data []byte, seq uint32, timeout time.Duration) error {
	if w.Conn.Variant.SupportsROMEncryptedBegin && !w.Conn.IsStub {
		return w.Block(data, seq, timeout)
	}
	hdr := make([]byte, 16)
	putU32(hdr[0:4], uint32(len(data)))
	putU32(hdr[4:8], seq)
	body := append(hdr, data...)
	cs := protocol.Checksum(data, 0xEF)
	_, err := w.Conn.Transport.CheckCommand("flash_encrypt_block", protocol.FlashEncryptData, body, uint32(cs), timeout)
	return err
}

// RequireEncryptedAlignment implements spec §4.7's alignment check for
// encrypted writes: addr and len must both be multiples of boundary (16 or
// 32 bytes depending on variant).
func RequireEncryptedAlignment(addr, length, boundary uint32) error {
	if addr%boundary != 0 || length%boundary != 0 {
		return errs.New(errs.Alignment, "flash_encrypt_block")
	}
	return nil
}

// Finish implements spec §4.7's flash_finish.
func (w *Writer) Finish(reboot bool) error {
	body := make([]byte, 4)
	if !reboot {
		putU32(body, 1)
	}
	_, err := w.Conn.Transport.CheckCommand("flash_finish", protocol.FlashEnd, body, 0, 0)
	return err
}

// EraseFlash implements spec §4.7's erase_flash (stub only).
func (w *Writer) EraseFlash() error {
	_, err := w.Conn.Transport.CheckCommand("erase_flash", protocol.EraseFlash, nil, 0, chipEraseTimeout)
	return err
}

// EraseRegion implements spec §4.7's erase_region: both offset and size
// must already be sector-aligned.
func (w *Writer) EraseRegion(offset, size uint32) error {
	if offset%sectorSize != 0 || size%sectorSize != 0 {
		return errs.New(errs.Alignment, "erase_region")
	}
	body := make([]byte, 8)
	putU32(body[0:4], offset)
	putU32(body[4:8], size)
	timeout := timeoutPerMB(eraseRegionTimeoutPerMB, size)
	_, err := w.Conn.Transport.CheckCommand("erase_region", protocol.EraseRegion, body, 0, timeout)
	return err
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
