// Package espflash is the root orchestration layer (spec C11): it wires
// connection, romloader, flash, and image into the handful of
// user-facing operations a flashing tool exposes (write/verify/erase/
// elf2image/reset). Grounded on esptool.py's top-level command functions
// and on mongoose-os/mos's flasher.Flash/writeImages orchestration shape
// (connect -> prepare -> write loop -> verify -> reboot).
package espflash

import (
	"espflash/connection"
	"espflash/errs"
	"espflash/flash"
	"espflash/protocol"

	"github.com/juju/errors"
)

const (
	spiFlashBlockSize  = 64 * 1024
	spiFlashSectorSize = 4 * 1024
	spiFlashPageSize   = 256
	spiFlashStatusMask = 0xFFFF
)

// AttachSPIFlash implements esptool.py's flash_spi_attach: enables the SPI
// flash pins. On ESP8266 ROM (not stub) this is folded into flash_begin
// instead and is a no-op here.
func AttachSPIFlash(c *connection.Connection, hspiArg uint32) error {
	if !c.IsStub && c.Variant.Name == "ESP8266" {
		return nil
	}
	arg := make([]byte, 4)
	putU32(arg, hspiArg)
	if !c.IsStub {
		arg = append(arg, 0, 0, 0, 0) // is_legacy=0 plus reserved bytes
	}
	_, err := c.Transport.CheckCommand("configure SPI flash pins", protocol.SpiAttach, arg, 0, 0)
	return errors.Trace(err)
}

// SetFlashParameters implements esptool.py's flash_set_parameters: tells
// the bootloader the flashchip size so addresses it computes internally
// (erase rounding, page wrap) stay consistent with the target device.
// ESP8266 ROM (not stub) silently skips this, since it isn't implemented
// there.
func SetFlashParameters(c *connection.Connection, sizeBytes uint32) error {
	if !c.IsStub && c.Variant.Name == "ESP8266" {
		return nil
	}
	body := make([]byte, 24)
	putU32(body[0:4], 0) // fl_id, unused
	putU32(body[4:8], sizeBytes)
	putU32(body[8:12], spiFlashBlockSize)
	putU32(body[12:16], spiFlashSectorSize)
	putU32(body[16:20], spiFlashPageSize)
	putU32(body[20:24], spiFlashStatusMask)
	_, err := c.Transport.CheckCommand("set SPI params", protocol.SpiSetParams, body, 0, 0)
	return errors.Trace(err)
}

// EraseChip implements spec §4.7's erase_flash at the orchestration
// layer (stub only; ROM has no chip-erase command).
func EraseChip(c *connection.Connection) error {
	if !c.IsStub {
		return errs.New(errs.UnsupportedCommand, "erase_chip")
	}
	return errors.Trace(flash.New(c).EraseFlash())
}

// EraseRegion implements spec §4.7's erase_region at the orchestration
// layer (stub only).
func EraseRegion(c *connection.Connection, offset, size uint32) error {
	if !c.IsStub {
		return errs.New(errs.UnsupportedCommand, "erase_region")
	}
	return errors.Trace(flash.New(c).EraseRegion(offset, size))
}

// ReadFlash reads length bytes starting at offset, using the stub's
// flow-controlled path when available and falling back to the ROM's
// slow 64-byte-chunk path otherwise.
func ReadFlash(c *connection.Connection, offset, length uint32, progress flash.ProgressFunc) ([]byte, error) {
	data, err := flash.New(c).Read(offset, length, progress)
	return data, errors.Trace(err)
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
