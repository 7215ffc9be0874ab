package flash

import (
	"espflash/connection"
	"espflash/errs"
)

const (
	spiUsrCommand = 1 << 31
	spiUsrMiso    = 1 << 28
	spiUsrMosi    = 1 << 27
	spiCmdUsr     = 1 << 18

	spiUsr2CommandLenShift = 28
	spiMosiBitlenShift     = 17
	spiMisoBitlenShift     = 8

	spiCmdPollAttempts = 10
)

// RunSPIFlashCommand implements spec C8: drive the target's SPI
// controller via USR_COMMAND to issue an arbitrary flash opcode, writing
// up to 64 bytes to MOSI and reading back up to 32 bits from MISO.
func RunSPIFlashCommand(c *connection.Connection, opcode byte, data []byte, readBits int) (uint32, error) {
	if readBits > 32 {
		return 0, errs.New(errs.Overflow, "run_spiflash_command")
	}
	if len(data) > 64 {
		return 0, errs.New(errs.Overflow, "run_spiflash_command")
	}

	regs := c.Variant.Regs
	dataBits := len(data) * 8

	oldUsr, err := c.ReadReg(regs.SPIUsr)
	if err != nil {
		return 0, err
	}
	oldUsr2, err := c.ReadReg(regs.SPIUsr2)
	if err != nil {
		return 0, err
	}

	flags := uint32(spiUsrCommand)
	if readBits > 0 {
		flags |= spiUsrMiso
	}
	if dataBits > 0 {
		flags |= spiUsrMosi
	}

	if err := setDataLengths(c, uint32(dataBits), uint32(readBits)); err != nil {
		return 0, err
	}
	if err := c.WriteReg(regs.SPIUsr, flags, 0xFFFFFFFF, 0, 0); err != nil {
		return 0, err
	}
	usr2 := uint32(7)<<spiUsr2CommandLenShift | uint32(opcode)
	if err := c.WriteReg(regs.SPIUsr2, usr2, 0xFFFFFFFF, 0, 0); err != nil {
		return 0, err
	}

	if dataBits == 0 {
		if err := c.WriteReg(regs.SPIW0, 0, 0xFFFFFFFF, 0, 0); err != nil {
			return 0, err
		}
	} else {
		padded := padTo4(data)
		reg := regs.SPIW0
		for i := 0; i < len(padded); i += 4 {
			word := uint32(padded[i]) | uint32(padded[i+1])<<8 | uint32(padded[i+2])<<16 | uint32(padded[i+3])<<24
			if err := c.WriteReg(reg, word, 0xFFFFFFFF, 0, 0); err != nil {
				return 0, err
			}
			reg += 4
		}
	}

	cmdReg := regs.SPIBase
	if err := c.WriteReg(cmdReg, spiCmdUsr, 0xFFFFFFFF, 0, 0); err != nil {
		return 0, err
	}

	done := false
	for i := 0; i < spiCmdPollAttempts; i++ {
		v, err := c.ReadReg(cmdReg)
		if err != nil {
			return 0, err
		}
		if v&spiCmdUsr == 0 {
			done = true
			break
		}
	}
	if !done {
		return 0, errs.New(errs.SpiTimeout, "run_spiflash_command")
	}

	status, err := c.ReadReg(regs.SPIW0)
	if err != nil {
		return 0, err
	}

	if err := c.WriteReg(regs.SPIUsr, oldUsr, 0xFFFFFFFF, 0, 0); err != nil {
		return 0, err
	}
	if err := c.WriteReg(regs.SPIUsr2, oldUsr2, 0xFFFFFFFF, 0, 0); err != nil {
		return 0, err
	}
	return status, nil
}

// setDataLengths programs the MOSI/MISO bit-length fields, using the
// dedicated MOSI_DLEN/MISO_DLEN registers on newer variants or packing
// both into USR1 the way the original ESP8266 SPI controller requires.
func setDataLengths(c *connection.Connection, mosiBits, misoBits uint32) error {
	regs := c.Variant.Regs
	if !c.Variant.UsesPackedUSR1 {
		if mosiBits > 0 {
			if err := c.WriteReg(regs.SPIMosiDlen, mosiBits-1, 0xFFFFFFFF, 0, 0); err != nil {
				return err
			}
		}
		if misoBits > 0 {
			if err := c.WriteReg(regs.SPIMisoDlen, misoBits-1, 0xFFFFFFFF, 0, 0); err != nil {
				return err
			}
		}
		return nil
	}
	mosiMask := uint32(0)
	if mosiBits > 0 {
		mosiMask = mosiBits - 1
	}
	misoMask := uint32(0)
	if misoBits > 0 {
		misoMask = misoBits - 1
	}
	v := misoMask<<spiMisoBitlenShift | mosiMask<<spiMosiBitlenShift
	return c.WriteReg(regs.SPIUsr1, v, 0xFFFFFFFF, 0, 0)
}

func padTo4(data []byte) []byte {
	rem := len(data) % 4
	if rem == 0 {
		return data
	}
	out := make([]byte, len(data)+4-rem)
	copy(out, data)
	return out
}

// ReadJEDECID implements spec §4.7's flash_id: RDID via the SPI driver,
// returning the 24-bit manufacturer/device id.
func ReadJEDECID(c *connection.Connection) (uint32, error) {
	const spiflashRDID = 0x9F
	return RunSPIFlashCommand(c, spiflashRDID, nil, 24)
}

// ReadStatus reads up to numBytes (1-3) of the SPI flash status register
// via RDSR/RDSR2/RDSR3, since not every flash chip implements all three.
func ReadStatus(c *connection.Connection, numBytes int) (uint32, error) {
	cmds := []byte{0x05, 0x35, 0x15}
	var status uint32
	var shift uint
	for i := 0; i < numBytes && i < len(cmds); i++ {
		v, err := RunSPIFlashCommand(c, cmds[i], nil, 8)
		if err != nil {
			return 0, err
		}
		status |= v << shift
		shift += 8
	}
	return status, nil
}

// WriteStatus writes up to numBytes (1-3) of a new SPI flash status
// register value. setNonVolatile selects WREN (persists across power
// cycles) over WEVSR (volatile only).
func WriteStatus(c *connection.Connection, newStatus uint32, numBytes int, setNonVolatile bool) error {
	const (
		wrsr  = 0x01
		wrsr2 = 0x31
		wrsr3 = 0x11
		wevsr = 0x50
		wren  = 0x06
		wrdi  = 0x04
	)
	enableCmd := byte(wevsr)
	if setNonVolatile {
		enableCmd = wren
	}

	if numBytes == 2 {
		if _, err := RunSPIFlashCommand(c, enableCmd, nil, 0); err != nil {
			return err
		}
		if _, err := RunSPIFlashCommand(c, wrsr, []byte{byte(newStatus), byte(newStatus >> 8)}, 0); err != nil {
			return err
		}
	}

	cmds := []byte{wrsr, wrsr2, wrsr3}
	v := newStatus
	for i := 0; i < numBytes && i < len(cmds); i++ {
		if _, err := RunSPIFlashCommand(c, enableCmd, nil, 0); err != nil {
			return err
		}
		if _, err := RunSPIFlashCommand(c, cmds[i], []byte{byte(v)}, 0); err != nil {
			return err
		}
		v >>= 8
	}
	_, err := RunSPIFlashCommand(c, wrdi, nil, 0)
	return err
}
