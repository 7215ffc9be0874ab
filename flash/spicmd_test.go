package flash

import (
	"testing"

	"espflash/chip"
	"espflash/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSPIFlashCommandRejectsOversizedData(t *testing.T) {
	port := newFakePort()
	conn := connectROM(t, port)

	_, err := RunSPIFlashCommand(conn, 0x9F, make([]byte, 65), 0)
	require.Error(t, err)
}

func TestRunSPIFlashCommandRejectsOversizedReadBits(t *testing.T) {
	port := newFakePort()
	conn := connectROM(t, port)

	_, err := RunSPIFlashCommand(conn, 0x9F, nil, 33)
	require.Error(t, err)
}

func TestRunSPIFlashCommandTimesOutWhenCmdBitNeverClears(t *testing.T) {
	port := newFakePort()
	conn := connectROM(t, port)

	// save/restore USR, USR2 reads
	port.queueResponse(protocol.ReadReg, 0, []byte{0, 0, 0, 0})
	port.queueResponse(protocol.ReadReg, 0, []byte{0, 0, 0, 0})
	// write_reg replies: data-len regs, USR, USR2, W0, CMD
	for i := 0; i < 5; i++ {
		port.queueResponse(protocol.WriteReg, 0, []byte{0, 0, 0, 0})
	}
	// 10 poll attempts, CMD bit never clears
	for i := 0; i < 10; i++ {
		port.queueResponse(protocol.ReadReg, spiCmdUsr, []byte{0, 0, 0, 0})
	}

	_, err := RunSPIFlashCommand(conn, 0x9F, nil, 24)
	require.Error(t, err)
}

func TestRunSPIFlashCommandSucceedsAndRestoresRegisters(t *testing.T) {
	port := newFakePort()
	conn := connectROM(t, port)

	port.queueResponse(protocol.ReadReg, 0x11, []byte{0, 0, 0, 0}) // old USR
	port.queueResponse(protocol.ReadReg, 0x22, []byte{0, 0, 0, 0}) // old USR2
	for i := 0; i < 4; i++ {
		port.queueResponse(protocol.WriteReg, 0, []byte{0, 0, 0, 0}) // dlen/usr/usr2/w0-clear
	}
	port.queueResponse(protocol.WriteReg, 0, []byte{0, 0, 0, 0}) // CMD set
	port.queueResponse(protocol.ReadReg, 0, []byte{0, 0, 0, 0})   // poll: done immediately
	port.queueResponse(protocol.ReadReg, 0xABCDEF, []byte{0, 0, 0, 0})
	port.queueResponse(protocol.WriteReg, 0, []byte{0, 0, 0, 0}) // restore USR
	port.queueResponse(protocol.WriteReg, 0, []byte{0, 0, 0, 0}) // restore USR2

	status, err := RunSPIFlashCommand(conn, 0x9F, nil, 24)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xABCDEF), status)
}

func TestPackedUSR1LengthEncodingForESP8266(t *testing.T) {
	assert.True(t, chip.ESP8266.UsesPackedUSR1)
	assert.False(t, chip.ESP32.UsesPackedUSR1)
}
