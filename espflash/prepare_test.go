package espflash

import (
	"testing"

	"espflash/protocol"
	"espflash/slipframe"

	"github.com/stretchr/testify/require"
)

func TestAttachSPIFlashSkippedOnESP8266ROM(t *testing.T) {
	port := newFakePort()
	conn := connectStub(t, port)
	conn.IsStub = false
	conn.Variant.Name = "ESP8266"
	before := len(port.writes)

	err := AttachSPIFlash(conn, 0)
	require.NoError(t, err)
	require.Len(t, port.writes, before)
}

func TestAttachSPIFlashSendsLegacyArgOnROM(t *testing.T) {
	port := newFakePort()
	conn := connectStub(t, port)
	conn.IsStub = false
	before := len(port.writes)

	port.queueResponse(protocol.SpiAttach, 0, []byte{0, 0, 0, 0})
	err := AttachSPIFlash(conn, 0)
	require.NoError(t, err)
	require.Len(t, port.writes, before+1)

	// 8-byte request header + 4-byte hspi arg + 4 legacy/reserved bytes.
	raw, derr := slipframe.Decode(port.writes[len(port.writes)-1])
	require.NoError(t, derr)
	require.Equal(t, 16, len(raw))
}

func TestSetFlashParametersSkippedOnESP8266ROM(t *testing.T) {
	port := newFakePort()
	conn := connectStub(t, port)
	conn.IsStub = false
	conn.Variant.Name = "ESP8266"
	before := len(port.writes)

	err := SetFlashParameters(conn, 0x400000)
	require.NoError(t, err)
	require.Len(t, port.writes, before)
}

func TestEraseChipRejectedOnROM(t *testing.T) {
	port := newFakePort()
	conn := connectStub(t, port)
	conn.IsStub = false

	err := EraseChip(conn)
	require.Error(t, err)
}

func TestEraseRegionRejectedOnROM(t *testing.T) {
	port := newFakePort()
	conn := connectStub(t, port)
	conn.IsStub = false

	err := EraseRegion(conn, 0x1000, 0x1000)
	require.Error(t, err)
}
