package flash

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"espflash/chip"
	"espflash/connection"
	"espflash/protocol"
	"espflash/slipframe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePort struct {
	writes  [][]byte
	replies *bytes.Buffer
}

func newFakePort() *fakePort { return &fakePort{replies: &bytes.Buffer{}} }

func (f *fakePort) queueResponse(op protocol.Opcode, value uint32, status []byte) {
	body := make([]byte, 8+len(status))
	body[0] = 0x01
	body[1] = byte(op)
	binary.LittleEndian.PutUint16(body[2:4], uint16(len(status)))
	binary.LittleEndian.PutUint32(body[4:8], value)
	copy(body[8:], status)
	f.replies.Write(slipframe.Encode(body))
}

func (f *fakePort) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	f.writes = append(f.writes, cp)
	return len(p), nil
}

func (f *fakePort) Read(p []byte) (int, error) {
	if f.replies.Len() == 0 {
		return 0, io.EOF
	}
	return f.replies.Read(p)
}

func (f *fakePort) SetReadTimeout(time.Duration) error  { return nil }
func (f *fakePort) SetWriteTimeout(time.Duration) error { return nil }
func (f *fakePort) SetDTR(bool) error                   { return nil }
func (f *fakePort) SetRTS(bool) error                   { return nil }
func (f *fakePort) ResetInputBuffer() error              { return nil }
func (f *fakePort) Reconfigure(int) error                { return nil }
func (f *fakePort) Close() error                         { return nil }

func connectROM(t *testing.T, port *fakePort) *connection.Connection {
	t.Helper()
	port.queueResponse(protocol.Sync, 1, []byte{0, 0, 0, 0})
	for i := 0; i < 7; i++ {
		port.queueResponse(protocol.Sync, 1, []byte{0, 0, 0, 0})
	}
	port.queueResponse(protocol.ReadReg, chip.ESP32.DetectMagic, []byte{0, 0, 0, 0})
	port.queueResponse(protocol.ReadReg, chip.ESP32.DetectMagic, []byte{0, 0, 0, 0})
	conn, err := connection.Connect(port, connection.Options{})
	require.NoError(t, err)
	return conn
}

func TestWriterBeginUsesStubWriteSize(t *testing.T) {
	port := newFakePort()
	conn := connectROM(t, port)
	conn.IsStub = true
	w := New(conn)

	port.queueResponse(protocol.FlashBegin, 0, []byte{0, 0, 0, 0})
	blocks, err := w.Begin(0x5000, 0x1000, false)
	require.NoError(t, err)
	assert.Equal(t, numBlocks(0x5000, stubWriteSize), blocks)
}

func TestWriterBeginAppendsEncryptedFlagOnlyForSupportingVariants(t *testing.T) {
	port := newFakePort()
	port.queueResponse(protocol.Sync, 1, []byte{0, 0, 0, 0})
	for i := 0; i < 7; i++ {
		port.queueResponse(protocol.Sync, 1, []byte{0, 0, 0, 0})
	}
	port.queueResponse(protocol.ReadReg, chip.ESP32S3.DetectMagic, []byte{0, 0, 0, 0})
	port.queueResponse(protocol.ReadReg, chip.ESP32S3.DetectMagic, []byte{0, 0, 0, 0})
	conn, err := connection.Connect(port, connection.Options{})
	require.NoError(t, err)
	w := New(conn)

	port.queueResponse(protocol.FlashBegin, 0, []byte{0, 0, 0, 0})
	_, err = w.Begin(0x1000, 0x0, true)
	require.NoError(t, err)

	last := port.writes[len(port.writes)-1]
	raw, derr := slipframe.Decode(last)
	require.NoError(t, derr)
	// 8-byte request header + 16-byte flash_begin params + 4-byte
	// encrypted flag, since ESP32-S3's ROM supports begin_rom_encrypted.
	assert.Equal(t, 28, len(raw))
}

func TestDeflFinishSkippedOnROMWithoutReboot(t *testing.T) {
	port := newFakePort()
	conn := connectROM(t, port)
	w := New(conn)
	before := len(port.writes)

	err := w.DeflFinish(false, false)
	require.NoError(t, err)
	assert.Len(t, port.writes, before)
}

func TestDeflFinishSentWhenRebootRequested(t *testing.T) {
	port := newFakePort()
	conn := connectROM(t, port)
	w := New(conn)
	before := len(port.writes)

	port.queueResponse(protocol.FlashDeflEnd, 0, []byte{0, 0, 0, 0})
	err := w.DeflFinish(true, false)
	require.NoError(t, err)
	assert.Len(t, port.writes, before+1)
}

func TestDeflFinishSentOnROMWhenExitsLoaderRequested(t *testing.T) {
	port := newFakePort()
	conn := connectROM(t, port)
	w := New(conn)
	before := len(port.writes)

	port.queueResponse(protocol.FlashDeflEnd, 0, []byte{0, 0, 0, 0})
	err := w.DeflFinish(false, true)
	require.NoError(t, err)
	assert.Len(t, port.writes, before+1)
}

func TestEraseRegionRejectsUnalignedOffset(t *testing.T) {
	port := newFakePort()
	conn := connectROM(t, port)
	w := New(conn)

	err := w.EraseRegion(0x100, 0x1000)
	require.Error(t, err)
}

func TestRequireEncryptedAlignment(t *testing.T) {
	require.NoError(t, RequireEncryptedAlignment(0x20, 0x20, 16))
	require.Error(t, RequireEncryptedAlignment(0x21, 0x20, 16))
}

func TestChangeBaudSendsPreviousBaudWhenStub(t *testing.T) {
	port := newFakePort()
	conn := connectROM(t, port)
	conn.IsStub = true
	conn.Baud = 115200
	w := New(conn)

	port.queueResponse(protocol.ChangeBaudrate, 0, []byte{0, 0, 0, 0})
	err := w.ChangeBaud(921600)
	require.NoError(t, err)
	assert.Equal(t, 921600, conn.Baud)

	// second argument of CHANGE_BAUDRATE carries the previous baud rate.
	raw, derr := slipframe.Decode(port.writes[len(port.writes)-1])
	require.NoError(t, derr)
	assert.Equal(t, uint32(115200), binary.LittleEndian.Uint32(raw[12:16]))
}

func TestCompressRoundTripsThroughZlib(t *testing.T) {
	data := bytes.Repeat([]byte{0xAA, 0x55}, 100)
	compressed, err := Compress(data)
	require.NoError(t, err)
	assert.NotEmpty(t, compressed)
	assert.Less(t, len(compressed), len(data))
}
