package espflash

import (
	"bytes"
	"crypto/md5"
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

func (f *fakePort) queueRaw(payload []byte) {
	f.replies.Write(slipframe.Encode(payload))
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
func (f *fakePort) ResetInputBuffer() error             { return nil }
func (f *fakePort) Reconfigure(int) error               { return nil }
func (f *fakePort) Close() error                        { return nil }

func connectStub(t *testing.T, port *fakePort) *connection.Connection {
	t.Helper()
	port.queueResponse(protocol.Sync, 1, []byte{0, 0, 0, 0})
	for i := 0; i < 7; i++ {
		port.queueResponse(protocol.Sync, 1, []byte{0, 0, 0, 0})
	}
	port.queueResponse(protocol.ReadReg, chip.ESP32.DetectMagic, []byte{0, 0, 0, 0})
	port.queueResponse(protocol.ReadReg, chip.ESP32.DetectMagic, []byte{0, 0, 0, 0})
	conn, err := connection.Connect(port, connection.Options{})
	require.NoError(t, err)
	conn.IsStub = true
	conn.Transport.StatusLen = 2
	return conn
}

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

func TestSanityCheckImagesRejectsUnalignedAddress(t *testing.T) {
	err := sanityCheckImages([]FlashImage{{Addr: 0x100, Data: []byte{1}}})
	require.Error(t, err)
}

func TestSanityCheckImagesRejectsOverlap(t *testing.T) {
	err := sanityCheckImages([]FlashImage{
		{Addr: 0x0, Data: make([]byte, 0x2000)},
		{Addr: 0x1000, Data: []byte{1}},
	})
	require.Error(t, err)
}

func TestSanityCheckImagesAllowsSortedNonOverlapping(t *testing.T) {
	err := sanityCheckImages([]FlashImage{
		{Addr: 0x1000, Data: make([]byte, 0x1000)},
		{Addr: 0x0, Data: make([]byte, 0x1000)},
	})
	require.NoError(t, err)
}

func TestPadToRoundsUpWithFF(t *testing.T) {
	out := padTo([]byte{1, 2, 3}, 4)
	assert.Equal(t, []byte{1, 2, 3, 0xFF}, out)
}

func TestWriteFlashRawUncompressedRoundTrip(t *testing.T) {
	port := newFakePort()
	conn := connectStub(t, port)

	data := bytes.Repeat([]byte{0x42}, 8)
	img := FlashImage{Name: "app", Addr: 0x1000, Data: data}

	port.queueResponse(protocol.FlashBegin, 0, []byte{0, 0}) // Begin
	port.queueResponse(protocol.FlashData, 0, []byte{0, 0}) // Block
	port.queueResponse(protocol.FlashEnd, 0, []byte{0, 0})  // Finish

	sum := md5.Sum(data)
	port.queueResponse(protocol.SpiFlashMD5, 0, append(append([]byte{}, sum[:]...), 0, 0)) // verify

	port.queueResponse(protocol.FlashEnd, 0, []byte{0, 0}) // reboot finish

	opts := NewOptions(WithCompression(false))
	err := WriteFlash(conn, []FlashImage{img}, opts)
	require.NoError(t, err)
}

func TestWriteFlashRejectsMisalignedImages(t *testing.T) {
	port := newFakePort()
	conn := connectStub(t, port)

	err := WriteFlash(conn, []FlashImage{{Addr: 0x1234, Data: []byte{1, 2, 3}}}, NewOptions())
	require.Error(t, err)
}

func TestVerifyFlashDetectsMismatch(t *testing.T) {
	port := newFakePort()
	conn := connectStub(t, port)

	img := FlashImage{Name: "app", Addr: 0x1000, Data: []byte{1, 2, 3, 4}}
	port.queueResponse(protocol.SpiFlashMD5, 0, append(bytes.Repeat([]byte{0}, 16), 0, 0))

	err := VerifyFlash(conn, []FlashImage{img})
	require.Error(t, err)
}

func TestVerifyFlashFallsBackToReadSlowOnUnsupportedMD5(t *testing.T) {
	port := newFakePort()
	conn := connectROM(t, port)

	data := []byte{1, 2, 3, 4}
	im := FlashImage{Name: "app", Addr: 0x1000, Data: data}

	// SPI_FLASH_MD5 unsupported on this ROM: reply with a mismatched op
	// flagged invalid-message, same as real ESP8266 ROM behavior.
	port.queueResponse(protocol.ReadReg, 0, []byte{0x01, protocol.InvalidMessageCode, 0, 0})
	// ReadSlow reads the data back in one 64-byte-capped chunk.
	port.queueResponse(protocol.ReadFlashSlow, 0, append(append([]byte{}, data...), 0, 0, 0, 0))

	err := VerifyFlash(conn, []FlashImage{im})
	require.NoError(t, err)
}

func TestSoftResetRejectedWithoutStub(t *testing.T) {
	port := newFakePort()
	conn := connectStub(t, port)
	conn.IsStub = false

	err := SoftReset(conn)
	require.Error(t, err)
}
