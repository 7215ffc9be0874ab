package protocol

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syncResponseBody(op Opcode, value uint32, status []byte) []byte {
	body := make([]byte, 8+len(status))
	body[0] = dirResponse
	body[1] = byte(op)
	binary.LittleEndian.PutUint16(body[2:4], uint16(len(status)))
	binary.LittleEndian.PutUint32(body[4:8], value)
	copy(body[8:], status)
	return body
}

func TestCommandSyncRoundTrip(t *testing.T) {
	port := newFakePort()
	port.queueResponse(syncResponseBody(Sync, 0, []byte{0x00, 0x00}))

	tr := NewTransport(port)
	tr.StatusLen = 2
	op := Sync
	resp, err := tr.Command(&op, SyncPayload(), 0, true, time.Second)
	require.NoError(t, err)
	assert.Equal(t, Sync, resp.Op)
	assert.Equal(t, uint32(0), resp.Value)

	require.Len(t, port.writes, 1)
}

func TestCommandDiscardsMismatchedReplies(t *testing.T) {
	port := newFakePort()
	port.queueResponse(syncResponseBody(WriteReg, 0, []byte{0x00, 0x00}))
	port.queueResponse(syncResponseBody(ReadReg, 0x42, []byte{0x00, 0x00}))

	tr := NewTransport(port)
	tr.StatusLen = 2
	op := ReadReg
	resp, err := tr.Command(&op, nil, 0, true, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x42), resp.Value)
}

func TestCommandUnsupportedOnInvalidMessage(t *testing.T) {
	port := newFakePort()
	port.queueResponse(syncResponseBody(WriteReg, 0, []byte{0x01, InvalidMessageCode}))

	tr := NewTransport(port)
	tr.StatusLen = 2
	op := ReadReg
	_, err := tr.Command(&op, nil, 0, true, time.Second)
	require.Error(t, err)
}

func TestCheckCommandReturnsRemoteOnFailureStatus(t *testing.T) {
	port := newFakePort()
	port.queueResponse(syncResponseBody(ReadReg, 0, []byte{0x01, 0x06}))

	tr := NewTransport(port)
	tr.StatusLen = 2
	_, err := tr.CheckCommand("read_reg", ReadReg, nil, 0, time.Second)
	require.Error(t, err)
}

func TestCheckCommandReturnsValueWhenBodyEmpty(t *testing.T) {
	port := newFakePort()
	port.queueResponse(syncResponseBody(ReadReg, 0xCAFEBABE, []byte{0x00, 0x00}))

	tr := NewTransport(port)
	tr.StatusLen = 2
	data, err := tr.CheckCommand("read_reg", ReadReg, nil, 0, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xCAFEBABE), binary.LittleEndian.Uint32(data))
}
