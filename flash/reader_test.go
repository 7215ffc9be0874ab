package flash

import (
	"crypto/md5"
	"testing"

	"espflash/protocol"
	"espflash/slipframe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadStubDrainsChunksAndVerifiesDigest(t *testing.T) {
	port := newFakePort()
	conn := connectROM(t, port)
	conn.IsStub = true
	w := New(conn)

	port.queueResponse(protocol.ReadFlash, 0, []byte{0, 0, 0, 0}) // command ack
	chunk := make([]byte, sectorSize)
	for i := range chunk {
		chunk[i] = byte(i)
	}
	port.replies.Write(slipframe.Encode(chunk))
	sum := md5.Sum(chunk)
	port.replies.Write(slipframe.Encode(sum[:]))

	data, err := w.Read(0, uint32(len(chunk)), nil)
	require.NoError(t, err)
	assert.Equal(t, chunk, data)
}

func TestReadSlowIssuesOneRequestPerChunk(t *testing.T) {
	port := newFakePort()
	conn := connectROM(t, port)
	w := New(conn)

	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	port.queueResponse(protocol.ReadFlashSlow, 0, append(payload, 0, 0, 0, 0))

	data, err := w.ReadSlow(0x1000, 64, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestMD5SumAcceptsBinaryAndHexDigests(t *testing.T) {
	port := newFakePort()
	conn := connectROM(t, port)
	w := New(conn)

	bin := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	port.queueResponse(protocol.SpiFlashMD5, 0, append(append([]byte{}, bin...), 0, 0, 0, 0))
	got, err := w.MD5Sum(0, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", got)

	hex := []byte("0102030405060708090a0b0c0d0e0f10")
	port.queueResponse(protocol.SpiFlashMD5, 0, append(append([]byte{}, hex...), 0, 0, 0, 0))
	got, err = w.MD5Sum(0, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", got)
}
