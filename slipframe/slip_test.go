package slipframe

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x01, 0x02, 0x03},
		{0xC0, 0xDB, 0x00},
		{0xC0, 0xC0, 0xC0},
		{0xDB, 0xDB, 0xDB},
		bytes.Repeat([]byte{0xC0, 0xDB, 0xAA}, 100),
	}
	for _, b := range cases {
		enc := Encode(b)
		dec, err := Decode(enc)
		require.NoError(t, err)
		assert.Equal(t, b, dec)
	}
}

func TestEncodeConcreteExample(t *testing.T) {
	// spec.md §8 scenario 1.
	got := Encode([]byte{0xC0, 0xDB, 0x00})
	want := []byte{End, Esc, EscEnd, Esc, EscEsc, 0x00, End}
	assert.Equal(t, want, got)
}

func TestReaderReadsOnePacketAtATime(t *testing.T) {
	stream := append(append(Encode([]byte{1, 2, 3}), Encode([]byte{4, 5})...))
	r := NewReader(bytes.NewReader(stream))

	p1, err := r.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, p1)

	p2, err := r.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, p2)

	_, err = r.ReadPacket()
	assert.Error(t, err)
}

func TestDecodeRejectsDanglingEscape(t *testing.T) {
	_, err := Decode([]byte{End, Esc, End})
	assert.Error(t, err)
}
