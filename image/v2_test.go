package image

import (
	"testing"

	"espflash/chip"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestV2SaveLoadRoundTrip(t *testing.T) {
	img := &Image{
		Variant:       chip.ESP8266,
		FlashMode:     0,
		FlashSizeFreq: 0x30,
		Entry:         0x40100004,
		Version:       2,
		Segments: []Segment{
			NewSegment(0x40201010, []byte{0xDE, 0xAD, 0xBE, 0xEF}, -1), // IROM-mapped
			NewSegment(0x3FFE8000, []byte{0x01, 0x02, 0x03, 0x04}, -1),
		},
	}
	data, err := SaveV2(img)
	require.NoError(t, err)

	loaded, err := LoadV2(data, chip.ESP8266)
	require.NoError(t, err)
	assert.Equal(t, img.Entry, loaded.Entry)
	require.Len(t, loaded.Segments, 2)
}

func TestV2LoadRejectsBadCRC(t *testing.T) {
	img := &Image{Variant: chip.ESP8266, Entry: 0x40100000, Version: 2, Segments: []Segment{
		NewSegment(0x40201010, []byte{0xDE, 0xAD, 0xBE, 0xEF}, -1), // IROM-mapped, so LoadV2 reaches the CRC check
		NewSegment(0x3FFE8000, []byte{1, 2, 3, 4}, -1),
	}}
	data, err := SaveV2(img)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF

	_, err = LoadV2(data, chip.ESP8266)
	require.Error(t, err)
}

func TestCRC32CustomMatchesKnownVector(t *testing.T) {
	got := crc32Custom([]byte("hello"))
	assert.Equal(t, uint32(0x3610A687), got)
}
