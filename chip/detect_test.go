package chip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectMagicUniqueness(t *testing.T) {
	seen := map[uint32]string{}
	for _, d := range All {
		if other, ok := seen[d.DetectMagic]; ok {
			t.Fatalf("detect magic 0x%08x shared by %s and %s", d.DetectMagic, other, d.Name)
		}
		seen[d.DetectMagic] = d.Name
	}
}

func TestDetectSelectsFirstMatch(t *testing.T) {
	d, err := Detect(0x00f01d83)
	require.NoError(t, err)
	assert.Equal(t, "ESP32", d.Name)
}

func TestDetectUnknownMagic(t *testing.T) {
	_, err := Detect(0xdeadbeef)
	require.Error(t, err)
}

func TestMemoryTypeAt(t *testing.T) {
	assert.Equal(t, "IROM", ESP32.MemoryTypeAt(0x40000000))
	assert.Equal(t, "DROM", ESP32.MemoryTypeAt(0x3F400000))
	assert.Equal(t, "", ESP32.MemoryTypeAt(0xFFFFFFFF))
}

func TestDumpProducesYAML(t *testing.T) {
	out, err := ESP8266.Dump()
	require.NoError(t, err)
	assert.Contains(t, out, "name: ESP8266")
	assert.Contains(t, out, `detect_magic: "0xfff0c101"`)
}
