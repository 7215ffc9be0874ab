package flash

import "testing"

func TestGetEraseSizeROMWorkaround(t *testing.T) {
	cases := []struct {
		offset, size uint32
		want         uint32
	}{
		{0x1000, 0x1000, 0x1000},
		{0x1000, 0xF000, 0x8000},
		{0x0, 0x1000, 0x1000},
		{0x4000, 0x10000, 0x8000},
	}
	for _, c := range cases {
		got := GetEraseSize(c.offset, c.size, false)
		if got != c.want {
			t.Errorf("GetEraseSize(0x%x, 0x%x) = 0x%x, want 0x%x", c.offset, c.size, got, c.want)
		}
	}
}

func TestGetEraseSizeExactForStubsAndNewerVariants(t *testing.T) {
	got := GetEraseSize(0x4000, 0x123, true)
	if got != 0x123 {
		t.Errorf("GetEraseSize exact = 0x%x, want 0x123", got)
	}
}
