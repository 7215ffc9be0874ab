package chip

// ESP8266 is the original variant: 2-byte status trailer, packed SPI
// length registers, the erase-size-bug workaround in the flash engine.
var ESP8266 = Descriptor{
	Name:        "ESP8266",
	ImageChipID: 0xFFFF, // V1/V2 images carry no chip id field for ESP8266
	DetectMagic: 0xfff0c101,
	Regs: Registers{
		UARTClkDiv:   0x60000014,
		UARTDateCode: 0x60000078,
		SPIBase:      0x60000200,
		SPIUsr:       0x60000200 + 0x1c,
		SPIUsr1:      0x60000200 + 0x20,
		SPIUsr2:      0x60000200 + 0x24,
		SPIW0:        0x60000200 + 0x40,
	},
	MemoryMap: []MemRange{
		{0x3FF00000, 0x3FF00010, "DPORT"},
		{0x3FFE8000, 0x40000000, "DRAM"},
		{0x40100000, 0x40108000, "IRAM"},
		{0x40201010, 0x402E1010, "IROM"},
	},
	FlashSizes: map[string]byte{
		"512KB": 0x00, "256KB": 0x10, "1MB": 0x20, "2MB": 0x30, "4MB": 0x40,
		"2MB-c1": 0x50, "4MB-c1": 0x60, "8MB": 0x80, "16MB": 0x90,
	},
	StatusLen:      2,
	FlashOffset:    0,
	XtalDivider:    2,
	UsesPackedUSR1: true,
}

// ESP32 is the first "newer" variant: 4-byte ROM status trailer, dedicated
// MOSI/MISO length registers, extended image header.
var ESP32 = Descriptor{
	Name:        "ESP32",
	ImageChipID: 0,
	DetectMagic: 0x00f01d83,
	Regs: Registers{
		UARTClkDiv:   0x3ff40014,
		UARTDateCode: 0x60000078,
		SPIBase:      0x3ff42000,
		SPIUsr:       0x3ff42000 + 0x1c,
		SPIUsr1:      0x3ff42000 + 0x20,
		SPIUsr2:      0x3ff42000 + 0x24,
		SPIMosiDlen:  0x3ff42000 + 0x28,
		SPIMisoDlen:  0x3ff42000 + 0x2c,
		SPIW0:        0x3ff42000 + 0x80,
		EfuseBase:    0x3ff5a000,
	},
	MemoryMap: []MemRange{
		{0x00000000, 0x00010000, "PADDING"},
		{0x3F400000, 0x3F800000, "DROM"},
		{0x3F800000, 0x3FC00000, "EXTRAM_DATA"},
		{0x3FF80000, 0x3FF82000, "RTC_DRAM"},
		{0x3FF90000, 0x40000000, "BYTE_ACCESSIBLE"},
		{0x3FFAE000, 0x40000000, "DRAM"},
		{0x3FFE0000, 0x3FFFFFFC, "DIRAM_DRAM"},
		{0x40000000, 0x40070000, "IROM"},
		{0x40070000, 0x40078000, "CACHE_PRO"},
		{0x40078000, 0x40080000, "CACHE_APP"},
		{0x40080000, 0x400A0000, "IRAM"},
	},
	FlashSizes: map[string]byte{
		"1MB": 0x00, "2MB": 0x10, "4MB": 0x20, "8MB": 0x30, "16MB": 0x40,
	},
	StatusLen:                4,
	FlashOffset:              0x1000,
	XtalDivider:              1,
	EncryptionDisableReg:     0x3ff5a000 + 0x18,
	EncryptionDisableMask:    1 << 7,
	FlashEncryptedWriteAlign: 32,
}

// ESP32S2 adds a dedicated MAC efuse block and a larger DROM/IROM split.
var ESP32S2 = Descriptor{
	Name:        "ESP32-S2",
	ImageChipID: 2,
	DetectMagic: 0x000007c6,
	Regs: Registers{
		UARTClkDiv:   0x3f400014,
		UARTDateCode: 0x60000078,
		SPIBase:      0x3f402000,
		SPIUsr:       0x3f402000 + 0x18,
		SPIUsr1:      0x3f402000 + 0x1c,
		SPIUsr2:      0x3f402000 + 0x20,
		SPIMosiDlen:  0x3f402000 + 0x24,
		SPIMisoDlen:  0x3f402000 + 0x28,
		SPIW0:        0x3f402000 + 0x58,
		EfuseBase:    0x3f41A000,
		MacEfuse:     0x3f41A044,
	},
	MemoryMap: []MemRange{
		{0x00000000, 0x00010000, "PADDING"},
		{0x3F000000, 0x3FF80000, "DROM"},
		{0x3F500000, 0x3FF80000, "EXTRAM_DATA"},
		{0x3FF9E000, 0x3FFA0000, "RTC_DRAM"},
		{0x3FF9E000, 0x40000000, "BYTE_ACCESSIBLE"},
		{0x3FFB0000, 0x40000000, "DRAM"},
		{0x40000000, 0x4001A100, "IROM_MASK"},
		{0x40020000, 0x40070000, "IRAM"},
		{0x40070000, 0x40072000, "RTC_IRAM"},
		{0x40080000, 0x40800000, "IROM"},
		{0x50000000, 0x50002000, "RTC_DATA"},
	},
	FlashSizes: map[string]byte{
		"1MB": 0x00, "2MB": 0x10, "4MB": 0x20, "8MB": 0x30, "16MB": 0x40,
	},
	StatusLen:                 4,
	FlashOffset:               0x1000,
	XtalDivider:               1,
	SupportsROMEncryptedBegin: true,
	EncryptionDisableReg:      0x3f41A000 + 0x18,
	EncryptionDisableMask:     1 << 7,
	FlashEncryptedWriteAlign:  16,
}

// ESP32S3 mirrors ESP32S2's register layout with its own memory map.
var ESP32S3 = Descriptor{
	Name:        "ESP32-S3",
	ImageChipID: 4,
	DetectMagic: 0xeb004136,
	Regs: Registers{
		UARTClkDiv:   0x60000014,
		UARTDateCode: 0x60000080,
		SPIBase:      0x60002000,
		SPIUsr:       0x60002000 + 0x18,
		SPIUsr1:      0x60002000 + 0x1c,
		SPIUsr2:      0x60002000 + 0x20,
		SPIMosiDlen:  0x60002000 + 0x24,
		SPIMisoDlen:  0x60002000 + 0x28,
		SPIW0:        0x60002000 + 0x58,
		MacEfuse:     0x6001A000,
	},
	MemoryMap: []MemRange{
		{0x00000000, 0x00010000, "PADDING"},
		{0x3C000000, 0x3D000000, "DROM"},
		{0x3D000000, 0x3E000000, "EXTRAM_DATA"},
		{0x600FE000, 0x60100000, "RTC_DRAM"},
		{0x3FC88000, 0x3FD00000, "BYTE_ACCESSIBLE"},
		{0x3FC88000, 0x403E2000, "MEM_INTERNAL"},
		{0x3FC88000, 0x3FD00000, "DRAM"},
		{0x40000000, 0x4001A100, "IROM_MASK"},
		{0x40370000, 0x403E0000, "IRAM"},
		{0x600FE000, 0x60100000, "RTC_IRAM"},
		{0x42000000, 0x42800000, "IROM"},
		{0x50000000, 0x50002000, "RTC_DATA"},
	},
	FlashSizes: map[string]byte{
		"1MB": 0x00, "2MB": 0x10, "4MB": 0x20, "8MB": 0x30, "16MB": 0x40,
	},
	StatusLen:                 4,
	FlashOffset:               0x1000,
	XtalDivider:               1,
	SupportsROMEncryptedBegin: true,
	EncryptionDisableReg:      0x6001A000 + 0x18,
	EncryptionDisableMask:     1 << 7,
	FlashEncryptedWriteAlign:  16,
}

// ESP32C3 is the RISC-V variant.
var ESP32C3 = Descriptor{
	Name:        "ESP32-C3",
	ImageChipID: 5,
	DetectMagic: 0x6921506f,
	Regs: Registers{
		UARTClkDiv:   0x60000014,
		UARTDateCode: 0x60000000 + 0x7c,
		SPIBase:      0x60002000,
		SPIUsr:       0x60002000 + 0x18,
		SPIUsr1:      0x60002000 + 0x1c,
		SPIUsr2:      0x60002000 + 0x20,
		SPIMosiDlen:  0x60002000 + 0x24,
		SPIMisoDlen:  0x60002000 + 0x28,
		SPIW0:        0x60002000 + 0x58,
		EfuseBase:    0x60008800,
	},
	MemoryMap: []MemRange{
		{0x00000000, 0x00010000, "PADDING"},
		{0x3C000000, 0x3C800000, "DROM"},
		{0x3FC80000, 0x3FCE0000, "DRAM"},
		{0x3FC88000, 0x3FD00000, "BYTE_ACCESSIBLE"},
		{0x3FF00000, 0x3FF20000, "DROM_MASK"},
		{0x40000000, 0x40060000, "IROM_MASK"},
		{0x42000000, 0x42800000, "IROM"},
		{0x4037C000, 0x403E0000, "IRAM"},
		{0x50000000, 0x50002000, "RTC_IRAM"},
		{0x50000000, 0x50002000, "RTC_DRAM"},
		{0x600FE000, 0x60100000, "MEM_INTERNAL2"},
	},
	FlashSizes: map[string]byte{
		"1MB": 0x00, "2MB": 0x10, "4MB": 0x20, "8MB": 0x30, "16MB": 0x40,
	},
	StatusLen:                 4,
	FlashOffset:               0x0,
	XtalDivider:               1,
	SupportsROMEncryptedBegin: true,
	EncryptionDisableReg:      0x60008800 + 0x18,
	EncryptionDisableMask:     1 << 7,
	FlashEncryptedWriteAlign:  16,
}

// All is the registry Detect walks, in a fixed order so the "first match
// wins" rule (spec §4.3) is deterministic.
var All = []Descriptor{ESP8266, ESP32, ESP32S2, ESP32S3, ESP32C3}

// ByName looks up a descriptor by its Name field for callers that must
// assert a variant explicitly (e.g. after a secure-download-mode detect
// skip, spec §4.3).
func ByName(name string) (Descriptor, bool) {
	for _, d := range All {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}
