package image

import (
	"espflash/chip"
	"espflash/errs"
)

func errShortImage() error {
	return errs.New(errs.Protocol, "load_image")
}

// Load parses raw image bytes for variant d, dispatching to the V1, V2, or
// extended-header codec by inspecting the leading magic byte and, for
// V1-shaped images, whether d uses an extended header at all.
func Load(data []byte, d chip.Descriptor) (*Image, error) {
	if len(data) == 0 {
		return nil, errShortImage()
	}
	switch data[0] {
	case imageV2Magic:
		return LoadV2(data, d)
	case imageMagic:
		if d.Name == "ESP8266" {
			return LoadV1(data, d)
		}
		return LoadExtended(data, d)
	default:
		return nil, errShortImage()
	}
}

// Save serializes img back to bytes using the codec matching its Version
// and variant.
func Save(img *Image) ([]byte, error) {
	if img.Version == 2 {
		return SaveV2(img)
	}
	if img.Variant.Name == "ESP8266" {
		return SaveV1(img)
	}
	return SaveExtended(img)
}
