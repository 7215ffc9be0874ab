package flash

import (
	"espflash/errs"
)

// CheckEncryption implements esptool.py's write_flash preflight for
// encrypted writes (supplementing spec §4.7, which names encrypted
// writes but not this guard): if the variant exposes no encryption eFuse
// at all (ESP8266), encrypted writes are simply unsupported. Otherwise,
// refuse when the target's eFuse has disabled manual (UART) encrypted
// download, since flashing would either fail or corrupt the image.
func (w *Writer) CheckEncryption() error {
	d := w.Conn.Variant
	if d.EncryptionDisableReg == 0 {
		return errs.New(errs.UnsupportedCommand, "check_encryption")
	}
	reg, err := w.Conn.ReadReg(d.EncryptionDisableReg)
	if err != nil {
		return err
	}
	if reg&d.EncryptionDisableMask != 0 {
		return errs.New(errs.Verify, "check_encryption")
	}
	return nil
}
