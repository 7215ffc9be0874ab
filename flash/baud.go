package flash

import (
	"time"

	"espflash/errs"
	"espflash/protocol"
)

// ChangeBaud implements spec §4.7's CHANGE_BAUDRATE: stubs must echo the
// previous baud rate as the second argument so the ROM-side UART divider
// math stays consistent; after the exchange the local port is
// reconfigured and any transient garbage discarded.
func (w *Writer) ChangeBaud(newBaud int) error {
	oldBaud := 0
	if w.Conn.IsStub {
		oldBaud = w.Conn.Baud
	}
	body := make([]byte, 8)
	putU32(body[0:4], uint32(newBaud))
	putU32(body[4:8], uint32(oldBaud))
	op := protocol.ChangeBaudrate
	if _, err := w.Conn.Transport.Command(&op, body, 0, true, 0); err != nil {
		return err
	}
	if err := w.Conn.Port.Reconfigure(newBaud); err != nil {
		return errs.Wrap(errs.Io, "change_baud", err)
	}
	w.Conn.Baud = newBaud
	time.Sleep(50 * time.Millisecond)
	return w.Conn.Port.ResetInputBuffer()
}
