package protocol

import "time"

// Port is the subset of byte-oriented full-duplex serial port behavior the
// protocol and connection layers need: baud, DTR, RTS, input flush, and
// configurable read/write timeouts. A go.bug.st/serial port is adapted to
// it by connection's port adapter; a fake implementation is used in tests.
type Port interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)

	SetReadTimeout(t time.Duration) error
	SetWriteTimeout(t time.Duration) error

	SetDTR(dtr bool) error
	SetRTS(rts bool) error

	ResetInputBuffer() error

	// Reconfigure changes the port's baud rate in place (the teacher's
	// SetBaudRate closes and reopens the port at a new rate; real
	// go.bug.st/serial ports instead support SetMode for this, which the
	// concrete adapter uses without closing the port).
	Reconfigure(baud int) error

	Close() error
}
