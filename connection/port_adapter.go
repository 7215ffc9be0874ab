// Package connection implements the connect/sync/reset layer (spec C4):
// opening the serial port, DTR/RTS reset sequencing, the SYNC handshake,
// and chip auto-detection. It is grounded on the teacher's esp32_flasher.go
// reset methods (hardReset/hardResetInverted/alternativeReset/
// aggressiveReset), generalized into the default_reset/esp32r0_delay/
// no_reset policy functions spec.md §4.4 names.
package connection

import (
	"time"

	"espflash/errs"
	"espflash/protocol"

	"go.bug.st/serial"
)

// serialAdapter satisfies protocol.Port over a real go.bug.st/serial.Port,
// the same library the teacher depends on directly.
type serialAdapter struct {
	port serial.Port
	mode serial.Mode
	name string
}

// OpenSerial opens portName at baud and wraps it as a protocol.Port, using
// the same 8N1 mode the teacher's NewESP32FlasherWithProgress hardcodes.
func OpenSerial(portName string, baud int) (protocol.Port, error) {
	mode := serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(portName, &mode)
	if err != nil {
		return nil, errs.Wrap(errs.Io, "open_serial", err)
	}
	return &serialAdapter{port: p, mode: mode, name: portName}, nil
}

func (a *serialAdapter) Write(p []byte) (int, error) { return a.port.Write(p) }
func (a *serialAdapter) Read(p []byte) (int, error)  { return a.port.Read(p) }

func (a *serialAdapter) SetReadTimeout(t time.Duration) error {
	return a.port.SetReadTimeout(t)
}

// SetWriteTimeout is a no-op: go.bug.st/serial has no write-deadline
// primitive, matching spec.md §5's "some transports may not support write
// timeouts, in which case the field is left unset."
func (a *serialAdapter) SetWriteTimeout(time.Duration) error { return nil }

func (a *serialAdapter) SetDTR(dtr bool) error { return a.port.SetDTR(dtr) }
func (a *serialAdapter) SetRTS(rts bool) error { return a.port.SetRTS(rts) }

func (a *serialAdapter) ResetInputBuffer() error { return a.port.ResetInputBuffer() }

// Reconfigure mirrors the teacher's SetBaudRate (closes and reopens at the
// new baud) conceptually, but uses go.bug.st/serial's in-place SetMode so
// the OS handle is not torn down mid-session.
func (a *serialAdapter) Reconfigure(baud int) error {
	a.mode.BaudRate = baud
	if err := a.port.SetMode(&a.mode); err != nil {
		return errs.Wrap(errs.Io, "reconfigure_baud", err)
	}
	time.Sleep(50 * time.Millisecond)
	return a.port.ResetInputBuffer()
}

func (a *serialAdapter) Close() error { return a.port.Close() }
