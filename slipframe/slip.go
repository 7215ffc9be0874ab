// Package slipframe implements the byte-stuffed packet framing used on the
// wire beneath the command protocol: each packet is delimited by 0xC0 and,
// inside the body, 0xC0 is escaped as 0xDB 0xDC and 0xDB as 0xDB 0xDD.
package slipframe

import (
	"io"

	"espflash/errs"
)

const (
	End    byte = 0xC0
	Esc    byte = 0xDB
	EscEnd byte = 0xDC
	EscEsc byte = 0xDD
)

// Encode frames a single packet body. It is a pure transformation: it does
// not touch any port and never flushes.
func Encode(body []byte) []byte {
	out := make([]byte, 0, len(body)+2)
	out = append(out, End)
	for _, b := range body {
		switch b {
		case End:
			out = append(out, Esc, EscEnd)
		case Esc:
			out = append(out, Esc, EscEsc)
		default:
			out = append(out, b)
		}
	}
	out = append(out, End)
	return out
}

// Decode reverses Encode on a single already-delimited frame (including or
// excluding its leading/trailing 0xC0 bytes).
func Decode(frame []byte) ([]byte, error) {
	frame = trimDelimiters(frame)
	out := make([]byte, 0, len(frame))
	inEscape := false
	for _, b := range frame {
		switch {
		case inEscape:
			switch b {
			case EscEnd:
				out = append(out, End)
			case EscEsc:
				out = append(out, Esc)
			default:
				return nil, errs.New(errs.Framing, "slip_decode")
			}
			inEscape = false
		case b == Esc:
			inEscape = true
		default:
			out = append(out, b)
		}
	}
	if inEscape {
		return nil, errs.New(errs.Framing, "slip_decode")
	}
	return out, nil
}

func trimDelimiters(frame []byte) []byte {
	start, end := 0, len(frame)
	if start < end && frame[start] == End {
		start++
	}
	if end > start && frame[end-1] == End {
		end--
	}
	return frame[start:end]
}

// Reader pulls one complete SLIP packet at a time from a byte stream. It
// deliberately reads exactly one byte per underlying Read call rather than
// buffering ahead (mirroring esptool.py's slip_reader, which is equally
// careful not to over-consume): the same stream later carries the
// unframed "OHAI" stub handshake (spec §4.6), and a buffered reader would
// have already swallowed those bytes while looking for the prior packet's
// trailing delimiter.
type Reader struct {
	r   io.Reader
	one [1]byte
}

// NewReader wraps r (typically a serial port) in a packet-at-a-time reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (sr *Reader) readByte() (byte, error) {
	n, err := sr.r.Read(sr.one[:])
	if n == 1 {
		return sr.one[0], nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return 0, err
}

// ReadPacket reads up to and including the next End delimiter, skipping any
// leading delimiters (consecutive 0xC0s, or a stray one left over from the
// previous packet's trailing delimiter), and returns the decoded body.
//
// A read that returns zero bytes before a delimiter is reached signals a
// port timeout; this is surfaced as errs.Timeout, distinguishing "timed out
// waiting for the first byte of a new packet" (partial == nil) from "timed
// out mid-packet" (partial non-empty) only by the caller's own bookkeeping,
// since both cases reach here as io.EOF/timeout from the underlying reader.
func (sr *Reader) ReadPacket() ([]byte, error) {
	// Skip any leading End bytes (the previous packet's trailing
	// delimiter, or idle-line noise).
	var b byte
	var err error
	for {
		b, err = sr.readByte()
		if err != nil {
			return nil, errs.Wrap(errs.Timeout, "slip_read", err)
		}
		if b != End {
			break
		}
	}

	raw := make([]byte, 0, 256)
	raw = append(raw, b)
	for {
		b, err = sr.readByte()
		if err != nil {
			return nil, errs.Wrap(errs.Timeout, "slip_read", err)
		}
		if b == End {
			break
		}
		raw = append(raw, b)
	}
	return Decode(raw)
}
