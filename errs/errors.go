// Package errs defines the typed error taxonomy shared by every layer of
// espflash, from frame decoding up through image building.
package errs

import "fmt"

// Kind classifies why an operation against the target failed.
type Kind int

const (
	// Unknown is the zero value; never returned intentionally.
	Unknown Kind = iota
	// Io is an underlying port read/write failure.
	Io
	// Timeout is no or insufficient bytes before the deadline.
	Timeout
	// Framing is a violated packet delimiter or escape sequence.
	Framing
	// Protocol is a well-framed but malformed response.
	Protocol
	// Remote is a status reply the target returned with a nonzero status.
	Remote
	// UnsupportedCommand is the invalid-message sentinel from the target.
	UnsupportedCommand
	// UnknownChip is a detect-magic value matching no known variant.
	UnknownChip
	// WrongChip is a detected variant that differs from the asserted one.
	WrongChip
	// StubStart is a stub that failed to announce "OHAI".
	StubStart
	// Alignment is an address that violates a required alignment.
	Alignment
	// Overlap is a RAM range that overlaps the resident stub.
	Overlap
	// Overflow is an SPI command exceeding its byte/bit caps.
	Overflow
	// DuplicateMapping is two flash segments mapping to the same page.
	DuplicateMapping
	// ShaPatch is an invalid SHA-256 digest patch window.
	ShaPatch
	// SpiTimeout is the on-chip SPI controller not completing in time.
	SpiTimeout
	// Verify is a post-write MD5 mismatch.
	Verify
)

func (k Kind) String() string {
	switch k {
	case Io:
		return "io"
	case Timeout:
		return "timeout"
	case Framing:
		return "framing"
	case Protocol:
		return "protocol"
	case Remote:
		return "remote"
	case UnsupportedCommand:
		return "unsupported_command"
	case UnknownChip:
		return "unknown_chip"
	case WrongChip:
		return "wrong_chip"
	case StubStart:
		return "stub_start"
	case Alignment:
		return "alignment"
	case Overlap:
		return "overlap"
	case Overflow:
		return "overflow"
	case DuplicateMapping:
		return "duplicate_mapping"
	case ShaPatch:
		return "sha_patch"
	case SpiTimeout:
		return "spi_timeout"
	case Verify:
		return "verify"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every espflash component.
// Op names the failing operation (e.g. "flash_begin", "mem_finish") so a
// caller can log enough context to diagnose without parsing the message.
type Error struct {
	Kind        Kind
	Op          string
	StatusBytes []byte
	Cause       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("espflash: %s: %s", e.Op, e.Kind)
	if len(e.StatusBytes) > 0 {
		msg += fmt.Sprintf(" (status=% x)", e.StatusBytes)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a leaf error with no underlying cause.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap builds an error that carries an underlying cause.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// WithStatus builds a Remote error carrying the status trailer bytes.
func WithStatus(op string, status []byte) *Error {
	cp := make([]byte, len(status))
	copy(cp, status)
	return &Error{Kind: Remote, Op: op, StatusBytes: cp}
}

// Is reports whether err is an *Error of the given kind, unwrapping as
// needed (compatible with errors.Is/juju's errors.Cause chains).
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
