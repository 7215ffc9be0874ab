package protocol

import (
	"time"

	"espflash/errs"
	"espflash/slipframe"

	"github.com/golang/glog"
)

const (
	maxMismatchedRetries = 100
	maxCommandTimeout    = 240 * time.Second
	DefaultReadTimeout   = 3 * time.Second
	DefaultWriteTimeout  = 10 * time.Second
)

// Transport drives the command/response exchange (spec C2) over a framed
// byte stream. It owns neither retry policy beyond what spec.md mandates
// nor chip-variant knowledge; StatusLen is set by the caller (connection
// layer) whenever the stub/ROM state changes.
type Transport struct {
	Port      Port
	reader    *slipframe.Reader
	StatusLen int // 2 or 4; set by the connection layer
}

// NewTransport wraps an open port. StatusLen defaults to 4 (ROM, newer
// variants); the connection layer corrects it once the variant is known.
func NewTransport(port Port) *Transport {
	return &Transport{Port: port, reader: slipframe.NewReader(portReader{port}), StatusLen: 4}
}

// portReader adapts Port's Read method to io.Reader for slipframe.Reader.
type portReader struct{ p Port }

func (pr portReader) Read(b []byte) (int, error) { return pr.p.Read(b) }

func clampTimeout(t time.Duration) time.Duration {
	if t <= 0 {
		return DefaultReadTimeout
	}
	if t > maxCommandTimeout {
		return maxCommandTimeout
	}
	return t
}

// Command implements spec §4.2's command(). op == nil means "read only";
// waitResponse == false returns immediately after the write, without
// reading any reply.
func (t *Transport) Command(op *Opcode, body []byte, checksum uint32, waitResponse bool, timeout time.Duration) (Response, error) {
	opName := "read"
	if op != nil {
		opName = "command"
		req := Request{Op: *op, Body: body, Checksum: checksum}
		if err := t.Port.SetWriteTimeout(DefaultWriteTimeout); err != nil {
			return Response{}, errs.Wrap(errs.Io, opName, err)
		}
		frame := slipframe.Encode(req.Encode())
		if _, err := t.Port.Write(frame); err != nil {
			return Response{}, errs.Wrap(errs.Io, opName, err)
		}
	}
	if !waitResponse {
		return Response{}, nil
	}

	to := clampTimeout(timeout)
	if err := t.Port.SetReadTimeout(to); err != nil {
		return Response{}, errs.Wrap(errs.Io, opName, err)
	}

	for attempt := 0; attempt < maxMismatchedRetries; attempt++ {
		raw, err := t.reader.ReadPacket()
		if err != nil {
			return Response{}, errs.Wrap(errs.Timeout, opName, err)
		}
		resp, derr := DecodeResponse(raw, t.StatusLen)
		if derr != nil {
			return Response{}, derr
		}
		if op != nil && resp.Op != *op {
			if IsInvalidMessage(resp.Status) {
				_ = t.Port.ResetInputBuffer()
				return Response{}, errs.New(errs.UnsupportedCommand, opName)
			}
			glog.V(2).Infof("command: discarding mismatched reply op=0x%02x want=0x%02x", resp.Op, *op)
			continue
		}
		return resp, nil
	}
	return Response{}, errs.New(errs.Protocol, opName)
}

// CheckCommand implements spec §4.2's check_command(): run Command, then
// inspect the status trailer and return the data payload (or Value when
// there is no data).
func (t *Transport) CheckCommand(desc string, op Opcode, body []byte, checksum uint32, timeout time.Duration) ([]byte, error) {
	resp, err := t.Command(&op, body, checksum, true, timeout)
	if err != nil {
		return nil, err
	}
	if len(resp.Status) < t.StatusLen {
		return nil, errs.New(errs.Protocol, desc)
	}
	if IsFailure(resp.Status) {
		return nil, errs.WithStatus(desc, resp.Status)
	}
	if len(resp.Body) > 0 {
		return resp.Body, nil
	}
	out := make([]byte, 4)
	putUint32LE(out, resp.Value)
	return out, nil
}

// ReadRawPacket reads one SLIP-framed packet without interpreting it as a
// command response (no direction/op/status parsing). Used for the stub's
// flash-read data packets and trailing MD5 digest frame (spec §4.7),
// which are plain framed payloads rather than response-protocol replies.
func (t *Transport) ReadRawPacket(timeout time.Duration) ([]byte, error) {
	if err := t.Port.SetReadTimeout(clampTimeout(timeout)); err != nil {
		return nil, errs.Wrap(errs.Io, "read_raw_packet", err)
	}
	raw, err := t.reader.ReadPacket()
	if err != nil {
		return nil, errs.Wrap(errs.Timeout, "read_raw_packet", err)
	}
	return raw, nil
}

// ReadLiteral reads exactly n unframed bytes directly from the port,
// bypassing SLIP decoding. Used for the stub's "OHAI" handshake token
// (spec §4.6), the one place in the protocol that isn't packet-framed.
func (t *Transport) ReadLiteral(n int, timeout time.Duration) ([]byte, error) {
	if err := t.Port.SetReadTimeout(clampTimeout(timeout)); err != nil {
		return nil, errs.Wrap(errs.Io, "read_literal", err)
	}
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		k, err := t.Port.Read(buf[:n-len(out)])
		if k > 0 {
			out = append(out, buf[:k]...)
		}
		if err != nil {
			return out, errs.Wrap(errs.Timeout, "read_literal", err)
		}
		if k == 0 {
			return out, errs.New(errs.Timeout, "read_literal")
		}
	}
	return out, nil
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
