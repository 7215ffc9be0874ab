package protocol

import (
	"bytes"
	"io"
	"time"

	"espflash/slipframe"
)

// fakePort is a minimal in-memory Port for exercising Transport without a
// real serial device, in the style of the teacher's package having no
// tests at all to borrow a fixture from — this one is grounded directly
// on spec.md's Port capability list (§3) rather than any example file.
type fakePort struct {
	writes  [][]byte
	replies *bytes.Buffer
	closed  bool
}

func newFakePort() *fakePort {
	return &fakePort{replies: &bytes.Buffer{}}
}

// queueResponse appends a SLIP-framed response the next ReadPacket call(s)
// will see.
func (f *fakePort) queueResponse(body []byte) {
	f.replies.Write(slipframe.Encode(body))
}

func (f *fakePort) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	f.writes = append(f.writes, cp)
	return len(p), nil
}

func (f *fakePort) Read(p []byte) (int, error) {
	if f.replies.Len() == 0 {
		return 0, io.EOF
	}
	return f.replies.Read(p)
}

func (f *fakePort) SetReadTimeout(time.Duration) error  { return nil }
func (f *fakePort) SetWriteTimeout(time.Duration) error { return nil }
func (f *fakePort) SetDTR(bool) error                   { return nil }
func (f *fakePort) SetRTS(bool) error                   { return nil }
func (f *fakePort) ResetInputBuffer() error              { return nil }
func (f *fakePort) Reconfigure(int) error                { return nil }
func (f *fakePort) Close() error                         { f.closed = true; return nil }
