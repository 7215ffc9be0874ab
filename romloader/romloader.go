// Package romloader implements RAM download (spec C5) and the stub
// lifecycle (spec C6): uploading the opaque per-variant stub payload and
// switching the connection to the richer stub command set. Grounded
// directly on esptool.py's mem_begin/mem_block/mem_finish/run_stub, since
// no example in the retrieval pack implements a RAM-resident stub loader
// of its own.
package romloader

import (
	"time"

	"espflash/connection"
	"espflash/errs"
	"espflash/protocol"
)

const stubBlockSize = 0x1800

// MemBegin implements spec §4.5's mem_begin. In stub mode it refuses a RAM
// range overlapping the resident stub's text/data (Overlap).
func MemBegin(c *connection.Connection, size uint32, numBlocks uint32, blockSize uint32, loadAddr uint32) error {
	if c.IsStub && c.Variant.Stub != nil {
		if rangesOverlap(loadAddr, size, c.Variant.Stub.TextStart, uint32(len(c.Variant.Stub.Text))) ||
			rangesOverlap(loadAddr, size, c.Variant.Stub.DataStart, uint32(len(c.Variant.Stub.Data))) {
			return errs.New(errs.Overlap, "mem_begin")
		}
	}
	body := make([]byte, 16)
	putU32(body[0:4], size)
	putU32(body[4:8], numBlocks)
	putU32(body[8:12], blockSize)
	putU32(body[12:16], loadAddr)
	_, err := c.Transport.CheckCommand("mem_begin", protocol.MemBegin, body, 0, 0)
	return err
}

// MemBlock implements spec §4.5's mem_block: one checksummed chunk.
func MemBlock(c *connection.Connection, data []byte, seq uint32) error {
	hdr := make([]byte, 16)
	putU32(hdr[0:4], uint32(len(data)))
	putU32(hdr[4:8], seq)
	body := append(hdr, data...)
	cs := protocol.Checksum(data, 0xEF)
	_, err := c.Transport.CheckCommand("mem_block", protocol.MemData, body, uint32(cs), 0)
	return err
}

// MemFinish implements spec §4.5's mem_finish. In ROM mode it uses a short
// timeout and ignores errors, because the target may reset the UART
// before replying (spec §4.5, §9's note on modeling this as an explicit
// policy flag rather than an implicit catch).
func MemFinish(c *connection.Connection, entry uint32, ignoreErrorsShortTimeout bool) error {
	body := make([]byte, 8)
	if entry == 0 {
		putU32(body[0:4], 1) // run-no-entry flag
	}
	putU32(body[4:8], entry)
	op := protocol.MemEnd
	timeout := time.Duration(0)
	if ignoreErrorsShortTimeout {
		timeout = 50 * time.Millisecond
	}
	_, err := c.Transport.Command(&op, body, 0, true, timeout)
	if ignoreErrorsShortTimeout {
		return nil
	}
	return err
}

// DownloadToRAM runs the full mem_begin/mem_block*/mem_finish sequence for
// one blob.
func DownloadToRAM(c *connection.Connection, data []byte, loadAddr uint32, blockSize uint32) error {
	numBlocks := (uint32(len(data)) + blockSize - 1) / blockSize
	if numBlocks == 0 {
		numBlocks = 1
	}
	if err := MemBegin(c, uint32(len(data)), numBlocks, blockSize, loadAddr); err != nil {
		return err
	}
	for seq := uint32(0); seq*blockSize < uint32(len(data)); seq++ {
		start := seq * blockSize
		end := start + blockSize
		if end > uint32(len(data)) {
			end = uint32(len(data))
		}
		if err := MemBlock(c, data[start:end], seq); err != nil {
			return err
		}
	}
	return nil
}

// UploadStub implements spec C6: upload the variant's opaque stub payload
// via the RAM-download protocol with a fixed 0x1800 block size, then wait
// for the literal "OHAI" handshake. If the connection already detected a
// resident stub at sync time, this is skipped entirely (spec §4.6).
func UploadStub(c *connection.Connection) error {
	if c.SyncStubDetected {
		c.IsStub = true
		c.Transport.StatusLen = 2
		return nil
	}
	stub := c.Variant.Stub
	if stub == nil {
		return errs.New(errs.StubStart, "upload_stub")
	}

	if len(stub.Text) > 0 {
		if err := DownloadToRAM(c, stub.Text, stub.TextStart, stubBlockSize); err != nil {
			return err
		}
	}
	if len(stub.Data) > 0 {
		if err := DownloadToRAM(c, stub.Data, stub.DataStart, stubBlockSize); err != nil {
			return err
		}
	}
	if err := MemFinish(c, stub.Entry, !c.IsStub); err != nil {
		return err
	}

	hello, err := c.Transport.ReadLiteral(4, 500*time.Millisecond)
	if err != nil || string(hello) != "OHAI" {
		return errs.New(errs.StubStart, "upload_stub")
	}

	c.IsStub = true
	c.Transport.StatusLen = 2
	return nil
}

func rangesOverlap(aStart, aLen, bStart, bLen uint32) bool {
	if aLen == 0 || bLen == 0 {
		return false
	}
	aEnd, bEnd := aStart+aLen, bStart+bLen
	return aStart < bEnd && bStart < aEnd
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
