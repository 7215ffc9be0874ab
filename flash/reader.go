package flash

import (
	"crypto/md5"
	"time"

	"espflash/errs"
	"espflash/protocol"
)

// ProgressFunc reports cumulative bytes read against the total. Read calls
// it after each chunk that ends on a 1 KiB boundary or completes the read,
// and once more after the last chunk; ReadSlow calls it after every request.
type ProgressFunc func(read, total int)

// Read implements spec §4.7's stub read path: issue READ_FLASH, then drain
// framed chunks, acknowledging each with a running byte count, and verify
// the trailing MD5 digest frame. Only the stub supports this; on a ROM
// connection Read falls back to ReadSlow.
func (w *Writer) Read(offset, length uint32, progress ProgressFunc) ([]byte, error) {
	if !w.Conn.IsStub {
		return w.ReadSlow(offset, length, progress)
	}

	body := make([]byte, 16)
	putU32(body[0:4], offset)
	putU32(body[4:8], length)
	putU32(body[8:12], sectorSize)
	putU32(body[12:16], 64)
	if _, err := w.Conn.Transport.CheckCommand("read_flash", protocol.ReadFlash, body, 0, 0); err != nil {
		return nil, err
	}

	data := make([]byte, 0, length)
	for uint32(len(data)) < length {
		chunk, err := w.Conn.Transport.ReadRawPacket(0)
		if err != nil {
			return nil, err
		}
		data = append(data, chunk...)
		if uint32(len(data)) < length && len(chunk) < sectorSize {
			return nil, errs.New(errs.Protocol, "read_flash")
		}
		ack := make([]byte, 4)
		putU32(ack, uint32(len(data)))
		if _, err := w.Conn.Port.Write(ack); err != nil {
			return nil, errs.Wrap(errs.Io, "read_flash", err)
		}
		if progress != nil && (len(data)%1024 == 0 || uint32(len(data)) == length) {
			progress(len(data), int(length))
		}
	}
	if progress != nil {
		progress(len(data), int(length))
	}
	if uint32(len(data)) > length {
		return nil, errs.New(errs.Protocol, "read_flash")
	}

	digest, err := w.Conn.Transport.ReadRawPacket(0)
	if err != nil {
		return nil, err
	}
	if len(digest) != 16 {
		return nil, errs.New(errs.Protocol, "read_flash")
	}
	sum := md5.Sum(data)
	for i := range sum {
		if sum[i] != digest[i] {
			return nil, errs.New(errs.Verify, "read_flash")
		}
	}
	return data, nil
}

// ReadSlow implements spec §4.7's ROM-only READ_FLASH_SLOW path: 64 bytes
// per request, one request per chunk.
func (w *Writer) ReadSlow(offset, length uint32, progress ProgressFunc) ([]byte, error) {
	const chunkSize = 64
	data := make([]byte, 0, length)
	for uint32(len(data)) < length {
		want := uint32(chunkSize)
		if remaining := length - uint32(len(data)); remaining < want {
			want = remaining
		}
		body := make([]byte, 8)
		putU32(body[0:4], offset+uint32(len(data)))
		putU32(body[4:8], want)
		chunk, err := w.Conn.Transport.CheckCommand("read_flash_slow", protocol.ReadFlashSlow, body, 0, 0)
		if err != nil {
			return nil, err
		}
		if uint32(len(chunk)) > want {
			chunk = chunk[:want]
		}
		data = append(data, chunk...)
		if progress != nil {
			progress(len(data), int(length))
		}
	}
	return data, nil
}

// MD5Sum implements spec §4.7's SPI_FLASH_MD5, accepting either the
// 16-byte binary digest or the 32-byte ASCII-hex digest some variants
// return.
func (w *Writer) MD5Sum(addr, size uint32) (string, error) {
	body := make([]byte, 16)
	putU32(body[0:4], addr)
	putU32(body[4:8], size)
	const md5TimeoutPerMB = 8 * time.Second
	timeout := timeoutPerMB(md5TimeoutPerMB, size)
	res, err := w.Conn.Transport.CheckCommand("flash_md5sum", protocol.SpiFlashMD5, body, 0, timeout)
	if err != nil {
		return "", err
	}
	switch len(res) {
	case 32:
		return string(res), nil
	case 16:
		return hexify(res), nil
	default:
		return "", errs.New(errs.Protocol, "flash_md5sum")
	}
}

func hexify(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0xF]
	}
	return string(out)
}
