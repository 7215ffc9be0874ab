// Command espflash is a minimal runnable entry point for the flasher
// stack: open a serial port, connect, upload the stub, write one or more
// images, verify, and reset into firmware.
//
// Usage:
//
//	espflash <port> <baud> <addr>:<file.bin> [<addr>:<file.bin> ...]
//
// There is no flag library and no interactive dispatch here on purpose;
// picking ports, choosing options, and presenting progress belongs to
// whatever wraps this package, not to this binary.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"espflash/connection"
	"espflash/espflash"
	"espflash/romloader"

	"github.com/golang/glog"
	"github.com/juju/errors"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "espflash:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 3 {
		return errors.Errorf("usage: espflash <port> <baud> <addr>:<file.bin> [...]")
	}

	portName := args[0]
	baud, err := strconv.Atoi(args[1])
	if err != nil {
		return errors.Annotatef(err, "invalid baud rate %q", args[1])
	}

	images, err := parseImages(args[2:])
	if err != nil {
		return errors.Trace(err)
	}

	port, err := connection.OpenSerial(portName, 115200)
	if err != nil {
		return errors.Annotatef(err, "failed to open %s", portName)
	}
	defer port.Close()

	conn, err := connection.Connect(port, connection.Options{Baud: baud})
	if err != nil {
		return errors.Annotatef(err, "failed to connect to chip")
	}
	defer conn.Close()

	if !conn.IsStub {
		if err := romloader.UploadStub(conn); err != nil {
			return errors.Annotatef(err, "failed to upload stub")
		}
	}

	if baud != 115200 {
		if err := port.Reconfigure(baud); err != nil {
			return errors.Annotatef(err, "failed to switch baud rate")
		}
		conn.Baud = baud
	}

	opts := espflash.NewOptions(
		espflash.WithBaudRate(baud),
		espflash.WithCompression(true),
		espflash.WithMinimizeWrites(),
	)

	glog.Infof("writing %d image(s) to %s", len(images), conn.Variant.Name)
	if err := espflash.WriteFlash(conn, images, opts); err != nil {
		return errors.Annotatef(err, "flash write failed")
	}

	if err := espflash.HardReset(conn); err != nil {
		glog.Warningf("hard reset failed: %s", err)
	}
	return nil
}

func parseImages(specs []string) ([]espflash.FlashImage, error) {
	images := make([]espflash.FlashImage, 0, len(specs))
	for _, spec := range specs {
		addrStr, path, ok := strings.Cut(spec, ":")
		if !ok {
			return nil, errors.Errorf("invalid image spec %q, want <addr>:<file.bin>", spec)
		}
		addr, err := strconv.ParseUint(strings.TrimPrefix(addrStr, "0x"), 16, 32)
		if err != nil {
			return nil, errors.Annotatef(err, "invalid address in %q", spec)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to read %s", path)
		}
		images = append(images, espflash.FlashImage{
			Name: path,
			Addr: uint32(addr),
			Data: data,
		})
	}
	return images, nil
}
