package connection

import (
	"time"

	"espflash/chip"
	"espflash/errs"
	"espflash/protocol"

	"github.com/golang/glog"
	"github.com/google/uuid"
)

// Options configures Connect.
type Options struct {
	Baud               int
	MaxSyncAttempts    int           // default 7, mirrors the teacher's enterBootloader's attempt ladder
	Reporter           Reporter
	AssertVariant      string        // if set, skip auto-detect and require this variant name
	AfterResetSettle   time.Duration // extra sleep at the start of Connect, before the first reset; not repeated between attempts, 0 = none
}

func (o *Options) setDefaults() {
	if o.Baud == 0 {
		o.Baud = 115200
	}
	if o.MaxSyncAttempts == 0 {
		o.MaxSyncAttempts = 7
	}
	if o.Reporter == nil {
		o.Reporter = NopReporter{}
	}
}

// Connection is the mutable runtime state of a live session (spec Data
// Model §3): the owned port, the variant in effect, and the stub/secure
// flags that change the wire format as the session progresses.
type Connection struct {
	Port      protocol.Port
	Transport *protocol.Transport
	Baud      int
	Variant   chip.Descriptor
	IsStub    bool
	SecureDownloadMode bool
	SyncStubDetected   bool
	SessionID uuid.UUID
	Reporter  Reporter
}

// Connect opens the sync handshake on an already-open port and returns a
// live Connection. It performs the reset+sync retry ladder (connection.sync),
// chip auto-detection (spec §4.3), and the post-connect magic re-check
// (spec §4.4).
func Connect(port protocol.Port, opts Options) (*Connection, error) {
	opts.setDefaults()
	if opts.AfterResetSettle > 0 {
		time.Sleep(opts.AfterResetSettle)
	}

	tr := protocol.NewTransport(port)
	tr.StatusLen = 4 // ROM default until a variant says otherwise

	sessionID := uuid.New()
	opts.Reporter.Log("connecting session " + sessionID.String())

	stubDetected, err := sync(port, tr, opts.MaxSyncAttempts)
	if err != nil {
		return nil, errs.Wrap(errs.Timeout, "connect", err)
	}

	c := &Connection{
		Port:             port,
		Transport:        tr,
		Baud:             opts.Baud,
		SyncStubDetected: stubDetected,
		SessionID:        sessionID,
		Reporter:         opts.Reporter,
	}

	if opts.AssertVariant != "" {
		d, ok := chip.ByName(opts.AssertVariant)
		if !ok {
			return nil, errs.New(errs.UnknownChip, "connect")
		}
		c.Variant = d
		c.Transport.StatusLen = d.StatusLen
		return c, nil
	}

	magic, err := c.ReadReg(chip.ChipDetectMagicRegAddr())
	if err != nil {
		if errs.Is(err, errs.UnsupportedCommand) {
			c.SecureDownloadMode = true
			glog.Infof("connect: secure download mode, caller must assert variant")
			return c, nil
		}
		return nil, err
	}

	d, derr := chip.Detect(magic)
	if derr != nil {
		return nil, derr
	}
	c.Variant = d
	c.Transport.StatusLen = d.StatusLen

	// Post-connect sanity re-check (spec §4.4): re-read and compare.
	magic2, err := c.ReadReg(chip.ChipDetectMagicRegAddr())
	if err == nil && magic2 != magic {
		if _, derr2 := chip.Detect(magic2); derr2 == nil {
			return nil, errs.New(errs.WrongChip, "connect")
		}
		glog.Warningf("connect: detect magic changed on re-read (0x%08x -> 0x%08x), ignoring", magic, magic2)
	}

	opts.Reporter.Log("detected " + d.Name)
	return c, nil
}

// ReadReg implements spec §4.5's read_reg.
func (c *Connection) ReadReg(addr uint32) (uint32, error) {
	body := make([]byte, 4)
	putU32LE(body, addr)
	data, err := c.Transport.CheckCommand("read_reg", protocol.ReadReg, body, 0, 0)
	if err != nil {
		return 0, err
	}
	return getU32LE(data), nil
}

// WriteReg implements spec §4.5's write_reg.
func (c *Connection) WriteReg(addr, value, mask uint32, delayUs, delayAfterUs uint32) error {
	body := make([]byte, 16)
	putU32LE(body[0:4], addr)
	putU32LE(body[4:8], value)
	putU32LE(body[8:12], mask)
	putU32LE(body[12:16], delayUs)
	if delayAfterUs > 0 {
		extra := make([]byte, 16)
		putU32LE(extra[0:4], c.Variant.Regs.UARTDateCode)
		putU32LE(extra[12:16], delayAfterUs)
		body = append(body, extra...)
	}
	_, err := c.Transport.CheckCommand("write_reg", protocol.WriteReg, body, 0, 0)
	return err
}

// UpdateReg implements spec §4.5's update_reg: read-modify-write with
// newVal shifted to the LSB of mask.
func (c *Connection) UpdateReg(addr, mask, newVal uint32) error {
	cur, err := c.ReadReg(addr)
	if err != nil {
		return err
	}
	shift := lsbShift(mask)
	merged := (cur &^ mask) | ((newVal << shift) & mask)
	return c.WriteReg(addr, merged, 0xFFFFFFFF, 0, 0)
}

func lsbShift(mask uint32) uint32 {
	if mask == 0 {
		return 0
	}
	var shift uint32
	for mask&1 == 0 {
		mask >>= 1
		shift++
	}
	return shift
}

// Close releases the port. It is safe to call after a failed Connect.
func (c *Connection) Close() error {
	if c == nil || c.Port == nil {
		return nil
	}
	return c.Port.Close()
}

func putU32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getU32LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
