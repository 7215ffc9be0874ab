package espflash

// Options configures WriteFlash, mirroring the flat FlashOpts struct
// mongoose-os/mos/cli/flash.go builds from its CLI flags, minus the flag
// binding itself (interactive/CLI dispatch is out of scope here).
type Options struct {
	BaudRate       int
	NoStub         bool
	Compress       *bool // nil = default: compressed unless NoStub
	EraseAll       bool
	MinimizeWrites bool
	Reboot         bool
	Encrypt        bool

	// DeflFinishExitsLoader overrides the ROM-mode flash_defl_finish skip
	// (spec's defl_finish_exits_loader policy question): false keeps
	// esptool.py's default of skipping FLASH_DEFL_END on ROM unless
	// rebooting; true sends it anyway, exiting the bootloader.
	DeflFinishExitsLoader bool
}

// Option mutates an Options under construction.
type Option func(*Options)

// NewOptions builds an Options with the teacher's defaults (115200 baud,
// reboot into firmware after writing) applied, then layers opts on top.
func NewOptions(opts ...Option) Options {
	o := Options{BaudRate: 115200, Reboot: true}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func WithBaudRate(baud int) Option { return func(o *Options) { o.BaudRate = baud } }
func WithoutStub() Option          { return func(o *Options) { o.NoStub = true } }
func WithCompression(enabled bool) Option {
	return func(o *Options) { o.Compress = &enabled }
}
func WithEraseAll() Option       { return func(o *Options) { o.EraseAll = true } }
func WithMinimizeWrites() Option { return func(o *Options) { o.MinimizeWrites = true } }
func WithoutReboot() Option      { return func(o *Options) { o.Reboot = false } }
func WithEncryption() Option     { return func(o *Options) { o.Encrypt = true } }
func WithDeflFinishExitsLoader() Option {
	return func(o *Options) { o.DeflFinishExitsLoader = true }
}

func (o Options) compress() bool {
	if o.Compress != nil {
		return *o.Compress
	}
	return !o.NoStub
}
