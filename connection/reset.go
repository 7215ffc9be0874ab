package connection

import (
	"time"

	"espflash/protocol"
)

// ResetMode selects a DTR/RTS reset sequence (spec §4.4). DTR/RTS are
// active-low lines wired to the target's GPIO0 (boot mode select) and EN
// (chip reset) pins respectively, the same wiring the teacher's hardReset
// family of methods assumes.
type ResetMode int

const (
	DefaultReset ResetMode = iota
	ESP32R0Delay
	NoReset
	NoResetNoSync
)

// applyReset drives the reset sequence named by mode. It returns quickly
// for NoReset/NoResetNoSync, which perform no line manipulation at all.
func applyReset(port protocol.Port, mode ResetMode) error {
	switch mode {
	case NoReset, NoResetNoSync:
		return nil
	case ESP32R0Delay:
		return esp32r0DelayReset(port)
	default:
		return defaultReset(port)
	}
}

// defaultReset: RTS low (reset) for 100ms with DTR high (boot-to-flash);
// release RTS, then after 50ms release DTR. Grounded on the teacher's
// hardReset, generalized to the exact timings spec.md §4.4 specifies.
func defaultReset(port protocol.Port) error {
	if err := port.SetDTR(true); err != nil {
		return err
	}
	if err := port.SetRTS(true); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	if err := port.SetRTS(false); err != nil {
		return err
	}
	time.Sleep(50 * time.Millisecond)
	return port.SetDTR(false)
}

// esp32r0DelayReset holds RTS low for 1.2s and waits 0.4s after release, to
// exploit the documented early-silicon watchdog bug (spec §4.4).
func esp32r0DelayReset(port protocol.Port) error {
	if err := port.SetDTR(true); err != nil {
		return err
	}
	if err := port.SetRTS(true); err != nil {
		return err
	}
	time.Sleep(1200 * time.Millisecond)
	if err := port.SetRTS(false); err != nil {
		return err
	}
	time.Sleep(400 * time.Millisecond)
	return port.SetDTR(false)
}

// HardReset toggles RTS low for 100ms to reboot the target into its normal
// firmware (spec §4.11).
func HardReset(port protocol.Port) error {
	if err := port.SetRTS(true); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	return port.SetRTS(false)
}
