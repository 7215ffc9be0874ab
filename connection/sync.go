package connection

import (
	"time"

	"espflash/errs"
	"espflash/protocol"
)

const (
	syncTimeout      = 100 * time.Millisecond
	syncRetries      = 5
	drainAfterSync   = 7
)

// attemptSync sends the SYNC handshake (up to syncRetries times until one
// is answered) and, on a reply, drains up to 7
// further replies to decide sync_stub_detected (spec §4.4): a ROM reply to
// SYNC carries a nonzero value; a still-resident stub's replies are all
// zero, including the flood of duplicate replies the ROM's UART queue
// emits right after sync. Draining stops early (not an error) once reads
// start timing out.
func attemptSync(tr *protocol.Transport) (stubDetected bool, err error) {
	var lastErr error
	for i := 0; i < syncRetries; i++ {
		op := protocol.Sync
		resp, serr := tr.Command(&op, protocol.SyncPayload(), 0, true, syncTimeout)
		if serr != nil {
			lastErr = serr
			continue
		}
		allZero := resp.Value == 0
		for j := 0; j < drainAfterSync; j++ {
			extra, derr := tr.Command(nil, nil, 0, true, syncTimeout)
			if derr != nil {
				break
			}
			if extra.Value != 0 {
				allZero = false
			}
		}
		return allZero, nil
	}
	return false, errs.Wrap(errs.Timeout, "sync", lastErr)
}

// sync runs the full reset+sync retry policy (spec §4.4): alternate
// non-delayed and delayed reset attempts up to maxAttempts times.
func sync(port protocol.Port, tr *protocol.Transport, maxAttempts int) (stubDetected bool, err error) {
	modes := []ResetMode{DefaultReset, ESP32R0Delay}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		mode := modes[attempt%len(modes)]
		if err := applyReset(port, mode); err != nil {
			return false, errs.Wrap(errs.Io, "sync", err)
		}
		_ = port.ResetInputBuffer()
		stubDetected, lastErr = attemptSync(tr)
		if lastErr == nil {
			return stubDetected, nil
		}
	}
	return false, errs.Wrap(errs.Timeout, "sync", lastErr)
}
