package espflash

import (
	"espflash/connection"

	"github.com/juju/errors"
)

// HardReset reboots the target into its normal firmware by toggling RTS
// (spec §4.11). Thin wrapper over connection.HardReset so callers only
// import this package for the full flashing lifecycle.
func HardReset(c *connection.Connection) error {
	return errors.Trace(connection.HardReset(c.Port))
}
