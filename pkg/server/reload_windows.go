//go:build windows

package server

import "os"

// reloadSignals returns a channel that never fires; Windows has no SIGHUP.
func reloadSignals() (<-chan os.Signal, func()) {
	return nil, func() {}
}
