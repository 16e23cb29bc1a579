//go:build !windows

package server

import (
	"os"
	"os/signal"
	"syscall"
)

// reloadSignals delivers SIGHUP on the returned channel until stop is called.
func reloadSignals() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	return ch, func() { signal.Stop(ch) }
}
