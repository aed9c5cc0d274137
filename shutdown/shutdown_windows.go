//go:build windows

package shutdown

import (
	"os"
	"os/signal"
)

func notify(ch chan os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
