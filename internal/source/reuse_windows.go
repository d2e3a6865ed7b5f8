//go:build windows

package source

import (
	"syscall"

	"golang.org/x/sys/windows"
)

func reuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error

	if err := c.Control(func(fd uintptr) {
		sockErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}

	return sockErr
}
