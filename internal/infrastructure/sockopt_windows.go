//go:build windows

package infrastructure

import (
	"syscall"

	"golang.org/x/sys/windows"
)

func setBroadcast(network, address string, c syscall.RawConn) error {
	return setSockoptInt(c, windows.SO_BROADCAST)
}

func setReuseAddr(network, address string, c syscall.RawConn) error {
	return setSockoptInt(c, windows.SO_REUSEADDR)
}

func setSockoptInt(c syscall.RawConn, opt int) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, opt, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
