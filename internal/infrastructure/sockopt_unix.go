//go:build !windows

package infrastructure

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func setBroadcast(network, address string, c syscall.RawConn) error {
	return setSockoptInt(c, unix.SO_BROADCAST)
}

func setReuseAddr(network, address string, c syscall.RawConn) error {
	return setSockoptInt(c, unix.SO_REUSEADDR)
}

func setSockoptInt(c syscall.RawConn, opt int) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, opt, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
