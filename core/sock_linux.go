//go:build linux

package core

import "golang.org/x/sys/unix"

// acceptConn accepts one pending connection, already non-blocking.
func acceptConn(lfd int) (int, unix.Sockaddr, error) {
	return unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
}
