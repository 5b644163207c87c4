//go:build darwin

package core

import "golang.org/x/sys/unix"

// acceptConn accepts one pending connection and makes it non-blocking
// (no accept4 on Darwin).
func acceptConn(lfd int) (int, unix.Sockaddr, error) {
	nfd, sa, err := unix.Accept(lfd)
	if err != nil {
		return -1, nil, err
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return -1, nil, err
	}
	unix.CloseOnExec(nfd)
	return nfd, sa, nil
}
