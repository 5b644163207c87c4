package core

import "golang.org/x/sys/unix"

// Send filter: gathered non-blocking writev with partial-write
// accounting and a send timeout armed across suspensions.

func sendOpen(c *client) int { return chFwd }

func sendClose(c *client) {
	c.w.timer(&c.send.timer, 0, nil)
}

func sendExpired(c *client) {
	c.log.Debug().Msg("send timeout")
	c.destroy()
}

func sendProcess(c *client) int {
	if !c.sendInit {
		c.sendInit = true
		if c.w.conf.Send.TCPNodelay {
			if err := unix.SetsockoptInt(c.sk, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
				c.log.Warn().Err(err).Msg("setsockopt(TCP_NODELAY)")
			}
		}
	}

	if len(c.input) != 0 {
		c.send.iov[0] = c.input
		c.send.iov[1] = nil
		c.send.iovN = 1
		c.input = nil
	}

	for c.send.iovN != 0 {
		n, err := unix.Writev(c.sk, c.send.iov[:c.send.iovN])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				c.w.timer(&c.send.timer, c.w.conf.Send.TimeoutSec*1000, func() { sendExpired(c) })
				if !c.armWrite() {
					return chErr
				}
				return chAsync
			}
			c.log.Warn().Err(err).Msg("socket writev")
			return chErr
		}

		c.log.Debug().Int("n", n).Msg("writev")
		c.send.transferred += uint64(n)
		c.shiftIov(n)
	}

	c.w.timer(&c.send.timer, 0, nil)
	if c.respDone {
		return chDone
	}
	return chBack
}

// shiftIov consumes n sent bytes off the front of the iovec.
func (c *client) shiftIov(n int) {
	for n > 0 && c.send.iovN > 0 {
		head := c.send.iov[0]
		if n < len(head) {
			c.send.iov[0] = head[n:]
			return
		}
		n -= len(head)
		c.send.iov[0] = c.send.iov[1]
		c.send.iov[1] = nil
		c.send.iovN--
	}
	if c.send.iovN > 0 && len(c.send.iov[0]) == 0 {
		c.send.iov[0] = c.send.iov[1]
		c.send.iov[1] = nil
		c.send.iovN--
	}
}
