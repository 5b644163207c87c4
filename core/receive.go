package core

import "golang.org/x/sys/unix"

// Receive filter: non-blocking socket reads into the request buffer.

func recvOpen(c *client) int { return chFwd }

func recvClose(c *client) {
	c.w.timer(&c.recv.timer, 0, nil)
}

func recvExpired(c *client) {
	c.log.Debug().Msg("receive timeout")
	c.destroy()
}

func recvProcess(c *client) int {
	if c.respDone {
		return chDone
	}

	if c.reqResidual {
		// pipelined bytes are already buffered
		return chFwd
	}

	if c.req.buf == nil {
		c.req.buf = make([]byte, 0, c.w.conf.Receive.BufSize)
	}

	buf := c.req.buf
	n, err := unix.Read(c.sk, buf[len(buf):cap(buf)])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			c.w.timer(&c.recv.timer, c.w.conf.Receive.TimeoutSec*1000, func() { recvExpired(c) })
			if !c.armRead() {
				return chErr
			}
			return chAsync
		}
		c.log.Debug().Err(err).Msg("recv")
		return chErr
	}

	c.log.Debug().Int("n", n).Msg("recv")

	if n == 0 {
		if len(buf) != 0 {
			c.log.Warn().Msg("peer closed connection before finishing request")
		}
		return chFin
	}

	c.req.buf = buf[:len(buf)+n]
	c.recv.transferred += uint64(n)
	c.w.timer(&c.recv.timer, 0, nil)
	return chFwd
}
