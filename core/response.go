package core

import "strconv"

// Response filter: formats the status line and headers, then sets up
// the gathered write ([headers, body]) for the send filter.

func respOpen(c *client) int {
	c.resp.buf = make([]byte, 0, c.w.conf.Response.BufSize)
	return chFwd
}

func respClose(c *client) {
	c.resp.buf = nil
}

func respProcess(c *client) int {
	if c.resp.code == 0 {
		c.setStatusOK(stOK)
	}

	b := c.resp.buf
	b = append(b, "HTTP/1.1 "...)
	b = strconv.AppendInt(b, int64(c.resp.code), 10)
	b = append(b, ' ')
	b = append(b, c.resp.msg...)
	b = append(b, "\r\n"...)

	if c.resp.contentLength != unknownLen {
		b = append(b, "Content-Length: "...)
		b = strconv.AppendUint(b, c.resp.contentLength, 10)
		b = append(b, "\r\n"...)
	}
	if c.resp.location != "" {
		b = appendHeader(b, "Location", c.resp.location)
	}
	if c.resp.lastModified != "" {
		b = appendHeader(b, "Last-Modified", c.resp.lastModified)
	}
	if c.resp.contentType != "" {
		b = appendHeader(b, "Content-Type", c.resp.contentType)
	}
	if name := c.w.conf.Response.ServerName; name != "" {
		b = appendHeader(b, "Server", name)
	}
	if c.respKeepAlive {
		b = appendHeader(b, "Connection", "keep-alive")
	} else {
		b = appendHeader(b, "Connection", "close")
	}
	b = append(b, "\r\n"...)
	c.resp.buf = b

	c.log.Debug().Int("code", c.resp.code).Int("hdr", len(b)).Msg("response")

	c.send.iov[0] = b
	c.send.iovN = 1
	if !c.methodHead {
		c.send.iov[1] = c.input
		c.send.iovN = 2
	} else {
		c.respDone = true
	}
	c.input = nil
	return chDone
}

func appendHeader(b []byte, name, val string) []byte {
	b = append(b, name...)
	b = append(b, ": "...)
	b = append(b, val...)
	b = append(b, "\r\n"...)
	return b
}
