package core

import "github.com/searchktools/origind/core/http1"

// Request filter: HTTP/1.1 request-line and header parsing, URL
// unescape and path normalization. Parsing is re-entered as bytes
// arrive; incomplete data walks the chain back to the receive filter.

func reqOpen(c *client) int { return chFwd }

func reqClose(c *client) {
	c.req.unescapedPath = nil
}

func reqProcess(c *client) int {
	c.reqResidual = false

	if c.startTimeMsec == 0 {
		c.startTimeMsec = c.w.nowMS()
	}

	if reqParse(c) != 0 {
		if cap(c.req.buf) != 0 && len(c.req.buf) == cap(c.req.buf) {
			c.log.Warn().Msg("request larger than receive buffer")
			return chErr
		}
		return chBack
	}
	return chFwd
}

// reqParse returns 0 when the request is complete (or a response status
// has been set), 1 when more bytes are needed.
func reqParse(c *client) int {
	buf := c.req.buf

	method, target, proto, n, err := http1.ParseRequestLine(buf)
	if err != nil {
		c.log.Warn().Err(err).Msg("bad request line")
		c.setStatus(stBadRequest)
		return 0
	}
	if n == 0 {
		return 1
	}

	c.req.line.set(0, n-2)

	off := n
	ka := 0
	for {
		if t := http1.SkipHeadersEnd(buf[off:]); t > 0 {
			off += t
			break
		}
		name, val, hn, herr := http1.ParseHeader(buf[off:])
		if herr != nil {
			c.log.Warn().Err(herr).Msg("bad header")
			c.setStatus(stBadRequest)
			return 0
		}
		if hn == 0 {
			return 1
		}

		nameB, valB := name.In(buf[off:]), val.In(buf[off:])
		switch {
		case asciiEqFold(nameB, "Host") && c.req.host.n == 0:
			c.req.host.set(off+val.Off, val.Len)
		case asciiEqFold(nameB, "Connection"):
			if asciiEqFold(valB, "keep-alive") {
				ka = 1
			} else if asciiEqFold(valB, "close") {
				ka = -1
			}
		case asciiEqFold(nameB, "If-Modified-Since"):
			c.req.ifModSince.set(off+val.Off, val.Len)
		}
		off += hn
	}

	c.req.full.set(0, off)

	http11 := buf[proto.Off+7] == '1'
	c.respKeepAlive = http11
	if ka > 0 {
		c.respKeepAlive = true
	} else if ka < 0 {
		c.respKeepAlive = false
	}

	if http11 && c.req.host.n == 0 {
		c.log.Warn().Msg("no host")
		c.setStatus(stBadRequest)
		return 0
	}

	path, query := http1.SplitTarget(buf, target)

	unescaped, uerr := http1.Unescape(path.In(buf))
	if uerr == nil {
		unescaped, uerr = http1.NormalizePath(unescaped)
	}
	if uerr != nil {
		c.log.Warn().Err(uerr).Msg("bad request path")
		c.setStatus(stBadRequest)
		return 0
	}
	c.req.unescapedPath = unescaped

	c.log.Debug().Bytes("line", c.req.line.bytes(buf)).Msg("request")
	c.req.method.set(method.Off, method.Len)
	c.req.path.set(path.Off, path.Len)
	c.req.querystr.set(query.Off, query.Len)
	return 0
}

// asciiEqFold compares ASCII case-insensitively without allocating.
func asciiEqFold(b []byte, s string) bool {
	if len(b) != len(s) {
		return false
	}
	for i := 0; i < len(b); i++ {
		x, y := b[i], s[i]
		if x >= 'A' && x <= 'Z' {
			x += 'a' - 'A'
		}
		if y >= 'A' && y <= 'Z' {
			y += 'a' - 'A'
		}
		if x != y {
			return false
		}
	}
	return true
}
