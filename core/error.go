package core

// Error filter: converts an error status set by an earlier filter into
// a plain-text body of the reason phrase. 304 responses are the
// exception: they must not carry a body.

func errOpen(c *client) int {
	if !c.respErr {
		return chSkip
	}
	return chFwd
}

func errProcess(c *client) int {
	if c.resp.code == 304 {
		c.resp.contentLength = 0
		c.output = nil
		c.respDone = true
		return chDone
	}

	c.resp.contentType = "text/plain"
	c.resp.contentLength = uint64(len(c.resp.msg))
	c.output = []byte(c.resp.msg)
	c.respDone = true
	return chDone
}
