package core

// VirtSpace filter: dispatches (path, method) to a registered virtual
// document handler. The path key is the raw (still escaped) request
// path.

func vspaceOpen(c *client) int {
	if c.respErr || c.respDone || c.w.vspace == nil {
		return chSkip
	}
	buf := c.req.buf
	d := c.w.vspace.Find(c.req.path.bytes(buf), c.req.method.bytes(buf))
	if d == nil {
		return chSkip
	}
	c.vdoc = d
	return chFwd
}

func vspaceProcess(c *client) int {
	c.vdoc.Handler(c)

	if c.resp.contentLength == unknownLen {
		// handler produced nothing: empty 200
		c.setStatusOK(stOK)
		c.resp.contentLength = 0
		c.respDone = true
	}
	return chDone
}

// SetResponse implements virtspace.Responder.
func (c *client) SetResponse(code int, contentType string, body []byte) {
	c.resp.code = code
	c.resp.msg = reasonFor(code)
	c.resp.contentType = contentType
	c.resp.contentLength = uint64(len(body))
	c.output = body
	c.respDone = true
}
