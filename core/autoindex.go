package core

import (
	"errors"
	"io/fs"
	"os"
)

// Autoindex filter: renders an HTML listing for a directory request
// that no index file answered.

func autoindexOpen(c *client) int {
	p := c.req.unescapedPath
	if c.respErr || c.respDone || len(p) == 0 || p[len(p)-1] != '/' {
		return chSkip
	}
	return chFwd
}

func autoindexClose(c *client) {
	c.autoindex.buf = nil
}

func autoindexProcess(c *client) int {
	dir := c.w.conf.FS.WWW + string(c.req.unescapedPath)

	entries, err := os.ReadDir(dir)
	if err != nil {
		c.log.Warn().Err(err).Str("dir", dir).Msg("open directory")
		if errors.Is(err, fs.ErrNotExist) {
			c.setStatus(stNotFound)
		} else {
			c.setStatus(stForbidden)
		}
		return chDone
	}

	path := string(c.req.unescapedPath)
	buf := c.autoindex.buf
	buf = append(buf, "<html>\n<head>\n"...)
	buf = append(buf, "<meta charset=\"utf-8\">\n"...)
	buf = append(buf, "<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n"...)
	buf = append(buf, "<title>Index of "...)
	buf = append(buf, path...)
	buf = append(buf, "</title>\n</head>\n<body>\n<h1>Index of "...)
	buf = append(buf, path...)
	buf = append(buf, "</h1>\n<pre>\n<a href=\""...)
	buf = append(buf, path...)
	buf = append(buf, "..\">..</a>\n"...)

	for _, e := range entries {
		name := e.Name()
		buf = append(buf, "<a href=\""...)
		buf = append(buf, path...)
		buf = append(buf, name...)
		buf = append(buf, "\">"...)
		buf = append(buf, name...)
		buf = append(buf, "</a>\n"...)
	}

	buf = append(buf, "</pre></body></html>"...)
	c.autoindex.buf = buf

	c.resp.contentLength = uint64(len(buf))
	c.setStatusOK(stOK)
	c.output = buf
	c.respDone = true

	c.log.Debug().Str("dir", dir).Int("entries", len(entries)).Msg("autoindex")
	return chDone
}
