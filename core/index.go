package core

import "golang.org/x/sys/unix"

// Index filter: rewrites ".../" to ".../<index_filename>" when the
// index file exists. The probe is a synchronous open: the index file
// name is hot in the VFS cache, so offloading would cost more than the
// call.

func indexOpen(c *client) int {
	p := c.req.unescapedPath
	if c.respErr || c.respDone || len(p) == 0 || p[len(p)-1] != '/' {
		return chSkip
	}

	fn := c.w.conf.FS.WWW + string(p) + c.w.conf.FS.IndexFilename
	fd, err := unix.Open(fn, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		// no index file; the autoindex filter may still serve the
		// directory listing
		return chDone
	}
	unix.Close(fd)

	c.req.unescapedPath = append(c.req.unescapedPath, c.w.conf.FS.IndexFilename...)
	return chSkip
}
