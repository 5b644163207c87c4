package core

import (
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// File filter: opens, stats and reads the document under the www root.
// The blocking calls run on the offload queue when one is attached;
// each step suspends the chain and is re-entered on completion.

const (
	fsOpen = iota
	fsStat
	fsRead
)

const lastModifiedFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

func fileOpen(c *client) int {
	if c.respErr || c.respDone {
		return chSkip
	}

	method := c.req.method.bytes(c.req.buf)
	switch string(method) {
	case "GET":
	case "HEAD":
		c.methodHead = true
	default:
		c.setStatus(stMethodNotAllowed)
		return chSkip
	}

	conf := c.w.conf
	if len(conf.FS.WWW)+len(c.req.unescapedPath)+1 > conf.FS.FileBufSize {
		c.log.Warn().Msg("file path larger than file buffer")
		return chErr
	}
	c.file.name = conf.FS.WWW + string(c.req.unescapedPath)
	return chFwd
}

func fileClose(c *client) {
	if c.op.InFlight() {
		// an offload worker still owns the descriptor; the canceled
		// call's Abandon hook closes it
		c.file.fd = -1
		return
	}
	if c.file.fd >= 0 {
		unix.Close(c.file.fd)
		c.file.fd = -1
	}
	c.file.buf = nil
}

func fileProcess(c *client) int {
	for {
		switch c.file.state {
		case fsOpen:
			if r := fileDoOpen(c); r != chFwd {
				return r
			}
			c.file.state = fsStat

		case fsStat:
			if r := fileDoStat(c); r != chFwd {
				return r
			}
			c.file.state = fsRead

		default:
			return fileDoRead(c)
		}
	}
}

// fsSubmit runs do on the offload queue when available, falling back to
// a synchronous call. Returns chAsync when suspended, 0 when the result
// is already in place.
func (c *client) fsSubmit(what string, do, abandon func()) int {
	if c.w.offq == nil || c.w.comp == nil {
		do()
		return 0
	}
	c.w.comp.Bind(&c.op)
	c.op.Do = do
	c.op.Abandon = abandon
	c.op.Done = func() {
		c.file.opDone = true
		c.log.Debug().Str("op", what).Msg("offload completed")
		c.chainProcess()
	}
	if err := c.w.offq.Submit(&c.op); err != nil {
		do()
		return 0
	}
	c.log.Debug().Str("op", what).Msg("offload in progress")
	return chAsync
}

func fileDoOpen(c *client) int {
	if c.file.opDone {
		c.file.opDone = false
	} else {
		do := func() {
			c.file.opFD, c.file.opErr = unix.Open(c.file.name, unix.O_RDONLY|unix.O_CLOEXEC, 0)
		}
		abandon := func() {
			if c.file.opFD >= 0 {
				unix.Close(c.file.opFD)
			}
		}
		if r := c.fsSubmit("open", do, abandon); r != 0 {
			return r
		}
	}

	if err := c.file.opErr; err != nil {
		if err == unix.ENOENT || err == unix.ENOTDIR {
			c.log.Debug().Str("file", c.file.name).Msg("open: not found")
			c.setStatus(stNotFound)
			return chDone
		}
		c.log.Warn().Err(err).Str("file", c.file.name).Msg("open")
		c.setStatus(stInternalServerError)
		return chDone
	}
	c.file.fd = c.file.opFD
	c.file.opFD = -1
	return chFwd
}

func fileDoStat(c *client) int {
	if c.file.opDone {
		c.file.opDone = false
	} else {
		do := func() {
			c.file.opErr = unix.Fstat(c.file.fd, &c.file.opStat)
		}
		if r := c.fsSubmit("stat", do, c.abandonFD); r != 0 {
			return r
		}
	}

	if err := c.file.opErr; err != nil {
		c.log.Warn().Err(err).Str("file", c.file.name).Msg("stat")
		c.setStatus(stForbidden)
		return chDone
	}

	st := &c.file.opStat
	if st.Mode&unix.S_IFMT == unix.S_IFDIR {
		return fileRedirect(c)
	}

	mt := time.Unix(int64(st.Mtim.Sec), int64(st.Mtim.Nsec)).UTC()
	c.resp.lastModified = mt.Format(lastModifiedFormat)
	if c.req.ifModSince.n != 0 &&
		string(c.req.ifModSince.bytes(c.req.buf)) == c.resp.lastModified {
		c.setStatus(stNotModified)
		return chDone
	}

	fileContentType(c)

	c.file.size = st.Size
	c.resp.contentLength = uint64(st.Size)
	c.setStatusOK(stOK)

	if c.methodHead {
		c.respDone = true
		return chDone
	}
	return chFwd
}

func (c *client) abandonFD() {
	if c.file.fd >= 0 {
		unix.Close(c.file.fd)
		c.file.fd = -1
	}
}

// fileRedirect answers a directory request without a trailing slash
// with a 301 to the slashed URL.
func fileRedirect(c *client) int {
	c.log.Debug().Str("file", c.file.name).Msg("directory redirect")
	c.setStatus(stMovedPermanently)

	host := string(c.req.host.bytes(c.req.buf))
	path := string(c.req.path.bytes(c.req.buf))
	c.resp.location = "http://" + host + path + "/"
	return chDone
}

// fileContentType resolves the Content-Type from the file extension:
// lowercase, at most four characters, no slash after the last dot.
func fileContentType(c *client) {
	name := c.file.name
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 || strings.IndexByte(name[dot:], '/') >= 0 {
		c.resp.contentType = "application/octet-stream"
		return
	}
	ext := strings.ToLower(name[dot+1:])
	if ct := c.w.conf.ContentTypes.Lookup(ext); ct != "" {
		c.resp.contentType = ct
		return
	}
	c.resp.contentType = "application/octet-stream"
}

func fileDoRead(c *client) int {
	if c.file.buf == nil {
		c.file.buf = make([]byte, c.w.conf.FS.FileBufSize)
	}

	if c.file.opDone {
		c.file.opDone = false
	} else {
		do := func() {
			c.file.opN, c.file.opErr = unix.Read(c.file.fd, c.file.buf)
		}
		if r := c.fsSubmit("read", do, c.abandonFD); r != 0 {
			return r
		}
	}

	if err := c.file.opErr; err != nil {
		c.log.Warn().Err(err).Str("file", c.file.name).Msg("read")
		return chErr
	}
	if c.file.opN == 0 {
		c.respDone = true
		return chDone
	}
	c.output = c.file.buf[:c.file.opN]
	return chFwd
}
