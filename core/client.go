package core

import (
	"net"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/searchktools/origind/core/offload"
	"github.com/searchktools/origind/core/virtspace"
	"github.com/searchktools/origind/metrics"
)

// unknownLen is the "no Content-Length yet" sentinel; it forbids
// keep-alive when it survives to the transfer filter.
const unknownLen = ^uint64(0)

// rng16 is a byte range into the request buffer. Ranges survive buffer
// compaction between pipelined requests because they are recomputed for
// every request.
type rng16 struct {
	off uint16
	n   uint16
}

func (r rng16) bytes(buf []byte) []byte { return buf[r.off : int(r.off)+int(r.n)] }

func (r *rng16) set(off, n int) {
	r.off = uint16(off)
	r.n = uint16(n)
}

// client is one connection's state. A client lives on its worker's
// reactor thread from accept to teardown.
type client struct {
	w       *Worker
	slotIdx int
	sk      int
	log     zerolog.Logger

	peerIP   net.IP
	peerPort int

	keepAliveN  int
	sendInit    bool
	attached    bool
	reqResidual bool // pipelined bytes already buffered
	id          string

	// Everything below is cleared between keep-alive requests.

	startTimeMsec uint64

	recv struct {
		transferred uint64
		timer       timerNode
	}

	req struct {
		full, line, method, path, querystr, host, ifModSince rng16

		unescapedPath []byte
		buf           []byte
	}

	vdoc *virtspace.Doc

	autoindex struct {
		buf []byte
	}

	file struct {
		fd    int
		name  string
		buf   []byte
		size  int64
		state int

		opDone bool
		opFD   int
		opN    int
		opErr  error
		opStat unix.Stat_t
	}

	acclogBuf  []byte
	acclogDone bool

	transfer struct {
		contLen uint64
	}

	resp struct {
		code          int
		contentLength uint64
		msg           string
		location      string
		contentType   string
		lastModified  string
		buf           []byte
	}

	send struct {
		iov         [2][]byte
		iovN        int
		timer       timerNode
		transferred uint64
	}

	op offload.Call

	chainBack     bool
	methodHead    bool
	respKeepAlive bool
	respErr       bool
	respDone      bool
	ka            bool

	imod  int
	mdata [nFilters]struct {
		opened bool
		done   bool
	}
	input, output []byte
}

// startClient allocates a client for a freshly accepted socket and runs
// the filter chain for its first request.
func startClient(w *Worker, slotIdx, sk int, sa unix.Sockaddr, connID uint32) {
	c := &client{
		w:       w,
		slotIdx: slotIdx,
		sk:      sk,
		id:      "*" + strconv.FormatUint(uint64(connID), 10),
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		c.peerIP = net.IP(a.Addr[:])
		c.peerPort = a.Port
	case *unix.SockaddrInet6:
		c.peerIP = net.IP(a.Addr[:])
		c.peerPort = a.Port
	}
	c.log = w.log.With().Str("conn", c.id).Logger()
	w.slots[slotIdx].c = c

	c.log.Info().
		Str("peer", c.peerIP.String()).
		Int("port", c.peerPort).
		Msg("new client connection")

	c.init()
	c.chainProcess()
}

func (c *client) init() {
	c.resp.contentLength = unknownLen
	c.file.fd = -1
	c.file.opFD = -1
}

// reset re-arms the connection for the next keep-alive request,
// preserving any pipelined bytes beyond the consumed request.
func (c *client) reset() {
	c.modsClose()

	reqLen := int(c.req.full.n)
	buf := c.req.buf

	c.clearRequestState()
	c.init()

	// preserve pipelined data
	if reqLen > 0 && reqLen <= len(buf) {
		n := copy(buf, buf[reqLen:])
		buf = buf[:n]
	}
	c.req.buf = buf
	c.reqResidual = len(buf) != 0
	c.ka = true
}

// clearRequestState zeroes every per-request field; the fields above the
// marker in the struct (identity, counters, attach state) survive.
func (c *client) clearRequestState() {
	c.startTimeMsec = 0
	c.recv.transferred = 0
	c.req.full = rng16{}
	c.req.line = rng16{}
	c.req.method = rng16{}
	c.req.path = rng16{}
	c.req.querystr = rng16{}
	c.req.host = rng16{}
	c.req.ifModSince = rng16{}
	c.req.unescapedPath = nil
	c.req.buf = nil
	c.vdoc = nil
	c.autoindex.buf = nil
	c.file.fd = -1
	c.file.name = ""
	c.file.buf = nil
	c.file.size = 0
	c.file.state = 0
	c.file.opDone = false
	c.file.opFD = -1
	c.file.opN = 0
	c.file.opErr = nil
	c.acclogBuf = nil
	c.acclogDone = false
	c.transfer.contLen = 0
	c.resp.code = 0
	c.resp.contentLength = 0
	c.resp.msg = ""
	c.resp.location = ""
	c.resp.contentType = ""
	c.resp.lastModified = ""
	c.resp.buf = nil
	c.send.iov[0] = nil
	c.send.iov[1] = nil
	c.send.iovN = 0
	c.send.transferred = 0
	c.chainBack = false
	c.methodHead = false
	c.respKeepAlive = false
	c.respErr = false
	c.respDone = false
	c.ka = false
	c.imod = 0
	for i := range c.mdata {
		c.mdata[i] = struct{ opened, done bool }{}
	}
	c.input = nil
	c.output = nil
}

// keepalive decides whether the connection survives into another
// request. Returns false when it must be torn down.
func (c *client) keepalive() bool {
	if !c.respKeepAlive {
		return false
	}
	c.keepAliveN++
	if c.keepAliveN == c.w.conf.MaxKeepAliveReqs {
		return false
	}
	c.reset()
	return true
}

// destroy tears the connection down: socket closed, outstanding offload
// call canceled, opened filters closed, slot recycled.
func (c *client) destroy() {
	c.log.Debug().Msg("closing client connection")
	unix.Close(c.sk)
	c.sk = -1

	if c.op.InFlight() {
		c.op.Cancel()
	}
	c.modsClose()
	c.w.connFin(c.slotIdx)
	metrics.ConnsActive.Dec()
}

func (c *client) modsClose() {
	for i := range filterChain {
		if c.mdata[i].opened {
			c.mdata[i].opened = false
			if filterChain[i].close != nil {
				filterChain[i].close(c)
			}
		}
	}
}

// slot returns the connection's reactor slot.
func (c *client) slot() *slot { return &c.w.slots[c.slotIdx] }

// attach registers the socket with the reactor (once per connection
// lifetime). Returns false on failure; the calling filter then returns
// chErr and the chain tears the connection down.
func (c *client) attach() bool {
	if c.attached {
		return true
	}
	c.attached = true
	s := c.slot()
	if err := c.w.pl.Attach(c.sk, slotTag(c.slotIdx, s.side)); err != nil {
		c.log.Error().Err(err).Msg("reactor attach")
		return false
	}
	return true
}

// armRead suspends the chain until the socket is readable.
func (c *client) armRead() bool {
	c.slot().rhandler = func() { c.chainProcess() }
	return c.attach()
}

// armWrite suspends the chain until the socket is writable.
func (c *client) armWrite() bool {
	c.slot().whandler = func() { c.chainProcess() }
	return c.attach()
}

// chainProcess drives the filter chain from the current filter until it
// suspends (ASYNC) or the connection finishes.
func (c *client) chainProcess() {
	i := c.imod
	for {
		var r int
		if !c.mdata[i].opened && !c.mdata[i].done {
			c.log.Debug().Str("filter", filterChain[i].name).Msg("opening filter")
			r = filterChain[i].open(c)
			if r == chDone || r == chSkip || r == chErr {
				c.mdata[i].done = true
				c.output = c.input
			} else {
				c.mdata[i].opened = true
			}
		}

		if !c.mdata[i].done {
			c.log.Debug().Str("filter", filterChain[i].name).Int("input", len(c.input)).Msg("calling filter")
			r = filterChain[i].process(c)
			c.log.Debug().Str("filter", filterChain[i].name).Int("ret", r).Int("output", len(c.output)).Msg("filter returned")
		} else {
			// a finished filter passes data straight through
			c.output = c.input
			if !c.chainBack {
				r = chFwd
			} else {
				r = chBack
			}
		}

		switch r {
		case chDone, chSkip:
			c.mdata[i].done = true
			fallthrough
		case chFwd:
			c.input = c.output
			c.output = nil
			c.chainBack = false
			i++
			if i == nFilters {
				if !c.keepalive() {
					c.destroy()
					return
				}
				i = 0
			}

		case chBack:
			if i == 0 {
				c.destroy()
				return
			}
			c.input = nil
			c.chainBack = true
			i--

		case chAsync:
			c.imod = i
			return

		case chErr:
			c.mdata[i].done = true
			c.destroy()
			return

		case chFin:
			c.destroy()
			return

		default:
			c.destroy()
			return
		}
	}
}
