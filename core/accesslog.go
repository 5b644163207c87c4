package core

import (
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/searchktools/origind/metrics"
)

// AccessLog filter: formats one line per completed request and writes
// it to stderr through the offload queue, so a slow stderr consumer
// never stalls the reactor.
//
// PEER_IP \t DATETIME "REQUEST_LINE" CODE RX TX ELAPSEDms

func accLogOpen(c *client) int {
	endTime, dts := c.w.date()
	elapsed := uint64(endTime.UnixMilli()) - c.startTimeMsec

	line := c.req.line.bytes(c.req.buf)

	b := make([]byte, 0, 128+len(line))
	b = append(b, c.peerIP.String()...)
	b = append(b, '\t')
	b = append(b, dts...)
	b = append(b, " \""...)
	b = append(b, line...)
	b = append(b, "\" "...)
	b = strconv.AppendInt(b, int64(c.resp.code), 10)
	b = append(b, ' ')
	b = strconv.AppendUint(b, c.recv.transferred, 10)
	b = append(b, ' ')
	b = strconv.AppendUint(b, c.send.transferred, 10)
	b = append(b, ' ')
	b = strconv.AppendUint(b, elapsed, 10)
	b = append(b, "ms\n"...)
	c.acclogBuf = b

	metrics.Responses.WithLabelValues(strconv.Itoa(c.resp.code)).Inc()
	metrics.BytesIn.Add(float64(c.recv.transferred))
	metrics.BytesOut.Add(float64(c.send.transferred))
	return chFwd
}

func accLogClose(c *client) {
	c.acclogBuf = nil
}

func accLogProcess(c *client) int {
	if c.acclogDone {
		c.acclogDone = false
		return chDone
	}

	if c.w.offq == nil || c.w.comp == nil {
		unix.Write(unix.Stderr, c.acclogBuf)
		return chDone
	}

	c.w.comp.Bind(&c.op)
	c.op.Do = func() {
		unix.Write(unix.Stderr, c.acclogBuf)
	}
	c.op.Abandon = nil
	c.op.Done = func() {
		c.acclogDone = true
		c.chainProcess()
	}
	if err := c.w.offq.Submit(&c.op); err != nil {
		unix.Write(unix.Stderr, c.acclogBuf)
		return chDone
	}
	return chAsync
}
