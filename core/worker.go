package core

import (
	"fmt"
	"net"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/searchktools/origind/config"
	"github.com/searchktools/origind/core/offload"
	"github.com/searchktools/origind/core/poller"
	"github.com/searchktools/origind/core/virtspace"
	"github.com/searchktools/origind/metrics"
)

// tagListen marks readiness on the listening socket. Connection tags are
// slot-index shifted left with the side bit in bit 0, so they can never
// reach the reserved range.
const tagListen uint32 = 0xfffffffd

// Worker owns one reactor: a listening socket, a connection table, a
// timer queue and (optionally) a completion queue of the shared offload
// pool. Everything a worker touches is single-threaded except Stop.
type Worker struct {
	conf   *config.Config
	vspace *virtspace.Map
	log    zerolog.Logger

	lfd    int
	pl     poller.Poller
	events []poller.Event

	slots     []slot
	freeSlots int32
	iconn     int // high-water slot index
	connNum   int

	timers     timerQueue
	tmrFDLimit timerNode

	epoch   time.Time
	nowMsec uint64
	dateNow time.Time
	dateBuf []byte

	offq *offload.Queue
	comp *offload.CompletionQueue

	stopFlag atomic.Bool
}

// NewWorker builds a worker from a validated config. vspace and offq may
// be nil (no virtual documents; synchronous filesystem calls).
func NewWorker(conf *config.Config, vspace *virtspace.Map, offq *offload.Queue, log zerolog.Logger) (*Worker, error) {
	w := &Worker{
		conf:      conf,
		vspace:    vspace,
		log:       log,
		lfd:       -1,
		events:    make([]poller.Event, conf.EventsNum),
		slots:     make([]slot, conf.MaxConnections),
		freeSlots: noSlot,
		epoch:     time.Now(),
		offq:      offq,
	}

	pl, err := poller.NewPoller()
	if err != nil {
		return nil, fmt.Errorf("core: poller: %w", err)
	}
	w.pl = pl

	lfd, err := listenSocket(conf)
	if err != nil {
		pl.Close()
		return nil, err
	}
	w.lfd = lfd

	if err := pl.AttachRead(lfd, tagListen); err != nil {
		w.close()
		return nil, fmt.Errorf("core: attach listen socket: %w", err)
	}
	if err := pl.ArmTimer(conf.TimerIntervalMsec); err != nil {
		w.close()
		return nil, fmt.Errorf("core: arm timer: %w", err)
	}

	if offq != nil {
		var wake func()
		if !conf.PollingMode {
			wake = func() { pl.Wake() }
		}
		w.comp = offload.NewCompletionQueue(conf.MaxConnections, wake)
	}

	w.onTimer()
	return w, nil
}

// Run enters the reactor loop until Stop or a fatal wait error. It locks
// the calling goroutine to its OS thread: all connection state is
// confined to this thread.
func (w *Worker) Run() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	w.log.Debug().Msg("entering reactor loop")
	w.accept()

	timeout := -1
	if w.conf.PollingMode {
		timeout = 0
	}

	for !w.stopFlag.Load() {
		n, err := w.pl.Wait(w.events, timeout)
		if err != nil {
			w.log.Error().Err(err).Msg("reactor wait")
			w.shutdown()
			return err
		}

		for i := 0; i < n; i++ {
			ev := w.events[i]
			switch ev.Tag {
			case tagListen:
				w.accept()
			case poller.TagTimer:
				w.onTimer()
			case poller.TagWake:
				// completions drained below
			default:
				w.dispatch(ev)
			}
		}

		if w.comp != nil {
			w.comp.Drain()
		}
	}

	w.log.Debug().Msg("leaving reactor loop")
	w.shutdown()
	return nil
}

// dispatch routes one connection readiness event, discarding events
// whose side bit no longer matches the slot.
func (w *Worker) dispatch(ev poller.Event) {
	idx := int(ev.Tag >> 1)
	if idx >= len(w.slots) {
		return
	}
	s := &w.slots[idx]
	if s.side != ev.Tag&1 || s.c == nil {
		return
	}

	if ev.Read && s.rhandler != nil {
		h := s.rhandler
		s.rhandler = nil
		h()
	}
	// The read handler may have torn the connection down.
	if s.side != ev.Tag&1 || s.c == nil {
		return
	}
	if ev.Write && s.whandler != nil {
		h := s.whandler
		s.whandler = nil
		h()
	}
}

// Stop requests a cooperative exit. Safe from any goroutine.
func (w *Worker) Stop() {
	if w.stopFlag.Swap(true) {
		return
	}
	w.pl.Wake()
}

// ConnNum reports the number of live connections (reactor thread only).
func (w *Worker) ConnNum() int { return w.connNum }

// Addr reports the bound listening address, useful when the configured
// port was 0.
func (w *Worker) Addr() (string, error) {
	sa, err := unix.Getsockname(w.lfd)
	if err != nil {
		return "", err
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port)), nil
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port)), nil
	}
	return "", fmt.Errorf("core: unexpected sockaddr %T", sa)
}

// accept takes a batch of pending connections until EAGAIN or the
// connection cap.
func (w *Worker) accept() {
	for w.accept1() {
	}
}

func (w *Worker) accept1() bool {
	if w.connNum == len(w.slots) {
		w.log.Warn().Int("limit", len(w.slots)).Msg("reached max worker connections limit")
		w.armAcceptRetry()
		return false
	}

	nfd, sa, err := acceptConn(w.lfd)
	if err != nil {
		switch err {
		case unix.EAGAIN:
		case unix.EMFILE, unix.ENFILE:
			w.log.Error().Err(err).Msg("accept: out of file descriptors")
			w.armAcceptRetry()
		default:
			w.log.Error().Err(err).Msg("accept")
		}
		return false
	}

	idx := w.allocSlot()
	w.connNum++
	w.log.Debug().Int("slot", idx).Int("conns", w.connNum).Msg("using connection slot")

	connID := w.conf.ConnID.Add(1)
	metrics.ConnsAccepted.Inc()
	metrics.ConnsActive.Inc()

	startClient(w, idx, nfd, sa, connID)
	return true
}

func (w *Worker) armAcceptRetry() {
	w.timers.add(&w.tmrFDLimit, w.nowMsec, w.conf.FDLimitTimeoutSec*1000, func() { w.accept() })
}

// timer arms (intervalMsec > 0) or cancels (intervalMsec == 0) a
// one-shot timer.
func (w *Worker) timer(n *timerNode, intervalMsec int, fn func()) {
	if intervalMsec == 0 {
		if w.timers.remove(n) {
			w.log.Debug().Msg("timer remove")
		}
		return
	}
	w.timers.add(n, w.nowMsec, intervalMsec, fn)
}

// onTimer refreshes the cached clocks and fires due timers.
func (w *Worker) onTimer() {
	w.dateNow = time.Now()
	w.nowMsec = uint64(time.Since(w.epoch) / time.Millisecond)
	w.dateBuf = w.dateBuf[:0]
	w.timers.process(w.nowMsec)
}

// date returns the cached wall clock and its formatted datestring
// (YYYY-MM-DDTHH:MM:SS.mmm, UTC). The string is rebuilt at most once per
// timer tick.
func (w *Worker) date() (time.Time, string) {
	if len(w.dateBuf) == 0 {
		w.dateBuf = w.dateNow.UTC().AppendFormat(w.dateBuf, "2006-01-02T15:04:05.000")
	}
	return w.dateNow, string(w.dateBuf)
}

// nowMS returns the cached wall-clock time in msec since the epoch.
func (w *Worker) nowMS() uint64 {
	return uint64(w.dateNow.UnixMilli())
}

// shutdown force-closes every live connection and releases the worker's
// descriptors.
func (w *Worker) shutdown() {
	for i := 0; i < w.iconn; i++ {
		if c := w.slots[i].c; c != nil {
			c.destroy()
		}
	}
	w.close()
}

func (w *Worker) close() {
	if w.lfd >= 0 {
		unix.Close(w.lfd)
		w.lfd = -1
	}
	w.pl.Close()
}
