//go:build linux

package poller

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// EpollPoller is the epoll-based implementation. The event tag rides in
// the epoll_data field, so a queued event always carries the tag that was
// current when its descriptor was attached.
type EpollPoller struct {
	epfd    int
	timerfd int
	wakefd  int
	events  []unix.EpollEvent
}

// NewPoller creates a new Poller (Linux).
func NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	p := &EpollPoller{
		epfd:    epfd,
		timerfd: -1,
		wakefd:  wakefd,
		events:  make([]unix.EpollEvent, 256),
	}
	if err := p.ctlAdd(wakefd, unix.EPOLLIN, TagWake); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *EpollPoller) ctlAdd(fd int, events uint32, tag uint32) error {
	ev := unix.EpollEvent{
		Events: events,
		Fd:     int32(tag),
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// AttachRead registers fd for level-triggered read readiness.
func (p *EpollPoller) AttachRead(fd int, tag uint32) error {
	return p.ctlAdd(fd, unix.EPOLLIN, tag)
}

// Attach registers fd for edge-triggered read+write readiness.
func (p *EpollPoller) Attach(fd int, tag uint32) error {
	return p.ctlAdd(fd, unix.EPOLLIN|unix.EPOLLOUT|unix.EPOLLRDHUP|unix.EPOLLET, tag)
}

// Detach removes fd from the watch list.
func (p *EpollPoller) Detach(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// ArmTimer starts a periodic timerfd delivered as TagTimer.
func (p *EpollPoller) ArmTimer(intervalMsec int) error {
	if p.timerfd < 0 {
		fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
		if err != nil {
			return err
		}
		if err := p.ctlAdd(fd, unix.EPOLLIN, TagTimer); err != nil {
			unix.Close(fd)
			return err
		}
		p.timerfd = fd
	}

	spec := unix.ItimerSpec{
		Interval: unix.NsecToTimespec(int64(intervalMsec) * 1e6),
		Value:    unix.NsecToTimespec(int64(intervalMsec) * 1e6),
	}
	return unix.TimerfdSettime(p.timerfd, 0, &spec, nil)
}

// Wake posts an event tagged TagWake. Safe from any goroutine.
func (p *EpollPoller) Wake() error {
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)
	_, err := unix.Write(p.wakefd, one[:])
	if err == unix.EAGAIN {
		// counter saturated, a wake is already pending
		err = nil
	}
	return err
}

// Wait waits for readiness events.
func (p *EpollPoller) Wait(evs []Event, timeoutMsec int) (int, error) {
	if len(p.events) < len(evs) {
		p.events = make([]unix.EpollEvent, len(evs))
	}

	n, err := unix.EpollWait(p.epfd, p.events[:len(evs)], timeoutMsec)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	for i := 0; i < n; i++ {
		ev := &p.events[i]
		tag := uint32(ev.Fd)
		switch tag {
		case TagTimer:
			p.drain(p.timerfd)
		case TagWake:
			p.drain(p.wakefd)
		}
		evs[i] = Event{
			Tag:   tag,
			Read:  ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			Write: ev.Events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0,
		}
	}
	return n, nil
}

func (p *EpollPoller) drain(fd int) {
	var buf [8]byte
	unix.Read(fd, buf[:])
}

// Close closes the poller and its timer/wake descriptors.
func (p *EpollPoller) Close() error {
	if p.timerfd >= 0 {
		unix.Close(p.timerfd)
		p.timerfd = -1
	}
	if p.wakefd >= 0 {
		unix.Close(p.wakefd)
		p.wakefd = -1
	}
	return unix.Close(p.epfd)
}
