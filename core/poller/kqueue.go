//go:build darwin

package poller

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// kqueue idents for the poller's own event sources. Regular descriptors
// can never collide with these values.
const (
	timerIdent = ^uint64(1)
	wakeIdent  = ^uint64(0)
)

// KqueuePoller is the kqueue-based implementation. The event tag rides in
// the kevent udata field, so a queued event always carries the tag that
// was current when its descriptor was attached.
type KqueuePoller struct {
	kqfd   int
	events []unix.Kevent_t
}

// NewPoller creates a new Poller (macOS).
func NewPoller() (Poller, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}

	p := &KqueuePoller{
		kqfd:   kqfd,
		events: make([]unix.Kevent_t, 256),
	}

	// Register the user event used by Wake.
	wake := unix.Kevent_t{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}
	if _, err := unix.Kevent(kqfd, []unix.Kevent_t{wake}, nil, nil); err != nil {
		unix.Close(kqfd)
		return nil, err
	}
	return p, nil
}

func tagUdata(tag uint32) *byte {
	return (*byte)(unsafe.Pointer(uintptr(tag)))
}

func udataTag(u *byte) uint32 {
	return uint32(uintptr(unsafe.Pointer(u)))
}

// AttachRead registers fd for level-triggered read readiness.
func (p *KqueuePoller) AttachRead(fd int, tag uint32) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
		Udata:  tagUdata(tag),
	}
	_, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

// Attach registers fd for edge-triggered read+write readiness.
func (p *KqueuePoller) Attach(fd int, tag uint32) error {
	evs := []unix.Kevent_t{
		{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_READ,
			Flags:  unix.EV_ADD | unix.EV_CLEAR,
			Udata:  tagUdata(tag),
		},
		{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_WRITE,
			Flags:  unix.EV_ADD | unix.EV_CLEAR,
			Udata:  tagUdata(tag),
		},
	}
	_, err := unix.Kevent(p.kqfd, evs, nil, nil)
	return err
}

// Detach removes fd from the watch list.
func (p *KqueuePoller) Detach(fd int) error {
	evs := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, err := unix.Kevent(p.kqfd, evs, nil, nil)
	return err
}

// ArmTimer starts a periodic EVFILT_TIMER delivered as TagTimer.
func (p *KqueuePoller) ArmTimer(intervalMsec int) error {
	ev := unix.Kevent_t{
		Ident:  timerIdent,
		Filter: unix.EVFILT_TIMER,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
		Data:   int64(intervalMsec),
	}
	_, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

// Wake triggers the registered user event. Safe from any goroutine.
func (p *KqueuePoller) Wake() error {
	ev := unix.Kevent_t{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}
	_, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

// Wait waits for readiness events.
func (p *KqueuePoller) Wait(evs []Event, timeoutMsec int) (int, error) {
	var ts *unix.Timespec
	if timeoutMsec >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMsec) * 1e6)
		ts = &t
	}

	if len(p.events) < len(evs) {
		p.events = make([]unix.Kevent_t, len(evs))
	}

	n, err := unix.Kevent(p.kqfd, nil, p.events[:len(evs)], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	for i := 0; i < n; i++ {
		ev := &p.events[i]
		switch {
		case ev.Filter == unix.EVFILT_TIMER && ev.Ident == timerIdent:
			evs[i] = Event{Tag: TagTimer, Read: true}
		case ev.Filter == unix.EVFILT_USER && ev.Ident == wakeIdent:
			evs[i] = Event{Tag: TagWake, Read: true}
		default:
			evs[i] = Event{
				Tag:   udataTag(ev.Udata),
				Read:  ev.Filter == unix.EVFILT_READ,
				Write: ev.Filter == unix.EVFILT_WRITE,
			}
		}
	}
	return n, nil
}

// Close closes the poller.
func (p *KqueuePoller) Close() error {
	return unix.Close(p.kqfd)
}
