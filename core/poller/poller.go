// Package poller provides the readiness-event backend of a worker:
// epoll on Linux, kqueue on macOS.
//
// Every attached descriptor carries a caller-chosen 32-bit tag that is
// stored in the kernel event and handed back verbatim with each readiness
// event. The tag is how the worker discards stale events: a connection
// slot's tag changes when the slot is recycled, so events queued for the
// previous tenant no longer match.
package poller

// Reserved tags delivered for the poller's own event sources.
const (
	// TagTimer is delivered on each periodic timer expiration armed
	// with ArmTimer.
	TagTimer uint32 = 0xfffffffe
	// TagWake is delivered after a Wake call from any thread.
	TagWake uint32 = 0xffffffff
)

// Event is one readiness event.
type Event struct {
	Tag   uint32
	Read  bool
	Write bool
}

// Poller is the I/O multiplexing interface.
type Poller interface {
	// AttachRead registers fd for level-triggered read readiness.
	// Used for the listening socket.
	AttachRead(fd int, tag uint32) error

	// Attach registers fd for edge-triggered read+write readiness.
	// A connection is attached exactly once for its lifetime.
	Attach(fd int, tag uint32) error

	// Detach removes fd. Closing the descriptor detaches it implicitly.
	Detach(fd int) error

	// ArmTimer starts a periodic timer; expirations surface as events
	// tagged TagTimer.
	ArmTimer(intervalMsec int) error

	// Wake posts an event tagged TagWake. Safe from any goroutine.
	Wake() error

	// Wait blocks up to timeoutMsec (-1 blocks indefinitely, 0 polls)
	// and fills evs. An interrupted wait returns (0, nil).
	Wait(evs []Event, timeoutMsec int) (int, error)

	Close() error
}
