package core

// slot is one pre-allocated reactor entry of the connection table. The
// side bit toggles on every free, so a readiness event queued for a
// previous tenant of the slot carries a stale tag and is discarded by
// the reactor.
type slot struct {
	rhandler func()
	whandler func()
	side     uint32
	c        *client
	next     int32 // free-LIFO link, -1 terminates
}

const noSlot = int32(-1)

// slotTag encodes a slot's identity plus its current side bit into the
// poller tag.
func slotTag(idx int, side uint32) uint32 {
	return uint32(idx)<<1 | side
}

// allocSlot pops a recycled slot off the LIFO, or extends the high-water
// mark. Caller has checked connNum < len(slots).
func (w *Worker) allocSlot() int {
	if w.freeSlots != noSlot {
		idx := int(w.freeSlots)
		w.freeSlots = w.slots[idx].next
		w.slots[idx].next = noSlot
		return idx
	}
	idx := w.iconn
	w.iconn++
	return idx
}

// connFin releases a slot: handlers cleared, side flipped, pushed on the
// free LIFO. Pending readiness events tagged with the old side are now
// stale.
func (w *Worker) connFin(idx int) {
	s := &w.slots[idx]
	s.rhandler = nil
	s.whandler = nil
	s.side ^= 1
	s.c = nil

	s.next = w.freeSlots
	w.freeSlots = int32(idx)

	w.connNum--
	w.log.Debug().Int("slot", idx).Int("conns", w.connNum).Msg("free connection slot")
}
