package arq

import (
	"time"

	"hdlc-toolkit/arq/protocol"
)

type slot struct {
	payload []byte
	sentAt  time.Time
	retries int
	sent    bool
	resent  bool
}

func (sl *slot) store(p []byte) {
	sl.payload = append(sl.payload[:0], p...)
	sl.sentAt = time.Time{}
	sl.retries = 0
	sl.sent = false
	sl.resent = false
}

func (sl *slot) clear() {
	sl.payload = sl.payload[:0]
	sl.sent = false
	sl.resent = false
	sl.retries = 0
}

// window is the transmit side of the sliding window. Slots are indexed
// by sequence number. confirm <= next <= last in sequence order, and
// high is one past the highest sequence number ever transmitted since
// confirm.
type window struct {
	slots [protocol.SeqModulo]slot
	size  int

	confirm uint8
	next    uint8
	last    uint8
	high    uint8
}

func (w *window) reset() {
	for i := range w.slots {
		w.slots[i].clear()
	}
	w.confirm, w.next, w.last, w.high = 0, 0, 0, 0
}

// outstanding returns the number of queued, unacknowledged payloads.
func (w *window) outstanding() int {
	return int(protocol.SeqDistance(w.confirm, w.last))
}

func (w *window) full() bool {
	return w.outstanding() >= w.size
}

func (w *window) hasUnsent() bool {
	return w.next != w.last
}

func (w *window) push(p []byte) uint8 {
	seq := w.last
	w.slots[seq].store(p)
	w.last = (w.last + 1) & protocol.SeqMask
	return seq
}

// take marks the next unsent slot as transmitted at now.
func (w *window) take(now time.Time) (uint8, *slot) {
	seq := w.next
	sl := &w.slots[seq]
	if sl.sent {
		sl.resent = true
	}
	sl.sent = true
	sl.sentAt = now
	w.next = (seq + 1) & protocol.SeqMask
	if protocol.SeqDistance(w.confirm, w.next) > protocol.SeqDistance(w.confirm, w.high) {
		w.high = w.next
	}
	return seq, sl
}

// acceptable reports whether nr acknowledges only transmitted frames.
func (w *window) acceptable(nr uint8) bool {
	return protocol.SeqDistance(w.confirm, nr) <= protocol.SeqDistance(w.confirm, w.high)
}

// stale reports whether an unacceptable nr lies closer behind confirm
// than ahead of high, as left by a duplicated or delayed old frame.
func (w *window) stale(nr uint8) bool {
	return protocol.SeqDistance(nr, w.confirm) <= protocol.SeqDistance(w.high, nr)
}

// rewind moves the transmit cursor back to the oldest unacknowledged slot.
func (w *window) rewind() {
	w.next = w.confirm
}

func (w *window) oldest() *slot {
	if w.confirm == w.last {
		return nil
	}
	return &w.slots[w.confirm]
}

// drain empties the window and returns copies of the queued payloads in
// sequence order.
func (w *window) drain() [][]byte {
	var pending [][]byte
	for seq := w.confirm; seq != w.last; seq = (seq + 1) & protocol.SeqMask {
		pending = append(pending, append([]byte(nil), w.slots[seq].payload...))
	}
	w.reset()
	return pending
}
