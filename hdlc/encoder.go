package hdlc

import "hdlc-toolkit/checksum"

// Encoder streams one encoded frame at a time to a transport that may
// accept fewer bytes than offered.
type Encoder struct {
	mode  checksum.Mode
	frame []byte
	off   int
}

func NewEncoder(mode checksum.Mode) *Encoder {
	return &Encoder{mode: mode}
}

func (e *Encoder) Mode() checksum.Mode {
	return e.mode
}

// Begin prepares payload for transmission. The payload is copied, so the
// caller may reuse it right away.
func (e *Encoder) Begin(payload []byte) error {
	if e.Busy() {
		return ErrBusy
	}
	e.frame = AppendFrame(e.frame[:0], payload, e.mode)
	e.off = 0
	return nil
}

// Produce copies the next encoded bytes into b and returns how many
// were copied. It returns 0 once the frame is exhausted.
func (e *Encoder) Produce(b []byte) int {
	n := copy(b, e.frame[e.off:])
	e.off += n
	return n
}

// Pending returns the encoded bytes not yet produced. Use Advance to
// mark some of them as written.
func (e *Encoder) Pending() []byte {
	return e.frame[e.off:]
}

func (e *Encoder) Advance(n int) {
	e.off += n
	if e.off > len(e.frame) {
		e.off = len(e.frame)
	}
}

func (e *Encoder) Busy() bool {
	return e.off < len(e.frame)
}

// Reset drops the frame in progress.
func (e *Encoder) Reset() {
	e.frame = e.frame[:0]
	e.off = 0
}
