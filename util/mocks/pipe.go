package mocks

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"hdlc-toolkit/util"
	uerrors "hdlc-toolkit/util/errors"
)

type pipeBuffer struct {
	buf    bytes.Buffer
	notify chan struct{}
	closed bool
	mu     sync.Mutex
}

func newPipeBuffer() *pipeBuffer {
	return &pipeBuffer{notify: make(chan struct{}, 1)}
}

func (pb *pipeBuffer) close() {
	pb.mu.Lock()
	pb.closed = true
	pb.mu.Unlock()
	util.AsyncNotify(pb.notify)
}

// Endpoint is one side of an in-memory byte pipe. Writes never block.
// Reads return buffered bytes right away; with no bytes buffered they
// wait for the read deadline, or return (0, nil) when none is set.
type Endpoint struct {
	rx *pipeBuffer
	tx *pipeBuffer

	readDeadline atomic.Value
	written      uint64
}

// Pipe returns two connected endpoints.
func Pipe() (*Endpoint, *Endpoint) {
	a, b := newPipeBuffer(), newPipeBuffer()
	return &Endpoint{rx: a, tx: b}, &Endpoint{rx: b, tx: a}
}

func (e *Endpoint) Read(b []byte) (int, error) {
	if len(b) <= 0 {
		return 0, io.ErrShortBuffer
	}
	var deadline <-chan time.Time
	for {
		e.rx.mu.Lock()
		if e.rx.buf.Len() > 0 {
			n, err := e.rx.buf.Read(b)
			e.rx.mu.Unlock()
			return n, err
		}
		closed := e.rx.closed
		e.rx.mu.Unlock()
		if closed {
			return 0, io.EOF
		}
		if deadline == nil {
			t, _ := e.readDeadline.Load().(time.Time)
			if t.IsZero() {
				return 0, nil
			}
			d := time.Until(t)
			if d <= 0 {
				return 0, uerrors.ErrTimeout
			}
			timer := time.NewTimer(d)
			defer timer.Stop()
			deadline = timer.C
		}
		select {
		case <-e.rx.notify:
		case <-deadline:
			return 0, uerrors.ErrTimeout
		}
	}
}

func (e *Endpoint) Write(b []byte) (int, error) {
	e.tx.mu.Lock()
	if e.tx.closed {
		e.tx.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	n, err := e.tx.buf.Write(b)
	e.tx.mu.Unlock()
	atomic.AddUint64(&e.written, uint64(n))
	util.AsyncNotify(e.tx.notify)
	return n, err
}

// Written returns the total number of bytes written to this endpoint.
func (e *Endpoint) Written() uint64 {
	return atomic.LoadUint64(&e.written)
}

// Buffered returns the number of bytes waiting to be read.
func (e *Endpoint) Buffered() int {
	e.rx.mu.Lock()
	defer e.rx.mu.Unlock()
	return e.rx.buf.Len()
}

func (e *Endpoint) SetReadDeadline(t time.Time) error {
	e.readDeadline.Store(t)
	util.AsyncNotify(e.rx.notify)
	return nil
}

// SetWriteDeadline is a no-op since writes never block.
func (e *Endpoint) SetWriteDeadline(t time.Time) error {
	return nil
}

func (e *Endpoint) SetDeadline(t time.Time) error {
	if err := e.SetReadDeadline(t); err != nil {
		return err
	}
	return e.SetWriteDeadline(t)
}

// Close closes both directions. The peer may still read what was
// buffered before it sees io.EOF.
func (e *Endpoint) Close() error {
	e.rx.close()
	e.tx.close()
	return nil
}
