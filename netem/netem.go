package netem

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrNetemClosed = errors.New("netem closed")

type Config struct {
	// Packet at every nth would be discarded on read to emulate packet loss.
	// Zero value means no emulation of packet loss.
	ReadLossNth int
	// Packet at every nth would be duplicated on read to emulate packet duplication.
	// Zero value means no emulation of packet duplication.
	ReadDuplicateNth int

	// The size of emulated packet fragmentations on write.
	// Zero value means no emulation of packet fragmentations.
	WriteFragmentSize int
	// Packet at every nth would be discarded on write to emulate packet loss.
	// Zero value means no emulation of packet loss.
	WriteLossNth int
	// Packets at these write counters (starting from 1) are discarded once.
	WriteLossAt []int
	// Packet at every nth would be duplicated on write to emulate packet duplication.
	// Zero value means no emulation of packet duplication.
	WriteDuplicateNth int
	// Packet at every nth would be held back and written after the next one.
	// Zero value means no emulation of packet reordering.
	WriteReorderNth int
	// Packet at every nth would have one bit flipped to emulate line noise.
	// Zero value means no emulation of corruption.
	WriteCorruptNth int
}

func DefaultConfig() Config {
	return Config{}
}

type Stats struct {
	Dropped    uint64
	Duplicated uint64
	Reordered  uint64
	Corrupted  uint64
}

// Netem wraps a byte transport and damages the traffic passing through
// it. A packet is one Read result or one Write fragment.
type Netem struct {
	rw io.ReadWriter

	cfg          Config
	lossAt       map[uint32]bool
	readCounter  uint32
	writeCounter uint32

	readPending []byte
	held        []byte
	stats       Stats

	closed bool
	mu     sync.Mutex
}

func New(rw io.ReadWriter, cfg Config) *Netem {
	ne := &Netem{rw: rw}
	ne.Update(cfg)
	return ne
}

// Update the config for network emulation and restart the packet counters.
func (ne *Netem) Update(cfg Config) {
	ne.mu.Lock()
	defer ne.mu.Unlock()
	ne.cfg = cfg
	ne.lossAt = make(map[uint32]bool, len(cfg.WriteLossAt))
	for _, n := range cfg.WriteLossAt {
		ne.lossAt[uint32(n)] = true
	}
	ne.readCounter = 0
	ne.writeCounter = 0
}

func (ne *Netem) Reset() {
	ne.Update(Config{})
}

func (ne *Netem) Stats() Stats {
	ne.mu.Lock()
	defer ne.mu.Unlock()
	return ne.stats
}

func (ne *Netem) Read(b []byte) (int, error) {
	ne.mu.Lock()
	if ne.closed {
		ne.mu.Unlock()
		return 0, ErrNetemClosed
	}
	if len(ne.readPending) > 0 {
		n := copy(b, ne.readPending)
		ne.readPending = ne.readPending[n:]
		ne.mu.Unlock()
		return n, nil
	}
	ne.mu.Unlock()

	n, err := ne.rw.Read(b)
	if n <= 0 {
		return n, err
	}

	ne.mu.Lock()
	defer ne.mu.Unlock()
	ne.readCounter++
	rc := ne.readCounter
	logFields := logrus.Fields{
		"op":      "read",
		"counter": rc,
	}
	if nth(ne.cfg.ReadLossNth, rc) {
		log.WithFields(logFields).Debug("Simulating packet loss")
		ne.stats.Dropped++
		return 0, err
	}
	if nth(ne.cfg.ReadDuplicateNth, rc) {
		log.WithFields(logFields).Debug("Simulating packet duplication")
		ne.stats.Duplicated++
		ne.readPending = append(ne.readPending[:0], b[:n]...)
	}
	log.WithFields(logFields).Debugf("Read %d bytes", n)
	return n, err
}

// Write always reports the whole buffer as written, even when parts of
// it were discarded.
func (ne *Netem) Write(b []byte) (int, error) {
	ne.mu.Lock()
	defer ne.mu.Unlock()
	if ne.closed {
		return 0, ErrNetemClosed
	}
	n := len(b)
	fs := ne.cfg.WriteFragmentSize
	if fs <= 0 || fs > n {
		fs = n
	}
	for len(b) > 0 {
		if fs > len(b) {
			fs = len(b)
		}
		if err := ne.writePacket(b[:fs]); err != nil {
			return 0, err
		}
		b = b[fs:]
	}
	return n, nil
}

func (ne *Netem) writePacket(p []byte) error {
	ne.writeCounter++
	wc := ne.writeCounter
	logFields := logrus.Fields{
		"op":      "write",
		"counter": wc,
	}

	if nth(ne.cfg.WriteLossNth, wc) || ne.lossAt[wc] {
		log.WithFields(logFields).Debug("Simulating packet loss")
		ne.stats.Dropped++
		return ne.flushHeld()
	}
	if nth(ne.cfg.WriteCorruptNth, wc) && len(p) > 0 {
		log.WithFields(logFields).Debug("Simulating packet corruption")
		ne.stats.Corrupted++
		c := append([]byte(nil), p...)
		c[len(c)/2] ^= 0x01
		p = c
	}
	if nth(ne.cfg.WriteReorderNth, wc) && ne.held == nil {
		log.WithFields(logFields).Debug("Simulating packet reordering")
		ne.stats.Reordered++
		ne.held = append([]byte(nil), p...)
		return nil
	}
	if err := ne.writeRaw(p); err != nil {
		return err
	}
	log.WithFields(logFields).Debugf("Wrote %d bytes", len(p))
	if nth(ne.cfg.WriteDuplicateNth, wc) {
		log.WithFields(logFields).Debug("Simulating packet duplication")
		ne.stats.Duplicated++
		if err := ne.writeRaw(p); err != nil {
			return err
		}
	}
	return ne.flushHeld()
}

func (ne *Netem) flushHeld() error {
	if ne.held == nil {
		return nil
	}
	held := ne.held
	ne.held = nil
	return ne.writeRaw(held)
}

func (ne *Netem) writeRaw(p []byte) error {
	for len(p) > 0 {
		n, err := ne.rw.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (ne *Netem) SetReadDeadline(t time.Time) error {
	if d, ok := ne.rw.(interface{ SetReadDeadline(time.Time) error }); ok {
		return d.SetReadDeadline(t)
	}
	return nil
}

func (ne *Netem) SetWriteDeadline(t time.Time) error {
	if d, ok := ne.rw.(interface{ SetWriteDeadline(time.Time) error }); ok {
		return d.SetWriteDeadline(t)
	}
	return nil
}

func (ne *Netem) SetDeadline(t time.Time) error {
	if err := ne.SetReadDeadline(t); err != nil {
		return err
	}
	return ne.SetWriteDeadline(t)
}

func (ne *Netem) Close() error {
	ne.mu.Lock()
	defer ne.mu.Unlock()
	if ne.closed {
		return ErrNetemClosed
	}
	ne.closed = true
	if c, ok := ne.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func nth(n int, counter uint32) bool {
	return n > 0 && counter%uint32(n) == 0
}
