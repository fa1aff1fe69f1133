package arq

import (
	"io"
	"time"

	"hdlc-toolkit/arq/protocol"
	"hdlc-toolkit/hdlc"

	"github.com/sirupsen/logrus"
)

const (
	// SABM/DISC/UA plus pending RR, REJ or FRMR
	maxControlFrames = 4
	readChunkSize    = 256
)

// Transport moves raw bytes between peers. Read and Write may return
// fewer bytes than requested. Transports that implement SetReadDeadline
// and SetWriteDeadline have every I/O call bounded by the timeout of the
// processing step.
type Transport interface {
	io.Reader
	io.Writer
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Session is one end of a full-duplex go-back-N link. It does no I/O of
// its own: the caller drives it with RunRx and RunTx. A Session is not
// safe for concurrent use.
type Session struct {
	cfg    Config
	t      Transport
	clock  Clock
	logger *logrus.Entry

	enc *hdlc.Encoder
	dec *hdlc.Decoder

	state State

	win  window
	ctrl []protocol.Hdr
	body []byte

	nextNR     uint8
	sentNR     uint8
	sentReject bool
	// A standalone RR is due even though sentNR is current
	ackOwed bool

	readBuf   []byte
	rxPending []byte

	ctrlSentAt  time.Time
	ctrlRetries int
	lastRecv    time.Time
	pollSentAt  time.Time
	polling     bool

	rtt   RTTStats
	stats Stats
}

func New(t Transport, cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = sanitizeConfig(cfg)
	s := &Session{
		cfg:   cfg,
		t:     t,
		clock: cfg.Clock,
		logger: cfg.Logger.WithFields(logrus.Fields{
			"addr": cfg.Address,
		}),
		enc:     hdlc.NewEncoder(cfg.Checksum),
		dec:     hdlc.NewDecoderBuffer(cfg.RxBuffer, cfg.Checksum),
		ctrl:    make([]protocol.Hdr, 0, maxControlFrames),
		body:    make([]byte, 0, protocol.HdrSize+cfg.MTU),
		readBuf: make([]byte, readChunkSize),
	}
	s.win.size = cfg.Window
	return s, nil
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) MTU() int {
	return s.cfg.MTU
}

func (s *Session) Config() Config {
	return s.cfg
}

// Window returns the number of payloads waiting for acknowledgment.
func (s *Session) Window() int {
	return s.win.outstanding()
}

// Idle reports whether nothing is queued for transmission or waiting for
// acknowledgment.
func (s *Session) Idle() bool {
	return s.win.outstanding() == 0 && len(s.ctrl) == 0 && !s.enc.Busy()
}

func (s *Session) Stats() Stats {
	st := s.stats
	ds := s.dec.Stats()
	st.State = s.state
	st.Outstanding = s.win.outstanding()
	st.ChecksumErrors = ds.Checksum
	st.OverflowErrors = ds.Overflow
	st.MalformedFrames = ds.Malformed
	st.MinRTT = s.rtt.Min()
	st.SmoothedRTT = s.rtt.Smoothed()
	st.RTTVar = s.rtt.Var()
	return st
}

// Connect starts link establishment. The session is connected once the
// peer acknowledges, which RunRx reports through OnStateChange.
func (s *Session) Connect() error {
	switch s.state {
	case Connecting, Connected:
		return nil
	}
	s.resetSequence()
	s.ctrlRetries = 0
	s.ctrlSentAt = time.Time{}
	s.queueControl(protocol.NewUHdr(s.cfg.Address, protocol.USABM, true))
	s.setState(Connecting)
	return nil
}

// Disconnect asks the peer to close the link. Payloads still in the
// window are abandoned once the link is down.
func (s *Session) Disconnect() error {
	if s.state == Disconnected || s.state == Disconnecting {
		return nil
	}
	s.dropControl(protocol.USABM)
	s.ctrlRetries = 0
	s.ctrlSentAt = time.Time{}
	s.queueControl(protocol.NewUHdr(s.cfg.Address, protocol.UDISC, true))
	s.setState(Disconnecting)
	return nil
}

// Send queues p for reliable delivery. It never blocks: a full window is
// reported as ErrWindowFull. The payload is copied.
func (s *Session) Send(p []byte) error {
	if s.state != Connected {
		return ErrNotConnected
	}
	if len(p) > s.cfg.MTU {
		return ErrPacketTooLarge
	}
	if s.win.full() {
		return ErrWindowFull
	}
	seq := s.win.push(p)
	s.stats.PacketsQueued++
	s.logger.WithFields(logrus.Fields{
		"ns":  seq,
		"len": len(p),
	}).Debug("Queued packet")
	return nil
}

func (s *Session) setState(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	if to == Connected {
		s.dropControl(protocol.USABM)
		s.lastRecv = s.clock.Now()
		s.polling = false
	}
	s.logger.WithFields(logrus.Fields{
		"from": from,
		"to":   to,
	}).Info("State changed")
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(from, to)
	}
}

func (s *Session) resetSequence() {
	s.abandon()
	s.nextNR = 0
	s.sentNR = 0
	s.sentReject = false
	s.ackOwed = false
	s.rtt.Reset()
}

// abandon empties the window and returns the dropped payloads.
func (s *Session) abandon() [][]byte {
	pending := s.win.drain()
	s.stats.PacketsAbandoned += uint64(len(pending))
	return pending
}

// queueControl appends hdr to the control queue. A full queue first
// gives up a plain acknowledgment, which the next RR supersedes. SABM,
// DISC and polls are never dropped since their timers rely on them being
// sent.
func (s *Session) queueControl(hdr protocol.Hdr) {
	if len(s.ctrl) >= maxControlFrames && !s.evictAck() && !retried(hdr) {
		s.logger.WithField("frame", hdr).Warn("Control queue full, dropping frame")
		return
	}
	s.ctrl = append(s.ctrl, hdr)
}

// evictAck removes the oldest S-frame response from the control queue.
func (s *Session) evictAck() bool {
	for i, hdr := range s.ctrl {
		if hdr.Kind() != protocol.KindS || hdr.PF() {
			continue
		}
		if hdr.Type() == protocol.SREJ {
			s.sentReject = false
		}
		s.ctrl = append(s.ctrl[:i], s.ctrl[i+1:]...)
		s.ackOwed = true
		return true
	}
	return false
}

func retried(hdr protocol.Hdr) bool {
	switch hdr.Kind() {
	case protocol.KindU:
		return hdr.Type() == protocol.USABM || hdr.Type() == protocol.UDISC
	case protocol.KindS:
		return hdr.PF()
	}
	return false
}

func (s *Session) dropControl(typ uint8) {
	kept := s.ctrl[:0]
	for _, hdr := range s.ctrl {
		if hdr.Kind() == protocol.KindU && hdr.Type() == typ {
			continue
		}
		kept = append(kept, hdr)
	}
	s.ctrl = kept
}
