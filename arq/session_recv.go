package arq

import (
	"time"

	"hdlc-toolkit/arq/protocol"
	uerrors "hdlc-toolkit/util/errors"

	"github.com/sirupsen/logrus"
)

type uHandler func(s *Session, hdr protocol.Hdr) error

var uHandlers = map[uint8]uHandler{
	protocol.USABM: (*Session).handleSABM,
	protocol.UUA:   (*Session).handleUA,
	protocol.UDISC: (*Session).handleDISC,
	protocol.UDM:   (*Session).handleDM,
	protocol.UFRMR: (*Session).handleFRMR,
}

// RunRx reads from the transport and processes at most one frame. Bytes
// past that frame are kept for the next call. It returns the number of
// bytes consumed; a read that times out consumes nothing and is not an
// error. A timeout of zero or less leaves the transport deadline alone.
func (s *Session) RunRx(timeout time.Duration) (int, error) {
	var readErr error
	if len(s.rxPending) == 0 {
		if d, ok := s.t.(readDeadliner); ok && timeout > 0 {
			if err := d.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return 0, err
			}
		}
		n, err := s.t.Read(s.readBuf)
		if err != nil && !uerrors.IsDeadlineError(err) {
			readErr = err
		}
		s.rxPending = s.readBuf[:n]
	}

	consumed := 0
	for len(s.rxPending) > 0 {
		n, payload, err := s.dec.Consume(s.rxPending)
		s.rxPending = s.rxPending[n:]
		consumed += n
		if err != nil {
			s.logger.WithError(err).Debug("Dropped corrupt frame")
			break
		}
		if payload != nil {
			if err := s.handleFrame(payload); err != nil {
				return consumed, err
			}
			break
		}
	}
	return consumed, readErr
}

func (s *Session) handleFrame(b []byte) error {
	hdr, ok := protocol.ParseHdr(b)
	if !ok || hdr.Addr() != s.cfg.Address {
		s.stats.InvalidFrames++
		s.logger.WithField("len", len(b)).Debug("Dropped invalid frame")
		return nil
	}
	s.stats.FramesReceived++
	s.lastRecv = s.clock.Now()
	s.polling = false
	s.logger.WithFields(logrus.Fields{
		"frame": hdr,
		"state": s.state,
	}).Debug("Received frame")

	switch hdr.Kind() {
	case protocol.KindI:
		s.handleI(hdr, b[protocol.HdrSize:])
	case protocol.KindS:
		s.handleS(hdr)
	default:
		if h, ok := uHandlers[hdr.Type()]; ok {
			return h(s, hdr)
		}
		s.stats.InvalidFrames++
	}
	return nil
}

// notConnected handles I and S frames arriving outside the connected
// state. A closed link answers with DM so the peer stops retrying.
func (s *Session) notConnected() bool {
	switch s.state {
	case Connected:
		return false
	case Disconnected:
		s.queueControl(protocol.NewUHdr(s.cfg.Address, protocol.UDM, false))
	}
	return true
}

func (s *Session) handleI(hdr protocol.Hdr, payload []byte) {
	if s.notConnected() {
		return
	}
	if !s.confirm(hdr.NR()) {
		return
	}
	if ns := hdr.NS(); ns != s.nextNR {
		s.stats.OutOfOrder++
		// One reject per gap, the peer goes back to nextNR and resends.
		// Later frames of the same gap are answered with RR so a lost
		// REJ does not leave the peer retrying into silence.
		if !s.sentReject {
			s.sentReject = true
			s.stats.RejectsSent++
			s.queueControl(protocol.NewSHdr(s.cfg.Address, protocol.SREJ, s.nextNR, false))
		} else {
			s.ackOwed = true
		}
		s.logger.WithFields(logrus.Fields{
			"ns":       ns,
			"expected": s.nextNR,
		}).Debug("Out of order frame")
		return
	}
	s.sentReject = false
	s.nextNR = (s.nextNR + 1) & protocol.SeqMask
	s.stats.PacketsDelivered++
	if s.cfg.AckPolicy == AckImmediate {
		s.queueControl(protocol.NewSHdr(s.cfg.Address, protocol.SRR, s.nextNR, false))
	}
	if s.cfg.OnReceive != nil {
		s.cfg.OnReceive(payload)
	}
}

func (s *Session) handleS(hdr protocol.Hdr) {
	if s.notConnected() {
		return
	}
	if !s.confirm(hdr.NR()) {
		return
	}
	switch hdr.Type() {
	case protocol.SREJ:
		s.stats.RejectsReceived++
		s.win.rewind()
	case protocol.SRR, protocol.SRNR:
		// A poll expects an answer even when no data is pending
		if hdr.Command() {
			s.queueControl(protocol.NewSHdr(s.cfg.Address, protocol.SRR, s.nextNR, false))
		}
	}
}

// confirm releases every slot acknowledged by nr. An nr behind the
// window comes from a duplicated old frame and is ignored. An nr beyond
// what was transmitted means the peer is out of sync and is answered by
// FRMR.
func (s *Session) confirm(nr uint8) bool {
	if !s.win.acceptable(nr) {
		fields := logrus.Fields{
			"nr":      nr,
			"confirm": s.win.confirm,
			"high":    s.win.high,
		}
		if s.win.stale(nr) {
			s.stats.StaleFrames++
			s.logger.WithFields(fields).Debug("Ignored stale acknowledgment")
			return false
		}
		s.logger.WithFields(fields).Warn("Invalid acknowledgment")
		s.queueControl(protocol.NewUHdr(s.cfg.Address, protocol.UFRMR, false))
		return false
	}
	now := s.clock.Now()
	for s.win.confirm != nr {
		sl := &s.win.slots[s.win.confirm]
		if !sl.resent {
			s.rtt.Update(now.Sub(sl.sentAt))
		}
		s.stats.PacketsConfirmed++
		if s.cfg.OnSent != nil {
			s.cfg.OnSent(sl.payload)
		}
		sl.clear()
		s.win.confirm = (s.win.confirm + 1) & protocol.SeqMask
	}
	// Frames acknowledged past a rewound cursor need no retransmission
	if protocol.SeqDistance(s.win.confirm, s.win.next) > protocol.SeqDistance(s.win.confirm, s.win.last) {
		s.win.next = s.win.confirm
	}
	return true
}

func (s *Session) handleSABM(hdr protocol.Hdr) error {
	s.queueControl(protocol.NewUHdr(s.cfg.Address, protocol.UUA, false))
	// A repeated SABM means our UA was lost, keep the running sequence
	if s.state != Connected {
		s.dropControl(protocol.UDISC)
		s.resetSequence()
		s.setState(Connected)
	}
	return nil
}

func (s *Session) handleUA(hdr protocol.Hdr) error {
	switch s.state {
	case Connecting:
		s.setState(Connected)
	case Disconnecting:
		s.abandon()
		s.setState(Disconnected)
	}
	return nil
}

func (s *Session) handleDISC(hdr protocol.Hdr) error {
	s.queueControl(protocol.NewUHdr(s.cfg.Address, protocol.UUA, false))
	s.abandon()
	s.setState(Disconnected)
	return nil
}

func (s *Session) handleDM(hdr protocol.Hdr) error {
	switch s.state {
	case Disconnected:
		return nil
	case Connecting:
		s.dropControl(protocol.USABM)
		s.setState(Disconnected)
		return ErrConnectRefused
	}
	s.abandon()
	s.setState(Disconnected)
	return nil
}

func (s *Session) handleFRMR(hdr protocol.Hdr) error {
	s.logger.WithField("state", s.state).Warn("Peer rejected a frame")
	return nil
}
