package arq

import (
	"errors"
	"time"

	"hdlc-toolkit/arq/protocol"
	"hdlc-toolkit/hdlc"
	uerrors "hdlc-toolkit/util/errors"

	"github.com/sirupsen/logrus"
)

// RunTx evaluates the retransmission and keep-alive timers, then writes
// control frames followed by data frames until nothing is left or the
// transport stops accepting bytes. Each frame goes out in a single write
// when the transport takes it whole; a short write is resumed on the
// next call. It returns the number of bytes written.
//
// Timer failures are returned alongside any transport error: a
// *DeliveryError when a data frame exhausted its retries,
// ErrConnectTimeout, or ErrLinkTimeout. A timeout of zero or less leaves
// the transport deadline alone.
func (s *Session) RunTx(timeout time.Duration) (int, error) {
	now := s.clock.Now()
	timerErr := s.checkTimers(now)

	if d, ok := s.t.(writeDeadliner); ok && timeout > 0 {
		if err := d.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return 0, errors.Join(timerErr, err)
		}
	}

	written := 0
	for {
		if !s.enc.Busy() {
			ok, err := s.nextFrame(now)
			if err != nil {
				return written, errors.Join(timerErr, err)
			}
			if !ok {
				break
			}
		}
		n, err := s.t.Write(s.enc.Pending())
		s.enc.Advance(n)
		written += n
		if err != nil {
			if uerrors.IsDeadlineError(err) {
				break
			}
			return written, errors.Join(timerErr, err)
		}
		if n == 0 {
			break
		}
	}
	return written, timerErr
}

// nextFrame hands the next frame to the encoder. Control frames go
// first, then unsent data, then a standalone acknowledgment if the peer
// has not seen our latest N(R). It fails with hdlc.ErrBusy while the
// encoder still holds a partly written frame.
func (s *Session) nextFrame(now time.Time) (bool, error) {
	if s.enc.Busy() {
		return false, hdlc.ErrBusy
	}
	if len(s.ctrl) > 0 {
		hdr := s.ctrl[0]
		s.ctrl = append(s.ctrl[:0], s.ctrl[1:]...)
		if hdr.Kind() == protocol.KindU {
			switch hdr.Type() {
			case protocol.USABM, protocol.UDISC:
				s.ctrlSentAt = now
			}
		}
		return true, s.begin(hdr, nil)
	}
	if s.state != Connected {
		return false, nil
	}
	if s.win.hasUnsent() {
		seq, sl := s.win.take(now)
		if sl.resent {
			s.stats.Retransmits++
		}
		return true, s.begin(protocol.NewIHdr(s.cfg.Address, seq, s.nextNR), sl.payload)
	}
	if s.sentNR != s.nextNR || s.ackOwed {
		return true, s.begin(protocol.NewSHdr(s.cfg.Address, protocol.SRR, s.nextNR, false), nil)
	}
	return false, nil
}

func (s *Session) begin(hdr protocol.Hdr, payload []byte) error {
	s.body = append(append(s.body[:0], hdr[:]...), payload...)
	if err := s.enc.Begin(s.body); err != nil {
		return err
	}
	if hdr.Kind() != protocol.KindU {
		s.sentNR = hdr.NR()
		s.ackOwed = false
	}
	s.stats.FramesSent++
	s.logger.WithFields(logrus.Fields{
		"frame": hdr,
		"len":   len(payload),
	}).Debug("Sending frame")
	return nil
}

func (s *Session) checkTimers(now time.Time) error {
	switch s.state {
	case Connecting, Disconnecting:
		return s.checkControlTimer(now)
	case Connected:
		if err := s.checkRetransmit(now); err != nil {
			return err
		}
		return s.checkKeepAlive(now)
	}
	return nil
}

// checkControlTimer resends SABM or DISC until the peer answers or the
// retries run out.
func (s *Session) checkControlTimer(now time.Time) error {
	if s.ctrlSentAt.IsZero() || now.Sub(s.ctrlSentAt) < s.cfg.RetryTimeout {
		return nil
	}
	if s.ctrlRetries >= s.cfg.Retries {
		s.ctrlSentAt = time.Time{}
		if s.state == Connecting {
			s.dropControl(protocol.USABM)
			s.setState(Disconnected)
			return ErrConnectTimeout
		}
		s.dropControl(protocol.UDISC)
		s.abandon()
		s.setState(Disconnected)
		return nil
	}
	s.ctrlRetries++
	s.stats.ControlRetransmits++
	s.ctrlSentAt = time.Time{}
	typ := protocol.USABM
	if s.state == Disconnecting {
		typ = protocol.UDISC
	}
	s.queueControl(protocol.NewUHdr(s.cfg.Address, typ, true))
	return nil
}

// checkRetransmit goes back to the oldest unacknowledged frame once its
// timer expires and resends everything from there.
func (s *Session) checkRetransmit(now time.Time) error {
	sl := s.win.oldest()
	if sl == nil || !sl.sent || now.Sub(sl.sentAt) < s.cfg.RetryTimeout {
		return nil
	}
	seq := s.win.confirm
	if sl.retries >= s.cfg.Retries {
		s.logger.WithFields(logrus.Fields{
			"ns":      seq,
			"retries": sl.retries,
		}).Warn("Retries exhausted, dropping link")
		err := &DeliveryError{
			Seq:     seq,
			Retries: sl.retries,
			Payload: append([]byte(nil), sl.payload...),
		}
		pending := s.abandon()
		if len(pending) > 1 {
			err.Abandoned = pending[1:]
		}
		s.setState(Disconnected)
		return err
	}
	sl.retries++
	s.win.rewind()
	s.logger.WithFields(logrus.Fields{
		"ns":      seq,
		"retries": sl.retries,
	}).Debug("Retransmission timeout")
	return nil
}

func (s *Session) checkKeepAlive(now time.Time) error {
	if s.cfg.KeepAlive <= 0 {
		return nil
	}
	if s.polling {
		if now.Sub(s.pollSentAt) < s.cfg.KeepAlive {
			return nil
		}
		s.logger.Warn("Keep-alive timed out, dropping link")
		s.abandon()
		s.setState(Disconnected)
		return ErrLinkTimeout
	}
	if now.Sub(s.lastRecv) < s.cfg.KeepAlive {
		return nil
	}
	s.polling = true
	s.pollSentAt = now
	s.queueControl(protocol.NewSHdr(s.cfg.Address, protocol.SRR, s.nextNR, true))
	return nil
}
