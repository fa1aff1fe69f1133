package link

import (
	"errors"
	"io"
	"time"

	"hdlc-toolkit/arq"
	"hdlc-toolkit/util"
)

func (l *Link) runRoutine() {
	defer func() {
		l.stopped.Store(true)
		close(l.done)
		l.wg.Done()
		l.logger.Debug("Link routine done")
	}()
	for {
		select {
		case <-l.die:
			return
		default:
		}
		moved, err := l.step()
		if err != nil && l.handleError(err) {
			return
		}
		if moved > 0 || l.blocking {
			continue
		}
		timer := time.NewTimer(l.cfg.PollInterval)
		select {
		case <-l.kick:
		case <-timer.C:
		case <-l.die:
			timer.Stop()
			return
		}
		timer.Stop()
	}
}

// step runs one transmit pass and drains whatever the transport has
// buffered, then hands delivered packets to Recv outside the lock.
func (l *Link) step() (int, error) {
	l.mu.Lock()
	moved, err := l.sess.RunTx(l.cfg.PollInterval)
	if err == nil {
		var n int
		for {
			n, err = l.sess.RunRx(l.cfg.PollInterval)
			moved += n
			if n == 0 || err != nil {
				break
			}
		}
	}
	if err != nil {
		l.err = err
	}
	pending := l.inbox
	l.inbox = nil
	l.mu.Unlock()

	l.deliver(pending)
	return moved, err
}

// handleError reports whether the routine has to stop. Session failures
// leave the session disconnected and ready to be connected again;
// transport failures end the link.
func (l *Link) handleError(err error) bool {
	defer util.AsyncNotify(l.notify)

	var derr *arq.DeliveryError
	switch {
	case errors.As(err, &derr),
		errors.Is(err, arq.ErrConnectTimeout),
		errors.Is(err, arq.ErrConnectRefused),
		errors.Is(err, arq.ErrLinkTimeout):
		l.logger.WithError(err).Warn("Link down")
		return false
	case l.closed.Load():
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe):
		l.logger.Info("Transport closed")
		return true
	}
	l.logger.WithError(err).Error("Transport failed")
	return true
}
