package link

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"hdlc-toolkit/arq"
	"hdlc-toolkit/util"

	"github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("link: closed")

// Link drives an arq.Session from its own goroutine and offers blocking,
// context aware Connect, Send and Recv. It is safe for concurrent use.
type Link struct {
	t      arq.Transport
	cfg    Config
	sess   *arq.Session
	logger *logrus.Entry

	// Guards sess and err
	mu  sync.Mutex
	err error

	recvCh chan []byte
	notify chan struct{}
	kick   chan struct{}

	// Transports without read deadlines return right away, so the
	// routine sleeps between idle steps instead
	blocking bool

	// Packets delivered during a step, handed to recvCh once the lock
	// is released
	inbox [][]byte

	closed    atomic.Bool
	stopped   atomic.Bool
	closing   chan struct{}
	die       chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(t arq.Transport, cfg Config) (*Link, error) {
	cfg = sanitizeConfig(cfg)
	l := &Link{
		t:   t,
		cfg: cfg,
		logger: cfg.Logger.WithFields(logrus.Fields{
			"addr": cfg.Address,
		}),
		recvCh:  make(chan []byte, cfg.RecvBacklog),
		notify:  make(chan struct{}, 1),
		kick:    make(chan struct{}, 1),
		closing: make(chan struct{}),
		die:     make(chan struct{}),
		done:    make(chan struct{}),
	}
	_, l.blocking = t.(interface{ SetReadDeadline(time.Time) error })

	scfg := cfg.Config
	onReceive, onSent, onState := scfg.OnReceive, scfg.OnSent, scfg.OnStateChange
	scfg.OnReceive = func(p []byte) {
		if onReceive != nil {
			onReceive(p)
		}
		l.inbox = append(l.inbox, append([]byte(nil), p...))
	}
	scfg.OnSent = func(p []byte) {
		if onSent != nil {
			onSent(p)
		}
		util.AsyncNotify(l.notify)
	}
	scfg.OnStateChange = func(from, to arq.State) {
		if onState != nil {
			onState(from, to)
		}
		util.AsyncNotify(l.notify)
	}
	sess, err := arq.New(t, scfg)
	if err != nil {
		return nil, err
	}
	l.sess = sess

	l.wg.Add(1)
	go l.runRoutine()
	return l, nil
}

// Connect starts link establishment and waits until the peer answers,
// the attempt fails or ctx is done.
func (l *Link) Connect(ctx context.Context) error {
	if l.closed.Load() {
		return ErrClosed
	}
	l.mu.Lock()
	l.err = nil
	err := l.sess.Connect()
	l.mu.Unlock()
	if err != nil {
		return err
	}
	util.AsyncNotify(l.kick)
	return l.waitFor(ctx, func() (bool, error) {
		switch l.sess.State() {
		case arq.Connected:
			return true, nil
		case arq.Disconnected:
			if l.err != nil {
				return true, l.err
			}
			return true, arq.ErrNotConnected
		}
		return false, nil
	})
}

// Send queues p for delivery, waiting while the window is full. It
// returns once the payload is in the window, not when the peer confirms
// it.
func (l *Link) Send(ctx context.Context, p []byte) error {
	if l.closed.Load() {
		return ErrClosed
	}
	err := l.waitFor(ctx, func() (bool, error) {
		err := l.sess.Send(p)
		switch {
		case errors.Is(err, arq.ErrWindowFull):
			return false, nil
		case errors.Is(err, arq.ErrNotConnected) && l.err != nil:
			return true, l.err
		}
		return true, err
	})
	if err == nil {
		util.AsyncNotify(l.kick)
	}
	return err
}

// Recv returns the next packet delivered by the peer. Packets received
// before Close or a transport failure are still returned, then io.EOF or
// the transport error.
func (l *Link) Recv(ctx context.Context) ([]byte, error) {
	select {
	case p := <-l.recvCh:
		return p, nil
	default:
	}
	select {
	case p := <-l.recvCh:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		select {
		case p := <-l.recvCh:
			return p, nil
		default:
		}
		return nil, l.stopError()
	}
}

func (l *Link) stopError() error {
	err := l.Err()
	if l.closed.Load() || err == nil || errors.Is(err, io.EOF) {
		return io.EOF
	}
	return err
}

// Flush waits until every queued packet has been confirmed by the peer.
func (l *Link) Flush(ctx context.Context) error {
	return l.waitFor(ctx, func() (bool, error) {
		if l.sess.State() != arq.Connected {
			if l.err != nil {
				return true, l.err
			}
			return true, arq.ErrNotConnected
		}
		return l.sess.Window() == 0, nil
	})
}

// Close flushes outstanding packets, disconnects from the peer and stops
// the link routine. The transport is closed when it implements io.Closer.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.closing)
		err = l.shutdown()
		close(l.die)
		if c, ok := l.t.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		l.wg.Wait()
	})
	return err
}

func (l *Link) shutdown() error {
	if l.stopped.Load() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.CloseTimeout)
	defer cancel()

	if l.State() == arq.Connected {
		if err := l.Flush(ctx); err != nil {
			l.logger.WithError(err).Warn("Closing with unconfirmed packets")
		}
	}
	l.mu.Lock()
	state := l.sess.State()
	if state != arq.Disconnected {
		l.sess.Disconnect()
	}
	l.mu.Unlock()
	if state == arq.Disconnected {
		return nil
	}
	util.AsyncNotify(l.kick)

	ctx, cancel = context.WithTimeout(context.Background(), l.cfg.CloseTimeout)
	defer cancel()
	err := l.waitFor(ctx, func() (bool, error) {
		return l.sess.State() == arq.Disconnected, nil
	})
	if errors.Is(err, context.DeadlineExceeded) {
		l.logger.Warn("Peer did not confirm disconnect")
		return nil
	}
	return err
}

func (l *Link) State() arq.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess.State()
}

func (l *Link) Stats() arq.Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess.Stats()
}

// Err returns the error that last brought the link down, if any.
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// waitFor evaluates cond under the session lock until it reports done.
// It is re-evaluated whenever the session makes progress. Once the link
// routine has stopped it returns the error that stopped it.
func (l *Link) waitFor(ctx context.Context, cond func() (bool, error)) error {
	for {
		l.mu.Lock()
		var done bool
		var err error
		if l.stopped.Load() {
			done, err = true, ErrClosed
			if !l.closed.Load() && l.err != nil {
				err = l.err
			}
		} else {
			done, err = cond()
		}
		l.mu.Unlock()
		if done {
			return err
		}
		timer := time.NewTimer(l.cfg.PollInterval)
		select {
		case <-l.notify:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-l.done:
		}
		timer.Stop()
	}
}

func (l *Link) deliver(pending [][]byte) {
	for i, p := range pending {
		select {
		case l.recvCh <- p:
			continue
		default:
		}
		select {
		case l.recvCh <- p:
		case <-l.closing:
			l.logger.WithField("packets", len(pending)-i).Warn("Dropped packets on close")
			return
		}
	}
}
