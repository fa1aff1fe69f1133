package arq

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("arq: not connected")
	ErrWindowFull       = errors.New("arq: window full")
	ErrPacketTooLarge   = errors.New("arq: packet exceeds mtu")
	ErrRetriesExhausted = errors.New("arq: retries exhausted")
	ErrConnectTimeout   = errors.New("arq: connect timed out")
	ErrConnectRefused   = errors.New("arq: connect refused by peer")
	ErrLinkTimeout      = errors.New("arq: keep-alive timed out")
)

// DeliveryError reports a data frame that was never acknowledged. The
// session is disconnected and every other outstanding payload is
// abandoned along with it.
type DeliveryError struct {
	Seq       uint8
	Retries   int
	Payload   []byte
	Abandoned [][]byte
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("arq: frame %d not acknowledged after %d retries", e.Seq, e.Retries)
}

func (e *DeliveryError) Unwrap() error {
	return ErrRetriesExhausted
}
