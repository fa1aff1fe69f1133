package errors

import (
	"errors"
	"net"
	"os"
)

var ErrTimeout = errors.New("timeout")

// IsDeadlineError reports whether err is a read or write timeout, either
// ErrTimeout or a deadline error from a net.Conn or os.File.
func IsDeadlineError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
