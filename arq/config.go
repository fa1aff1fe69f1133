package arq

import (
	"errors"
	"fmt"
	"time"

	"hdlc-toolkit/arq/protocol"
	"hdlc-toolkit/checksum"

	"github.com/sirupsen/logrus"
)

const (
	defaultWindow       = 4
	defaultRetries      = 3
	defaultRetryTimeout = 200 * time.Millisecond
	defaultKeepAlive    = 5 * time.Second
	defaultMTU          = 256

	maxAddress = 0x3F
)

var ErrInvalidConfig = errors.New("arq: invalid config")

// AckPolicy decides how received data frames are acknowledged.
type AckPolicy uint8

const (
	// Acknowledge in the N(R) field of the next outgoing data frame and
	// fall back to a dedicated RR frame when no data is ready.
	AckPiggyback AckPolicy = iota
	// Always send a dedicated RR frame after accepting a data frame.
	AckImmediate
)

func (p AckPolicy) String() string {
	if p == AckImmediate {
		return "immediate"
	}
	return "piggyback"
}

func ParseAckPolicy(s string) (AckPolicy, error) {
	switch s {
	case "piggyback", "":
		return AckPiggyback, nil
	case "immediate":
		return AckImmediate, nil
	}
	return AckPiggyback, fmt.Errorf("%w: unknown ack policy %q", ErrInvalidConfig, s)
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

type Config struct {
	// Frame check sequence, must match the peer
	Checksum checksum.Mode
	// Number of unacknowledged data frames allowed in flight, 1 to 7
	Window int
	// Retransmissions of a frame before the link is declared dead
	Retries int
	// Time to wait for an acknowledgment before retransmitting
	RetryTimeout time.Duration
	// Idle time before the link is probed with a poll.
	// Zero value disables keep-alive.
	KeepAlive time.Duration
	// Largest payload accepted by Send
	MTU int
	// Optional receive buffer. It must hold at least MTU bytes plus the
	// frame header and checksum. Allocated when nil.
	RxBuffer []byte
	AckPolicy AckPolicy
	// Station address, 0 to 63, shared by both ends of the link
	Address uint8

	// Time source for retransmission and keep-alive timers
	Clock Clock
	// Optional logger, defaults to the package logger
	Logger *logrus.Logger

	// Called with each payload delivered in order. The slice is only
	// valid during the call.
	OnReceive func(p []byte)
	// Called when the peer acknowledges a payload. The slice is only
	// valid during the call.
	OnSent func(p []byte)
	// Called on every state transition
	OnStateChange func(from, to State)
}

func DefaultConfig() Config {
	return Config{
		Checksum:     checksum.Default,
		Window:       defaultWindow,
		Retries:      defaultRetries,
		RetryTimeout: defaultRetryTimeout,
		KeepAlive:    defaultKeepAlive,
		MTU:          defaultMTU,
		AckPolicy:    AckPiggyback,
	}
}

// RxBufferSize returns the receive buffer size needed for the configured
// MTU and checksum.
func (cfg Config) RxBufferSize() int {
	return protocol.HdrSize + cfg.MTU + cfg.Checksum.Size()
}

func (cfg Config) Validate() error {
	switch {
	case !cfg.Checksum.Valid():
		return fmt.Errorf("%w: checksum %s", ErrInvalidConfig, cfg.Checksum)
	case cfg.Window < 1 || cfg.Window > protocol.MaxWindow:
		return fmt.Errorf("%w: window %d not in [1, %d]", ErrInvalidConfig, cfg.Window, protocol.MaxWindow)
	case cfg.Retries < 1:
		return fmt.Errorf("%w: retries must be positive", ErrInvalidConfig)
	case cfg.RetryTimeout <= 0:
		return fmt.Errorf("%w: retry timeout must be positive", ErrInvalidConfig)
	case cfg.KeepAlive < 0:
		return fmt.Errorf("%w: negative keep-alive", ErrInvalidConfig)
	case cfg.MTU < 1:
		return fmt.Errorf("%w: mtu must be positive", ErrInvalidConfig)
	case cfg.RxBuffer != nil && len(cfg.RxBuffer) < cfg.RxBufferSize():
		return fmt.Errorf("%w: rx buffer holds %d bytes, need %d", ErrInvalidConfig, len(cfg.RxBuffer), cfg.RxBufferSize())
	case cfg.Address > maxAddress:
		return fmt.Errorf("%w: address %d exceeds %d", ErrInvalidConfig, cfg.Address, maxAddress)
	case cfg.AckPolicy > AckImmediate:
		return fmt.Errorf("%w: ack policy %d", ErrInvalidConfig, cfg.AckPolicy)
	}
	return nil
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log
	}
	if cfg.RxBuffer == nil {
		cfg.RxBuffer = make([]byte, cfg.RxBufferSize())
	}
	return cfg
}
