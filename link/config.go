package link

import (
	"time"

	"hdlc-toolkit/arq"
)

const (
	defaultPollInterval = 10 * time.Millisecond
	defaultRecvBacklog  = 16
)

type Config struct {
	arq.Config

	// Longest time the link routine waits on the transport per step
	PollInterval time.Duration
	// Received packets buffered until Recv picks them up
	RecvBacklog int
	// Time Close waits for outstanding packets and the disconnect
	// handshake. Derived from the retry settings when zero.
	CloseTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Config:       arq.DefaultConfig(),
		PollInterval: defaultPollInterval,
		RecvBacklog:  defaultRecvBacklog,
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.RecvBacklog < 0 {
		cfg.RecvBacklog = 0
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = cfg.RetryTimeout * time.Duration(cfg.Retries+1)
	}
	if cfg.Logger == nil {
		cfg.Logger = log
	}
	return cfg
}
