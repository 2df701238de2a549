package rpc

import (
	"fmt"
	"time"

	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
)

const (
	defaultMaxRetries   = 3
	defaultBaseDelay    = time.Second
	defaultReplyTimeout = 10 * time.Second
)

// MaxBackoff caps the delay between attempts.
const MaxBackoff = 5 * time.Minute

type Config struct {
	// Process is the actor targeted when a call names no target.
	Process string
	// MaxRetries is how many times a failed attempt is retried.
	MaxRetries   int
	BaseDelay    time.Duration
	ReplyTimeout time.Duration
	ReplyActions []protocol.Action
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:   defaultMaxRetries,
		BaseDelay:    defaultBaseDelay,
		ReplyTimeout: defaultReplyTimeout,
		ReplyActions: append([]protocol.Action(nil), protocol.ReplyActions...),
	}
}

func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.BaseDelay < 0 {
		return fmt.Errorf("base delay must not be negative")
	}
	if c.ReplyTimeout <= 0 {
		return fmt.Errorf("reply timeout must be positive")
	}
	return nil
}

// Backoff is the delay before the given retry (1 for the first retry). It
// doubles per retry up to MaxBackoff.
func (c Config) Backoff(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	d := c.BaseDelay
	for i := 1; i < retry && d > 0 && d < MaxBackoff; i++ {
		d *= 2
	}
	return min(d, MaxBackoff)
}
