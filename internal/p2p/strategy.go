// Package p2p negotiates peer call sessions, preferring a libp2p routed
// handshake and falling back to signaling through the actor with STUN.
package p2p

import (
	"context"
	"errors"
	"time"
)

const (
	StrategyRouted = "libp2p"
	StrategyRelay  = "stun"

	defaultAttempts      = 3
	defaultBaseDelay     = time.Second
	defaultSignalTimeout = 30 * time.Second

	maxBackoff = 5 * time.Minute
)

var (
	ErrNotInitialized = errors.New("strategy not initialized")
	ErrUnknownPeer    = errors.New("no route to peer")
)

// Strategy is one way of establishing a session with a peer.
//
// Cleanup must be safe to call at any time, including before Initialize and
// more than once.
type Strategy interface {
	Initialize(ctx context.Context) error
	CreateConnection(ctx context.Context, peerID string) (*Session, error)
	Cleanup(ctx context.Context) error
	Describe() string
}

// retry runs fn up to attempts times, sleeping base<<(n-1) after the nth
// failure. The last error is returned.
func retry(ctx context.Context, attempts int, base time.Duration, sleep func(context.Context, time.Duration) error, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for n := 1; n <= attempts; n++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if n < attempts {
			if serr := sleep(ctx, backoff(base, n)); serr != nil {
				return err
			}
		}
	}
	return err
}

// backoff doubles base for every attempt after the first, capped at maxBackoff.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d > 0 && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
