package transport

import (
	"context"
	"sync"
	"time"

	"github.com/rudransh-shrivastava/ao-chat/internal/logger"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPollInterval = time.Second
	offerBacklog        = 16
)

// Inbox polls a Signaler and routes what arrives: answers and other awaited
// signals go to their waiter, unsolicited offers to Offers.
type Inbox struct {
	signaler Signaler
	interval time.Duration
	logger   *logrus.Logger

	mu      sync.Mutex
	waiters map[string]waiter
	pending map[string]Signal
	offers  chan Signal
}

func NewInbox(signaler Signaler, interval time.Duration, log *logrus.Logger) *Inbox {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = logger.NewLogger()
	}
	return &Inbox{
		signaler: signaler,
		interval: interval,
		logger:   log,
		waiters:  make(map[string]waiter),
		pending:  make(map[string]Signal),
		offers:   make(chan Signal, offerBacklog),
	}
}

func (i *Inbox) Signaler() Signaler { return i.signaler }

// Offers delivers offers nobody was waiting for, i.e. incoming calls.
func (i *Inbox) Offers() <-chan Signal { return i.offers }

// Run polls until ctx is done.
func (i *Inbox) Run(ctx context.Context) error {
	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	for {
		if err := i.Poll(ctx); err != nil && ctx.Err() == nil {
			i.logger.WithError(err).Warn("Failed to poll signals")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll fetches and routes one batch of signals.
func (i *Inbox) Poll(ctx context.Context) error {
	signals, err := i.signaler.Poll(ctx)
	if err != nil {
		return err
	}
	for _, sig := range signals {
		i.route(sig)
	}
	return nil
}

type waiter struct {
	id string
	ch chan Signal
}

// matches reports whether sig belongs to the exchange identified by id. An
// empty id accepts any signal.
func matches(id string, sig Signal) bool {
	return id == "" || sig.ID == id
}

// Await blocks until a signal of kind with the given id arrives from the
// given participant. A matching signal that arrived before Await was called
// is returned immediately; one with another id is stale and dropped.
func (i *Inbox) Await(ctx context.Context, from string, kind SignalKind, id string) (Signal, error) {
	key := waitKey(from, kind)

	i.mu.Lock()
	if sig, ok := i.pending[key]; ok {
		delete(i.pending, key)
		if matches(id, sig) {
			i.mu.Unlock()
			return sig, nil
		}
		i.logger.WithFields(logrus.Fields{"from": from, "id": sig.ID}).Debug("Dropping stale signal")
	}
	if _, ok := i.waiters[key]; ok {
		i.mu.Unlock()
		return Signal{}, ErrAlreadyWaiting
	}
	w := waiter{id: id, ch: make(chan Signal, 1)}
	i.waiters[key] = w
	i.mu.Unlock()

	select {
	case sig := <-w.ch:
		return sig, nil
	case <-ctx.Done():
		i.mu.Lock()
		if i.waiters[key].ch == w.ch {
			delete(i.waiters, key)
		}
		i.mu.Unlock()
		return Signal{}, ctx.Err()
	}
}

func (i *Inbox) route(sig Signal) {
	key := waitKey(sig.From, sig.Kind)

	i.mu.Lock()
	defer i.mu.Unlock()

	if w, ok := i.waiters[key]; ok {
		if !matches(w.id, sig) {
			i.logger.WithFields(logrus.Fields{"from": sig.From, "id": sig.ID}).Debug("Dropping stale signal")
			return
		}
		delete(i.waiters, key)
		w.ch <- sig
		return
	}

	if sig.Kind == SignalOffer {
		select {
		case i.offers <- sig:
		default:
			i.logger.WithField("from", sig.From).Warn("Dropping offer, backlog full")
		}
		return
	}

	// Only the latest unclaimed signal per sender and kind is kept.
	i.pending[key] = sig
}

func waitKey(from string, kind SignalKind) string {
	return from + "|" + string(kind)
}
