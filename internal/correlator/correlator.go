// Package correlator matches asynchronous actor replies to the requests that
// caused them.
package correlator

import (
	"sync"
	"time"

	"github.com/rudransh-shrivastava/ao-chat/internal/logger"
	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
	"github.com/sirupsen/logrus"
)

type Callback func(protocol.Result)

// Handle identifies one registration. A handle from an earlier registration
// never affects a later wait on the same token.
type Handle struct {
	token string
	id    uint64
}

func (h Handle) Token() string { return h.token }

type wait struct {
	id       uint64
	expect   protocol.Action
	deadline time.Time
	callback Callback
}

type Correlator struct {
	mu     sync.Mutex
	waits  map[string]*wait
	nextID uint64

	codec  *protocol.Codec
	logger *logrus.Logger
}

func New(log *logrus.Logger) *Correlator {
	if log == nil {
		log = logger.NewLogger()
	}
	return &Correlator{
		waits:  make(map[string]*wait),
		codec:  protocol.NewCodec(),
		logger: log,
	}
}

func (c *Correlator) RegisterWait(token string, expect protocol.Action, deadline time.Time, cb Callback) (Handle, error) {
	if token == "" || expect == "" || cb == nil {
		return Handle{}, protocol.NewError(protocol.ErrInvalidRequest, "token, expected action and callback are required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.waits[token]; ok {
		return Handle{}, protocol.NewError(protocol.ErrDuplicateToken, "token %s already has a pending wait", token)
	}

	c.nextID++
	c.waits[token] = &wait{
		id:       c.nextID,
		expect:   expect,
		deadline: deadline,
		callback: cb,
	}
	return Handle{token: token, id: c.nextID}, nil
}

// Resolve delivers ev to the wait registered for its reference token when the
// event's action is the one that wait expects. It reports whether a wait was
// resolved; unrelated events are ignored.
func (c *Correlator) Resolve(ev protocol.Event) bool {
	if ev.Reference == "" {
		return false
	}

	c.mu.Lock()
	w, ok := c.waits[ev.Reference]
	if !ok || w.expect != ev.Action {
		c.mu.Unlock()
		return false
	}
	delete(c.waits, ev.Reference)
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{"token": ev.Reference, "action": ev.Action, "event": ev.ID}).Debug("Resolved pending wait")
	w.callback(c.codec.Decode(ev.Data))
	return true
}

// Expire fails the wait behind h with Timeout if it is still pending.
func (c *Correlator) Expire(h Handle) bool {
	w, ok := c.take(h)
	if !ok {
		return false
	}
	c.logger.WithField("token", h.token).Debug("Pending wait expired")
	w.callback(protocol.Failure(protocol.NewError(protocol.ErrTimeout, "")))
	return true
}

// Cancel removes the wait for token, delivering a Cancelled result.
func (c *Correlator) Cancel(token string) bool {
	c.mu.Lock()
	w, ok := c.waits[token]
	if ok {
		delete(c.waits, token)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	w.callback(protocol.Failure(protocol.NewError(protocol.ErrCancelled, "")))
	return true
}

// Release removes the wait behind h, delivering a Cancelled result.
func (c *Correlator) Release(h Handle) bool {
	w, ok := c.take(h)
	if !ok {
		return false
	}
	w.callback(protocol.Failure(protocol.NewError(protocol.ErrCancelled, "")))
	return true
}

// Sweep expires every wait whose deadline is at or before now.
func (c *Correlator) Sweep(now time.Time) int {
	var overdue []*wait

	c.mu.Lock()
	for token, w := range c.waits {
		if w.deadline.IsZero() || w.deadline.After(now) {
			continue
		}
		delete(c.waits, token)
		overdue = append(overdue, w)
	}
	c.mu.Unlock()

	for _, w := range overdue {
		w.callback(protocol.Failure(protocol.NewError(protocol.ErrTimeout, "")))
	}
	return len(overdue)
}

func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waits)
}

func (c *Correlator) take(h Handle) (*wait, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.waits[h.token]
	if !ok || w.id != h.id {
		return nil, false
	}
	delete(c.waits, h.token)
	return w, true
}
