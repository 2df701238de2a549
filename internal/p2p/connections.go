package p2p

import (
	"context"
	"errors"
	"sync"

	"github.com/rudransh-shrivastava/ao-chat/internal/logger"
	"github.com/sirupsen/logrus"
)

var ErrNoSession = errors.New("no session for peer")

// StrategyFactory builds the primary and fallback strategies for a call to
// peerID. Either may be nil.
type StrategyFactory func(peerID string) (primary, fallback Strategy)

// Connections keeps one Manager per peer.
type Connections struct {
	factory StrategyFactory
	logger  *logrus.Logger

	mu       sync.Mutex
	managers map[string]*Manager
}

func NewConnections(factory StrategyFactory, log *logrus.Logger) *Connections {
	if log == nil {
		log = logger.NewLogger()
	}
	return &Connections{
		factory:  factory,
		logger:   log,
		managers: make(map[string]*Manager),
	}
}

// Start returns the live session with peerID or negotiates a new one.
func (c *Connections) Start(ctx context.Context, peerID string) (*Session, error) {
	m := c.manager(peerID)
	if m.State() == StateConnected {
		if s := m.Session(); s != nil && !s.Closed() {
			return s, nil
		}
	}

	s, err := m.CreateConnection(ctx, peerID)
	if err != nil {
		c.forget(peerID, m)
		return nil, err
	}
	return s, nil
}

func (c *Connections) Reconnect(ctx context.Context, peerID string) (*Session, error) {
	m := c.manager(peerID)
	s, err := m.Reconnect(ctx, peerID)
	if err != nil {
		c.forget(peerID, m)
		return nil, err
	}
	return s, nil
}

// Close ends session and releases the strategy that created it.
func (c *Connections) Close(ctx context.Context, session *Session) error {
	c.mu.Lock()
	m, ok := c.managers[session.PeerID()]
	if ok && m.Session() == session {
		delete(c.managers, session.PeerID())
	} else {
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return session.Close()
	}
	return m.Cleanup(ctx)
}

func (c *Connections) Get(peerID string) (*Session, bool) {
	c.mu.Lock()
	m, ok := c.managers[peerID]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	s := m.Session()
	return s, s != nil
}

func (c *Connections) State(peerID string) State {
	c.mu.Lock()
	m, ok := c.managers[peerID]
	c.mu.Unlock()
	if !ok {
		return StateDisconnected
	}
	return m.State()
}

// CloseAll tears down every session.
func (c *Connections) CloseAll(ctx context.Context) error {
	c.mu.Lock()
	managers := c.managers
	c.managers = make(map[string]*Manager)
	c.mu.Unlock()

	var errs []error
	for _, m := range managers {
		errs = append(errs, m.Cleanup(ctx))
	}
	return errors.Join(errs...)
}

func (c *Connections) manager(peerID string) *Manager {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.managers[peerID]; ok {
		return m
	}
	primary, fallback := c.factory(peerID)
	m := NewManager(primary, fallback, c.logger)
	c.managers[peerID] = m
	return m
}

func (c *Connections) forget(peerID string, m *Manager) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.managers[peerID] == m {
		delete(c.managers, peerID)
	}
}
