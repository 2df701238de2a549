package p2p

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rudransh-shrivastava/ao-chat/internal/logger"
	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/rudransh-shrivastava/ao-chat/internal/p2p"

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
)

// Manager negotiates a single call session, trying the primary strategy
// first and the fallback when it fails. At most one strategy holds
// resources at any time.
type Manager struct {
	mu         sync.Mutex
	strategies []Strategy
	active     Strategy
	session    *Session
	state      State

	logger *logrus.Logger
	tracer trace.Tracer
}

func NewManager(primary, fallback Strategy, log *logrus.Logger) *Manager {
	if log == nil {
		log = logger.NewLogger()
	}
	var strategies []Strategy
	for _, s := range []Strategy{primary, fallback} {
		if s != nil {
			strategies = append(strategies, s)
		}
	}
	return &Manager{
		strategies: strategies,
		state:      StateDisconnected,
		logger:     log,
		tracer:     otel.Tracer(tracerName),
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentStrategy describes the strategy holding resources, or "" if none.
func (m *Manager) CurrentStrategy() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.Describe()
}

func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// CreateConnection negotiates a session with peerID. When every strategy
// fails the manager ends in StateFailed and the error matches
// protocol.ErrStrategyExhausted.
func (m *Manager) CreateConnection(ctx context.Context, peerID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, span := m.tracer.Start(ctx, "p2p.CreateConnection", trace.WithAttributes(
		attribute.String("p2p.peer", peerID),
	))
	defer span.End()

	if m.active != nil || m.session != nil {
		_ = m.cleanupLocked(ctx)
	}

	var errs []error
	for _, s := range m.strategies {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		name := s.Describe()
		m.state = StateConnecting
		m.active = s
		log := m.logger.WithFields(logrus.Fields{"peer": peerID, "strategy": name})
		log.Info("Connecting")

		session, err := m.connect(ctx, s, peerID)
		if err == nil {
			m.session = session
			m.state = StateConnected
			span.SetAttributes(attribute.String("p2p.strategy", name))
			log.Info("Connected")
			return session, nil
		}

		log.WithError(err).Warn("Strategy failed")
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
		if cerr := s.Cleanup(ctx); cerr != nil {
			log.WithError(cerr).Warn("Strategy cleanup failed")
		}
		m.active = nil
	}

	m.state = StateFailed
	err := &protocol.Error{
		Code:    protocol.ErrStrategyExhausted,
		Message: fmt.Sprintf("all strategies failed for %s", peerID),
		Err:     errors.Join(errs...),
	}
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}

func (m *Manager) connect(ctx context.Context, s Strategy, peerID string) (*Session, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return s.CreateConnection(ctx, peerID)
}

// Reconnect tears down the current session and strategy and negotiates
// again starting from the primary strategy.
func (m *Manager) Reconnect(ctx context.Context, peerID string) (*Session, error) {
	m.logger.WithField("peer", peerID).Info("Reconnecting")
	if err := m.Cleanup(ctx); err != nil {
		m.logger.WithError(err).Warn("Cleanup before reconnect failed")
	}
	return m.CreateConnection(ctx, peerID)
}

// Cleanup releases the session and the active strategy. It is safe from any
// state and always ends in StateDisconnected.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanupLocked(ctx)
}

func (m *Manager) cleanupLocked(ctx context.Context) error {
	var errs []error
	if m.session != nil {
		if err := m.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session: %w", err))
		}
		m.session = nil
	}
	if m.active != nil {
		if err := m.active.Cleanup(ctx); err != nil {
			errs = append(errs, fmt.Errorf("cleanup %s: %w", m.active.Describe(), err))
		}
		m.active = nil
	}
	m.state = StateDisconnected
	return errors.Join(errs...)
}
