package p2p

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rudransh-shrivastava/ao-chat/internal/logger"
	"github.com/rudransh-shrivastava/ao-chat/internal/transport"
	rtc "github.com/rudransh-shrivastava/ao-chat/internal/transport/webrtc"
	"github.com/sirupsen/logrus"
)

type RelayConfig struct {
	Inbox *transport.Inbox
	RTC   rtc.Config
	Media rtc.MediaSource

	Attempts      int
	BaseDelay     time.Duration
	SignalTimeout time.Duration
	Sleep         func(ctx context.Context, d time.Duration) error
	Logger        *logrus.Logger
}

// RelayStrategy negotiates directly with STUN-gathered candidates, carrying
// the offer and answer through a transport.Signaler.
type RelayStrategy struct {
	config RelayConfig
	logger *logrus.Logger

	mu          sync.Mutex
	initialized bool
}

var _ Strategy = (*RelayStrategy)(nil)

func NewRelayStrategy(cfg RelayConfig) *RelayStrategy {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewLogger()
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.SignalTimeout <= 0 {
		cfg.SignalTimeout = defaultSignalTimeout
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	return &RelayStrategy{config: cfg, logger: cfg.Logger}
}

func (s *RelayStrategy) Describe() string { return StrategyRelay }

func (s *RelayStrategy) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.config.Inbox == nil {
		return errors.New("relay strategy needs a signal inbox")
	}
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return nil
}

func (s *RelayStrategy) CreateConnection(ctx context.Context, peerID string) (*Session, error) {
	s.mu.Lock()
	ready := s.initialized
	s.mu.Unlock()
	if !ready {
		return nil, ErrNotInitialized
	}

	var session *Session
	err := retry(ctx, s.config.Attempts, s.config.BaseDelay, s.config.Sleep, func(ctx context.Context) error {
		var err error
		session, err = s.dial(ctx, peerID)
		if err != nil {
			s.logger.WithField("peer", peerID).WithError(err).Debug("Relay negotiation attempt failed")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *RelayStrategy) dial(ctx context.Context, peerID string) (*Session, error) {
	conn, err := rtc.NewPeer(peerID, s.config.RTC, s.config.Media, s.logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.SignalTimeout)
	defer cancel()

	offer, err := conn.Offer(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	id := uuid.NewString()
	answers := make(chan transport.Signal, 1)
	waitErr := make(chan error, 1)
	go func() {
		sig, err := s.config.Inbox.Await(ctx, peerID, transport.SignalAnswer, id)
		if err != nil {
			waitErr <- err
			return
		}
		answers <- sig
	}()

	if err := s.config.Inbox.Signaler().Publish(ctx, transport.Signal{ID: id, To: peerID, Kind: transport.SignalOffer, SDP: offer}); err != nil {
		cancel()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to publish offer: %w", err)
	}

	select {
	case sig := <-answers:
		if err := conn.Accept(sig.SDP); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return newSession(peerID, StrategyRelay, conn), nil
	case err := <-waitErr:
		_ = conn.Close()
		return nil, fmt.Errorf("waiting for answer from %s: %w", peerID, err)
	}
}

// Answer accepts an incoming offer and publishes the answer.
func (s *RelayStrategy) Answer(ctx context.Context, offer transport.Signal) (*Session, error) {
	if s.config.Inbox == nil {
		return nil, ErrNotInitialized
	}
	conn, err := rtc.NewPeer(offer.From, s.config.RTC, s.config.Media, s.logger)
	if err != nil {
		return nil, err
	}

	answer, err := conn.Answer(ctx, offer.SDP)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := s.config.Inbox.Signaler().Publish(ctx, transport.Signal{ID: offer.ID, To: offer.From, Kind: transport.SignalAnswer, SDP: answer}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to publish answer: %w", err)
	}
	return newSession(offer.From, StrategyRelay, conn), nil
}

// Serve answers offers from the inbox until ctx is done.
func (s *RelayStrategy) Serve(ctx context.Context, deliver func(*Session)) error {
	if s.config.Inbox == nil {
		return ErrNotInitialized
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case offer := <-s.config.Inbox.Offers():
			log := s.logger.WithField("peer", offer.From)
			session, err := s.Answer(ctx, offer)
			if err != nil {
				log.WithError(err).Warn("Failed to answer relayed offer")
				continue
			}
			log.Info("Relayed call answered")
			deliver(session)
		}
	}
}

// Cleanup is safe to call at any time.
func (s *RelayStrategy) Cleanup(context.Context) error {
	s.mu.Lock()
	s.initialized = false
	s.mu.Unlock()
	return nil
}
