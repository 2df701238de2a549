package p2p

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	libp2pprotocol "github.com/libp2p/go-libp2p/core/protocol"
	"github.com/rudransh-shrivastava/ao-chat/internal/logger"
	"github.com/rudransh-shrivastava/ao-chat/internal/transport"
	rtc "github.com/rudransh-shrivastava/ao-chat/internal/transport/webrtc"
	"github.com/sirupsen/logrus"
)

// SignalProtocol is the libp2p protocol carrying offer/answer frames.
const SignalProtocol libp2pprotocol.ID = "/ao-chat/signal/1.0.0"

type RoutedConfig struct {
	// Self is the local chat address sent with offers.
	Self        string
	ListenAddrs []string
	Resolver    Resolver
	RTC         rtc.Config
	Media       rtc.MediaSource

	Attempts      int
	BaseDelay     time.Duration
	SignalTimeout time.Duration
	Sleep         func(ctx context.Context, d time.Duration) error

	// OnIncoming receives sessions answered on this host. Without it incoming
	// offers are refused.
	OnIncoming func(*Session)
	Logger     *logrus.Logger
}

// RoutedStrategy exchanges the offer and answer over a libp2p stream to the
// peer's host.
type RoutedStrategy struct {
	config RoutedConfig
	logger *logrus.Logger

	mu   sync.Mutex
	host host.Host
}

var _ Strategy = (*RoutedStrategy)(nil)

func NewRoutedStrategy(cfg RoutedConfig) *RoutedStrategy {
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
	return &RoutedStrategy{config: cfg, logger: cfg.Logger}
}

func (s *RoutedStrategy) Describe() string { return StrategyRouted }

// Initialize starts the libp2p host. Calling it again is a no-op.
func (s *RoutedStrategy) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.host != nil {
		return nil
	}

	opts := []libp2p.Option{}
	if len(s.config.ListenAddrs) > 0 {
		opts = append(opts, libp2p.ListenAddrStrings(s.config.ListenAddrs...))
	} else {
		opts = append(opts, libp2p.NoListenAddrs)
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to start libp2p host: %w", err)
	}
	h.SetStreamHandler(SignalProtocol, s.handleStream)
	s.host = h

	s.logger.WithFields(logrus.Fields{"id": h.ID().String(), "addrs": h.Addrs()}).Info("libp2p host started")
	return nil
}

// Addrs returns the host's dialable /p2p addresses.
func (s *RoutedStrategy) Addrs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.host == nil {
		return nil
	}
	addrs := make([]string, 0, len(s.host.Addrs()))
	for _, a := range s.host.Addrs() {
		addrs = append(addrs, a.String()+"/p2p/"+s.host.ID().String())
	}
	return addrs
}

func (s *RoutedStrategy) CreateConnection(ctx context.Context, peerID string) (*Session, error) {
	s.mu.Lock()
	h := s.host
	s.mu.Unlock()
	if h == nil {
		return nil, ErrNotInitialized
	}
	if s.config.Resolver == nil {
		return nil, fmt.Errorf("%w: no resolver configured", ErrUnknownPeer)
	}

	var session *Session
	err := retry(ctx, s.config.Attempts, s.config.BaseDelay, s.config.Sleep, func(ctx context.Context) error {
		var err error
		session, err = s.dial(ctx, h, peerID)
		if err != nil {
			s.logger.WithField("peer", peerID).WithError(err).Debug("Routed handshake attempt failed")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *RoutedStrategy) dial(ctx context.Context, h host.Host, peerID string) (*Session, error) {
	info, err := s.config.Resolver.Resolve(ctx, peerID)
	if err != nil {
		return nil, err
	}
	if err := h.Connect(ctx, info); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", info.ID, err)
	}

	stream, err := h.NewStream(ctx, info.ID, SignalProtocol)
	if err != nil {
		return nil, fmt.Errorf("failed to open signaling stream: %w", err)
	}
	defer stream.Close()
	_ = stream.SetDeadline(s.deadline(ctx))

	conn, err := rtc.NewPeer(peerID, s.config.RTC, s.config.Media, s.logger)
	if err != nil {
		return nil, err
	}

	answer, err := s.exchange(ctx, stream, conn)
	if err != nil {
		_ = conn.Close()
		_ = stream.Reset()
		return nil, err
	}
	if err := conn.Accept(answer); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return newSession(peerID, StrategyRouted, conn), nil
}

func (s *RoutedStrategy) exchange(ctx context.Context, stream network.Stream, conn *rtc.Peer) (string, error) {
	offer, err := conn.Offer(ctx)
	if err != nil {
		return "", err
	}
	if err := writeFrame(stream, frame{Kind: transport.SignalOffer, From: s.config.Self, SDP: offer}); err != nil {
		return "", fmt.Errorf("failed to send offer: %w", err)
	}

	reply, err := readFrame(stream)
	if err != nil {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	if reply.Kind != transport.SignalAnswer {
		return "", fmt.Errorf("expected answer, got %q", reply.Kind)
	}
	return reply.SDP, nil
}

func (s *RoutedStrategy) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(s.config.SignalTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(d) {
		return dl
	}
	return d
}

func (s *RoutedStrategy) handleStream(stream network.Stream) {
	defer stream.Close()

	remote := stream.Conn().RemotePeer()
	log := s.logger.WithField("remote", remote.String())

	if s.config.OnIncoming == nil {
		log.Warn("Refusing routed offer, not accepting calls")
		_ = stream.Reset()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.SignalTimeout)
	defer cancel()
	_ = stream.SetDeadline(s.deadline(ctx))

	offer, err := readFrame(stream)
	if err != nil || offer.Kind != transport.SignalOffer {
		log.WithError(err).Warn("Invalid routed offer")
		_ = stream.Reset()
		return
	}

	conn, err := rtc.NewPeer(offer.From, s.config.RTC, s.config.Media, s.logger)
	if err != nil {
		log.WithError(err).Error("Failed to create peer connection")
		_ = stream.Reset()
		return
	}
	answer, err := conn.Answer(ctx, offer.SDP)
	if err == nil {
		err = writeFrame(stream, frame{Kind: transport.SignalAnswer, From: s.config.Self, SDP: answer})
	}
	if err != nil {
		log.WithError(err).Warn("Failed to answer routed offer")
		_ = conn.Close()
		_ = stream.Reset()
		return
	}

	log.WithField("peer", offer.From).Info("Routed call answered")
	s.config.OnIncoming(newSession(offer.From, StrategyRouted, conn))
}

// Cleanup stops the host. It is safe to call at any time.
func (s *RoutedStrategy) Cleanup(context.Context) error {
	s.mu.Lock()
	h := s.host
	s.host = nil
	s.mu.Unlock()

	if h == nil {
		return nil
	}
	h.RemoveStreamHandler(SignalProtocol)
	return h.Close()
}
