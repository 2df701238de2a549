package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/ao-chat/internal/logger"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotOpen = errors.New("data channel not open")
	ErrNoTrack = errors.New("no local track of that kind")
	ErrClosed  = errors.New("peer connection closed")
)

const recvBuffer = 256

// MediaSource provides the local tracks attached to a call. Either track may
// be nil.
type MediaSource interface {
	AudioTrack() webrtc.TrackLocal
	VideoTrack() webrtc.TrackLocal
}

type media struct {
	track   webrtc.TrackLocal
	sender  *webrtc.RTPSender
	enabled bool
}

// Peer is one side of a call.
type Peer struct {
	remote string
	config Config
	pc     *webrtc.PeerConnection
	logger *logrus.Logger

	mu      sync.Mutex
	dc      *webrtc.DataChannel
	audio   *media
	video   *media
	onTrack func(*webrtc.TrackRemote)

	recv      chan []byte
	opened    chan struct{}
	openOnce  sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

// NewPeer creates a peer connection to remote and attaches src's tracks.
func NewPeer(remote string, cfg Config, src MediaSource, log *logrus.Logger) (*Peer, error) {
	if log == nil {
		log = logger.NewLogger()
	}
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = defaultGatherTimeout
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}
	settings := webrtc.SettingEngine{}
	if cfg.IncludeLoopback {
		settings.SetIncludeLoopbackCandidate(true)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(settings))

	pc, err := api.NewPeerConnection(cfg.Configuration())
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	p := &Peer{
		remote: remote,
		config: cfg,
		pc:     pc,
		logger: log,
		recv:   make(chan []byte, recvBuffer),
		opened: make(chan struct{}),
		done:   make(chan struct{}),
	}

	if src != nil {
		if p.audio, err = p.attach(src.AudioTrack()); err != nil {
			_ = pc.Close()
			return nil, err
		}
		if p.video, err = p.attach(src.VideoTrack()); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.logger.WithFields(logrus.Fields{"peer": remote, "state": s.String()}).Debug("Peer connection state changed")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			p.shutdown()
		}
	})
	pc.OnDataChannel(p.setupDataChannel)
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.logger.WithFields(logrus.Fields{"peer": remote, "kind": track.Kind().String()}).Info("Remote track received")
		p.mu.Lock()
		fn := p.onTrack
		p.mu.Unlock()
		if fn != nil {
			fn(track)
		}
	})

	return p, nil
}

func (p *Peer) attach(track webrtc.TrackLocal) (*media, error) {
	if track == nil {
		return nil, nil
	}
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("failed to add %s track: %w", track.Kind(), err)
	}
	return &media{track: track, sender: sender, enabled: true}, nil
}

func (p *Peer) Remote() string { return p.remote }

// Offer creates the data channel and returns a complete offer.
func (p *Peer) Offer(ctx context.Context) (string, error) {
	dc, err := p.pc.CreateDataChannel(dataChannelLabel, DefaultDataChannelConfig())
	if err != nil {
		return "", fmt.Errorf("failed to create data channel: %w", err)
	}
	p.setupDataChannel(dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	return p.gather(ctx, offer)
}

// Answer applies a remote offer and returns a complete answer.
func (p *Peer) Answer(ctx context.Context, offer string) (string, error) {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
		return "", fmt.Errorf("failed to set remote description: %w", err)
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}
	return p.gather(ctx, answer)
}

// Accept applies the remote answer to an offer made with Offer.
func (p *Peer) Accept(answer string) error {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	return nil
}

// gather sets desc as the local description and waits for ICE gathering to
// finish so the returned SDP carries every candidate.
func (p *Peer) gather(ctx context.Context, desc webrtc.SessionDescription) (string, error) {
	complete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(desc); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	timer := time.NewTimer(p.config.GatherTimeout)
	defer timer.Stop()

	select {
	case <-complete:
	case <-timer.C:
		return "", fmt.Errorf("ICE gathering timed out after %s", p.config.GatherTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	case <-p.done:
		return "", ErrClosed
	}
	return p.pc.LocalDescription().SDP, nil
}

func (p *Peer) setupDataChannel(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.logger.Debugf("Data channel '%s'-'%d' open", dc.Label(), dc.ID())
		p.openOnce.Do(func() { close(p.opened) })
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case p.recv <- msg.Data:
		default:
			p.logger.WithField("peer", p.remote).Warn("Receive buffer full, dropping message")
		}
	})

	dc.OnError(func(err error) {
		p.logger.Errorf("Data channel error: %v", err)
	})

	dc.OnClose(func() {
		p.logger.Debugf("Data channel '%s'-'%d' closed", dc.Label(), dc.ID())
	})
}

func (p *Peer) Send(data []byte) error {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNotOpen
	}
	return dc.Send(data)
}

// Recv delivers data channel messages. It is never closed; use Done.
func (p *Peer) Recv() <-chan []byte { return p.recv }

// Opened is closed once the data channel is usable.
func (p *Peer) Opened() <-chan struct{} { return p.opened }

// Done is closed when the connection fails or is closed.
func (p *Peer) Done() <-chan struct{} { return p.done }

func (p *Peer) State() webrtc.PeerConnectionState { return p.pc.ConnectionState() }

func (p *Peer) OnTrack(fn func(*webrtc.TrackRemote)) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

func (p *Peer) SetAudio(enabled bool) error { return p.toggle(p.audio, enabled) }

func (p *Peer) SetVideo(enabled bool) error { return p.toggle(p.video, enabled) }

func (p *Peer) AudioEnabled() bool { return p.enabled(p.audio) }

func (p *Peer) VideoEnabled() bool { return p.enabled(p.video) }

// toggle detaches or re-attaches the local track on its sender. The
// transceiver stays negotiated, so no new offer is needed.
func (p *Peer) toggle(m *media, enabled bool) error {
	if m == nil {
		return ErrNoTrack
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if m.enabled == enabled {
		return nil
	}
	var track webrtc.TrackLocal
	if enabled {
		track = m.track
	}
	if err := m.sender.ReplaceTrack(track); err != nil {
		return fmt.Errorf("failed to replace %s track: %w", m.track.Kind(), err)
	}
	m.enabled = enabled
	return nil
}

func (p *Peer) enabled(m *media) bool {
	if m == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return m.enabled
}

func (p *Peer) shutdown() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *Peer) Close() error {
	p.shutdown()

	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	if dc != nil {
		_ = dc.Close()
	}
	return p.pc.Close()
}
