package p2p

import (
	"sync"

	"github.com/pion/webrtc/v3"
	rtc "github.com/rudransh-shrivastava/ao-chat/internal/transport/webrtc"
)

// Session is an established call with one peer.
type Session struct {
	peerID   string
	strategy string
	conn     *rtc.Peer

	mu     sync.Mutex
	closed bool
}

func newSession(peerID, strategy string, conn *rtc.Peer) *Session {
	return &Session{peerID: peerID, strategy: strategy, conn: conn}
}

func (s *Session) PeerID() string { return s.peerID }

// Describe names the strategy that established the session.
func (s *Session) Describe() string { return s.strategy }

func (s *Session) ToggleAudio(enabled bool) error {
	if s.conn == nil {
		return rtc.ErrNoTrack
	}
	return s.conn.SetAudio(enabled)
}

func (s *Session) ToggleVideo(enabled bool) error {
	if s.conn == nil {
		return rtc.ErrNoTrack
	}
	return s.conn.SetVideo(enabled)
}

func (s *Session) Send(data []byte) error {
	if s.conn == nil {
		return rtc.ErrNotOpen
	}
	return s.conn.Send(data)
}

func (s *Session) Recv() <-chan []byte {
	if s.conn == nil {
		return nil
	}
	return s.conn.Recv()
}

// Opened is closed once the session's data channel is usable.
func (s *Session) Opened() <-chan struct{} {
	if s.conn == nil {
		return nil
	}
	return s.conn.Opened()
}

// Done is closed when the underlying connection fails or is closed.
func (s *Session) Done() <-chan struct{} {
	if s.conn == nil {
		return nil
	}
	return s.conn.Done()
}

func (s *Session) OnTrack(fn func(*webrtc.TrackRemote)) {
	if s.conn != nil {
		s.conn.OnTrack(fn)
	}
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
