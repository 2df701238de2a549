package p2p

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rudransh-shrivastava/ao-chat/internal/logger"
	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
)

var errHandshake = errors.New("handshake failed")

// tracker records strategy calls and the number of strategies holding
// resources.
type tracker struct {
	mu     sync.Mutex
	events []string
	active int
	max    int
}

func (tr *tracker) record(event string, delta int) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.events = append(tr.events, event)
	tr.active += delta
	if tr.active > tr.max {
		tr.max = tr.active
	}
}

type fakeStrategy struct {
	name    string
	initErr error
	connErr error
	tracker *tracker

	mu      sync.Mutex
	holding bool
}

func (f *fakeStrategy) Initialize(context.Context) error {
	if f.initErr != nil {
		f.tracker.record(f.name+":init-failed", 0)
		return f.initErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.holding {
		f.holding = true
		f.tracker.record(f.name+":init", 1)
	}
	return nil
}

func (f *fakeStrategy) CreateConnection(_ context.Context, peerID string) (*Session, error) {
	if f.connErr != nil {
		f.tracker.record(f.name+":connect-failed", 0)
		return nil, f.connErr
	}
	f.tracker.record(f.name+":connect", 0)
	return newSession(peerID, f.name, nil), nil
}

func (f *fakeStrategy) Cleanup(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holding {
		f.holding = false
		f.tracker.record(f.name+":cleanup", -1)
	}
	return nil
}

func (f *fakeStrategy) Describe() string { return f.name }

func newFakes(primaryErr, fallbackErr error) (*fakeStrategy, *fakeStrategy, *tracker) {
	tr := &tracker{}
	return &fakeStrategy{name: StrategyRouted, connErr: primaryErr, tracker: tr},
		&fakeStrategy{name: StrategyRelay, connErr: fallbackErr, tracker: tr},
		tr
}

func TestManagerPrimarySucceeds(t *testing.T) {
	primary, fallback, tr := newFakes(nil, nil)
	m := NewManager(primary, fallback, logger.Discard())

	s, err := m.CreateConnection(context.Background(), "bob")
	if err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}
	if s.Describe() != StrategyRouted {
		t.Errorf("Expected %s, got %s", StrategyRouted, s.Describe())
	}
	if m.State() != StateConnected {
		t.Errorf("Expected connected, got %s", m.State())
	}
	if m.CurrentStrategy() != StrategyRouted {
		t.Errorf("Expected current strategy %s, got %s", StrategyRouted, m.CurrentStrategy())
	}
	for _, e := range tr.events {
		if e == StrategyRelay+":init" {
			t.Error("Fallback should not be touched when primary succeeds")
		}
	}
}

func TestManagerFallsBack(t *testing.T) {
	primary, fallback, tr := newFakes(errHandshake, nil)
	m := NewManager(primary, fallback, logger.Discard())

	s, err := m.CreateConnection(context.Background(), "bob")
	if err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}
	if s.Describe() != StrategyRelay {
		t.Errorf("Expected %s, got %s", StrategyRelay, s.Describe())
	}
	if s.PeerID() != "bob" {
		t.Errorf("Expected peer bob, got %s", s.PeerID())
	}

	want := []string{
		"libp2p:init", "libp2p:connect-failed", "libp2p:cleanup",
		"stun:init", "stun:connect",
	}
	if len(tr.events) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, tr.events)
	}
	for i := range want {
		if tr.events[i] != want[i] {
			t.Errorf("Expected event %d to be %s, got %s", i, want[i], tr.events[i])
		}
	}
	if tr.max != 1 {
		t.Errorf("Expected at most one active strategy, got %d", tr.max)
	}
}

func TestManagerInitializeFailureFallsBack(t *testing.T) {
	primary, fallback, _ := newFakes(nil, nil)
	primary.initErr = errHandshake
	m := NewManager(primary, fallback, logger.Discard())

	s, err := m.CreateConnection(context.Background(), "bob")
	if err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}
	if s.Describe() != StrategyRelay {
		t.Errorf("Expected %s, got %s", StrategyRelay, s.Describe())
	}
}

func TestManagerExhausted(t *testing.T) {
	errRelay := errors.New("no answer")
	primary, fallback, tr := newFakes(errHandshake, errRelay)
	m := NewManager(primary, fallback, logger.Discard())

	_, err := m.CreateConnection(context.Background(), "bob")
	if !errors.Is(err, protocol.ErrStrategyExhausted) {
		t.Fatalf("Expected StrategyExhausted, got %v", err)
	}
	if !errors.Is(err, errHandshake) || !errors.Is(err, errRelay) {
		t.Errorf("Expected both strategy errors in %v", err)
	}
	if m.State() != StateFailed {
		t.Errorf("Expected failed, got %s", m.State())
	}
	if tr.active != 0 {
		t.Errorf("Expected no active strategies, got %d", tr.active)
	}
	if m.CurrentStrategy() != "" {
		t.Errorf("Expected no current strategy, got %s", m.CurrentStrategy())
	}
}

func TestManagerReconnectStartsFromPrimary(t *testing.T) {
	primary, fallback, tr := newFakes(errHandshake, nil)
	m := NewManager(primary, fallback, logger.Discard())

	first, err := m.CreateConnection(context.Background(), "bob")
	if err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}

	primary.connErr = nil
	s, err := m.Reconnect(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	if s.Describe() != StrategyRouted {
		t.Errorf("Expected reconnect to use %s, got %s", StrategyRouted, s.Describe())
	}
	if !first.Closed() {
		t.Error("Expected the previous session to be closed")
	}
	if tr.max != 1 {
		t.Errorf("Expected at most one active strategy, got %d", tr.max)
	}
}

func TestManagerCleanupFromAnyState(t *testing.T) {
	primary, fallback, tr := newFakes(errHandshake, errHandshake)
	m := NewManager(primary, fallback, logger.Discard())

	if err := m.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup before connecting failed: %v", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("Expected disconnected, got %s", m.State())
	}

	_, _ = m.CreateConnection(context.Background(), "bob")
	if err := m.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup after failure failed: %v", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("Expected disconnected, got %s", m.State())
	}

	fallback.connErr = nil
	s, _ := m.CreateConnection(context.Background(), "bob")
	if err := m.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup after connect failed: %v", err)
	}
	if !s.Closed() {
		t.Error("Expected session to be closed")
	}
	if tr.active != 0 {
		t.Errorf("Expected no active strategies, got %d", tr.active)
	}
}

func TestManagerCancelledContextSkipsFallback(t *testing.T) {
	primary, fallback, tr := newFakes(errHandshake, nil)
	m := NewManager(primary, fallback, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	primary.connErr = errHandshake
	cancel()

	_, err := m.CreateConnection(ctx, "bob")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context canceled, got %v", err)
	}
	for _, e := range tr.events {
		if e == StrategyRelay+":init" {
			t.Error("Fallback should not start after cancellation")
		}
	}
}

func TestStrategiesCleanupWithoutInitialize(t *testing.T) {
	routed := NewRoutedStrategy(RoutedConfig{Logger: logger.Discard()})
	relay := NewRelayStrategy(RelayConfig{Logger: logger.Discard()})

	for _, s := range []Strategy{routed, relay} {
		if err := s.Cleanup(context.Background()); err != nil {
			t.Errorf("%s Cleanup failed: %v", s.Describe(), err)
		}
		if err := s.Cleanup(context.Background()); err != nil {
			t.Errorf("%s second Cleanup failed: %v", s.Describe(), err)
		}
		if _, err := s.CreateConnection(context.Background(), "bob"); !errors.Is(err, ErrNotInitialized) {
			t.Errorf("%s: expected ErrNotInitialized, got %v", s.Describe(), err)
		}
	}
}
