package node

import (
	"context"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/ao-chat/internal/actor"
	"github.com/rudransh-shrivastava/ao-chat/internal/config"
	"github.com/rudransh-shrivastava/ao-chat/internal/logger"
	"github.com/rudransh-shrivastava/ao-chat/internal/p2p"
	"github.com/rudransh-shrivastava/ao-chat/internal/signer"
)

const registryID = "registry"

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.DBPath = ""
	cfg.KeyFile = ""
	cfg.Endpoints.Process = registryID
	cfg.Events.PollInterval = 20 * time.Millisecond
	cfg.RPC.BaseDelay = 10 * time.Millisecond
	cfg.RPC.ReplyTimeout = 5 * time.Second
	cfg.P2P.ListenAddrs = nil
	cfg.P2P.STUNServers = nil
	cfg.P2P.IncludeLoopback = true
	cfg.P2P.Attempts = 1
	cfg.P2P.BaseDelay = 10 * time.Millisecond
	cfg.P2P.SignalInterval = 20 * time.Millisecond
	cfg.P2P.SignalTimeout = 15 * time.Second
	return cfg
}

func newTestNode(t *testing.T, network *actor.Network) *Node {
	t.Helper()
	key, err := signer.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	s, err := signer.NewEd25519Signer(key)
	if err != nil {
		t.Fatalf("NewEd25519Signer failed: %v", err)
	}

	n, err := New(Options{
		Config:  testConfig(),
		Signer:  s,
		Network: network,
		Logger:  logger.Discard(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func setupNodes(t *testing.T) (*Node, *Node) {
	network := actor.NewNetwork(logger.Discard())
	network.Registry(registryID)
	return newTestNode(t, network), newTestNode(t, network)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.P2P.Attempts = 0
	if _, err := New(Options{Config: cfg, Network: actor.NewNetwork(logger.Discard()), Logger: logger.Discard()}); err == nil {
		t.Fatal("Expected error for invalid config")
	}
}

func TestNewWithoutWallet(t *testing.T) {
	cfg := testConfig()
	cfg.KeyFile = t.TempDir() + "/missing.json"
	n, err := New(Options{Config: cfg, Network: actor.NewNetwork(logger.Discard()), Logger: logger.Discard()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer n.Close()

	if n.Address() != "" {
		t.Errorf("Expected empty address without a wallet, got %s", n.Address())
	}
	res := n.Chat().SendInvitation(context.Background(), "someone", "nick")
	if res.Success {
		t.Error("Expected unsigned call to fail")
	}
}

func TestStartTwice(t *testing.T) {
	n, _ := setupNodes(t)
	if err := n.Start(context.Background()); err == nil {
		t.Error("Expected error starting a running node")
	}
}

func TestInvitationThroughNodes(t *testing.T) {
	alice, bob := setupNodes(t)
	ctx := context.Background()

	if res := alice.Chat().SendInvitation(ctx, bob.Address(), "bob"); !res.Success {
		t.Fatalf("SendInvitation failed: %v", res.Err())
	}

	invitations, err := bob.Chat().GetPendingInvitations(ctx)
	if err != nil {
		t.Fatalf("GetPendingInvitations failed: %v", err)
	}
	if len(invitations) != 1 || invitations[0].From != alice.Address() {
		t.Fatalf("Expected one invitation from alice, got %+v", invitations)
	}

	if res := bob.Chat().AcceptInvitation(ctx, alice.Address(), "alice"); !res.Success {
		t.Fatalf("AcceptInvitation failed: %v", res.Err())
	}

	contacts, err := alice.Chat().GetContacts(ctx)
	if err != nil {
		t.Fatalf("GetContacts failed: %v", err)
	}
	if len(contacts) != 1 || contacts[0].Address != bob.Address() {
		t.Errorf("Expected bob as alice's contact, got %+v", contacts)
	}

	if !alice.Health(ctx) {
		t.Error("Expected registry to be healthy")
	}
}

func TestCallFallsBackToRelay(t *testing.T) {
	alice, bob := setupNodes(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := alice.Connections().Start(ctx, bob.Address())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.Describe() != p2p.StrategyRelay {
		t.Errorf("Expected %s, got %s", p2p.StrategyRelay, s.Describe())
	}
	if got := alice.Connections().State(bob.Address()); got != p2p.StateConnected {
		t.Errorf("Expected %s, got %s", p2p.StateConnected, got)
	}

	select {
	case in := <-bob.Incoming():
		if in.PeerID() != alice.Address() {
			t.Errorf("Expected call from %s, got %s", alice.Address(), in.PeerID())
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for incoming call")
	}

	if err := alice.Connections().Close(ctx, s); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if got := alice.Connections().State(bob.Address()); got != p2p.StateDisconnected {
		t.Errorf("Expected %s, got %s", p2p.StateDisconnected, got)
	}
}
