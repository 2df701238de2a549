// Package node wires the chat client together: signing, the RPC client and
// its reply pipeline, and peer call negotiation.
package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rudransh-shrivastava/ao-chat/internal/ao"
	"github.com/rudransh-shrivastava/ao-chat/internal/config"
	"github.com/rudransh-shrivastava/ao-chat/internal/correlator"
	internaldb "github.com/rudransh-shrivastava/ao-chat/internal/db"
	"github.com/rudransh-shrivastava/ao-chat/internal/events"
	"github.com/rudransh-shrivastava/ao-chat/internal/logger"
	"github.com/rudransh-shrivastava/ao-chat/internal/p2p"
	"github.com/rudransh-shrivastava/ao-chat/internal/rpc"
	"github.com/rudransh-shrivastava/ao-chat/internal/sealed"
	"github.com/rudransh-shrivastava/ao-chat/internal/signer"
	"github.com/rudransh-shrivastava/ao-chat/internal/store"
	"github.com/rudransh-shrivastava/ao-chat/internal/transport"
	rtc "github.com/rudransh-shrivastava/ao-chat/internal/transport/webrtc"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const incomingBacklog = 8

// Network is the message and compute unit pair the node talks to.
type Network interface {
	rpc.Submitter
	events.Fetcher
}

type Options struct {
	Config *config.Config
	// Signer defaults to the key in Config.KeyFile.
	Signer signer.Signer
	// Network defaults to the HTTP client for Config.Endpoints.
	Network Network
	// Signaler defaults to signaling through the registry process.
	Signaler transport.Signaler
	Media    rtc.MediaSource
	// DB defaults to a database at Config.DBPath. Without either, cursors
	// and seen events are kept in memory only.
	DB     *gorm.DB
	Logger *logrus.Logger
}

type Node struct {
	config *config.Config
	logger *logrus.Logger
	signer signer.Signer

	db     *gorm.DB
	ownsDB bool
	seen   *store.SeenStore

	correlator  *correlator.Correlator
	rpc         *rpc.Client
	chat        *rpc.Chat
	poller      *events.Poller
	dispatcher  *events.Dispatcher
	inbox       *transport.Inbox
	listener    *p2p.RoutedStrategy
	answerer    *p2p.RelayStrategy
	connections *p2p.Connections
	incoming    chan *p2p.Session

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) (*Node, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		var err error
		if log, err = logger.New(os.Stderr, cfg.LogLevel); err != nil {
			return nil, err
		}
	}

	n := &Node{
		config:   cfg,
		logger:   log,
		incoming: make(chan *p2p.Session, incomingBacklog),
	}

	n.signer = opts.Signer
	if n.signer == nil {
		s, err := signer.LoadKeyFile(cfg.KeyFile)
		if err != nil {
			log.WithError(err).Warn("No wallet loaded, actions cannot be signed")
			n.signer = signer.Unavailable{}
		} else {
			n.signer = s
		}
	}

	if err := n.openDB(opts.DB); err != nil {
		return nil, err
	}

	network := opts.Network
	if network == nil {
		client, err := ao.NewClient(ao.Options{
			MUURL:  cfg.Endpoints.MUURL,
			CUURL:  cfg.Endpoints.CUURL,
			Logger: log,
		})
		if err != nil {
			n.closeDB()
			return nil, err
		}
		network = client
	}

	if err := n.setupRPC(network); err != nil {
		n.closeDB()
		return nil, err
	}

	signaler := opts.Signaler
	if signaler == nil {
		signaler = transport.NewActorSignaler(n.rpc, cfg.Endpoints.Process)
	}
	if err := n.setupCalls(signaler, opts.Media); err != nil {
		n.closeDB()
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"address": n.signer.Address(),
		"process": cfg.Endpoints.Process,
		"env":     cfg.Environment,
	}).Info("Node created")
	return n, nil
}

func (n *Node) openDB(gdb *gorm.DB) error {
	if gdb == nil && n.config.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(n.config.DBPath), 0o700); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		var err error
		if gdb, err = internaldb.Open(n.config.DBPath); err != nil {
			return err
		}
		n.ownsDB = true
	}
	n.db = gdb
	if gdb != nil {
		n.seen = store.NewSeenStore(gdb)
	}
	return nil
}

func (n *Node) closeDB() {
	if n.ownsDB && n.db != nil {
		if err := internaldb.Close(n.db); err != nil {
			n.logger.WithError(err).Warn("Failed to close database")
		}
	}
}

func (n *Node) setupRPC(network Network) error {
	cfg := n.config
	n.correlator = correlator.New(n.logger)

	client, err := rpc.New(rpc.Options{
		Config:     cfg.RPCConfig(),
		Signer:     n.signer,
		Submitter:  network,
		Correlator: n.correlator,
		Logger:     n.logger,
	})
	if err != nil {
		return err
	}
	n.rpc = client

	var box *sealed.Box
	if cfg.SharedKey != "" {
		key, err := sealed.ParseKey(cfg.SharedKey)
		if err != nil {
			return fmt.Errorf("shared key: %w", err)
		}
		if box, err = sealed.New(key); err != nil {
			return err
		}
	}
	n.chat = rpc.NewChat(client, box)

	pollerOpts := events.PollerOptions{
		Fetcher:   network,
		Processes: []string{cfg.Endpoints.Process},
		Interval:  cfg.Events.PollInterval,
		Limit:     cfg.Events.PageSize,
		Logger:    n.logger,
	}
	dispatcherOpts := events.DispatcherOptions{
		Resolver:  n.correlator,
		CacheSize: cfg.Events.CacheSize,
		Logger:    n.logger,
	}
	if n.db != nil {
		pollerOpts.Cursors = store.NewCursorStore(n.db)
		dispatcherOpts.Seen = n.seen
	}
	n.poller = events.NewPoller(pollerOpts)
	dispatcherOpts.Source = n.poller

	n.dispatcher, err = events.NewDispatcher(dispatcherOpts)
	return err
}

func (n *Node) setupCalls(signaler transport.Signaler, media rtc.MediaSource) error {
	cfg := n.config
	resolver, err := p2p.NewStaticResolver(cfg.P2P.Peers)
	if err != nil {
		return err
	}

	n.inbox = transport.NewInbox(signaler, cfg.P2P.SignalInterval, n.logger)
	rtcCfg := cfg.RTCConfig()
	self := n.signer.Address()

	n.listener = p2p.NewRoutedStrategy(p2p.RoutedConfig{
		Self:          self,
		ListenAddrs:   cfg.P2P.ListenAddrs,
		RTC:           rtcCfg,
		Media:         media,
		SignalTimeout: cfg.P2P.SignalTimeout,
		OnIncoming:    n.deliver,
		Logger:        n.logger,
	})
	relay := p2p.RelayConfig{
		Inbox:         n.inbox,
		RTC:           rtcCfg,
		Media:         media,
		Attempts:      cfg.P2P.Attempts,
		BaseDelay:     cfg.P2P.BaseDelay,
		SignalTimeout: cfg.P2P.SignalTimeout,
		Logger:        n.logger,
	}
	n.answerer = p2p.NewRelayStrategy(relay)

	n.connections = p2p.NewConnections(func(string) (p2p.Strategy, p2p.Strategy) {
		primary := p2p.NewRoutedStrategy(p2p.RoutedConfig{
			Self:          self,
			Resolver:      resolver,
			RTC:           rtcCfg,
			Media:         media,
			Attempts:      cfg.P2P.Attempts,
			BaseDelay:     cfg.P2P.BaseDelay,
			SignalTimeout: cfg.P2P.SignalTimeout,
			Logger:        n.logger,
		})
		return primary, p2p.NewRelayStrategy(relay)
	}, n.logger)
	return nil
}

func (n *Node) deliver(s *p2p.Session) {
	select {
	case n.incoming <- s:
	default:
		n.logger.WithField("peer", s.PeerID()).Warn("Incoming call backlog full, hanging up")
		_ = s.Close()
	}
}

func (n *Node) Address() string { return n.signer.Address() }

func (n *Node) RPC() *rpc.Client { return n.rpc }

func (n *Node) Chat() *rpc.Chat { return n.chat }

func (n *Node) Connections() *p2p.Connections { return n.connections }

// Incoming delivers sessions for calls answered by this node.
func (n *Node) Incoming() <-chan *p2p.Session { return n.incoming }

// Dispatcher exposes actor output that resolved no pending call, such as
// invitation notices.
func (n *Node) Dispatcher() *events.Dispatcher { return n.dispatcher }

// Watch adds a process, such as a joined chatroom, to the polled set.
func (n *Node) Watch(process string) { n.poller.Watch(process) }

// ListenAddrs are the libp2p addresses other peers can route calls to.
func (n *Node) ListenAddrs() []string { return n.listener.Addrs() }

// Start runs the reply pipeline and the call listeners in the background.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		return errors.New("node already started")
	}

	if len(n.config.P2P.ListenAddrs) > 0 {
		if err := n.listener.Initialize(ctx); err != nil {
			return err
		}
	}
	if err := n.answerer.Initialize(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.run(ctx, "dispatcher", n.dispatcher.Run)
	n.run(ctx, "signal inbox", n.inbox.Run)
	n.run(ctx, "relay answerer", func(ctx context.Context) error {
		return n.answerer.Serve(ctx, n.deliver)
	})
	n.run(ctx, "maintenance", n.maintain)

	n.logger.Info("Node started")
	return nil
}

func (n *Node) run(ctx context.Context, name string, fn func(context.Context) error) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			n.logger.WithError(err).Errorf("%s stopped", name)
		}
	}()
}

// maintain expires overdue waits and prunes old seen events.
func (n *Node) maintain(ctx context.Context) error {
	ticker := time.NewTicker(n.config.RPC.ReplyTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if swept := n.correlator.Sweep(now); swept > 0 {
				n.logger.WithField("count", swept).Debug("Swept expired waits")
			}
			if n.seen != nil && n.config.Events.SeenRetention > 0 {
				if _, err := n.seen.Prune(ctx, now.Add(-n.config.Events.SeenRetention)); err != nil {
					n.logger.WithError(err).Warn("Failed to prune seen events")
				}
			}
		}
	}
}

// Close stops background work, hangs up every call and closes the database.
func (n *Node) Close() error {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	n.wg.Wait()

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()

	var errs []error
	errs = append(errs, n.connections.CloseAll(ctx))
	errs = append(errs, n.listener.Cleanup(ctx))
	errs = append(errs, n.answerer.Cleanup(ctx))

drain:
	for {
		select {
		case s := <-n.incoming:
			errs = append(errs, s.Close())
		default:
			break drain
		}
	}

	n.closeDB()
	n.logger.Info("Node closed")
	return errors.Join(errs...)
}

// Health reports whether the registry process answers.
func (n *Node) Health(ctx context.Context) bool {
	return n.chat.CheckHealth(ctx, n.config.Endpoints.Process)
}
