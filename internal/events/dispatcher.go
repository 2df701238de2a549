package events

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rudransh-shrivastava/ao-chat/internal/logger"
	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
	"github.com/rudransh-shrivastava/ao-chat/internal/store"
	"github.com/sirupsen/logrus"
)

const defaultSeenCacheSize = 4096

type Resolver interface {
	Resolve(ev protocol.Event) bool
}

type DispatcherOptions struct {
	Source   Source
	Resolver Resolver
	Seen     store.SeenRepository
	// CacheSize bounds the in-memory set of recently dispatched event ids.
	CacheSize int
	Logger    *logrus.Logger
}

// Dispatcher hands each distinct event to the resolver first and to
// subscribers when no pending wait claimed it.
type Dispatcher struct {
	source   Source
	resolver Resolver
	seen     *lru.Cache[string, struct{}]
	store    store.SeenRepository
	logger   *logrus.Logger

	mu          sync.RWMutex
	subscribers []func(protocol.Event)
}

func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = defaultSeenCacheSize
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	return &Dispatcher{
		source:   opts.Source,
		resolver: opts.Resolver,
		seen:     cache,
		store:    opts.Seen,
		logger:   log,
	}, nil
}

func (d *Dispatcher) Subscribe(fn func(protocol.Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers = append(d.subscribers, fn)
}

func (d *Dispatcher) Run(ctx context.Context) error {
	return d.source.Run(ctx, func(ev protocol.Event) {
		d.Dispatch(ctx, ev)
	})
}

// Dispatch routes ev and reports whether it resolved a pending wait.
// Events already dispatched are dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, ev protocol.Event) bool {
	if ev.ID != "" {
		if found, _ := d.seen.ContainsOrAdd(ev.ID, struct{}{}); found {
			return false
		}
		if d.store != nil {
			first, err := d.store.MarkSeen(ctx, ev.ID)
			if err != nil {
				d.logger.WithField("event", ev.ID).WithError(err).Warn("Failed to record event")
			} else if !first {
				return false
			}
		}
	}

	if d.resolver != nil && d.resolver.Resolve(ev) {
		return true
	}

	d.mu.RLock()
	subs := d.subscribers
	d.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
	return false
}
