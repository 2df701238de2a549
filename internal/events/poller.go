package events

import (
	"context"
	"sync"
	"time"

	"github.com/rudransh-shrivastava/ao-chat/internal/logger"
	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
	"github.com/rudransh-shrivastava/ao-chat/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultPollLimit    = 100
)

type Fetcher interface {
	Results(ctx context.Context, process, cursor string, limit int) ([]protocol.Event, string, error)
}

type PollerOptions struct {
	Fetcher   Fetcher
	Processes []string
	Interval  time.Duration
	Limit     int
	Cursors   store.CursorRepository
	Logger    *logrus.Logger
}

// Poller is a Source that pages through the output of a set of processes.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	limit    int
	store    store.CursorRepository
	logger   *logrus.Logger

	mu        sync.Mutex
	processes map[string]bool
	cursors   map[string]string
}

func NewPoller(opts PollerOptions) *Poller {
	log := opts.Logger
	if log == nil {
		log = logger.NewLogger()
	}
	p := &Poller{
		fetcher:   opts.Fetcher,
		interval:  opts.Interval,
		limit:     opts.Limit,
		store:     opts.Cursors,
		logger:    log,
		processes: make(map[string]bool),
		cursors:   make(map[string]string),
	}
	if p.interval <= 0 {
		p.interval = defaultPollInterval
	}
	if p.limit <= 0 {
		p.limit = defaultPollLimit
	}
	for _, id := range opts.Processes {
		p.processes[id] = true
	}
	return p
}

// Watch adds a process to the polled set.
func (p *Poller) Watch(process string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processes[process] = true
}

func (p *Poller) Run(ctx context.Context, emit func(protocol.Event)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.Poll(ctx, emit)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll reads every watched process once, following pages until a short one.
func (p *Poller) Poll(ctx context.Context, emit func(protocol.Event)) {
	p.mu.Lock()
	processes := make([]string, 0, len(p.processes))
	for id := range p.processes {
		processes = append(processes, id)
	}
	p.mu.Unlock()

	for _, id := range processes {
		if ctx.Err() != nil {
			return
		}
		if err := p.pollProcess(ctx, id, emit); err != nil {
			p.logger.WithField("process", id).WithError(err).Warn("Failed to poll process results")
		}
	}
}

func (p *Poller) pollProcess(ctx context.Context, process string, emit func(protocol.Event)) error {
	cursor, err := p.cursor(ctx, process)
	if err != nil {
		return err
	}

	for {
		events, next, err := p.fetcher.Results(ctx, process, cursor, p.limit)
		if err != nil {
			return err
		}
		for _, ev := range events {
			emit(ev)
		}
		if next == cursor {
			return nil
		}
		if err := p.saveCursor(ctx, process, next); err != nil {
			return err
		}
		cursor = next
		if len(events) < p.limit {
			return nil
		}
	}
}

func (p *Poller) cursor(ctx context.Context, process string) (string, error) {
	p.mu.Lock()
	c, ok := p.cursors[process]
	p.mu.Unlock()
	if ok || p.store == nil {
		return c, nil
	}

	c, err := p.store.Cursor(ctx, process)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	p.cursors[process] = c
	p.mu.Unlock()
	return c, nil
}

func (p *Poller) saveCursor(ctx context.Context, process, cursor string) error {
	p.mu.Lock()
	p.cursors[process] = cursor
	p.mu.Unlock()
	if p.store == nil {
		return nil
	}
	return p.store.SaveCursor(ctx, process, cursor)
}
