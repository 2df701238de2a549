package transport

import (
	"context"
	"sync"
	"time"
)

var _ Signaler = (*memorySignaler)(nil)

// MemoryHub exchanges signals in process. Signalers obtained from the same
// hub can reach each other.
type MemoryHub struct {
	mu      sync.Mutex
	pending map[string][]Signal
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{pending: make(map[string][]Signal)}
}

// Signaler returns the signaler for the participant with the given address.
func (h *MemoryHub) Signaler(address string) Signaler {
	return &memorySignaler{hub: h, address: address}
}

type memorySignaler struct {
	hub     *MemoryHub
	address string
}

func (s *memorySignaler) Publish(ctx context.Context, sig Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sig.From = s.address
	if sig.Timestamp == 0 {
		sig.Timestamp = time.Now().UnixMilli()
	}

	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.pending[sig.To] = append(s.hub.pending[sig.To], sig)
	return nil
}

func (s *memorySignaler) Poll(ctx context.Context) ([]Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	signals := s.hub.pending[s.address]
	delete(s.hub.pending, s.address)
	return signals, nil
}
