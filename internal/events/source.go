// Package events reads actor output and routes it to waiting callers.
package events

import (
	"context"

	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
)

// Source delivers actor events to emit until ctx is done. Events may arrive
// out of order and more than once.
type Source interface {
	Run(ctx context.Context, emit func(protocol.Event)) error
}

// Channel is a Source fed by a Go channel.
type Channel chan protocol.Event

func (c Channel) Run(ctx context.Context, emit func(protocol.Event)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-c:
			if !ok {
				return nil
			}
			emit(ev)
		}
	}
}
