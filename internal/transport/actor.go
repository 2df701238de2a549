package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
	"github.com/rudransh-shrivastava/ao-chat/internal/rpc"
	"github.com/tidwall/gjson"
)

var _ Signaler = (*ActorSignaler)(nil)

// Caller is the part of rpc.Client the actor signaler needs.
type Caller interface {
	Call(ctx context.Context, action protocol.Action, params map[string]any, target string, opts ...rpc.CallOption) protocol.Result
}

// ActorSignaler relays signals through the chat registry process. Publishing
// is fire-and-forget; polling waits for the registry's reply.
type ActorSignaler struct {
	caller  Caller
	process string
}

func NewActorSignaler(caller Caller, process string) *ActorSignaler {
	return &ActorSignaler{caller: caller, process: process}
}

func (s *ActorSignaler) Publish(ctx context.Context, sig Signal) error {
	res := s.caller.Call(ctx, protocol.ActionPublishSignal, map[string]any{
		"id":   sig.ID,
		"to":   sig.To,
		"kind": string(sig.Kind),
		"sdp":  sig.SDP,
	}, s.process)
	if err := res.Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", sig.Kind, sig.To, err)
	}
	return nil
}

func (s *ActorSignaler) Poll(ctx context.Context) ([]Signal, error) {
	res := s.caller.Call(ctx, protocol.ActionGetSignals, nil, s.process)
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("get signals: %w", err)
	}

	list := gjson.GetBytes(res.Data, "signals")
	if !list.Exists() {
		return nil, nil
	}
	var envelopes []protocol.SignalEnvelope
	if err := json.Unmarshal([]byte(list.Raw), &envelopes); err != nil {
		return nil, fmt.Errorf("decode signals: %w", err)
	}

	signals := make([]Signal, 0, len(envelopes))
	for _, e := range envelopes {
		signals = append(signals, Signal{
			ID:        e.ID,
			From:      e.From,
			To:        e.To,
			Kind:      SignalKind(e.Kind),
			SDP:       e.SDP,
			Timestamp: e.Timestamp,
		})
	}
	return signals, nil
}
