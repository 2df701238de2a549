// Package signer produces and verifies signed message envelopes.
package signer

import (
	"context"
	"errors"

	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
)

// ErrUnavailable is returned when no signing key can be used.
var ErrUnavailable = errors.New("signer unavailable")

type Signer interface {
	Sign(ctx context.Context, payload []byte) (protocol.SignedEnvelope, error)
	Address() string
}

// Unavailable is a Signer with no key behind it.
type Unavailable struct{}

func (Unavailable) Sign(context.Context, []byte) (protocol.SignedEnvelope, error) {
	return protocol.SignedEnvelope{}, ErrUnavailable
}

func (Unavailable) Address() string { return "" }
