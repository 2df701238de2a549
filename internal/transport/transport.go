// Package transport moves session descriptions between call participants.
package transport

import (
	"context"
	"errors"
)

type SignalKind string

const (
	SignalOffer  SignalKind = "offer"
	SignalAnswer SignalKind = "answer"
)

var ErrAlreadyWaiting = errors.New("already waiting for this signal")

// Signal carries one complete SDP offer or answer. Candidates are gathered
// before a description is published, so one offer and one answer are enough
// to connect.
type Signal struct {
	// ID names the offer. An answer carries the ID of the offer it answers.
	ID        string
	From      string
	To        string
	Kind      SignalKind
	SDP       string
	Timestamp int64
}

// Signaler publishes signals to other participants and collects the ones
// addressed to the local participant.
type Signaler interface {
	Publish(ctx context.Context, sig Signal) error
	// Poll returns the signals received since the previous call.
	Poll(ctx context.Context) ([]Signal, error)
}
