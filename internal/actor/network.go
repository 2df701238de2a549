// Package actor is an in-process implementation of the chat actor and the
// message/compute unit endpoints in front of it.
package actor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rudransh-shrivastava/ao-chat/internal/logger"
	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
	"github.com/rudransh-shrivastava/ao-chat/internal/signer"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

var ErrUnknownProcess = errors.New("unknown process")

// Network routes signed envelopes to processes and serves their output.
type Network struct {
	mu        sync.RWMutex
	processes map[string]*Process
	spawned   uint64

	codec  *protocol.Codec
	now    func() time.Time
	logger *logrus.Logger
}

func NewNetwork(log *logrus.Logger) *Network {
	if log == nil {
		log = logger.NewLogger()
	}
	return &Network{
		processes: make(map[string]*Process),
		codec:     protocol.NewCodec(),
		now:       time.Now,
		logger:    log,
	}
}

// Registry creates the chat registry process with the given id.
func (n *Network) Registry(id string) *Process {
	n.mu.Lock()
	defer n.mu.Unlock()

	if p, ok := n.processes[id]; ok {
		return p
	}
	p := newProcess(id, KindRegistry)
	p.spawn = n.spawnChatroom
	n.processes[id] = p
	n.logger.WithField("process", id).Info("Registry process created")
	return p
}

func (n *Network) Process(id string) (*Process, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	p, ok := n.processes[id]
	return p, ok
}

func (n *Network) spawnChatroom(participants []string) *Process {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.spawned++
	seed := fmt.Sprintf("%v|%d|%d", participants, n.now().UnixNano(), n.spawned)
	sum := blake3.Sum256([]byte(seed))
	id := base64.RawURLEncoding.EncodeToString(sum[:])

	p := newProcess(id, KindChatroom)
	p.participants = append([]string(nil), participants...)
	n.processes[id] = p
	n.logger.WithFields(logrus.Fields{"process": id, "participants": participants}).Info("Chatroom process spawned")
	return p
}

func (n *Network) Submit(ctx context.Context, env protocol.SignedEnvelope, target string) (protocol.Ack, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Ack{}, err
	}

	from, err := signer.Verify(env)
	if err != nil {
		return protocol.Ack{}, err
	}

	msg, err := n.codec.DecodeMessage(env.Payload)
	if err != nil {
		return protocol.Ack{}, err
	}
	if msg.Target != target {
		return protocol.Ack{}, fmt.Errorf("envelope targets %s, not %s", msg.Target, target)
	}

	p, ok := n.Process(target)
	if !ok {
		return protocol.Ack{}, fmt.Errorf("%w: %s", ErrUnknownProcess, target)
	}

	action, params, err := n.codec.DecodeRequest([]byte(msg.Data))
	if err != nil {
		return protocol.Ack{}, err
	}

	n.logger.WithFields(logrus.Fields{"process": target, "action": action, "from": from}).Debug("Message delivered")
	return p.deliver(inbound{
		id:     env.ID,
		from:   from,
		action: action,
		token:  msg.Tag(protocol.TagReference),
		params: params,
		now:    n.now().UnixMilli(),
	}), nil
}

// Results returns the process output after cursor along with the cursor to
// resume from.
func (n *Network) Results(ctx context.Context, process, cursor string, limit int) ([]protocol.Event, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, cursor, err
	}
	p, ok := n.Process(process)
	if !ok {
		return nil, cursor, fmt.Errorf("%w: %s", ErrUnknownProcess, process)
	}
	events, next := p.results(cursor, limit)
	return events, next, nil
}
