package actor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
)

type Kind string

const (
	KindRegistry Kind = "registry"
	KindChatroom Kind = "chatroom"
)

// ActionInvitationReceived notifies an invitee of a new invitation.
const ActionInvitationReceived protocol.Action = "InvitationReceived"

type reply struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func success(data any) reply {
	return reply{Success: true, Data: data}
}

func failure(format string, args ...any) reply {
	return reply{Success: false, Error: fmt.Sprintf(format, args...)}
}

type output struct {
	cursor int64
	msg    protocol.Message
}

// inbound is one verified message delivered to a process.
type inbound struct {
	id     string
	from   string
	action protocol.Action
	token  string
	params map[string]any
	now    int64
}

type Process struct {
	ID   string
	Kind Kind

	mu     sync.Mutex
	seen   map[string]protocol.Ack
	outbox []output
	next   int64

	// registry state
	contacts      map[string]map[string]protocol.Contact
	invitations   map[string][]protocol.Invitation
	sentNicknames map[string]string
	chatrooms     map[string]*protocol.Chatroom
	signals       map[string][]protocol.SignalEnvelope

	// chatroom state
	participants []string
	members      map[string]bool
	messages     []protocol.ChatMessage

	spawn func(participants []string) *Process
}

func newProcess(id string, kind Kind) *Process {
	return &Process{
		ID:            id,
		Kind:          kind,
		seen:          make(map[string]protocol.Ack),
		contacts:      make(map[string]map[string]protocol.Contact),
		invitations:   make(map[string][]protocol.Invitation),
		sentNicknames: make(map[string]string),
		chatrooms:     make(map[string]*protocol.Chatroom),
		signals:       make(map[string][]protocol.SignalEnvelope),
		members:       make(map[string]bool),
	}
}

// deliver runs one message through the process. A message id seen before is
// acknowledged again without being reprocessed.
func (p *Process) deliver(in inbound) protocol.Ack {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ack, ok := p.seen[in.id]; ok {
		return ack
	}

	r := p.handle(in)
	data, err := json.Marshal(r)
	if err != nil {
		data, _ = json.Marshal(failure("encode reply: %v", err))
	}
	p.emit(in.from, in.action.ResultAction(), in.token, data)

	ack := protocol.Ack{ID: in.id, Timestamp: in.now}
	p.seen[in.id] = ack
	return ack
}

func (p *Process) emit(target string, action protocol.Action, reference string, data []byte) {
	p.next++
	tags := []protocol.Tag{{Name: protocol.TagAction, Value: action.String()}}
	if reference != "" {
		tags = append(tags, protocol.Tag{Name: protocol.TagReference, Value: reference})
	}
	p.outbox = append(p.outbox, output{
		cursor: p.next,
		msg:    protocol.Message{Target: target, Tags: tags, Data: string(data)},
	})
}

// results returns up to limit outputs after cursor and the cursor of the last one.
func (p *Process) results(cursor string, limit int) ([]protocol.Event, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	after, _ := strconv.ParseInt(cursor, 10, 64)
	var events []protocol.Event
	last := cursor
	for _, o := range p.outbox {
		if o.cursor <= after {
			continue
		}
		if limit > 0 && len(events) >= limit {
			break
		}
		events = append(events, protocol.Event{
			ID:        p.ID + ":" + strconv.FormatInt(o.cursor, 10),
			Action:    protocol.Action(o.msg.Tag(protocol.TagAction)),
			Reference: o.msg.Tag(protocol.TagReference),
			From:      p.ID,
			Target:    o.msg.Target,
			Data:      []byte(o.msg.Data),
		})
		last = strconv.FormatInt(o.cursor, 10)
	}
	return events, last
}

func (p *Process) handle(in inbound) reply {
	if in.action == protocol.ActionHealthCheck {
		return success(map[string]any{"status": "ok", "process": p.ID, "kind": p.Kind})
	}
	if p.Kind == KindChatroom {
		return p.handleChatroom(in)
	}

	switch in.action {
	case protocol.ActionSendInvitation:
		return p.sendInvitation(in)
	case protocol.ActionAcceptInvitation:
		return p.acceptInvitation(in)
	case protocol.ActionRejectInvitation:
		return p.rejectInvitation(in)
	case protocol.ActionRemoveContact:
		return p.removeContact(in)
	case protocol.ActionUpdateNickname:
		return p.updateNickname(in)
	case protocol.ActionGetPendingInvitations:
		return success(map[string]any{"invitations": p.pendingFor(in.from)})
	case protocol.ActionGetContacts:
		return success(map[string]any{"contacts": p.contactsOf(in.from)})
	case protocol.ActionCreateChatroom:
		return p.createChatroom(in)
	case protocol.ActionAcceptChatroom:
		return p.acceptChatroom(in)
	case protocol.ActionGetChatrooms:
		return success(map[string]any{"chatrooms": p.chatroomsOf(in.from)})
	case protocol.ActionPublishSignal:
		return p.publishSignal(in)
	case protocol.ActionGetSignals:
		signals := p.signals[in.from]
		delete(p.signals, in.from)
		if signals == nil {
			signals = []protocol.SignalEnvelope{}
		}
		return success(map[string]any{"signals": signals})
	default:
		return failure("Unknown action: %s", in.action)
	}
}

func (p *Process) sendInvitation(in inbound) reply {
	to := param(in.params, "to")
	if to == "" {
		return failure("Missing recipient")
	}
	if to == in.from {
		return failure("Cannot invite yourself")
	}
	if _, ok := p.contacts[in.from][to]; ok {
		return failure("Already contacts")
	}
	for _, inv := range p.invitations[to] {
		if inv.From == in.from {
			return failure("Invitation already sent")
		}
	}

	inv := protocol.Invitation{From: in.from, Timestamp: in.now}
	p.invitations[to] = append(p.invitations[to], inv)
	p.sentNicknames[in.from+"|"+to] = param(in.params, "nickname")

	data, _ := json.Marshal(success(inv))
	p.emit(to, ActionInvitationReceived, "", data)
	return success(map[string]any{"to": to})
}

func (p *Process) acceptInvitation(in inbound) reply {
	from := param(in.params, "from")
	if !p.takeInvitation(in.from, from) {
		return failure("No pending invitation from %s", from)
	}

	p.addContact(in.from, protocol.Contact{Address: from, Nickname: param(in.params, "nickname"), Status: "active"})
	p.addContact(from, protocol.Contact{Address: in.from, Nickname: p.sentNicknames[from+"|"+in.from], Status: "active"})
	delete(p.sentNicknames, from+"|"+in.from)
	return success(map[string]any{"from": from})
}

func (p *Process) rejectInvitation(in inbound) reply {
	from := param(in.params, "from")
	if !p.takeInvitation(in.from, from) {
		return failure("No pending invitation from %s", from)
	}
	delete(p.sentNicknames, from+"|"+in.from)
	return success(map[string]any{"from": from})
}

func (p *Process) removeContact(in inbound) reply {
	address := param(in.params, "address")
	if _, ok := p.contacts[in.from][address]; !ok {
		return failure("Not a contact: %s", address)
	}
	delete(p.contacts[in.from], address)
	delete(p.contacts[address], in.from)
	return success(map[string]any{"address": address})
}

func (p *Process) updateNickname(in inbound) reply {
	address := param(in.params, "address")
	c, ok := p.contacts[in.from][address]
	if !ok {
		return failure("Not a contact: %s", address)
	}
	c.Nickname = param(in.params, "nickname")
	p.contacts[in.from][address] = c
	return reply{Success: true, Data: c}
}

func (p *Process) createChatroom(in inbound) reply {
	participant := param(in.params, "participant")
	if _, ok := p.contacts[in.from][participant]; !ok {
		return failure("Not a contact: %s", participant)
	}
	if p.spawn == nil {
		return failure("Chatrooms are not supported")
	}

	room := p.spawn([]string{in.from, participant})
	p.chatrooms[room.ID] = &protocol.Chatroom{
		ProcessID:    room.ID,
		Participants: []string{in.from, participant},
		CreatedAt:    in.now,
	}
	return success(map[string]any{"processId": room.ID})
}

func (p *Process) acceptChatroom(in inbound) reply {
	id := param(in.params, "processId")
	room, ok := p.chatrooms[id]
	if !ok || !contains(room.Participants, in.from) {
		return failure("No chatroom %s for %s", id, in.from)
	}
	room.Accepted = true
	return success(*room)
}

func (p *Process) publishSignal(in inbound) reply {
	to := param(in.params, "to")
	if to == "" {
		return failure("Missing recipient")
	}
	p.signals[to] = append(p.signals[to], protocol.SignalEnvelope{
		ID:        param(in.params, "id"),
		From:      in.from,
		To:        to,
		Kind:      param(in.params, "kind"),
		SDP:       param(in.params, "sdp"),
		Timestamp: in.now,
	})
	return success(nil)
}

func (p *Process) handleChatroom(in inbound) reply {
	if !contains(p.participants, in.from) {
		return failure("Not a participant")
	}

	switch in.action {
	case protocol.ActionJoin:
		p.members[in.from] = true
		return success(map[string]any{"members": len(p.members)})
	case protocol.ActionSend:
		encrypted, _ := in.params["encrypted"].(bool)
		msg := protocol.ChatMessage{
			ID:        in.id,
			Sender:    in.from,
			Content:   param(in.params, "content"),
			Timestamp: in.now,
			Status:    "sent",
			Encrypted: encrypted,
			IV:        param(in.params, "iv"),
		}
		p.messages = append(p.messages, msg)
		return success(map[string]any{"id": msg.ID})
	case protocol.ActionGetMessages:
		page, size := intParam(in.params, "page", 1), intParam(in.params, "pageSize", 20)
		start := (page - 1) * size
		end := start + size
		if start > len(p.messages) {
			start = len(p.messages)
		}
		if end > len(p.messages) {
			end = len(p.messages)
		}
		return success(map[string]any{
			"messages": append([]protocol.ChatMessage{}, p.messages[start:end]...),
			"page":     page,
			"pageSize": size,
			"total":    len(p.messages),
		})
	default:
		return failure("Unknown action: %s", in.action)
	}
}

func (p *Process) takeInvitation(invitee, from string) bool {
	list := p.invitations[invitee]
	for i, inv := range list {
		if inv.From == from {
			p.invitations[invitee] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Process) addContact(owner string, c protocol.Contact) {
	if p.contacts[owner] == nil {
		p.contacts[owner] = make(map[string]protocol.Contact)
	}
	p.contacts[owner][c.Address] = c
}

func (p *Process) pendingFor(address string) []protocol.Invitation {
	return append([]protocol.Invitation{}, p.invitations[address]...)
}

func (p *Process) contactsOf(address string) []protocol.Contact {
	contacts := []protocol.Contact{}
	for _, c := range p.contacts[address] {
		contacts = append(contacts, c)
	}
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].Address < contacts[j].Address })
	return contacts
}

func (p *Process) chatroomsOf(address string) []protocol.Chatroom {
	rooms := []protocol.Chatroom{}
	for _, r := range p.chatrooms {
		if contains(r.Participants, address) {
			rooms = append(rooms, *r)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ProcessID < rooms[j].ProcessID })
	return rooms
}

func param(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case float64:
		if v >= 1 {
			return int(v)
		}
	case int:
		if v >= 1 {
			return v
		}
	}
	return def
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
