package rpc

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
	"github.com/rudransh-shrivastava/ao-chat/internal/sealed"
	"github.com/tidwall/gjson"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
)

// Chat exposes the chat actor's actions as typed calls.
type Chat struct {
	client *Client
	box    *sealed.Box
}

// NewChat wraps client. When box is non-nil, chatroom messages are sealed
// before sending and opened after fetching.
func NewChat(client *Client, box *sealed.Box) *Chat {
	return &Chat{client: client, box: box}
}

func (c *Chat) SendInvitation(ctx context.Context, to, nickname string) protocol.Result {
	return c.client.Call(ctx, protocol.ActionSendInvitation, map[string]any{"to": to, "nickname": nickname}, "")
}

func (c *Chat) AcceptInvitation(ctx context.Context, from, nickname string) protocol.Result {
	return c.client.Call(ctx, protocol.ActionAcceptInvitation, map[string]any{"from": from, "nickname": nickname}, "")
}

func (c *Chat) RejectInvitation(ctx context.Context, from string) protocol.Result {
	return c.client.Call(ctx, protocol.ActionRejectInvitation, map[string]any{"from": from}, "")
}

func (c *Chat) RemoveContact(ctx context.Context, address string) protocol.Result {
	return c.client.Call(ctx, protocol.ActionRemoveContact, map[string]any{"address": address}, "")
}

func (c *Chat) UpdateNickname(ctx context.Context, address, nickname string) protocol.Result {
	return c.client.Call(ctx, protocol.ActionUpdateNickname, map[string]any{"address": address, "nickname": nickname}, "")
}

func (c *Chat) GetPendingInvitations(ctx context.Context) ([]protocol.Invitation, error) {
	var invitations []protocol.Invitation
	res := c.client.Call(ctx, protocol.ActionGetPendingInvitations, nil, "")
	if err := decodeList(res, "invitations", &invitations); err != nil {
		return nil, err
	}
	return invitations, nil
}

func (c *Chat) GetContacts(ctx context.Context) ([]protocol.Contact, error) {
	var contacts []protocol.Contact
	res := c.client.Call(ctx, protocol.ActionGetContacts, nil, "")
	if err := decodeList(res, "contacts", &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

func (c *Chat) CreateChatroom(ctx context.Context, participant string) protocol.Result {
	return c.client.Call(ctx, protocol.ActionCreateChatroom, map[string]any{"participant": participant}, "")
}

func (c *Chat) AcceptChatroom(ctx context.Context, processID string) protocol.Result {
	return c.client.Call(ctx, protocol.ActionAcceptChatroom, map[string]any{"processId": processID}, "")
}

func (c *Chat) GetChatrooms(ctx context.Context) ([]protocol.Chatroom, error) {
	var rooms []protocol.Chatroom
	res := c.client.Call(ctx, protocol.ActionGetChatrooms, nil, "")
	if err := decodeList(res, "chatrooms", &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (c *Chat) JoinChatroom(ctx context.Context, processID string) protocol.Result {
	return c.client.Call(ctx, protocol.ActionJoin, nil, processID)
}

func (c *Chat) SendMessage(ctx context.Context, processID, content string) protocol.Result {
	params := map[string]any{"content": content}
	if c.box != nil {
		ct, iv, err := c.box.Seal(content)
		if err != nil {
			return protocol.Failure(protocol.WrapError(protocol.ErrInvalidRequest, err))
		}
		params = map[string]any{"content": ct, "iv": iv, "encrypted": true}
	}
	return c.client.Call(ctx, protocol.ActionSend, params, processID)
}

// GetMessages fetches one page of a chatroom's history. Page and size fall
// back to 1 and 20 when not positive.
func (c *Chat) GetMessages(ctx context.Context, processID string, page, pageSize int) ([]protocol.ChatMessage, error) {
	if page < 1 {
		page = defaultPage
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}

	var messages []protocol.ChatMessage
	res := c.client.Call(ctx, protocol.ActionGetMessages, map[string]any{"page": page, "pageSize": pageSize}, processID)
	if err := decodeList(res, "messages", &messages); err != nil {
		return nil, err
	}

	if c.box == nil {
		return messages, nil
	}
	for i, m := range messages {
		if !m.Encrypted {
			continue
		}
		plain, err := c.box.Open(m.Content, m.IV)
		if err != nil {
			c.client.logger.WithField("message", m.ID).WithError(err).Warn("Failed to open message")
			continue
		}
		messages[i].Content = plain
		messages[i].Encrypted = false
		messages[i].IV = ""
	}
	return messages, nil
}

// CheckHealth reports whether the actor answered the health check successfully.
func (c *Chat) CheckHealth(ctx context.Context, processID string) bool {
	return c.client.Call(ctx, protocol.ActionHealthCheck, nil, processID).Success
}

// decodeList reads a list from a reply that is either the list itself or an
// object holding it under field. Any other shape is a DecodeFailure.
func decodeList(res protocol.Result, field string, v any) error {
	if !res.Success {
		return res.Err()
	}

	data := gjson.ParseBytes(res.Data)
	var raw string
	switch {
	case data.IsArray():
		raw = data.Raw
	case data.Get(field).Exists():
		raw = data.Get(field).Raw
	case data.Get("data." + field).Exists():
		raw = data.Get("data." + field).Raw
	case data.Type == gjson.Null && len(bytes.TrimSpace(res.Data)) > 0:
		return nil
	default:
		body := res.Raw
		if len(body) == 0 {
			body = res.Data
		}
		return protocol.NewError(protocol.ErrDecodeFailure, "reply has no %s list: %s", field, body)
	}

	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return protocol.WrapError(protocol.ErrDecodeFailure, err)
	}
	return nil
}
