package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
	"github.com/rudransh-shrivastava/ao-chat/internal/sealed"
)

// replyWith resolves every reply-needing submission with data.
func replyWith(c *Client, sub *fakeSubmitter, data func(msg protocol.Message) string) {
	sub.onMsg = func(msg protocol.Message) {
		action := protocol.Action(msg.Tag(protocol.TagAction))
		if !c.NeedsReply(action) {
			return
		}
		go c.Correlator().Resolve(protocol.Event{
			Action:    action.ResultAction(),
			Reference: msg.Tag(protocol.TagReference),
			Data:      []byte(data(msg)),
		})
	}
}

func TestChatGetContacts(t *testing.T) {
	sub := &fakeSubmitter{}
	c, _ := newTestClient(t, sub, time.Second)
	replyWith(c, sub, func(protocol.Message) string {
		return `{"success":true,"contacts":[{"address":"addr-b","nickname":"bob"}]}`
	})

	contacts, err := NewChat(c, nil).GetContacts(context.Background())
	if err != nil {
		t.Fatalf("GetContacts failed: %v", err)
	}
	if len(contacts) != 1 || contacts[0].Nickname != "bob" {
		t.Errorf("Unexpected contacts %+v", contacts)
	}
}

func TestChatGetPendingInvitationsNested(t *testing.T) {
	sub := &fakeSubmitter{}
	c, _ := newTestClient(t, sub, time.Second)
	replyWith(c, sub, func(protocol.Message) string {
		return `{"success":true,"data":{"invitations":[{"from":"addr-c","timestamp":5}]}}`
	})

	invitations, err := NewChat(c, nil).GetPendingInvitations(context.Background())
	if err != nil {
		t.Fatalf("GetPendingInvitations failed: %v", err)
	}
	if len(invitations) != 1 || invitations[0].From != "addr-c" {
		t.Errorf("Unexpected invitations %+v", invitations)
	}
}

func TestChatRejectedReplyIsError(t *testing.T) {
	sub := &fakeSubmitter{}
	c, _ := newTestClient(t, sub, time.Second)
	replyWith(c, sub, func(protocol.Message) string {
		return `{"success":false,"error":"not a participant"}`
	})

	_, err := NewChat(c, nil).GetChatrooms(context.Background())
	if err == nil || err.Error() != "Rejected: not a participant" {
		t.Errorf("Expected rejection error, got %v", err)
	}
}

func TestChatSendMessageEncrypts(t *testing.T) {
	box, err := sealed.New(bytes.Repeat([]byte{3}, sealed.KeySize))
	if err != nil {
		t.Fatalf("sealed.New failed: %v", err)
	}

	var stored map[string]any
	var target string
	sub := &fakeSubmitter{}
	c, _ := newTestClient(t, sub, time.Second)
	sub.onMsg = func(msg protocol.Message) {
		_, params, err := protocol.NewCodec().DecodeRequest([]byte(msg.Data))
		if err != nil {
			t.Errorf("DecodeRequest failed: %v", err)
			return
		}
		stored = params
		target = msg.Target
	}

	res := NewChat(c, box).SendMessage(context.Background(), "room-1", "hello")
	if !res.Success {
		t.Fatalf("SendMessage failed: %s", res.Error)
	}
	if target != "room-1" {
		t.Errorf("Expected target room-1, got %s", target)
	}
	if stored["content"] == "hello" || stored["encrypted"] != true {
		t.Errorf("Expected sealed content, got %v", stored)
	}

	// the stored ciphertext comes back through GetMessages
	msg, _ := json.Marshal([]map[string]any{{
		"id": "m1", "sender": "addr-a", "content": stored["content"], "iv": stored["iv"], "encrypted": true,
	}})
	replyWith(c, sub, func(protocol.Message) string {
		return `{"success":true,"data":{"messages":` + string(msg) + `}}`
	})

	messages, err := NewChat(c, box).GetMessages(context.Background(), "room-1", 0, 0)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "hello" || messages[0].Encrypted {
		t.Errorf("Expected opened message, got %+v", messages)
	}
}

func TestChatCheckHealth(t *testing.T) {
	sub := &fakeSubmitter{}
	c, _ := newTestClient(t, sub, time.Second)
	replyWith(c, sub, func(protocol.Message) string { return `{"success":true}` })

	if !NewChat(c, nil).CheckHealth(context.Background(), "process-1") {
		t.Error("Expected healthy actor")
	}
}

func TestChatUnexpectedListShapeIsDecodeFailure(t *testing.T) {
	sub := &fakeSubmitter{}
	c, _ := newTestClient(t, sub, time.Second)
	replyWith(c, sub, func(protocol.Message) string {
		return `{"success":true,"data":{"people":[{"address":"addr-b"}]}}`
	})

	contacts, err := NewChat(c, nil).GetContacts(context.Background())
	if !errors.Is(err, protocol.ErrDecodeFailure) {
		t.Fatalf("Expected DecodeFailure, got %v (%+v)", err, contacts)
	}
	if !strings.Contains(err.Error(), "people") {
		t.Errorf("Expected error to carry the reply, got %q", err.Error())
	}
}

func TestDecodeListNull(t *testing.T) {
	var contacts []protocol.Contact
	if err := decodeList(protocol.Result{Success: true, Data: []byte("null")}, "contacts", &contacts); err != nil {
		t.Errorf("Expected null to decode as an empty list, got %v", err)
	}
	if len(contacts) != 0 {
		t.Errorf("Expected no contacts, got %+v", contacts)
	}
}
