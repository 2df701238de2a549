package protocol

import (
	"sort"
	"strings"
)

type Contact struct {
	Address  string `json:"address"`
	Nickname string `json:"nickname,omitempty"`
	Name     string `json:"name,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Status   string `json:"status,omitempty"`
	Unread   int    `json:"unread,omitempty"`
}

type Invitation struct {
	From         string `json:"from"`
	FromNickname string `json:"fromNickname,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

type ChatMessage struct {
	ID        string `json:"id,omitempty"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status,omitempty"`
	Encrypted bool   `json:"encrypted,omitempty"`
	IV        string `json:"iv,omitempty"`
}

type Chatroom struct {
	ProcessID    string   `json:"processId"`
	Participants []string `json:"participants"`
	Accepted     bool     `json:"accepted"`
	CreatedAt    int64    `json:"createdAt,omitempty"`
}

// SignalEnvelope carries one offer or answer between two call participants.
type SignalEnvelope struct {
	ID        string `json:"id,omitempty"`
	From      string `json:"from"`
	To        string `json:"to"`
	Kind      string `json:"kind"`
	SDP       string `json:"sdp"`
	Timestamp int64  `json:"timestamp"`
}

// SessionID is the conversation key shared by both participants.
func SessionID(a, b string) string {
	addrs := []string{a, b}
	sort.Strings(addrs)
	return strings.Join(addrs, "_")
}
