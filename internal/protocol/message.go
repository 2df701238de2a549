package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Request is a single action submitted to an actor. It is immutable once submitted.
type Request struct {
	Action   Action
	Params   map[string]any
	Token    string
	Target   string
	IssuedAt time.Time
}

type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Message is the wire form handed to the message unit.
type Message struct {
	Target string `json:"target"`
	Tags   []Tag  `json:"tags"`
	Data   string `json:"data"`
}

func (m Message) Tag(name string) string {
	for _, t := range m.Tags {
		if t.Name == name {
			return t.Value
		}
	}
	return ""
}

type SignedEnvelope struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Signature string `json:"signature"`
	Payload   []byte `json:"payload"`
}

// Submission is the body posted to a message unit.
type Submission struct {
	Target   string         `json:"target"`
	Envelope SignedEnvelope `json:"envelope"`
}

// Ack is the message unit's acknowledgement of a submission.
type Ack struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

// Event is one piece of actor output observed on the event stream.
type Event struct {
	ID        string `json:"id"`
	Action    Action `json:"action"`
	Reference string `json:"reference"`
	From      string `json:"from"`
	Target    string `json:"target"`
	Data      []byte `json:"data"`
}

type Result struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    ErrorCode       `json:"-"`
	Raw     []byte          `json:"-"`
	Variant DecodeVariant   `json:"-"`
}

// Failure builds a failed result from err, keeping its code when err is an *Error.
func Failure(err error) Result {
	code := ErrUnknown
	if e, ok := err.(*Error); ok {
		code = e.Code
	}
	return Result{Success: false, Error: err.Error(), Code: code}
}

// Err returns the result's failure as an *Error, or nil on success.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return &Error{Code: r.Code, Message: r.Error}
}

func (r Result) Into(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("result has no data")
	}
	return json.Unmarshal(r.Data, v)
}

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func WrapError(code ErrorCode, err error) *Error {
	return &Error{Code: code, Message: err.Error(), Err: err}
}

func (e *Error) Error() string {
	if e.Message == "" || e.Message == e.Code.String() {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case ErrorCode:
		return e.Code == t
	case *Error:
		return e.Code == t.Code
	}
	return false
}
