package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

type payload struct {
	Action Action         `json:"action"`
	Params map[string]any `json:"params"`
}

type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

// Encode serializes an action and its parameters. Map keys are emitted in
// sorted order so equal inputs always produce equal bytes.
func (c *Codec) Encode(action Action, params map[string]any) ([]byte, error) {
	if action == "" {
		return nil, NewError(ErrInvalidRequest, "action is required")
	}
	if params == nil {
		params = map[string]any{}
	}
	data, err := json.Marshal(payload{Action: action, Params: params})
	if err != nil {
		return nil, WrapError(ErrInvalidRequest, err)
	}
	return data, nil
}

// DecodeRequest is the inverse of Encode.
func (c *Codec) DecodeRequest(data []byte) (Action, map[string]any, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", nil, WrapError(ErrDecodeFailure, err)
	}
	if p.Action == "" {
		return "", nil, NewError(ErrDecodeFailure, "payload has no action")
	}
	if p.Params == nil {
		p.Params = map[string]any{}
	}
	return p.Action, p.Params, nil
}

// EncodeMessage builds the wire message for req and returns it with its
// serialized form, which is what gets signed.
func (c *Codec) EncodeMessage(req Request) (Message, []byte, error) {
	if req.Target == "" {
		return Message{}, nil, NewError(ErrInvalidRequest, "target is required")
	}
	data, err := c.Encode(req.Action, req.Params)
	if err != nil {
		return Message{}, nil, err
	}

	msg := Message{
		Target: req.Target,
		Tags: []Tag{
			{Name: TagDataProtocol, Value: DataProtocol},
			{Name: TagVariant, Value: Variant},
			{Name: TagType, Value: TypeMessage},
			{Name: TagAction, Value: req.Action.String()},
			{Name: TagReference, Value: req.Token},
			{Name: TagIssuedAt, Value: strconv.FormatInt(req.IssuedAt.UnixMilli(), 10)},
		},
		Data: string(data),
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return Message{}, nil, WrapError(ErrInvalidRequest, err)
	}
	return msg, raw, nil
}

func (c *Codec) DecodeMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, WrapError(ErrDecodeFailure, err)
	}
	return msg, nil
}

type decodeAttempt struct {
	variant DecodeVariant
	match   func(c *Codec, v gjson.Result, depth int) (Result, bool)
}

// decodeAttempts is tried in order; the first structural match wins. It is a
// function because matchNestedOutputString decodes recursively.
func decodeAttempts() []decodeAttempt {
	return []decodeAttempt{
		{VariantDirectSuccess, matchDirectSuccess},
		{VariantNestedOutputString, matchNestedOutputString},
		{VariantNestedOutputObject, matchNestedOutputObject},
		{VariantOpaquePassthrough, matchOpaque},
	}
}

// Decode normalizes a reply into a Result. It never fails; undecodable input
// yields a DecodeFailure result carrying the raw bytes.
func (c *Codec) Decode(raw []byte) Result {
	res := c.decode(raw, 0)
	res.Raw = raw
	return res
}

func (c *Codec) decode(raw []byte, depth int) Result {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return decodeFailure("empty reply")
	}
	if !gjson.ValidBytes(trimmed) {
		return decodeFailure("reply is not valid JSON")
	}

	v := gjson.ParseBytes(trimmed)
	if v.Type == gjson.String {
		if depth >= maxUnwrapDepth {
			return decodeFailure("reply is nested too deeply")
		}
		inner := strings.TrimSpace(v.String())
		if gjson.Valid(inner) {
			return c.decode([]byte(inner), depth+1)
		}
	}

	for _, attempt := range decodeAttempts() {
		if res, ok := attempt.match(c, v, depth); ok {
			res.Variant = attempt.variant
			return res
		}
	}
	return decodeFailure("no decoder matched")
}

func matchDirectSuccess(_ *Codec, v gjson.Result, _ int) (Result, bool) {
	if !v.IsObject() {
		return Result{}, false
	}
	success := v.Get("success")
	if !success.Exists() {
		return Result{}, false
	}

	res := Result{Success: success.Bool(), Data: json.RawMessage(v.Raw)}
	if data := v.Get("data"); data.Exists() {
		res.Data = json.RawMessage(data.Raw)
	}
	if !res.Success {
		res.Code = ErrRejected
		res.Error = v.Get("error").String()
		if res.Error == "" {
			res.Error = "actor reported failure"
		}
	}
	return res, true
}

func matchNestedOutputString(c *Codec, v gjson.Result, depth int) (Result, bool) {
	out := outputField(v)
	if out.Type != gjson.String || depth >= maxUnwrapDepth {
		return Result{}, false
	}
	inner := strings.TrimSpace(out.String())
	if !gjson.Valid(inner) {
		return Result{}, false
	}
	res := c.decode([]byte(inner), depth+1)
	if res.Code == ErrDecodeFailure {
		return Result{}, false
	}
	return res, true
}

func matchNestedOutputObject(c *Codec, v gjson.Result, depth int) (Result, bool) {
	out := outputField(v)
	if !out.IsObject() {
		return Result{}, false
	}
	data := out.Get("data")
	if !data.Exists() {
		return Result{}, false
	}
	if data.Type == gjson.String && depth < maxUnwrapDepth {
		inner := strings.TrimSpace(data.String())
		if gjson.Valid(inner) {
			if res := c.decode([]byte(inner), depth+1); res.Code != ErrDecodeFailure {
				return res, true
			}
		}
	}
	return Result{Success: true, Data: json.RawMessage(data.Raw)}, true
}

func matchOpaque(_ *Codec, v gjson.Result, _ int) (Result, bool) {
	return Result{Success: true, Data: json.RawMessage(v.Raw)}, true
}

func outputField(v gjson.Result) gjson.Result {
	if !v.IsObject() {
		return gjson.Result{}
	}
	if out := v.Get("output"); out.Exists() {
		return out
	}
	return v.Get("Output")
}

func decodeFailure(reason string) Result {
	return Result{Success: false, Error: "DecodeFailure: " + reason, Code: ErrDecodeFailure}
}
