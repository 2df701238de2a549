package p2p

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rudransh-shrivastava/ao-chat/internal/transport"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const maxFrameSize = 1 << 20

// frame is one signal exchanged on a routed signaling stream.
type frame struct {
	Kind transport.SignalKind
	From string
	SDP  string
}

func writeFrame(w io.Writer, f frame) error {
	msg, err := structpb.NewStruct(map[string]any{
		"kind": string(f.Kind),
		"from": f.From,
		"sdp":  f.SDP,
	})
	if err != nil {
		return err
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return err
	}

	msgLen := uint32(len(data))
	if err := binary.Write(w, binary.BigEndian, msgLen); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return nil
}

func readFrame(r io.Reader) (frame, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return frame{}, err
	}
	if length > maxFrameSize {
		return frame{}, fmt.Errorf("frame of %d bytes exceeds limit", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return frame{}, err
	}

	msg := &structpb.Struct{}
	if err := proto.Unmarshal(data, msg); err != nil {
		return frame{}, fmt.Errorf("protobuf unmarshal error: %w", err)
	}
	fields := msg.GetFields()
	return frame{
		Kind: transport.SignalKind(fields["kind"].GetStringValue()),
		From: fields["from"].GetStringValue(),
		SDP:  fields["sdp"].GetStringValue(),
	}, nil
}
