// Package protocol encodes payloads into transport envelopes. Payloads are
// msgpack; payloads larger than CompressThreshold are lz4-framed.
package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/automoto/fragnet/shared/messages"
	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/pierrec/lz4/v4"
)

// CompressThreshold is the payload size in bytes above which Encode compresses.
var CompressThreshold = 1024

var (
	ErrMalformed   = errors.New("protocol: malformed payload")
	ErrUnknownType = errors.New("protocol: unknown message type")
)

var handle = &codec.MsgpackHandle{}

var coreTypes = map[string]struct{}{
	messages.TypeJoin:         {},
	messages.TypeJoinAccepted: {},
	messages.TypeJoinRejected: {},
	messages.TypeLeave:        {},
	messages.TypeInput:        {},
	messages.TypePing:         {},
	messages.TypePong:         {},
	messages.TypeState:        {},
	messages.TypeChat:         {},
}

// IsCoreType reports whether typ is handled by the sync core itself.
func IsCoreType(typ string) bool {
	_, ok := coreTypes[typ]
	return ok
}

// Encode wraps payload into an envelope of the given type.
func Encode(typ string, payload any, seq uint32, now time.Time) (messages.Envelope, error) {
	data, err := Marshal(payload)
	if err != nil {
		return messages.Envelope{}, fmt.Errorf("encode %s: %w", typ, err)
	}

	env := messages.Envelope{
		Type:      typ,
		Data:      data,
		Timestamp: now.UnixMilli(),
		Sequence:  seq,
	}

	if CompressThreshold > 0 && len(data) > CompressThreshold {
		packed, err := compress(data)
		if err != nil {
			return messages.Envelope{}, fmt.Errorf("compress %s: %w", typ, err)
		}
		env.Data = packed
		env.Compressed = true
	}
	return env, nil
}

// Decode unpacks the envelope payload into out, which must be a pointer.
func Decode(env messages.Envelope, out any) error {
	data := env.Data
	if env.Compressed {
		raw, err := decompress(data)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
		}
		data = raw
	}
	if err := Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return nil
}

// DecodeAs is Decode for a value type.
func DecodeAs[T any](env messages.Envelope) (T, error) {
	var v T
	err := Decode(env, &v)
	return v, err
}

// Marshal encodes v as msgpack.
func Marshal(v any) ([]byte, error) {
	var buf []byte
	if err := codec.NewEncoderBytes(&buf, handle).Encode(v); err != nil {
		return nil, err
	}
	return buf, nil
}

// Unmarshal decodes msgpack data into v.
func Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return io.ErrUnexpectedEOF
	}
	return codec.NewDecoderBytes(data, handle).Decode(v)
}

func compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(src); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(src []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(src)))
}
