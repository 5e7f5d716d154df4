package notify

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Envelope builds the push frame for one notification as a
// google.protobuf.Struct:
//
//	{ "kind": ..., "recipientId": ..., "sentAt": RFC 3339, "payload": {...} }
//
// Payload values must be JSON-like (string, bool, numbers, nil, []any,
// map[string]any).
func Envelope(recipientID string, kind Kind, payload map[string]any, sentAt time.Time) (*structpb.Struct, error) {
	body, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	sent := sentAt.UTC().Format(time.RFC3339Nano)
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"kind":        structpb.NewStringValue(string(kind)),
		"recipientId": structpb.NewStringValue(recipientID),
		"sentAt":      structpb.NewStringValue(sent),
		"payload":     structpb.NewStructValue(body),
	}}, nil
}

// EncodeBinary marshals the envelope to protobuf wire format.
func EncodeBinary(env *structpb.Struct) ([]byte, error) {
	return proto.Marshal(env)
}

// EncodeJSON marshals the envelope to its canonical JSON form.
func EncodeJSON(env *structpb.Struct) ([]byte, error) {
	return protojson.Marshal(env)
}

// DecodeBinary is the inverse of EncodeBinary.
func DecodeBinary(data []byte) (*structpb.Struct, error) {
	var env structpb.Struct
	if err := proto.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}
