package handlers

import (
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	jsoncodec "github.com/drblury/callflow/internal/runtime/jsoncodec"
)

// EncodePayload renders v as JSON. Protobuf messages use the canonical
// protojson mapping so they interoperate with JSON peers.
func EncodePayload(v any) ([]byte, error) {
	if msg, ok := v.(proto.Message); ok {
		if isNilProto(msg) {
			return []byte("null"), nil
		}
		return protojson.Marshal(msg)
	}
	return jsoncodec.Marshal(v)
}

// DecodePayload is the inverse of EncodePayload. An empty payload decodes as
// JSON null.
func DecodePayload(data []byte, v any) error {
	if msg, ok := v.(proto.Message); ok {
		data = jsoncodec.NormalizePayload(data)
		if string(data) == "null" {
			proto.Reset(msg)
			return nil
		}
		return protojson.Unmarshal(data, msg)
	}
	return jsoncodec.Unmarshal(data, v)
}
