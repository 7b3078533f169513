package handlers

import (
	"context"

	loggingpkg "github.com/drblury/callflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/callflow/internal/runtime/metadata"
)

// Request is the message delivered to a registered handler.
type Request struct {
	Topic    string
	Payload  []byte
	Metadata metadatapkg.Metadata
	Logger   loggingpkg.ServiceLogger
}

// CorrelationID returns the correlation id header, or "" when the sender did
// not expect a reply.
func (r Request) CorrelationID() string {
	id, _ := r.Metadata.CorrelationID()
	return id
}

// Get returns a header value.
func (r Request) Get(key string) string {
	return r.Metadata[key]
}

// Decode unmarshals the payload into v.
func (r Request) Decode(v any) error {
	return DecodePayload(r.Payload, v)
}

// Func is the untyped handler contract. The returned value is encoded and
// published as the reply when the registration has a reply topic.
type Func func(ctx context.Context, req Request) (any, error)
