package handlers

import (
	"context"
	"fmt"

	errspkg "github.com/drblury/callflow/internal/runtime/errors"
)

// JSONRequest carries the decoded payload alongside the raw request.
type JSONRequest[T any] struct {
	Request
	Payload T
}

// JSONHandler processes a typed request and returns the typed reply.
type JSONHandler[T any, O any] func(ctx context.Context, req JSONRequest[T]) (O, error)

// JSONHandlerRegistration wires a typed JSON handler to a topic. The reply is
// published to ReplyTopic when it is set and the request carried a
// correlation id.
type JSONHandlerRegistration[T any, O any] struct {
	Name          string
	Topic         string
	ConsumerGroup string
	ReplyTopic    string
	Handler       JSONHandler[T, O]
}

// BuildJSONHandler adapts a typed JSON handler to Func.
func BuildJSONHandler[T any, O any](handler JSONHandler[T, O]) (Func, error) {
	if handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}

	return func(ctx context.Context, req Request) (any, error) {
		var payload T
		if err := DecodePayload(req.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode %T payload: %w", payload, err)
		}
		return handler(ctx, JSONRequest[T]{Request: req, Payload: payload})
	}, nil
}
