package handlers

import (
	"context"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/callflow/internal/runtime/errors"
)

// ProtoRequest carries a decoded protobuf payload.
type ProtoRequest[T proto.Message] struct {
	Request
	Payload T
}

// ProtoHandler processes a protobuf request and returns a protobuf reply.
type ProtoHandler[T proto.Message, O proto.Message] func(ctx context.Context, req ProtoRequest[T]) (O, error)

// ProtoHandlerRegistration is the protobuf counterpart of
// JSONHandlerRegistration.
type ProtoHandlerRegistration[T proto.Message, O proto.Message] struct {
	Name          string
	Topic         string
	ConsumerGroup string
	ReplyTopic    string
	Handler       ProtoHandler[T, O]
}

// BuildProtoHandler adapts a protobuf handler to Func. Payloads travel as
// protojson.
func BuildProtoHandler[T proto.Message, O proto.Message](handler ProtoHandler[T, O]) (Func, error) {
	if handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	factory, err := protoFactory[T]()
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, req Request) (any, error) {
		payload := factory()
		if err := DecodePayload(req.Payload, payload); err != nil {
			return nil, fmt.Errorf("decode %T payload: %w", payload, err)
		}
		return handler(ctx, ProtoRequest[T]{Request: req, Payload: payload})
	}, nil
}

func protoFactory[T proto.Message]() (func() T, error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() == reflect.Interface {
		return nil, errspkg.ErrConsumeMessageTypeNeeded
	}
	if typ.Kind() != reflect.Ptr {
		return nil, errspkg.ErrConsumePointerNeeded
	}
	elem := typ.Elem()
	return func() T {
		return reflect.New(elem).Interface().(T)
	}, nil
}

func isNilProto(msg proto.Message) bool {
	if msg == nil {
		return true
	}
	val := reflect.ValueOf(msg)
	return val.Kind() == reflect.Ptr && val.IsNil()
}
