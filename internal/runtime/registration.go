package runtime

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/callflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/callflow/internal/runtime/handlers"
	idspkg "github.com/drblury/callflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/callflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/callflow/internal/runtime/metadata"
)

// HandlerState is the connection state of a registered handler.
type HandlerState string

const (
	HandlerCreated      HandlerState = "created"
	HandlerConnecting   HandlerState = "connecting"
	HandlerSubscribed   HandlerState = "subscribed"
	HandlerRunning      HandlerState = "running"
	HandlerDisconnected HandlerState = "disconnected"
)

// HandlerRegistration wires an untyped handler to a topic. When ReplyTopic is
// set, the handler result is published there for every request carrying a
// correlation id.
type HandlerRegistration struct {
	Name          string
	Topic         string
	ConsumerGroup string
	ReplyTopic    string
	Handler       handlerpkg.Func
}

type handlerRuntime struct {
	key           string
	name          string
	topic         string
	consumerGroup string
	replyTopic    string
	fn            message.HandlerFunc
	stats         *HandlerStats

	mu     sync.Mutex
	state  HandlerState
	sub    *subscription
	closed bool
}

func (h *handlerRuntime) State() HandlerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *handlerRuntime) setState(state HandlerState) {
	h.mu.Lock()
	h.state = state
	h.mu.Unlock()
}

func (h *handlerRuntime) disconnect() error {
	h.mu.Lock()
	sub := h.sub
	h.sub = nil
	h.closed = true
	h.mu.Unlock()

	if sub == nil {
		h.setState(HandlerDisconnected)
		return nil
	}
	err := sub.close()
	h.setState(HandlerDisconnected)
	return err
}

// RegisterHandler adds a handler with its own subscription. Registering on a
// running service connects immediately and returns a *errors.ConnectError if
// the subscription cannot be established.
func RegisterHandler(svc *Service, reg HandlerRegistration) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	return svc.registerHandler(reg)
}

// RegisterJSONHandler decodes requests into T and replies with O.
func RegisterJSONHandler[T any, O any](svc *Service, reg handlerpkg.JSONHandlerRegistration[T, O]) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	fn, err := handlerpkg.BuildJSONHandler(reg.Handler)
	if err != nil {
		return err
	}
	return svc.registerHandler(HandlerRegistration{
		Name:          reg.Name,
		Topic:         reg.Topic,
		ConsumerGroup: reg.ConsumerGroup,
		ReplyTopic:    reg.ReplyTopic,
		Handler:       fn,
	})
}

// RegisterProtoHandler decodes protojson requests into T and replies with O.
func RegisterProtoHandler[T proto.Message, O proto.Message](svc *Service, reg handlerpkg.ProtoHandlerRegistration[T, O]) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	fn, err := handlerpkg.BuildProtoHandler(reg.Handler)
	if err != nil {
		return err
	}
	return svc.registerHandler(HandlerRegistration{
		Name:          reg.Name,
		Topic:         reg.Topic,
		ConsumerGroup: reg.ConsumerGroup,
		ReplyTopic:    reg.ReplyTopic,
		Handler:       fn,
	})
}

// HandlerKey identifies a registration. A topic may have several handlers as
// long as their consumer groups differ.
func HandlerKey(topic, consumerGroup string) string {
	return topic + "-" + consumerGroup
}

func (s *Service) registerHandler(reg HandlerRegistration) error {
	if reg.Handler == nil {
		return errspkg.ErrHandlerRequired
	}
	if reg.Topic == "" {
		return errspkg.ErrTopicRequired
	}
	if reg.ConsumerGroup == "" {
		return errspkg.ErrConsumerGroupRequired
	}

	key := HandlerKey(reg.Topic, reg.ConsumerGroup)
	name := reg.Name
	if name == "" {
		name = key
	}
	h := &handlerRuntime{
		key:           key,
		name:          name,
		topic:         reg.Topic,
		consumerGroup: reg.ConsumerGroup,
		replyTopic:    reg.ReplyTopic,
		stats:         newHandlerStats(),
		state:         HandlerCreated,
	}
	h.fn = s.wrapHandler(h, reg.Handler)

	s.handlersMu.Lock()
	if s.handlersClosed {
		s.handlersMu.Unlock()
		return errspkg.ErrServiceClosed
	}
	if _, exists := s.handlers[key]; exists {
		s.handlersMu.Unlock()
		return errspkg.ErrHandlerAlreadyRegistered
	}
	s.handlers[key] = h
	s.handlerOrder = append(s.handlerOrder, h)
	s.handlersMu.Unlock()

	s.Logger.Info("Registered handler", loggingpkg.LogFields{
		"handler":        name,
		"topic":          reg.Topic,
		"consumer_group": reg.ConsumerGroup,
		"reply_topic":    reg.ReplyTopic,
	})

	if err := s.checkRunning(); errors.Is(err, errspkg.ErrServiceNotStarted) {
		// Start connects it.
		return nil
	}
	return s.connectHandler(h)
}

// claim moves h from created to connecting. Only the winner connects it.
func (h *handlerRuntime) claim() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != HandlerCreated {
		return false
	}
	h.state = HandlerConnecting
	return true
}

// connectHandler opens the dedicated subscription of h and starts its loop.
func (s *Service) connectHandler(h *handlerRuntime) error {
	if !h.claim() {
		return nil
	}

	tr, ctx, err := s.running()
	if err != nil {
		h.setState(HandlerDisconnected)
		return &errspkg.ConnectError{Topic: h.topic, ConsumerGroup: h.consumerGroup, Err: err}
	}
	sub, messages, err := s.subscribe(tr, ctx, h.topic, h.consumerGroup)
	if err != nil {
		h.setState(HandlerDisconnected)
		s.Logger.Error("Failed to connect handler", err, loggingpkg.LogFields{
			"handler":        h.name,
			"topic":          h.topic,
			"consumer_group": h.consumerGroup,
		})
		return &errspkg.ConnectError{Topic: h.topic, ConsumerGroup: h.consumerGroup, Err: err}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		go sub.run(messages, func(*message.Message) {})
		return &errspkg.ConnectError{Topic: h.topic, ConsumerGroup: h.consumerGroup, Err: errors.Join(errspkg.ErrServiceClosed, sub.close())}
	}
	h.sub = sub
	h.state = HandlerSubscribed
	h.mu.Unlock()

	go func() {
		h.setState(HandlerRunning)
		sub.run(messages, func(msg *message.Message) {
			s.handleMessage(h, msg)
		})
	}()
	return nil
}

// handleMessage runs one message through the middleware chain and publishes
// the reply. Failures are logged and counted; the message is acked either way.
func (s *Service) handleMessage(h *handlerRuntime, msg *message.Message) {
	msg.Metadata.Set(metadatapkg.HandlerNameKey, h.name)
	msg.Metadata.Set(metadatapkg.TopicKey, h.topic)
	msg.SetContext(s.propagator.Extract(msg.Context(), propagation.MapCarrier(msg.Metadata)))

	start := time.Now()
	replies, err := h.fn(msg)
	if err != nil {
		h.stats.record(time.Since(start), err, s.classifier)
		s.metrics.handlerFinished(h.name, h.topic, err)
		s.Logger.Error("Handler failed", &errspkg.HandlerError{Handler: h.name, Topic: h.topic, Err: err}, loggingpkg.LogFields{
			"message_uuid":   msg.UUID,
			"correlation_id": msg.Metadata.Get(metadatapkg.CorrelationIDKey),
		})
		return
	}

	var publishErr error
	for _, reply := range replies {
		if err := s.publish(msg.Context(), h.replyTopic, reply.Payload, metadatapkg.FromWatermill(reply.Metadata)); err != nil {
			publishErr = err
			s.Logger.Error("Failed to publish reply", err, loggingpkg.LogFields{
				"handler":        h.name,
				"reply_topic":    h.replyTopic,
				"correlation_id": reply.Metadata.Get(metadatapkg.CorrelationIDKey),
			})
			continue
		}
		h.stats.replied()
	}
	h.stats.record(time.Since(start), publishErr, s.classifier)
	s.metrics.handlerFinished(h.name, h.topic, publishErr)
}

// wrapHandler turns fn into a Watermill handler that yields the reply
// message, then applies the middleware chain around it.
func (s *Service) wrapHandler(h *handlerRuntime, fn handlerpkg.Func) message.HandlerFunc {
	core := func(msg *message.Message) ([]*message.Message, error) {
		req := handlerpkg.Request{
			Topic:    h.topic,
			Payload:  msg.Payload,
			Metadata: metadatapkg.FromWatermill(msg.Metadata),
			Logger: s.Logger.With(loggingpkg.LogFields{
				"handler":        h.name,
				"correlation_id": msg.Metadata.Get(metadatapkg.CorrelationIDKey),
			}),
		}
		result, err := fn(msg.Context(), req)
		if err != nil {
			return nil, err
		}

		id, ok := req.Metadata.CorrelationID()
		if h.replyTopic == "" || !ok {
			return nil, nil
		}
		body, err := handlerpkg.EncodePayload(result)
		if err != nil {
			return nil, fmt.Errorf("encode %T reply: %w", result, err)
		}
		reply := message.NewMessage(idspkg.CreateULID(), body)
		reply.Metadata.Set(metadatapkg.CorrelationIDKey, id)
		reply.Metadata.Set(metadatapkg.HandlerNameKey, h.name)
		return []*message.Message{reply}, nil
	}

	wrapped := message.HandlerFunc(core)
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		wrapped = s.middlewares[i](wrapped)
	}
	return wrapped
}

// Handlers lists registered handlers in registration order.
func (s *Service) Handlers() []HandlerInfo {
	handlers := s.registeredHandlers()
	infos := make([]HandlerInfo, 0, len(handlers))
	for _, h := range handlers {
		infos = append(infos, HandlerInfo{
			Name:          h.name,
			Topic:         h.topic,
			ConsumerGroup: h.consumerGroup,
			ReplyTopic:    h.replyTopic,
			State:         h.State(),
			Stats:         h.stats.Snapshot(),
		})
	}
	return infos
}

func (s *Service) registeredHandlers() []*handlerRuntime {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	return append([]*handlerRuntime(nil), s.handlerOrder...)
}

func (s *Service) drainHandlers() []*handlerRuntime {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlersClosed = true
	return append([]*handlerRuntime(nil), s.handlerOrder...)
}
