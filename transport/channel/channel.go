// Package channel provides an in-memory transport on top of Watermill's
// gochannel. All consumer groups see every message, which matches the
// per-process response groups used by Call. Useful for tests and local runs.
package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/callflow/transport"
)

const TransportName = "channel"

var ErrSubscriberClosed = errors.New("channel: subscriber closed")

// Factory can be replaced in tests.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(cfg, logger)
}

func init() {
	Register()
}

// Register adds the channel transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates one shared GoChannel. Each consumer group gets a handle whose
// Close only ends its own subscriptions.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pubSub := Factory(gochannel.Config{}, logger)
	return transport.Transport{
		Publisher: pubSub,
		NewSubscriber: func(consumerGroup string) (message.Subscriber, error) {
			return newGroupSubscriber(pubSub), nil
		},
		Shutdown: pubSub.Close,
	}, nil
}

func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

type groupSubscriber struct {
	pubSub *gochannel.GoChannel

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

func newGroupSubscriber(pubSub *gochannel.GoChannel) *groupSubscriber {
	ctx, cancel := context.WithCancel(context.Background())
	return &groupSubscriber{pubSub: pubSub, ctx: ctx, cancel: cancel}
}

// Subscribe ends the returned channel when either ctx or the handle is done.
func (s *groupSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSubscriberClosed
	}
	subCtx, cancel := context.WithCancel(s.ctx)
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, cancel)
	messages, err := s.pubSub.Subscribe(subCtx, topic)
	if err != nil {
		stop()
		cancel()
		return nil, err
	}
	return messages, nil
}

func (s *groupSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	return nil
}
