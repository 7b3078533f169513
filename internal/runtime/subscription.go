package runtime

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/callflow/transport"
)

// subscription is one subscriber bound to one topic and consumer group, plus
// the goroutine draining it.
type subscription struct {
	topic         string
	consumerGroup string
	subscriber    message.Subscriber
	cancel        context.CancelFunc
	done          chan struct{}
}

// subscribe opens a dedicated subscriber for consumerGroup and subscribes it
// to topic. Nothing is left open on failure.
func (s *Service) subscribe(tr transport.Transport, parent context.Context, topic, consumerGroup string) (*subscription, <-chan *message.Message, error) {
	subscriber, err := tr.NewSubscriber(consumerGroup)
	if err != nil {
		return nil, nil, err
	}
	decorated, err := s.metrics.decorateSubscriber(subscriber)
	if err != nil {
		return nil, nil, errors.Join(err, subscriber.Close())
	}
	subscriber = decorated

	ctx, cancel := context.WithCancel(parent)
	messages, err := subscriber.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		return nil, nil, errors.Join(err, subscriber.Close())
	}

	return &subscription{
		topic:         topic,
		consumerGroup: consumerGroup,
		subscriber:    subscriber,
		cancel:        cancel,
		done:          make(chan struct{}),
	}, messages, nil
}

// run drains messages until the channel closes. Every message is acked once
// handle returns.
func (sub *subscription) run(messages <-chan *message.Message, handle func(*message.Message)) {
	defer close(sub.done)
	for msg := range messages {
		handle(msg)
		msg.Ack()
	}
}

// close stops the subscription and waits for the drain loop to exit.
func (sub *subscription) close() error {
	sub.cancel()
	err := sub.subscriber.Close()
	<-sub.done
	return err
}
