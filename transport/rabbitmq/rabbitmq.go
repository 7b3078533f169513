// Package rabbitmq provides the RabbitMQ transport. One AMQP connection is
// shared by the publisher and all subscribers; each consumer group gets its
// own durable queue bound to the topic exchange.
package rabbitmq

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/callflow/transport"
)

const TransportName = "rabbitmq"

var ErrURLRequired = errors.New("rabbitmq: URL is required")

// ConnectionFactory can be replaced in tests.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// ConnectionCloser can be replaced in tests.
var ConnectionCloser = func(conn *amqp.ConnectionWrapper) error {
	return conn.Close()
}

// PublisherFactory can be replaced in tests.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory can be replaced in tests.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

func init() {
	Register()
}

// Register adds the RabbitMQ transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RabbitMQCapabilities)
}

// Build opens the shared connection and the publisher. Subscriber queues are
// named <topic>_<consumer group>.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetRabbitMQURL()
	if url == "" {
		return transport.Transport{}, ErrURLRequired
	}

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   url,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	publisher, err := PublisherFactory(amqp.NewDurablePubSubConfig(url, amqp.GenerateQueueNameTopicName), logger, conn)
	if err != nil {
		return transport.Transport{}, errors.Join(err, ConnectionCloser(conn))
	}

	newSubscriber := func(consumerGroup string) (message.Subscriber, error) {
		subscriberConfig := amqp.NewDurablePubSubConfig(url, QueueName(consumerGroup))
		return SubscriberFactory(subscriberConfig, logger.With(watermill.LogFields{"consumer_group": consumerGroup}), conn)
	}

	return transport.Transport{
		Publisher:     publisher,
		NewSubscriber: newSubscriber,
		Shutdown: func() error {
			return ConnectionCloser(conn)
		},
	}, nil
}

// QueueName returns the queue generator for a consumer group.
func QueueName(consumerGroup string) amqp.QueueNameGenerator {
	if consumerGroup == "" {
		return amqp.GenerateQueueNameTopicName
	}
	return amqp.GenerateQueueNameTopicNameWithSuffix(consumerGroup)
}

func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}
