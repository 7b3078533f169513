// Package nats provides the NATS Core transport. Each consumer group maps to
// a NATS queue group, so handler replicas share work while distinct groups
// each receive every message.
package nats

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/callflow/transport"
)

const TransportName = "nats"

var ErrURLRequired = errors.New("nats: URL is required")

// PublisherFactory can be replaced in tests.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory can be replaced in tests.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register adds the NATS transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a core NATS transport. JetStream is disabled; messages carry
// their metadata as NATS headers.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	if url == "" {
		return transport.Transport{}, ErrURLRequired
	}
	marshaler := &nats.NATSMarshaler{}
	options := connectOptions(cfg.GetClientID())

	publisher, err := PublisherFactory(nats.PublisherConfig{
		URL:         url,
		NatsOptions: options,
		Marshaler:   marshaler,
		JetStream:   nats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	newSubscriber := func(consumerGroup string) (message.Subscriber, error) {
		return SubscriberFactory(nats.SubscriberConfig{
			URL:              url,
			QueueGroupPrefix: consumerGroup,
			SubscribersCount: 1,
			NatsOptions:      options,
			Unmarshaler:      marshaler,
			JetStream:        nats.JetStreamConfig{Disabled: true},
		}, logger.With(watermill.LogFields{"consumer_group": consumerGroup}))
	}

	return transport.Transport{
		Publisher:     publisher,
		NewSubscriber: newSubscriber,
	}, nil
}

// connectOptions names the connection after the client id so it is visible
// in NATS monitoring.
func connectOptions(clientName string) []nc.Option {
	options := []nc.Option{nc.MaxReconnects(-1)}
	if clientName != "" {
		options = append(options, nc.Name(clientName))
	}
	return options
}

func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}
