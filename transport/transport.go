// Package transport defines how callflow obtains broker clients. A transport
// yields one shared publisher and a factory that opens a dedicated subscriber
// per consumer group. Each implementation lives in its own sub-package and
// registers itself with the default registry.
package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

var (
	ErrPublisherRequired         = errors.New("transport: publisher is required")
	ErrSubscriberFactoryRequired = errors.New("transport: subscriber factory is required")
)

// SubscriberFactory opens a new subscriber bound to consumerGroup. Every call
// must return an independent subscriber; callers own and close it.
type SubscriberFactory func(consumerGroup string) (message.Subscriber, error)

// Transport is the set of broker clients built for one service.
type Transport struct {
	Publisher     message.Publisher
	NewSubscriber SubscriberFactory
	// Shutdown releases resources shared by the publisher and subscribers,
	// such as a pooled connection. Optional.
	Shutdown func() error
}

// Validate reports missing clients.
func (t Transport) Validate() error {
	var errs []error
	if t.Publisher == nil {
		errs = append(errs, ErrPublisherRequired)
	}
	if t.NewSubscriber == nil {
		errs = append(errs, ErrSubscriberFactoryRequired)
	}
	return errors.Join(errs...)
}

// Close runs Shutdown when present.
func (t Transport) Close() error {
	if t.Shutdown == nil {
		return nil
	}
	return t.Shutdown()
}

// Builder creates a transport from configuration.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config is the subset of settings transports read.
type Config interface {
	GetPubSubSystem() string

	GetKafkaBrokers() []string
	GetClientID() string

	GetRabbitMQURL() string

	GetNATSURL() string

	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by transports that report capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}
