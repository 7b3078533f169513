package transport

// Capabilities describes what a broker offers to the request/response layer.
type Capabilities struct {
	Name string

	// ConsumerGroups means subscribers sharing a group split the stream, while
	// distinct groups each see every message. Without it every subscriber sees
	// every message.
	ConsumerGroups bool

	// Headers means metadata such as the correlation id survives the broker.
	Headers bool

	// Ordering means messages on one topic arrive in publish order.
	Ordering bool

	// Redelivery means a nacked message is delivered again.
	Redelivery bool

	// Persistent means messages published with no live subscriber are kept.
	Persistent bool

	// MaxMessageSize in bytes, 0 when unknown.
	MaxMessageSize int64
}

// SupportsCall reports whether replies can be matched to calls. Matching
// needs the correlation id header to survive the broker.
func (c Capabilities) SupportsCall() bool {
	return c.Headers
}

var (
	ChannelCapabilities = Capabilities{
		Name:     "channel",
		Headers:  true,
		Ordering: true,
	}

	KafkaCapabilities = Capabilities{
		Name:           "kafka",
		ConsumerGroups: true,
		Headers:        true,
		Ordering:       true,
		Persistent:     true,
		MaxMessageSize: 1048576,
	}

	RabbitMQCapabilities = Capabilities{
		Name:           "rabbitmq",
		ConsumerGroups: true,
		Headers:        true,
		Ordering:       true,
		Redelivery:     true,
		Persistent:     true,
	}

	NATSCapabilities = Capabilities{
		Name:           "nats",
		ConsumerGroups: true,
		Headers:        true,
		MaxMessageSize: 1048576,
	}

	AWSCapabilities = Capabilities{
		Name:           "aws",
		ConsumerGroups: true,
		Headers:        true,
		Redelivery:     true,
		Persistent:     true,
		MaxMessageSize: 262144,
	}
)
