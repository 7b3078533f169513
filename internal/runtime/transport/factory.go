package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/callflow/internal/runtime/config"
	errspkg "github.com/drblury/callflow/internal/runtime/errors"
	"github.com/drblury/callflow/transport"

	// Register the built-in transports.
	_ "github.com/drblury/callflow/transport/transports"
)

// Factory abstracts how the service obtains its transport.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (transport.Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (transport.Transport, error)

func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory resolves conf.PubSubSystem against the default transport
// registry.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	if conf == nil {
		return transport.Transport{}, errspkg.ErrConfigRequired
	}
	return transport.Build(ctx, conf, logger)
}

// Static returns a Factory that always hands out t. Useful for tests and for
// callers that manage their own broker clients.
func Static(t transport.Transport) Factory {
	return FactoryFunc(func(context.Context, *config.Config, watermill.LoggerAdapter) (transport.Transport, error) {
		if err := t.Validate(); err != nil {
			return transport.Transport{}, err
		}
		return t, nil
	})
}
