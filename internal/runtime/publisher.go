package runtime

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/propagation"

	errspkg "github.com/drblury/callflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/callflow/internal/runtime/handlers"
	idspkg "github.com/drblury/callflow/internal/runtime/ids"
	metadatapkg "github.com/drblury/callflow/internal/runtime/metadata"
)

// Producer emits fire-and-forget messages onto the configured transport.
type Producer interface {
	Publish(ctx context.Context, topic string, payload any, correlationID string) error
}

// Publish sends payload to topic without waiting for a reply. A non-empty
// correlationID is attached as the correlation header, which is how a
// handler living outside callflow answers a Call.
func (s *Service) Publish(ctx context.Context, topic string, payload any, correlationID string) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	if err := s.checkRunning(); err != nil {
		return err
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}

	body, err := handlerpkg.EncodePayload(payload)
	if err != nil {
		return fmt.Errorf("callflow: encode %T payload: %w", payload, err)
	}
	var md metadatapkg.Metadata
	if correlationID != "" {
		md = metadatapkg.New(metadatapkg.CorrelationIDKey, correlationID)
	}
	return s.publish(ctx, topic, body, md)
}

// publish sends an already encoded body through the shared publisher with
// the trace context of ctx injected into the headers.
func (s *Service) publish(ctx context.Context, topic string, body []byte, md metadatapkg.Metadata) error {
	publisher := s.sharedPublisher()
	if publisher == nil {
		return errspkg.ErrPublisherRequired
	}

	msg := message.NewMessage(idspkg.CreateULID(), body)
	msg.Metadata = metadatapkg.ToWatermill(md)
	if ctx != nil {
		s.propagator.Inject(ctx, propagation.MapCarrier(msg.Metadata))
		msg.SetContext(ctx)
	}

	if err := publisher.Publish(topic, msg); err != nil {
		return &errspkg.TransportError{Op: "publish", Topic: topic, Err: err}
	}
	return nil
}
