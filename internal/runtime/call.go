package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/callflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/callflow/internal/runtime/handlers"
	loggingpkg "github.com/drblury/callflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/callflow/internal/runtime/metadata"
)

var errInvalidJSON = errors.New("payload is not valid JSON")

// Call outcomes recorded in metrics.
const (
	callOutcomeOK        = "ok"
	callOutcomeTimeout   = "timeout"
	callOutcomeCanceled  = "canceled"
	callOutcomeTransport = "transport_error"
)

// Reply is the message that resolved a call.
type Reply struct {
	Topic         string
	CorrelationID string
	Payload       []byte
	Metadata      metadatapkg.Metadata
}

// Decode unmarshals the reply payload into v.
func (r Reply) Decode(v any) error {
	return handlerpkg.DecodePayload(r.Payload, v)
}

// Call publishes payload to requestTopic and waits for the reply carrying the
// same correlation id on responseTopic. A timeout <= 0 uses the configured
// default.
//
// The call fails with a *errors.TimeoutError when no reply arrives in time and
// with a *errors.TransportError when the broker refuses the subscribe or
// publish. A cancelled ctx abandons the call the same way a timeout does.
func (s *Service) Call(ctx context.Context, requestTopic string, payload any, responseTopic string, timeout time.Duration) (Reply, error) {
	if err := s.checkRunning(); err != nil {
		return Reply{}, err
	}
	if requestTopic == "" {
		return Reply{}, errspkg.ErrTopicRequired
	}
	if responseTopic == "" {
		return Reply{}, errspkg.ErrResponseTopicRequired
	}

	body, err := handlerpkg.EncodePayload(payload)
	if err != nil {
		return Reply{}, fmt.Errorf("callflow: encode %T request: %w", payload, err)
	}

	timeout = s.Conf.CallTimeout(timeout)
	id := s.newID()
	started := time.Now()
	pending, err := s.pending.Register(responseTopic, id, started.Add(timeout))
	if err != nil {
		return Reply{}, err
	}

	ctx, span := s.tracer.Start(ctx, "callflow.call "+requestTopic,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", requestTopic),
			attribute.String("callflow.response_topic", responseTopic),
			attribute.String("callflow.correlation_id", id),
		),
	)
	defer span.End()

	log := s.Logger.With(loggingpkg.LogFields{
		"request_topic":  requestTopic,
		"response_topic": responseTopic,
		"correlation_id": id,
	})

	fail := func(outcome string, err error) (Reply, error) {
		s.pending.Expire(responseTopic, id)
		s.metrics.callFinished(requestTopic, outcome, time.Since(started))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return Reply{}, err
	}

	if err := s.ensureSubscription(responseTopic); err != nil {
		log.Error("Call could not subscribe to response topic", err, nil)
		return fail(callOutcomeTransport, err)
	}
	if err := s.publish(ctx, requestTopic, body, metadatapkg.New(metadatapkg.CorrelationIDKey, id)); err != nil {
		log.Error("Call could not publish request", err, nil)
		return fail(callOutcomeTransport, err)
	}
	log.Debug("Call published request", loggingpkg.LogFields{"timeout": timeout.String()})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var (
		abandon error
		outcome string
	)
	select {
	case reply := <-pending.Done():
		return s.callSucceeded(span, requestTopic, started, reply), nil
	case <-timer.C:
		abandon = &errspkg.TimeoutError{
			RequestTopic:  requestTopic,
			ResponseTopic: responseTopic,
			CorrelationID: id,
			Timeout:       timeout,
		}
		outcome = callOutcomeTimeout
	case <-ctx.Done():
		abandon = fmt.Errorf("callflow: call %q abandoned: %w", requestTopic, ctx.Err())
		outcome = callOutcomeCanceled
	}

	if !s.pending.Expire(responseTopic, id) {
		// The reply won the race; Resolve sends before releasing the lock.
		return s.callSucceeded(span, requestTopic, started, <-pending.Done()), nil
	}

	log.Debug("Call abandoned", loggingpkg.LogFields{"outcome": outcome})
	s.metrics.callFinished(requestTopic, outcome, time.Since(started))
	span.RecordError(abandon)
	span.SetStatus(codes.Error, outcome)
	return Reply{}, abandon
}

func (s *Service) callSucceeded(span trace.Span, requestTopic string, started time.Time, reply Reply) Reply {
	s.metrics.callFinished(requestTopic, callOutcomeOK, time.Since(started))
	span.SetStatus(codes.Ok, "")
	return reply
}

// CallJSON performs Call and decodes the reply into R.
func CallJSON[R any](ctx context.Context, svc *Service, requestTopic string, payload any, responseTopic string, timeout time.Duration) (R, error) {
	var result R
	if svc == nil {
		return result, errspkg.ErrServiceRequired
	}
	reply, err := svc.Call(ctx, requestTopic, payload, responseTopic, timeout)
	if err != nil {
		return result, err
	}
	if err := reply.Decode(&result); err != nil {
		return result, &errspkg.DecodeError{Topic: responseTopic, CorrelationID: reply.CorrelationID, Err: err}
	}
	return result, nil
}
