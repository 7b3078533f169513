package runtime

import (
	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/callflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/callflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/callflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/callflow/internal/runtime/metadata"
)

// Reasons a reply is dropped by the response router.
const (
	DropMissingCorrelationID = "missing_correlation_id"
	DropDecodeError          = "decode_error"
	DropUnmatched            = "unmatched"
)

// ensureSubscription makes sure one listener is attached to topic. The first
// caller creates it; later callers reuse it until Close.
func (s *Service) ensureSubscription(topic string) error {
	s.responsesMu.Lock()
	defer s.responsesMu.Unlock()

	if s.responsesClosed {
		return errspkg.ErrServiceClosed
	}
	if _, ok := s.responses[topic]; ok {
		return nil
	}

	tr, ctx, err := s.running()
	if err != nil {
		return err
	}
	group := s.Conf.ResponseGroup(topic, s.startedAt)
	sub, messages, err := s.subscribe(tr, ctx, topic, group)
	if err != nil {
		s.Logger.Error("Failed to subscribe to response topic", err, loggingpkg.LogFields{
			"topic":          topic,
			"consumer_group": group,
		})
		return &errspkg.TransportError{Op: "subscribe", Topic: topic, Err: err}
	}

	s.responses[topic] = sub
	s.Logger.Debug("Subscribed to response topic", loggingpkg.LogFields{
		"topic":          topic,
		"consumer_group": group,
	})
	go sub.run(messages, func(msg *message.Message) {
		s.routeReply(topic, msg)
	})
	return nil
}

// routeReply resolves the pending call matching msg. Anything that cannot be
// matched is dropped; nothing here ever reaches a caller as an error.
func (s *Service) routeReply(topic string, msg *message.Message) {
	id, ok := metadatapkg.CorrelationIDOf(msg)
	if !ok {
		s.dropReply(topic, "", DropMissingCorrelationID, nil)
		return
	}

	payload := jsoncodec.NormalizePayload(msg.Payload)
	if !jsoncodec.Valid(payload) {
		err := &errspkg.DecodeError{Topic: topic, CorrelationID: id, Err: errInvalidJSON}
		s.dropReply(topic, id, DropDecodeError, err)
		return
	}

	reply := Reply{
		Topic:         topic,
		CorrelationID: id,
		Payload:       payload,
		Metadata:      metadatapkg.FromWatermill(msg.Metadata),
	}
	if !s.pending.Resolve(topic, id, reply) {
		s.dropReply(topic, id, DropUnmatched, nil)
	}
}

func (s *Service) dropReply(topic, correlationID, reason string, err error) {
	s.metrics.replyDropped(topic, reason)
	fields := loggingpkg.LogFields{
		"topic":          topic,
		"correlation_id": correlationID,
		"reason":         reason,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	s.Logger.Debug("Dropped reply", fields)
}

// ResponseTopics lists the response topics with a live listener.
func (s *Service) ResponseTopics() []ResponseSubscriptionInfo {
	s.responsesMu.Lock()
	defer s.responsesMu.Unlock()

	infos := make([]ResponseSubscriptionInfo, 0, len(s.responses))
	for topic, sub := range s.responses {
		infos = append(infos, ResponseSubscriptionInfo{
			Topic:         topic,
			ConsumerGroup: sub.consumerGroup,
			Pending:       s.pending.Pending(topic),
		})
	}
	sortResponseInfos(infos)
	return infos
}

func (s *Service) drainResponses() []*subscription {
	s.responsesMu.Lock()
	defer s.responsesMu.Unlock()

	s.responsesClosed = true
	subs := make([]*subscription, 0, len(s.responses))
	for topic, sub := range s.responses {
		subs = append(subs, sub)
		delete(s.responses, topic)
	}
	return subs
}
