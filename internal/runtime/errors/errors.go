package errors

import (
	sterrors "errors"
	"fmt"
	"time"
)

var (
	ErrServiceRequired          = sterrors.New("callflow: service is required")
	ErrHandlerRequired          = sterrors.New("callflow: handler function is required")
	ErrTopicRequired            = sterrors.New("callflow: topic is required")
	ErrResponseTopicRequired    = sterrors.New("callflow: response topic is required")
	ErrConsumerGroupRequired    = sterrors.New("callflow: consumer group is required")
	ErrPublisherRequired        = sterrors.New("callflow: publisher is required")
	ErrConfigRequired           = sterrors.New("callflow: configuration is required")
	ErrLoggerRequired           = sterrors.New("callflow: logger is required")
	ErrHandlerAlreadyRegistered = sterrors.New("callflow: handler already registered for topic and consumer group")
	ErrServiceNotStarted        = sterrors.New("callflow: service is not started")
	ErrServiceAlreadyStarted    = sterrors.New("callflow: service is already started")
	ErrServiceClosed            = sterrors.New("callflow: service is closed")
	ErrConsumeMessageTypeNeeded = sterrors.New("callflow: consume message type is required")
	ErrConsumePointerNeeded     = sterrors.New("callflow: consume message type must be a pointer")

	// ErrResponseTimeout is matched by every TimeoutError.
	ErrResponseTimeout = sterrors.New("callflow: response timeout")
	// ErrTransport is matched by every TransportError and ConnectError.
	ErrTransport = sterrors.New("callflow: transport error")
)

// TimeoutError reports that no matching reply was observed in time.
type TimeoutError struct {
	RequestTopic  string
	ResponseTopic string
	CorrelationID string
	Timeout       time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("callflow: response timeout after %s (request topic %q, response topic %q, correlation id %s)",
		e.Timeout, e.RequestTopic, e.ResponseTopic, e.CorrelationID)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrResponseTimeout
}

// TransportError wraps a broker-level publish or subscribe failure.
type TransportError struct {
	Op    string
	Topic string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("callflow: transport error: %s %q: %v", e.Op, e.Topic, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ConnectError is returned by handler registration when the dedicated
// subscription cannot be established.
type ConnectError struct {
	Topic         string
	ConsumerGroup string
	Err           error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("callflow: connect %q (consumer group %q): %v", e.Topic, e.ConsumerGroup, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

func (e *ConnectError) Is(target error) bool {
	return target == ErrTransport
}

// DecodeError describes a payload that could not be decoded. It is logged and
// counted by the runtime but never returned to a caller of Call.
type DecodeError struct {
	Topic         string
	CorrelationID string
	Err           error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("callflow: decode payload from %q (correlation id %q): %v", e.Topic, e.CorrelationID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// HandlerError wraps the error returned by a registered handler function.
type HandlerError struct {
	Handler string
	Topic   string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("callflow: handler %s on %q failed: %v", e.Handler, e.Topic, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// ConfigValidationError wraps the joined configuration problems.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "callflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// IsTimeout reports whether err means no reply arrived in time.
func IsTimeout(err error) bool {
	return sterrors.Is(err, ErrResponseTimeout)
}

// IsTransport reports whether err is an infrastructure failure.
func IsTransport(err error) bool {
	return sterrors.Is(err, ErrTransport)
}
