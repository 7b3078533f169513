package callflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

type tokenRequest struct {
	Token string `json:"token"`
}

type tokenValidation struct {
	Token      string `json:"token"`
	UserExists bool   `json:"userExists"`
}

func TestHandlerExportsPropagateErrors(t *testing.T) {
	if err := RegisterJSONHandler(nil, JSONHandlerRegistration[tokenRequest, tokenValidation]{}); !errors.Is(err, ErrServiceRequired) {
		t.Fatalf("expected service required error, got %v", err)
	}

	if err := RegisterProtoHandler(nil, ProtoHandlerRegistration[*wrapperspb.StringValue, *wrapperspb.BoolValue]{}); !errors.Is(err, ErrServiceRequired) {
		t.Fatalf("expected service required error, got %v", err)
	}

	if _, err := CallJSON[tokenValidation](context.Background(), nil, TopicCheckUserExists, nil, TopicTokenValidationResponse, time.Second); !errors.Is(err, ErrServiceRequired) {
		t.Fatalf("expected service required error, got %v", err)
	}
}

func TestCallOverChannelTransport(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PubSubSystem = "channel"

	svc, err := NewService(cfg, NewEntryServiceLogger(&stubEntry{}), ServiceDependencies{})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer svc.Close()

	err = RegisterJSONHandler(svc, JSONHandlerRegistration[tokenRequest, tokenValidation]{
		Topic:         TopicCheckUserExists,
		ConsumerGroup: GroupUserValidationExists,
		ReplyTopic:    TopicTokenValidationResponse,
		Handler: func(_ context.Context, req JSONRequest[tokenRequest]) (tokenValidation, error) {
			return tokenValidation{Token: req.Payload.Token, UserExists: req.Payload.Token == "valid"}, nil
		},
	})
	if err != nil {
		t.Fatalf("RegisterJSONHandler failed: %v", err)
	}

	reply, err := CallJSON[tokenValidation](context.Background(), svc, TopicCheckUserExists, tokenRequest{Token: "valid"}, TopicTokenValidationResponse, 2*time.Second)
	if err != nil {
		t.Fatalf("CallJSON failed: %v", err)
	}
	if !reply.UserExists || reply.Token != "valid" {
		t.Fatalf("unexpected reply %#v", reply)
	}

	_, err = svc.Call(context.Background(), TopicCheckUserIsAdmin, nil, TopicCheckUserIsAdminResponse, 20*time.Millisecond)
	if !IsTimeout(err) {
		t.Fatalf("expected timeout without a responder, got %v", err)
	}
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) || timeoutErr.RequestTopic != TopicCheckUserIsAdmin {
		t.Fatalf("expected *TimeoutError for %s, got %#v", TopicCheckUserIsAdmin, err)
	}
}

func TestLoggerExports(t *testing.T) {
	logger := NewEntryServiceLogger(&stubEntry{})
	logger.Info("boot", LogFields{"component": "test"})
}

func TestEntryLoggerChildrenDoNotShareFields(t *testing.T) {
	base := (&stubEntry{}).WithField("service", "orders")
	first := base.WithField("handler", "a")
	second := base.WithField("handler", "b")
	if len(base.fields) != 1 || first.fields["handler"] != "a" || second.fields["handler"] != "b" {
		t.Fatalf("derived entries leaked fields: base=%v first=%v second=%v", base.fields, first.fields, second.fields)
	}

	logger := NewEntryServiceLogger(base)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.With(LogFields{"worker": i}).Debug("tick", nil)
		}()
	}
	wg.Wait()
	if len(base.fields) != 1 {
		t.Fatalf("concurrent With mutated the base entry: %v", base.fields)
	}
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	if _, err := Marshal(payload); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	if _, err := MarshalIndent(payload, "", "  "); err != nil {
		t.Fatalf("marshal indent alias failed: %v", err)
	}
	if err := Unmarshal([]byte(`{"hello":"world"}`), &payload); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
}

func TestMetadataExport(t *testing.T) {
	md := NewMetadata(MetadataKeyCorrelationID, "c-1")
	if id, ok := md.CorrelationID(); !ok || id != "c-1" {
		t.Fatalf("expected correlation id in metadata, got %#v", md)
	}
}

func TestTransportsRegistered(t *testing.T) {
	for _, name := range []string{"channel", "kafka", "nats", "rabbitmq", "aws"} {
		if !DefaultTransportRegistry.Has(name) {
			t.Fatalf("expected transport %q to be registered", name)
		}
		if !GetCapabilities(name).SupportsCall() {
			t.Fatalf("expected transport %q to support calls", name)
		}
	}
}

func TestErrorCategoryConstants(t *testing.T) {
	if ErrorCategoryNone != "none" {
		t.Fatalf("expected ErrorCategoryNone to be 'none', got %q", ErrorCategoryNone)
	}
	if ErrorCategoryPanic != "panic" {
		t.Fatalf("expected ErrorCategoryPanic to be 'panic', got %q", ErrorCategoryPanic)
	}
}

type stubEntry struct {
	fields LogFields
	err    error
}

func (s *stubEntry) Error(args ...any) {}
func (s *stubEntry) Info(args ...any)  {}
func (s *stubEntry) Debug(args ...any) {}
func (s *stubEntry) Trace(args ...any) {}

func (s *stubEntry) WithError(err error) *stubEntry {
	clone := *s
	clone.err = err
	return &clone
}

func (s *stubEntry) WithField(key string, value any) *stubEntry {
	clone := *s
	clone.fields = make(LogFields, len(s.fields)+1)
	for k, v := range s.fields {
		clone.fields[k] = v
	}
	clone.fields[key] = value
	return &clone
}
