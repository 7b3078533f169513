package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/callflow/internal/runtime/config"
	loggingpkg "github.com/drblury/callflow/internal/runtime/logging"
	transportpkg "github.com/drblury/callflow/internal/runtime/transport"
	"github.com/drblury/callflow/transport"
	"github.com/drblury/callflow/transport/transporttest"
)

const (
	topicCheckUserExists   = "check_user_exists"
	topicTokenValidation   = "token_validation_response"
	topicCheckUserIsAdmin  = "check_user_is_admin"
	topicAdminResponse     = "check_user_is_admin_response"
	groupUserExists        = "user-validation-group-exists"
	groupUserAdmin         = "user-validation-group-admin"
	testCallTimeout        = 2 * time.Second
	shortCallTimeout       = 50 * time.Millisecond
	noMessageWaitingPeriod = 100 * time.Millisecond
)

type tokenRequest struct {
	Token string `json:"token"`
}

type tokenValidation struct {
	Token      string `json:"token"`
	UserExists bool   `json:"userExists"`
}

type adminRequest struct {
	UserID string `json:"userId"`
}

type adminResponse struct {
	IsAdmin bool `json:"isAdmin"`
}

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func newTestConfig() *configpkg.Config {
	cfg := configpkg.Default()
	cfg.PubSubSystem = "channel"
	cfg.DefaultCallTimeout = testCallTimeout
	return cfg
}

func newTestService(t *testing.T, cfg *configpkg.Config, deps ServiceDependencies) *Service {
	t.Helper()
	if cfg == nil {
		cfg = newTestConfig()
	}
	svc, err := NewService(cfg, newTestLogger(), deps)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

// startTestService runs a service on the in-memory channel transport.
func startTestService(t *testing.T, cfg *configpkg.Config, deps ServiceDependencies) *Service {
	t.Helper()
	svc := newTestService(t, cfg, deps)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		if err := svc.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return svc
}

// withMetrics enables metrics on cfg and returns the registry they land in.
func withMetrics(cfg *configpkg.Config, deps *ServiceDependencies) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	cfg.MetricsEnabled = true
	deps.MetricsRegisterer = registry
	return registry
}

// counterValue sums every sample of the counter family name whose labels
// include want.
func counterValue(t *testing.T, registry *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := make(map[string]string)
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			matched := true
			for k, v := range want {
				if labels[k] != v {
					matched = false
					break
				}
			}
			if matched {
				total += metric.GetCounter().GetValue()
			}
		}
	}
	return total
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testCallTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// fakeTransport hands out transporttest doubles and records consumer groups.
type fakeTransport struct {
	mu          sync.Mutex
	publisher   *transporttest.Publisher
	subscribers map[string][]*transporttest.Subscriber
	groups      []string
	subErr      error
	newSubErr   error
	shutdowns   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		publisher:   &transporttest.Publisher{},
		subscribers: make(map[string][]*transporttest.Subscriber),
	}
}

func (f *fakeTransport) factory() transportpkg.Factory {
	return transportpkg.FactoryFunc(func(context.Context, *configpkg.Config, watermill.LoggerAdapter) (transport.Transport, error) {
		return transport.Transport{
			Publisher:     f.publisher,
			NewSubscriber: f.newSubscriber,
			Shutdown: func() error {
				f.mu.Lock()
				f.shutdowns++
				f.mu.Unlock()
				return nil
			},
		}, nil
	})
}

func (f *fakeTransport) newSubscriber(group string) (message.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newSubErr != nil {
		return nil, f.newSubErr
	}
	sub := &transporttest.Subscriber{ConsumerGroup: group, Err: f.subErr}
	f.subscribers[group] = append(f.subscribers[group], sub)
	f.groups = append(f.groups, group)
	return sub, nil
}

func (f *fakeTransport) setSubscribeError(err error) {
	f.mu.Lock()
	f.subErr = err
	f.mu.Unlock()
}

func (f *fakeTransport) consumerGroups() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.groups...)
}

func (f *fakeTransport) allSubscribers() []*transporttest.Subscriber {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*transporttest.Subscriber
	for _, subs := range f.subscribers {
		all = append(all, subs...)
	}
	return all
}

// recordingLogger captures log calls. Loggers derived with With share the
// same sink.
type recordingLogger struct {
	sink   *logSink
	fields loggingpkg.LogFields
}

type logSink struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level  string
	msg    string
	err    error
	fields loggingpkg.LogFields
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{sink: &logSink{}}
}

func (r *recordingLogger) With(fields loggingpkg.LogFields) loggingpkg.ServiceLogger {
	merged := make(loggingpkg.LogFields, len(r.fields)+len(fields))
	for k, v := range r.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &recordingLogger{sink: r.sink, fields: merged}
}

func (r *recordingLogger) Debug(msg string, fields loggingpkg.LogFields) {
	r.record("debug", msg, nil, fields)
}

func (r *recordingLogger) Info(msg string, fields loggingpkg.LogFields) {
	r.record("info", msg, nil, fields)
}

func (r *recordingLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	r.record("error", msg, err, fields)
}

func (r *recordingLogger) Trace(msg string, fields loggingpkg.LogFields) {
	r.record("trace", msg, nil, fields)
}

func (r *recordingLogger) record(level, msg string, err error, fields loggingpkg.LogFields) {
	merged := make(loggingpkg.LogFields, len(r.fields)+len(fields))
	for k, v := range r.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	r.sink.mu.Lock()
	r.sink.entries = append(r.sink.entries, logEntry{level: level, msg: msg, err: err, fields: merged})
	r.sink.mu.Unlock()
}

func (r *recordingLogger) has(level, msg string) bool {
	r.sink.mu.Lock()
	defer r.sink.mu.Unlock()
	for _, e := range r.sink.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

func (r *recordingLogger) find(msg string) (logEntry, bool) {
	r.sink.mu.Lock()
	defer r.sink.mu.Unlock()
	for _, e := range r.sink.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

func (r *recordingLogger) errorsContaining(substr string) int {
	r.sink.mu.Lock()
	defer r.sink.mu.Unlock()
	n := 0
	for _, e := range r.sink.entries {
		if e.level == "error" && e.err != nil && strings.Contains(e.err.Error(), substr) {
			n++
		}
	}
	return n
}

var errBroker = errors.New("broker unavailable")
