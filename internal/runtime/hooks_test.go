package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	metadatapkg "github.com/drblury/callflow/internal/runtime/metadata"
)

func newHookMessage() *message.Message {
	msg := message.NewMessage("msg-1", []byte(`{"token":"abc"}`))
	msg.Metadata.Set(metadatapkg.HandlerNameKey, "check-user")
	msg.Metadata.Set(metadatapkg.TopicKey, "check_user_exists")
	msg.Metadata.Set(metadatapkg.CorrelationIDKey, "corr-1")
	msg.SetContext(context.Background())
	return msg
}

func TestJobHooksOnJobStartAndDone(t *testing.T) {
	var started, done JobContext

	mw := jobHooksMiddleware(JobHooks{
		OnJobStart: func(ctx JobContext) { started = ctx },
		OnJobDone:  func(ctx JobContext) { done = ctx },
	})
	handler := mw(func(msg *message.Message) ([]*message.Message, error) {
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	})

	_, err := handler(newHookMessage())
	require.NoError(t, err)

	assert.Equal(t, "check-user", started.HandlerName)
	assert.Equal(t, "check_user_exists", started.Topic)
	assert.Equal(t, "corr-1", started.CorrelationID)
	assert.Equal(t, "msg-1", started.MessageUUID)
	assert.False(t, started.StartedAt.IsZero())
	assert.GreaterOrEqual(t, done.Duration, 5*time.Millisecond)
}

func TestJobHooksOnJobError(t *testing.T) {
	expected := errors.New("user store unavailable")
	var (
		captured error
		doneHit  bool
	)

	mw := jobHooksMiddleware(JobHooks{
		OnJobDone:  func(JobContext) { doneHit = true },
		OnJobError: func(_ JobContext, err error) { captured = err },
	})
	handler := mw(func(msg *message.Message) ([]*message.Message, error) {
		return nil, expected
	})

	_, err := handler(newHookMessage())
	assert.ErrorIs(t, err, expected)
	assert.Equal(t, expected, captured)
	assert.False(t, doneHit)
}

func TestJobHooksMerge(t *testing.T) {
	var calls []string
	record := func(name string) func(JobContext) {
		return func(JobContext) { calls = append(calls, name) }
	}

	first := JobHooks{OnJobStart: record("start1"), OnJobDone: record("done1")}
	second := JobHooks{OnJobStart: record("start2"), OnJobError: func(JobContext, error) { calls = append(calls, "error2") }}
	merged := first.Merge(second)

	handler := jobHooksMiddleware(merged)(func(msg *message.Message) ([]*message.Message, error) {
		return nil, nil
	})
	_, _ = handler(newHookMessage())
	assert.Equal(t, []string{"start1", "start2", "done1"}, calls)

	calls = nil
	merged.OnJobError(JobContext{}, errors.New("boom"))
	assert.Equal(t, []string{"error2"}, calls)
}

func TestJobHooksConfigured(t *testing.T) {
	assert.False(t, JobHooks{}.configured())
	assert.True(t, AlertingHooks(func(JobContext, error) {}).configured())

	reg := JobHooksMiddleware(JobHooks{OnJobStart: func(JobContext) {}})
	assert.Equal(t, "job_hooks", reg.Name)
	assert.NotNil(t, reg.Builder)
}

func TestLoggingHooks(t *testing.T) {
	logger := newRecordingLogger()
	hooks := LoggingHooks(logger)

	job := JobContext{HandlerName: "check-user", Topic: "check_user_exists", CorrelationID: "corr-1", Duration: 3 * time.Millisecond}
	hooks.OnJobStart(job)
	hooks.OnJobDone(job)
	hooks.OnJobError(job, errors.New("boom"))

	assert.True(t, logger.has("debug", "Job started"))
	assert.True(t, logger.has("info", "Job completed"))
	assert.True(t, logger.has("error", "Job failed"))

	entry, ok := logger.find("Job completed")
	require.True(t, ok)
	assert.Equal(t, "corr-1", entry.fields["correlation_id"])
	assert.Equal(t, int64(3), entry.fields["duration_ms"])
}
