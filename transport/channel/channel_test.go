package channel

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/callflow/transport"
	"github.com/drblury/callflow/transport/transporttest"
)

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	transport.DefaultRegistry = transport.NewRegistry()
	t.Cleanup(func() { transport.DefaultRegistry = original })

	Register()
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.Equal(t, transport.ChannelCapabilities, Capabilities())
}

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed before a message arrived")
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func waitClosed(t *testing.T, ch <-chan *message.Message) {
	t.Helper()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "expected channel to be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel to close")
	}
}

func TestEveryGroupSeesEveryMessage(t *testing.T) {
	tr, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	first, err := tr.NewSubscriber("response-consumer-a")
	require.NoError(t, err)
	second, err := tr.NewSubscriber("response-consumer-b")
	require.NoError(t, err)

	ch1, err := first.Subscribe(context.Background(), "token_validation_response")
	require.NoError(t, err)
	ch2, err := second.Subscribe(context.Background(), "token_validation_response")
	require.NoError(t, err)

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"userExists":true}`))
	msg.Metadata.Set("correlationId", "c-1")
	require.NoError(t, tr.Publisher.Publish("token_validation_response", msg))

	assert.Equal(t, "c-1", receive(t, ch1).Metadata.Get("correlationId"))
	assert.Equal(t, "c-1", receive(t, ch2).Metadata.Get("correlationId"))
}

func TestCloseOnlyEndsOwnSubscriptions(t *testing.T) {
	tr, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	closing, _ := tr.NewSubscriber("a")
	staying, _ := tr.NewSubscriber("b")

	closingCh, err := closing.Subscribe(context.Background(), "t")
	require.NoError(t, err)
	stayingCh, err := staying.Subscribe(context.Background(), "t")
	require.NoError(t, err)

	require.NoError(t, closing.Close())
	require.NoError(t, closing.Close())
	waitClosed(t, closingCh)

	_, err = closing.Subscribe(context.Background(), "t")
	assert.ErrorIs(t, err, ErrSubscriberClosed)

	require.NoError(t, tr.Publisher.Publish("t", message.NewMessage(watermill.NewUUID(), []byte(`1`))))
	receive(t, stayingCh)
}

func TestSubscribeContextCancel(t *testing.T) {
	tr, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	sub, _ := tr.NewSubscriber("g")
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := sub.Subscribe(ctx, "t")
	require.NoError(t, err)

	cancel()
	waitClosed(t, ch)
}
