package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeRoundTrip(t *testing.T) {
	msg := Message{Type: "audit", Body: []byte(`{"note":"a|b"}`)}
	got := deserialize(serialize(msg))
	assert.Equal(t, msg, got)

	assert.Equal(t, Message{Body: []byte("raw")}, deserialize("raw"))
}

func TestInMemory_PublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{Type: "audit", Body: []byte("1")}))
	require.NoError(t, q.Publish(ctx, Message{Type: "audit", Body: []byte("2")}))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	for _, want := range []string{"1", "2"} {
		select {
		case msg := <-msgs:
			assert.Equal(t, want, string(msg.Body))
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}

	cancel()
	select {
	case _, ok := <-msgs:
		assert.False(t, ok, "channel closes after cancel")
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestInMemory_PublishRespectsContext(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := q.Publish(ctx, Message{Type: "audit"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemory_PublishDoesNotBlockWhenFull(t *testing.T) {
	q := NewInMemory(1)
	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, Message{Type: "audit", Body: []byte("1")}))

	done := make(chan error, 1)
	go func() { done <- q.Publish(ctx, Message{Type: "audit", Body: []byte("2")}) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrFull)
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full buffer")
	}
}
