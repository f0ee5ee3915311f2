package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go-deadletter/pkg/models"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestToDeadLettered(t *testing.T) {
	now := time.Now()
	m := kafka.Message{
		Topic:     "subscriptionoutbox-dlq",
		Partition: 2,
		Offset:    41,
		Key:       []byte("order-1"),
		Value:     []byte(`{"id":1}`),
		Time:      now,
		Headers: []kafka.Header{
			{Key: models.HeaderMessageID, Value: []byte("msg-1")},
			{Key: models.HeaderDeadLetterReason, Value: []byte("MaxDeliveryCountExceeded")},
			{Key: models.HeaderDeadLetterErrorDescription, Value: []byte("handler timeout")},
			{Key: models.HeaderDeliveryCount, Value: []byte("4")},
		},
	}

	msg := toDeadLettered(m)

	assert.Equal(t, "msg-1", msg.MessageID)
	assert.Equal(t, "MaxDeliveryCountExceeded", msg.DeadLetterReason)
	assert.Equal(t, "handler timeout", msg.DeadLetterErrorDescription)
	assert.Equal(t, 4, msg.DeliveryCount)
	assert.Equal(t, "order-1", msg.Key)
	assert.Equal(t, []byte(`{"id":1}`), msg.Body)
	assert.Equal(t, now, msg.EnqueuedAt)
	assert.Equal(t, m, msg.Handle)
}

func TestToDeadLettered_Fallbacks(t *testing.T) {
	tests := []struct {
		name           string
		message        kafka.Message
		expectedID     string
		expectedReason string
		expectedCount  int
	}{
		{
			name: "Retry pipeline headers",
			message: kafka.Message{
				Key: []byte("k1"),
				Headers: []kafka.Header{
					{Key: models.HeaderFailureReason, Value: []byte("processing failed")},
					{Key: models.HeaderRetryCount, Value: []byte("3")},
				},
			},
			expectedID:     "k1",
			expectedReason: "processing failed",
			expectedCount:  3,
		},
		{
			name:          "No headers or key",
			message:       kafka.Message{Topic: "t-dlq", Partition: 1, Offset: 7},
			expectedID:    "t-dlq/1/7",
			expectedCount: 0,
		},
		{
			name: "Invalid delivery count",
			message: kafka.Message{
				Key:     []byte("k2"),
				Headers: []kafka.Header{{Key: models.HeaderDeliveryCount, Value: []byte("many")}},
			},
			expectedID:    "k2",
			expectedCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := toDeadLettered(tt.message)
			assert.Equal(t, tt.expectedID, msg.MessageID)
			assert.Equal(t, tt.expectedReason, msg.DeadLetterReason)
			assert.Equal(t, tt.expectedCount, msg.DeliveryCount)
		})
	}
}

func TestReceiver_ReceiveEndsWhenIdle(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Key: []byte("a"), Offset: 1},
		{Key: []byte("b"), Offset: 2},
	}}
	receiver := newReceiver(reader, "q-dlq", 20*time.Millisecond, zap.NewNop())

	var keys []string
	for msg, err := range receiver.Receive(context.Background()) {
		require.NoError(t, err)
		keys = append(keys, msg.Key)
	}

	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestReceiver_ReceiveStopsOnBreak(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Key: []byte("a")}, {Key: []byte("b")}, {Key: []byte("c")},
	}}
	receiver := newReceiver(reader, "q-dlq", time.Second, zap.NewNop())

	for range receiver.Receive(context.Background()) {
		break
	}

	assert.Len(t, reader.messages, 2)
}

func TestReceiver_ReceiveFetchError(t *testing.T) {
	reader := &fakeReader{fetchErr: errors.New("coordinator not available")}
	receiver := newReceiver(reader, "q-dlq", time.Second, zap.NewNop())

	var gotErr error
	for _, err := range receiver.Receive(context.Background()) {
		gotErr = err
	}

	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "coordinator not available")
}

func TestReceiver_ReceiveCancelled(t *testing.T) {
	reader := &fakeReader{}
	receiver := newReceiver(reader, "q-dlq", time.Second, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var gotErr error
	for _, err := range receiver.Receive(ctx) {
		gotErr = err
	}

	assert.ErrorIs(t, gotErr, context.Canceled)
}

func TestReceiver_CompleteCommitsOffset(t *testing.T) {
	reader := &fakeReader{}
	receiver := newReceiver(reader, "q-dlq", time.Second, zap.NewNop())
	msg := toDeadLettered(kafka.Message{Key: []byte("a"), Partition: 1, Offset: 9})

	require.NoError(t, receiver.Complete(context.Background(), msg))
	require.Len(t, reader.committed, 1)
	assert.Equal(t, int64(9), reader.committed[0].Offset)
}

func TestReceiver_CompleteOutOfOrderKeepsGroupOffset(t *testing.T) {
	reader := &fakeReader{}
	receiver := newReceiver(reader, "q-dlq", time.Second, zap.NewNop())
	ctx := context.Background()

	complete := func(partition int, offset int64) {
		msg := toDeadLettered(kafka.Message{Key: []byte("k"), Partition: partition, Offset: offset})
		require.NoError(t, receiver.Complete(ctx, msg))
	}

	complete(0, 7)
	assert.Equal(t, int64(8), reader.groupOffset(0))

	complete(0, 3)
	assert.Equal(t, int64(8), reader.groupOffset(0), "group offset must not move backwards")

	// partitions are tracked independently
	complete(1, 2)
	assert.Equal(t, int64(3), reader.groupOffset(1))
	assert.Equal(t, int64(8), reader.groupOffset(0))

	complete(0, 9)
	assert.Equal(t, int64(10), reader.groupOffset(0))
	assert.Len(t, reader.committed, 3)
}

func TestReceiver_CompleteConcurrentEndsAtHighestOffset(t *testing.T) {
	reader := &fakeReader{}
	receiver := newReceiver(reader, "q-dlq", time.Second, zap.NewNop())

	const n = 50
	var wg sync.WaitGroup
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func(offset int64) {
			defer wg.Done()
			msg := toDeadLettered(kafka.Message{Key: []byte("k"), Offset: offset})
			assert.NoError(t, receiver.Complete(context.Background(), msg))
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, int64(n), reader.groupOffset(0))
}

func TestReceiver_CompleteFailureDoesNotAdvance(t *testing.T) {
	reader := &fakeReader{commitErr: errors.New("coordinator unavailable")}
	receiver := newReceiver(reader, "q-dlq", time.Second, zap.NewNop())

	err := receiver.Complete(context.Background(), toDeadLettered(kafka.Message{Key: []byte("k"), Offset: 5}))
	require.Error(t, err)

	reader.mu.Lock()
	reader.commitErr = nil
	reader.mu.Unlock()

	require.NoError(t, receiver.Complete(context.Background(), toDeadLettered(kafka.Message{Key: []byte("k"), Offset: 2})))
	assert.Equal(t, int64(3), reader.groupOffset(0))
}

func TestReceiver_CompleteRejectsForeignMessage(t *testing.T) {
	receiver := newReceiver(&fakeReader{}, "q-dlq", time.Second, zap.NewNop())

	err := receiver.Complete(context.Background(), &models.DeadLetteredMessage{MessageID: "x"})
	require.Error(t, err)
}

func TestReceiver_CloseIsIdempotent(t *testing.T) {
	reader := &fakeReader{}
	receiver := newReceiver(reader, "q-dlq", time.Second, zap.NewNop())

	require.NoError(t, receiver.Close())
	require.NoError(t, receiver.Close())
	assert.Equal(t, 1, reader.closed)
}
