package reconciler

import (
	"fmt"
	"io"
	"testing"
	"time"

	"go-deadletter/internal/observability"
	"go-deadletter/pkg/models"
	"go-deadletter/pkg/retry"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, time.March, 7, 10, 30, 0, 0, time.UTC)

type testEnv struct {
	processor *Processor
	transport *MockTransport
	receiver  *MockReceiver
	sender    *MockSender
	archive   *MockArchiveStore
	metrics   *observability.InMemoryMetrics
}

func newTestEnv(t *testing.T, msgs ...*models.DeadLetteredMessage) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env := &testEnv{
		receiver: NewMockReceiver(msgs...),
		sender:   NewMockSender(),
		archive:  NewMockArchiveStore(),
		metrics:  observability.NewInMemoryMetrics(),
	}
	env.transport = NewMockTransport(env.receiver, env.sender)

	processor, err := NewProcessor(ProcessorConfig{
		Transport: env.transport,
		Archive:   env.archive,
		Metrics:   env.metrics,
		Logger:    logger,
		RetryPolicy: retry.Policy{
			MaxRetries:     3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
			BackoffFactor:  2.0,
		},
		Clock: func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	env.processor = processor

	return env
}

func (e *testEnv) log() *logrus.Entry {
	return logrus.NewEntry(e.processor.logger)
}

func validMessage(id string) *models.DeadLetteredMessage {
	return &models.DeadLetteredMessage{
		MessageID:     id,
		Key:           "key-" + id,
		Body:          []byte(`{"id":"` + id + `"}`),
		DeliveryCount: 1,
		Headers: map[string]string{
			models.HeaderMessageID:     id,
			models.HeaderDeliveryCount: "1",
			"content-type":             "application/json",
		},
	}
}

func invalidMessage(id string) *models.DeadLetteredMessage {
	return &models.DeadLetteredMessage{
		MessageID:                  id,
		Key:                        "key-" + id,
		Body:                       []byte(`{"id":"` + id + `"}`),
		DeadLetterReason:           "MaxDeliveryCountExceeded",
		DeadLetterErrorDescription: "handler failed",
		DeliveryCount:              5,
	}
}

func generateMessages(n int) []*models.DeadLetteredMessage {
	msgs := make([]*models.DeadLetteredMessage, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("m%d", i)
		if i%3 == 0 {
			msgs = append(msgs, invalidMessage(id))
		} else {
			msgs = append(msgs, validMessage(id))
		}
	}
	return msgs
}

func ids(msgs []*models.DeadLetteredMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, msg.MessageID)
	}
	return out
}
