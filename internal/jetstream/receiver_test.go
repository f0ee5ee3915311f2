package jetstream

import (
	"testing"

	"go-deadletter/pkg/models"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

func TestBuildMessage(t *testing.T) {
	header := nats.Header{}
	header.Set(models.HeaderMessageID, "msg-1")
	header.Set(models.HeaderDeadLetterReason, "TTL")
	header.Set(models.HeaderDeadLetterErrorDescription, "expired")
	header.Set(models.HeaderDeliveryCount, "5")
	header.Set("key", "order-1")

	msg := buildMessage("subscriptionoutbox.deadletter", []byte("body"), header, 1, 12)

	assert.Equal(t, "msg-1", msg.MessageID)
	assert.Equal(t, "TTL", msg.DeadLetterReason)
	assert.Equal(t, "expired", msg.DeadLetterErrorDescription)
	assert.Equal(t, 5, msg.DeliveryCount)
	assert.Equal(t, "order-1", msg.Key)
	assert.Equal(t, []byte("body"), msg.Body)
}

func TestBuildMessage_Fallbacks(t *testing.T) {
	tests := []struct {
		name          string
		header        nats.Header
		delivered     uint64
		expectedID    string
		expectedCount int
	}{
		{
			name:          "Server delivery count without header",
			header:        nats.Header{},
			delivered:     4,
			expectedID:    "subscriptionoutbox.deadletter/7",
			expectedCount: 4,
		},
		{
			name:          "Unparseable header keeps server count",
			header:        nats.Header{models.HeaderDeliveryCount: []string{"lots"}},
			delivered:     2,
			expectedID:    "subscriptionoutbox.deadletter/7",
			expectedCount: 2,
		},
		{
			name:          "Nil header",
			header:        nil,
			delivered:     0,
			expectedID:    "subscriptionoutbox.deadletter/7",
			expectedCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := buildMessage("subscriptionoutbox.deadletter", nil, tt.header, tt.delivered, 7)
			assert.Equal(t, tt.expectedID, msg.MessageID)
			assert.Equal(t, tt.expectedCount, msg.DeliveryCount)
			assert.Equal(t, "", msg.DeadLetterReason)
		})
	}
}

func TestToNATS(t *testing.T) {
	out := toNATS("subscriptionoutbox", models.OutboundMessage{
		MessageID: "m1",
		Key:       "k1",
		Body:      []byte("payload"),
		Headers:   map[string]string{"content-type": "application/json"},
	})

	assert.Equal(t, "subscriptionoutbox", out.Subject)
	assert.Equal(t, []byte("payload"), out.Data)
	assert.Equal(t, "m1", out.Header.Get(models.HeaderMessageID))
	assert.Equal(t, "k1", out.Header.Get("key"))
	assert.Equal(t, "application/json", out.Header.Get("content-type"))
}

func TestDeadLetterSubject(t *testing.T) {
	assert.Equal(t, "subscriptionoutbox.deadletter", DeadLetterSubject("subscriptionoutbox"))
}
