package jetstream

import (
	"context"
	"fmt"

	"go-deadletter/pkg/models"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"
)

// Sender publishes resubmitted messages to the queue subject. JetStream has
// no atomic multi-message publish, so a failure part way leaves the earlier
// messages published.
type Sender struct {
	js      jetstream.JetStream
	subject string
	logger  *logrus.Entry
}

func (s *Sender) SendBatch(ctx context.Context, msgs []models.OutboundMessage) error {
	for i, msg := range msgs {
		if _, err := s.js.PublishMsg(ctx, toNATS(s.subject, msg)); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"message_id": msg.MessageID,
				"published":  i,
			}).Error("Failed to publish message")
			return fmt.Errorf("failed to publish message %s: %w", msg.MessageID, err)
		}
	}

	s.logger.WithField("count", len(msgs)).Info("Batch sent")
	return nil
}

func (s *Sender) Close() error {
	return nil
}

func toNATS(subject string, msg models.OutboundMessage) *nats.Msg {
	out := nats.NewMsg(subject)
	out.Data = msg.Body
	for k, v := range msg.Headers {
		out.Header.Set(k, v)
	}
	if msg.MessageID != "" && out.Header.Get(models.HeaderMessageID) == "" {
		out.Header.Set(models.HeaderMessageID, msg.MessageID)
	}
	if msg.Key != "" {
		out.Header.Set("key", msg.Key)
	}
	return out
}
