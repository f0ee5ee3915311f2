package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-deadletter/pkg/models"

	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sender writes a batch of messages to the main topic in one request
type Sender struct {
	writer messageWriter
	topic  string
	logger *zap.Logger

	closed   sync.Once
	closeErr error
}

func (s *Sender) SendBatch(ctx context.Context, msgs []models.OutboundMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	if err := s.writer.WriteMessages(ctx, toKafkaMessages(msgs)...); err != nil {
		s.logger.Error("Failed to send batch",
			zap.String("topic", s.topic),
			zap.Int("count", len(msgs)),
			zap.Error(err),
		)
		return fmt.Errorf("failed to write %d messages to %s: %w", len(msgs), s.topic, err)
	}

	s.logger.Info("Batch sent", zap.String("topic", s.topic), zap.Int("count", len(msgs)))
	return nil
}

func (s *Sender) Close() error {
	s.closed.Do(func() {
		s.logger.Info("Closing sender", zap.String("topic", s.topic))
		if err := s.writer.Close(); err != nil {
			s.closeErr = fmt.Errorf("failed to close sender: %w", err)
		}
	})
	return s.closeErr
}

func toKafkaMessages(msgs []models.OutboundMessage) []kafka.Message {
	now := time.Now()
	out := make([]kafka.Message, 0, len(msgs))
	for _, msg := range msgs {
		km := kafka.Message{
			Key:   []byte(msg.Key),
			Value: msg.Body,
			Time:  now,
		}

		headers := make([]kafka.Header, 0, len(msg.Headers)+1)
		if _, ok := msg.Headers[models.HeaderMessageID]; !ok && msg.MessageID != "" {
			headers = append(headers, kafka.Header{Key: models.HeaderMessageID, Value: []byte(msg.MessageID)})
		}
		for k, v := range msg.Headers {
			headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
		}
		km.Headers = headers

		out = append(out, km)
	}
	return out
}
