package kafka

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"sync"
	"time"

	"go-deadletter/pkg/models"

	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Receiver reads a dead-letter topic through a consumer group. Completing a
// message commits its offset.
type Receiver struct {
	reader      messageReader
	topic       string
	idleTimeout time.Duration
	logger      *zap.Logger

	commitMu  sync.Mutex
	committed map[int]int64 // partition -> next offset the group will read
	closed    sync.Once
	closeErr error
}

func newReceiver(reader messageReader, topic string, idleTimeout time.Duration, logger *zap.Logger) *Receiver {
	return &Receiver{
		reader:      reader,
		topic:       topic,
		idleTimeout: idleTimeout,
		logger:      logger,
		committed:   make(map[int]int64),
	}
}

// Receive yields messages until no message arrives within the idle timeout.
// Cancellation of ctx is yielded as an error.
func (r *Receiver) Receive(ctx context.Context) iter.Seq2[*models.DeadLetteredMessage, error] {
	return func(yield func(*models.DeadLetteredMessage, error) bool) {
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			fetchCtx, cancel := context.WithTimeout(ctx, r.idleTimeout)
			m, err := r.reader.FetchMessage(fetchCtx)
			cancel()

			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					yield(nil, ctxErr)
					return
				}
				if errors.Is(err, context.DeadlineExceeded) {
					r.logger.Info("No more dead-lettered messages", zap.String("topic", r.topic))
					return
				}
				yield(nil, fmt.Errorf("failed to fetch message: %w", err))
				return
			}

			if !yield(toDeadLettered(m), nil) {
				return
			}
		}
	}
}

// Complete commits the message's offset for the consumer group. A Kafka commit
// covers every lower offset of the partition too, so earlier messages that
// were resent rather than completed are also marked consumed. Completions may
// arrive in any order; a commit below the partition's committed offset is
// skipped so the group offset never moves backwards.
func (r *Receiver) Complete(ctx context.Context, msg *models.DeadLetteredMessage) error {
	m, ok := msg.Handle.(kafka.Message)
	if !ok {
		return fmt.Errorf("message %s was not received from kafka", msg.MessageID)
	}

	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	if next, ok := r.committed[m.Partition]; ok && m.Offset < next {
		r.logger.Debug("Offset already committed",
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Int64("committed", next))
		return nil
	}

	if err := r.reader.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("failed to commit offset %d on partition %d: %w", m.Offset, m.Partition, err)
	}
	r.committed[m.Partition] = m.Offset + 1
	return nil
}

func (r *Receiver) Close() error {
	r.closed.Do(func() {
		r.logger.Info("Closing receiver", zap.String("topic", r.topic))
		if err := r.reader.Close(); err != nil {
			r.closeErr = fmt.Errorf("failed to close receiver: %w", err)
		}
	})
	return r.closeErr
}

// toDeadLettered converts a Kafka message to the dead-letter model
func toDeadLettered(m kafka.Message) *models.DeadLetteredMessage {
	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}

	msg := &models.DeadLetteredMessage{
		MessageID:                  headers[models.HeaderMessageID],
		DeadLetterReason:           firstHeader(headers, models.HeaderDeadLetterReason, models.HeaderFailureReason),
		DeadLetterErrorDescription: headers[models.HeaderDeadLetterErrorDescription],
		DeliveryCount:              getDeliveryCount(headers),
		Key:                        string(m.Key),
		Body:                       m.Value,
		Headers:                    headers,
		EnqueuedAt:                 m.Time,
		Handle:                     m,
	}

	if msg.MessageID == "" {
		msg.MessageID = msg.Key
	}
	if msg.MessageID == "" {
		msg.MessageID = fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset)
	}

	return msg
}

func firstHeader(headers map[string]string, keys ...string) string {
	for _, key := range keys {
		if v := headers[key]; v != "" {
			return v
		}
	}
	return ""
}

// getDeliveryCount extracts the delivery count from message headers
func getDeliveryCount(headers map[string]string) int {
	countStr := firstHeader(headers, models.HeaderDeliveryCount, models.HeaderRetryCount)
	if countStr == "" {
		return 0
	}
	if count, err := strconv.Atoi(countStr); err == nil {
		return count
	}
	return 0
}
