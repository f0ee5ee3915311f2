package jetstream

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"time"

	"go-deadletter/pkg/models"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"
)

// Receiver pulls dead-lettered messages from a durable consumer. Completing a
// message acknowledges it, which removes it from the consumer's backlog.
type Receiver struct {
	consumer    jetstream.Consumer
	subject     string
	fetchSize   int
	idleTimeout time.Duration
	logger      *logrus.Entry
}

// Receive yields messages in fetched batches until a fetch comes back empty.
// The message at which the caller stops iterating, and the rest of its batch,
// are negatively acknowledged so the next run sees them without waiting for
// the ack timeout.
func (r *Receiver) Receive(ctx context.Context) iter.Seq2[*models.DeadLetteredMessage, error] {
	return func(yield func(*models.DeadLetteredMessage, error) bool) {
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			batch, err := r.consumer.Fetch(r.fetchSize, jetstream.FetchMaxWait(r.idleTimeout))
			if err != nil {
				yield(nil, fmt.Errorf("failed to fetch messages: %w", err))
				return
			}

			received := 0
			for msg := range batch.Messages() {
				received++
				if err := ctx.Err(); err != nil {
					r.release(msg, batch.Messages())
					yield(nil, err)
					return
				}
				if !yield(fromJetStream(msg), nil) {
					r.release(msg, batch.Messages())
					return
				}
			}

			if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) && !errors.Is(err, jetstream.ErrNoMessages) {
				yield(nil, fmt.Errorf("fetch batch failed: %w", err))
				return
			}
			if received == 0 {
				r.logger.Info("No more dead-lettered messages")
				return
			}
		}
	}
}

// release hands unconsumed messages back to the server
func (r *Receiver) release(first jetstream.Msg, rest <-chan jetstream.Msg) {
	if first != nil {
		_ = first.Nak()
	}
	for msg := range rest {
		_ = msg.Nak()
	}
}

func (r *Receiver) Complete(ctx context.Context, msg *models.DeadLetteredMessage) error {
	m, ok := msg.Handle.(jetstream.Msg)
	if !ok {
		return fmt.Errorf("message %s was not received from jetstream", msg.MessageID)
	}
	if err := m.DoubleAck(ctx); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", msg.MessageID, err)
	}
	return nil
}

// Close is a no-op: the durable consumer outlives the run
func (r *Receiver) Close() error {
	r.logger.Debug("Closing receiver")
	return nil
}

func fromJetStream(msg jetstream.Msg) *models.DeadLetteredMessage {
	var delivered uint64
	var enqueued time.Time
	var seq uint64
	if meta, err := msg.Metadata(); err == nil {
		delivered = meta.NumDelivered
		enqueued = meta.Timestamp
		seq = meta.Sequence.Stream
	}

	out := buildMessage(msg.Subject(), msg.Data(), msg.Headers(), delivered, seq)
	out.EnqueuedAt = enqueued
	out.Handle = msg
	return out
}

// buildMessage maps a stored message onto the dead-letter model. The
// delivery-count header written by the dead-lettering side wins over the
// server's own delivery counter, which also counts reconciler redeliveries.
func buildMessage(subject string, data []byte, header nats.Header, delivered, seq uint64) *models.DeadLetteredMessage {
	headers := make(map[string]string, len(header))
	for k := range header {
		headers[k] = header.Get(k)
	}

	msg := &models.DeadLetteredMessage{
		MessageID:                  headers[models.HeaderMessageID],
		DeadLetterReason:           headers[models.HeaderDeadLetterReason],
		DeadLetterErrorDescription: headers[models.HeaderDeadLetterErrorDescription],
		DeliveryCount:              int(delivered),
		Key:                        headers["key"],
		Body:                       data,
		Headers:                    headers,
	}

	if v, ok := headers[models.HeaderDeliveryCount]; ok {
		if count, err := strconv.Atoi(v); err == nil {
			msg.DeliveryCount = count
		}
	}
	if msg.MessageID == "" {
		msg.MessageID = fmt.Sprintf("%s/%d", subject, seq)
	}

	return msg
}
