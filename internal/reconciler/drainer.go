package reconciler

import (
	"context"
	"fmt"
	"iter"
	"time"

	"go-deadletter/pkg/models"

	"github.com/sirupsen/logrus"
)

// Batch holds the messages captured by one drain pass, partitioned by
// classification. Receive order is preserved inside each partition.
type Batch struct {
	Valid   []*models.DeadLetteredMessage
	Invalid []*models.DeadLetteredMessage
}

func (b *Batch) Len() int {
	return len(b.Valid) + len(b.Invalid)
}

// drain consumes messages until the sequence ends, limit messages have been
// stored, or ctx is cancelled. Messages past the limit are left untouched.
func (p *Processor) drain(ctx context.Context, log *logrus.Entry, messages iter.Seq2[*models.DeadLetteredMessage, error], limit int) (*Batch, error) {
	batch := &Batch{
		Valid:   make([]*models.DeadLetteredMessage, 0),
		Invalid: make([]*models.DeadLetteredMessage, 0),
	}

	start := time.Now()
	count := 0
	for msg, err := range messages {
		if err != nil {
			log.WithError(err).WithField("count", count).Error("Error while receiving messages from deadletter")
			return batch, fmt.Errorf("%w: %w", ErrReceive, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return batch, fmt.Errorf("%w: %w", ErrReceive, ctxErr)
		}

		if count >= limit {
			count++
			p.metrics.IncSkipped()
			log.WithField("count", count).Info("Skip message")
			break
		}

		p.metrics.IncReceived()
		switch Classify(msg) {
		case Invalid:
			batch.Invalid = append(batch.Invalid, msg)
		default:
			batch.Valid = append(batch.Valid, msg)
		}
		count++
		log.WithField("count", count).Debug("Processed messages")
	}

	log.WithFields(logrus.Fields{
		"valid":      len(batch.Valid),
		"invalid":    len(batch.Invalid),
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Info("Partitioned dead-lettered messages")

	return batch, nil
}
