package reconciler

import (
	"context"
	"fmt"
	"time"

	"go-deadletter/pkg/models"

	"github.com/sirupsen/logrus"
)

// toOutbound copies a dead-lettered message's content into a new message for
// the main queue and stamps when it was resubmitted. Dead-letter metadata
// stays behind.
func toOutbound(msg *models.DeadLetteredMessage, resubmittedAt time.Time) models.OutboundMessage {
	out := models.OutboundMessage{
		MessageID: msg.MessageID,
		Key:       msg.Key,
		Body:      msg.Body,
		Headers:   make(map[string]string, len(msg.Headers)+1),
	}

	for k, v := range msg.Headers {
		if models.IsDeadLetterHeader(k) {
			continue
		}
		out.Headers[k] = v
	}
	out.Headers[models.HeaderResubmittedAt] = resubmittedAt.UTC().Format(time.RFC3339)

	return out
}

// resendValid submits every valid message to the main queue in one batch.
// The dead-lettered originals are not completed here. The sender is always
// closed before returning.
func (p *Processor) resendValid(ctx context.Context, log *logrus.Entry, valid []*models.DeadLetteredMessage, sender Sender) (int, error) {
	defer p.release(log, "sender", sender.Close)

	if len(valid) == 0 {
		log.Info("No valid messages to resend")
		return 0, nil
	}

	now := p.now()
	outbound := make([]models.OutboundMessage, 0, len(valid))
	for _, msg := range valid {
		outbound = append(outbound, toOutbound(msg, now))
	}

	if err := sender.SendBatch(ctx, outbound); err != nil {
		p.metrics.IncResendFailed()
		log.WithError(err).WithField("count", len(outbound)).Error("Error while processing valid messages. See error for details.")
		return 0, fmt.Errorf("%w: %w", ErrSend, err)
	}

	p.metrics.IncResent(len(outbound))
	log.WithField("count", len(outbound)).Info("Sent messages to queue")
	return len(outbound), nil
}
