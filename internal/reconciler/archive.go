package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go-deadletter/pkg/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const recordSeparator = "\n"

type archiveOutcome struct {
	Path      string
	Status    int
	Completed int
}

// FormatRecordLine renders the audit line for one invalid message
func FormatRecordLine(msg *models.DeadLetteredMessage) string {
	return fmt.Sprintf("MessageId:%s;DeadLetterReason:%s;DeadLetterErrorDescription:%s;DeliveryCount:%d",
		msg.MessageID, msg.DeadLetterReason, msg.DeadLetterErrorDescription, msg.DeliveryCount)
}

// BuildArchiveRecord joins one line per message. An empty input yields "".
func BuildArchiveRecord(msgs []*models.DeadLetteredMessage) string {
	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		lines = append(lines, FormatRecordLine(msg))
	}
	return strings.Join(lines, recordSeparator)
}

// ArchivePath returns <DDMMYYYY>/<unix seconds>.txt for t
func ArchivePath(t time.Time) string {
	return fmt.Sprintf("%s/%d.txt", t.Format("02012006"), t.Unix())
}

// archiveAndComplete writes the audit record for the invalid messages and
// then completes each of them concurrently. A non-created archive status is
// logged but does not stop the completions. The receiver is closed on every
// return path.
func (p *Processor) archiveAndComplete(ctx context.Context, log *logrus.Entry, invalid []*models.DeadLetteredMessage, receiver Receiver) (archiveOutcome, error) {
	defer p.release(log, "receiver", receiver.Close)

	var outcome archiveOutcome
	if len(invalid) == 0 {
		log.Info("No invalid messages to archive")
		return outcome, nil
	}

	outcome.Path = ArchivePath(p.now())
	status, err := p.writeArchive(ctx, log, outcome.Path, invalid)
	outcome.Status = status
	if err != nil {
		return outcome, err
	}

	completed, err := p.completeAll(ctx, log, invalid, receiver)
	outcome.Completed = completed
	if err != nil {
		log.WithError(err).Error("Error while processing invalid messages. See error for details.")
		return outcome, err
	}

	return outcome, nil
}

func (p *Processor) writeArchive(ctx context.Context, log *logrus.Entry, path string, invalid []*models.DeadLetteredMessage) (int, error) {
	log = log.WithField("blob_path", path)
	record := BuildArchiveRecord(invalid)

	if err := p.archive.EnsureContainer(ctx); err != nil {
		p.metrics.IncArchiveFailed(len(invalid))
		log.WithError(err).Error("Error while creating archive container")
		return 0, fmt.Errorf("%w: ensure container: %w", ErrArchive, err)
	}

	result, err := p.archive.WriteBlob(ctx, path, record)
	if err != nil {
		p.metrics.IncArchiveFailed(len(invalid))
		log.WithError(err).Error("Error while processing invalid messages. See error for details.")
		return 0, fmt.Errorf("%w: %w", ErrArchive, err)
	}

	if result.StatusCode != http.StatusCreated {
		p.metrics.IncArchiveFailed(len(invalid))
		content, _ := json.Marshal(result.Body)
		log.WithFields(logrus.Fields{
			"status":  result.StatusCode,
			"content": string(content),
		}).Error("Error while updating blob")
		return result.StatusCode, nil
	}

	p.metrics.IncArchived(len(invalid))
	log.Info("Archived invalid messages")
	return result.StatusCode, nil
}

// completeAll completes every message in its own goroutine with no
// concurrency cap. All completions run to the end; the first failure is
// returned.
func (p *Processor) completeAll(ctx context.Context, log *logrus.Entry, msgs []*models.DeadLetteredMessage, receiver Receiver) (int, error) {
	var (
		g     errgroup.Group
		count atomic.Int64
	)

	for _, msg := range msgs {
		g.Go(func() error {
			entry := log.WithField("message_id", msg.MessageID)
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: message %s: %w", ErrComplete, msg.MessageID, err)
			}

			if err := receiver.Complete(ctx, msg); err != nil {
				p.metrics.IncCompleteFailed()
				entry.WithError(err).Error("Failed to complete message")
				return fmt.Errorf("%w: message %s: %w", ErrComplete, msg.MessageID, err)
			}

			p.metrics.IncCompleted()
			entry.WithField("count", count.Add(1)).Info("Completed message")
			return nil
		})
	}

	err := g.Wait()
	return int(count.Load()), err
}
