package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-deadletter/config/deadletter"
	"go-deadletter/internal/observability"
	"go-deadletter/pkg/retry"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ProcessorConfig struct {
	Transport   Transport
	Archive     ArchiveStore
	Metrics     observability.MetricsCollector
	Logger      *logrus.Logger
	QueueName   string
	BatchCap    int
	RetryPolicy retry.Policy
	Clock       func() time.Time
}

func (c *ProcessorConfig) Validate() error {
	if c.Transport == nil {
		return errors.New("transport cannot be nil")
	}
	if c.Archive == nil {
		return errors.New("archive store cannot be nil")
	}
	if c.BatchCap < 0 {
		return errors.New("batchCap cannot be negative")
	}
	return nil
}

// Processor drains the dead-letter sub-queue, resubmits recoverable messages
// and archives then completes terminal ones.
type Processor struct {
	transport   Transport
	archive     ArchiveStore
	metrics     observability.MetricsCollector
	logger      *logrus.Logger
	queueName   string
	batchCap    int
	retryPolicy retry.Policy
	now         func() time.Time
}

// Result summarises one Execute call
type Result struct {
	RunID         string
	Received      int
	Valid         int
	Invalid       int
	Resent        int
	Completed     int
	ArchivePath   string
	ArchiveStatus int
}

func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid processor config: %w", err)
	}

	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewInMemoryMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.GetLogger()
	}
	if cfg.QueueName == "" {
		cfg.QueueName = deadletter.QueueName
	}
	if cfg.BatchCap == 0 {
		cfg.BatchCap = deadletter.BatchCap
	}
	if cfg.RetryPolicy.MaxRetries == 0 {
		cfg.RetryPolicy = ConnectPolicy()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Processor{
		transport:   cfg.Transport,
		archive:     cfg.Archive,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		queueName:   cfg.QueueName,
		batchCap:    cfg.BatchCap,
		retryPolicy: cfg.RetryPolicy,
		now:         cfg.Clock,
	}, nil
}

// ConnectPolicy is the connection level retry policy
func ConnectPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:     deadletter.ConnectMaxRetries,
		InitialBackoff: deadletter.ConnectInitialBackoff,
		MaxBackoff:     deadletter.ConnectMaxBackoff,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// Execute runs one reconciliation pass. Stages are strictly ordered: drain,
// resend valid, archive and complete invalid. Any fatal error is logged and
// returned; partial progress made before it is not rolled back.
func (p *Processor) Execute(ctx context.Context) (*Result, error) {
	result := &Result{RunID: uuid.NewString()}
	log := observability.ForRun(p.logger, result.RunID, p.queueName)

	err := p.execute(ctx, log, result)
	if err != nil {
		log.WithError(err).Error("Error while processing messages from deadletter. See error for details.")
		return result, err
	}

	log.WithFields(logrus.Fields{
		"received":  result.Received,
		"valid":     result.Valid,
		"invalid":   result.Invalid,
		"resent":    result.Resent,
		"completed": result.Completed,
	}).Info("Dead-letter reconciliation finished")
	return result, nil
}

func (p *Processor) execute(ctx context.Context, log *logrus.Entry, result *Result) error {
	policy := p.retryPolicy
	policy.OnRetry = func(attempt int, backoff time.Duration, err error) {
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"backoff": backoff,
		}).Warn("Transport connection failed, retrying")
	}

	conn, err := p.transport.Connect(ctx, policy)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}
	defer p.release(log, "connection", conn.Close)

	receiver, err := conn.NewReceiver(ctx, p.queueName, SubQueueDeadLetter)
	if err != nil {
		return fmt.Errorf("%w: create receiver: %w", ErrConnect, err)
	}

	batch, err := p.drain(ctx, log, receiver.Receive(ctx), p.batchCap)
	result.Received = batch.Len()
	result.Valid = len(batch.Valid)
	result.Invalid = len(batch.Invalid)
	if err != nil {
		p.release(log, "receiver", receiver.Close)
		return err
	}

	sender, err := conn.NewSender(ctx, p.queueName)
	if err != nil {
		p.release(log, "receiver", receiver.Close)
		return fmt.Errorf("%w: create sender: %w", ErrConnect, err)
	}

	resent, err := p.resendValid(ctx, log, batch.Valid, sender)
	if err != nil {
		p.release(log, "receiver", receiver.Close)
		return err
	}
	result.Resent = resent

	outcome, err := p.archiveAndComplete(ctx, log, batch.Invalid, receiver)
	result.ArchivePath = outcome.Path
	result.ArchiveStatus = outcome.Status
	result.Completed = outcome.Completed
	return err
}

// release closes a transport resource, logging instead of failing the pass
func (p *Processor) release(log *logrus.Entry, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.WithError(err).WithField("resource", name).Warn("Failed to release transport resource")
	}
}
