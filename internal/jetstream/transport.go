package jetstream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go-deadletter/internal/observability"
	"go-deadletter/internal/reconciler"
	"go-deadletter/pkg/retry"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"
)

const deadLetterToken = "deadletter"

type TransportConfig struct {
	URL         string
	Name        string
	IdleTimeout time.Duration
	FetchSize   int
	AckWait     time.Duration
}

// Transport implements reconciler.Transport on NATS JetStream. A queue is a
// stream named after it; its dead-letter sub-queue is the subject
// <queue>.deadletter inside the same stream.
type Transport struct {
	cfg    TransportConfig
	logger *logrus.Entry
	dial   func(url, name string) (*nats.Conn, error)
}

func NewTransport(cfg TransportConfig) (*Transport, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url cannot be empty")
	}
	if cfg.Name == "" {
		cfg.Name = "deadletter-reconciler"
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 5 * time.Second
	}
	if cfg.FetchSize == 0 {
		cfg.FetchSize = 50
	}
	if cfg.AckWait == 0 {
		cfg.AckWait = 5 * time.Minute
	}

	return &Transport{
		cfg:    cfg,
		logger: observability.WithField("transport", "jetstream"),
		dial:   Dial,
	}, nil
}

// Connect dials the NATS server, retrying with the given policy
func (t *Transport) Connect(ctx context.Context, policy retry.Policy) (reconciler.Connection, error) {
	var nc *nats.Conn
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		conn, err := t.dial(t.cfg.URL, t.cfg.Name)
		if err != nil {
			if isPermanentDialError(err) {
				return retry.Permanent(err)
			}
			return err
		}
		nc = conn
		return nil
	})
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	t.logger.WithField("url", nc.ConnectedUrlRedacted()).Info("Connected to NATS")
	return &Connection{nc: nc, js: js, cfg: t.cfg, logger: t.logger}, nil
}

// Dial opens a plain NATS connection
func Dial(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return nc, nil
}

// isPermanentDialError reports failures that another attempt cannot fix:
// rejected credentials and unparseable server URLs
func isPermanentDialError(err error) bool {
	var urlErr *url.Error
	return errors.Is(err, nats.ErrAuthorization) ||
		errors.Is(err, nats.ErrAuthExpired) ||
		errors.Is(err, nats.ErrAuthRevoked) ||
		errors.As(err, &urlErr)
}

// DeadLetterSubject returns the subject holding the dead-lettered messages of queue
func DeadLetterSubject(queue string) string {
	return queue + "." + deadLetterToken
}

// EnsureStream creates the stream backing queue, or updates it, so that it
// captures both the main subject and the dead-letter subject
func EnsureStream(ctx context.Context, nc *nats.Conn, queue string) error {
	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      queue,
		Subjects:  []string{queue, DeadLetterSubject(queue)},
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create or update stream %s: %w", queue, err)
	}
	return nil
}

// Connection owns the NATS connection shared by receivers and senders
type Connection struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	cfg    TransportConfig
	logger *logrus.Entry

	closed sync.Once
}

func (c *Connection) NewReceiver(ctx context.Context, queue string, subQueue reconciler.SubQueue) (reconciler.Receiver, error) {
	stream, err := c.js.Stream(ctx, queue)
	if err != nil {
		return nil, fmt.Errorf("failed to look up stream %s: %w", queue, err)
	}

	subject := queue
	if subQueue == reconciler.SubQueueDeadLetter {
		subject = DeadLetterSubject(queue)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       queue + "-" + subQueue.String() + "-reconciler",
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.cfg.AckWait,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer on %s: %w", subject, err)
	}

	c.logger.WithField("subject", subject).Info("Created receiver")
	return &Receiver{
		consumer:    consumer,
		subject:     subject,
		fetchSize:   c.cfg.FetchSize,
		idleTimeout: c.cfg.IdleTimeout,
		logger:      c.logger.WithField("subject", subject),
	}, nil
}

func (c *Connection) NewSender(ctx context.Context, queue string) (reconciler.Sender, error) {
	return &Sender{js: c.js, subject: queue, logger: c.logger.WithField("subject", queue)}, nil
}

func (c *Connection) Close() error {
	c.closed.Do(func() {
		c.logger.Info("Closing NATS connection")
		c.nc.Close()
	})
	return nil
}
