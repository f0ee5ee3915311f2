package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go-deadletter/internal/reconciler"
	"go-deadletter/pkg/retry"

	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type TransportConfig struct {
	Brokers          []string
	GroupID          string
	DeadLetterSuffix string
	IdleTimeout      time.Duration
	MinBytes         int
	MaxBytes         int
	Logger           *zap.Logger
}

// Transport implements reconciler.Transport on top of Kafka. The dead-letter
// sub-queue of a queue is the topic named queue+DeadLetterSuffix.
type Transport struct {
	cfg    TransportConfig
	logger *zap.Logger
	dial   func(ctx context.Context, network, address string) (*kafka.Conn, error)
}

func NewTransport(cfg TransportConfig) (*Transport, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("groupID cannot be empty")
	}
	if cfg.DeadLetterSuffix == "" {
		cfg.DeadLetterSuffix = "-dlq"
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 5 * time.Second
	}
	if cfg.MinBytes == 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 10e6
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Transport{
		cfg:    cfg,
		logger: cfg.Logger,
		dial:   kafka.DialContext,
	}, nil
}

// Connect verifies broker connectivity, retrying with the given policy
func (t *Transport) Connect(ctx context.Context, policy retry.Policy) (reconciler.Connection, error) {
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		err := t.healthCheck(ctx)
		if isPermanentConnectError(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		t.logger.Error("Failed to connect to Kafka", zap.Strings("brokers", t.cfg.Brokers), zap.Error(err))
		return nil, err
	}

	t.logger.Info("Connected to Kafka", zap.Strings("brokers", t.cfg.Brokers))
	return &Connection{cfg: t.cfg, logger: t.logger}, nil
}

// healthCheck verifies connectivity to the first reachable broker
func (t *Transport) healthCheck(ctx context.Context) error {
	var lastErr error
	for _, broker := range t.cfg.Brokers {
		conn, err := t.dial(ctx, "tcp", broker)
		if err != nil {
			lastErr = fmt.Errorf("failed to connect to broker %s: %w", broker, err)
			continue
		}

		// Fetch metadata to verify broker health
		_, err = conn.ReadPartitions()
		conn.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read partitions from %s: %w", broker, err)
			continue
		}
		return nil
	}
	return lastErr
}

// isPermanentConnectError reports failures that another attempt cannot fix:
// rejected credentials and malformed broker addresses
func isPermanentConnectError(err error) bool {
	if err == nil {
		return false
	}
	var addrErr *net.AddrError
	return errors.Is(err, kafka.SASLAuthenticationFailed) ||
		errors.Is(err, kafka.ClusterAuthorizationFailed) ||
		errors.Is(err, kafka.TopicAuthorizationFailed) ||
		errors.As(err, &addrErr)
}

// DeadLetterTopic returns the topic holding the dead-lettered messages of queue
func DeadLetterTopic(queue, suffix string) string {
	return queue + suffix
}

// Connection hands out readers and writers that share the same brokers and
// closes whatever is still open when it is closed itself
type Connection struct {
	cfg    TransportConfig
	logger *zap.Logger

	mu      sync.Mutex
	closers []io.Closer
}

func (c *Connection) track(closer io.Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, closer)
}

func (c *Connection) NewReceiver(ctx context.Context, queue string, subQueue reconciler.SubQueue) (reconciler.Receiver, error) {
	topic := queue
	if subQueue == reconciler.SubQueueDeadLetter {
		topic = DeadLetterTopic(queue, c.cfg.DeadLetterSuffix)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.cfg.Brokers,
		Topic:          topic,
		GroupID:        c.cfg.GroupID,
		MinBytes:       c.cfg.MinBytes,
		MaxBytes:       c.cfg.MaxBytes,
		MaxWait:        c.cfg.IdleTimeout,
		CommitInterval: 0, // Manual commits
		StartOffset:    kafka.FirstOffset,
	})

	c.logger.Info("Created receiver", zap.String("topic", topic), zap.String("group_id", c.cfg.GroupID))
	receiver := newReceiver(reader, topic, c.cfg.IdleTimeout, c.logger)
	c.track(receiver)
	return receiver, nil
}

func (c *Connection) NewSender(ctx context.Context, queue string) (reconciler.Sender, error) {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(c.cfg.Brokers...),
		Topic:                  queue,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: false,
		Async:                  false, // Synchronous for reliable error handling
	}

	sender := &Sender{writer: writer, topic: queue, logger: c.logger}
	c.track(sender)
	return sender, nil
}

func (c *Connection) Close() error {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	c.logger.Info("Closing Kafka connection", zap.Int("resources", len(closers)))
	var errs []error
	for _, closer := range closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
