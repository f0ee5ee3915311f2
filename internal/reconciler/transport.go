package reconciler

import (
	"context"
	"errors"
	"iter"

	"go-deadletter/pkg/models"
	"go-deadletter/pkg/retry"
)

var (
	ErrConnect  = errors.New("transport connection failed")
	ErrReceive  = errors.New("receive from dead-letter queue failed")
	ErrSend     = errors.New("send to main queue failed")
	ErrArchive  = errors.New("archive write failed")
	ErrComplete = errors.New("complete dead-lettered message failed")
)

// SubQueue selects which part of a queue a receiver reads from
type SubQueue int

const (
	SubQueueNone SubQueue = iota
	SubQueueDeadLetter
)

func (s SubQueue) String() string {
	if s == SubQueueDeadLetter {
		return "deadletter"
	}
	return "main"
}

// Transport opens connections to the message queue
type Transport interface {
	Connect(ctx context.Context, policy retry.Policy) (Connection, error)
}

// Connection creates receivers and senders and owns their underlying resources
type Connection interface {
	NewReceiver(ctx context.Context, queue string, subQueue SubQueue) (Receiver, error)
	NewSender(ctx context.Context, queue string) (Sender, error)
	Close() error
}

// Receiver reads dead-lettered messages and removes them on completion.
// The sequence returned by Receive is lazy: breaking out of it stops the
// receiver from pulling more messages. A non-nil error ends the sequence.
type Receiver interface {
	Receive(ctx context.Context) iter.Seq2[*models.DeadLetteredMessage, error]
	Complete(ctx context.Context, msg *models.DeadLetteredMessage) error
	Close() error
}

// Sender submits messages to a queue as a single batch
type Sender interface {
	SendBatch(ctx context.Context, msgs []models.OutboundMessage) error
	Close() error
}

// WriteResult is the outcome reported by an archive write
type WriteResult struct {
	StatusCode int
	Body       interface{}
}

// ArchiveStore writes text blobs into a single container
type ArchiveStore interface {
	// EnsureContainer creates the container if it does not exist yet
	EnsureContainer(ctx context.Context) error
	WriteBlob(ctx context.Context, path, content string) (*WriteResult, error)
}
