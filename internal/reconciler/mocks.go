package reconciler

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"sync"

	"go-deadletter/pkg/models"
	"go-deadletter/pkg/retry"
)

// MockTransport is a mock implementation of Transport for testing
type MockTransport struct {
	mu          sync.Mutex
	Conn        *MockConnection
	ConnectFunc func(ctx context.Context, policy retry.Policy) (Connection, error)
	FailCount   int
	attempts    int
}

func NewMockTransport(receiver *MockReceiver, sender *MockSender) *MockTransport {
	return &MockTransport{
		Conn: &MockConnection{Receiver: receiver, Sender: sender},
	}
}

func (m *MockTransport) Connect(ctx context.Context, policy retry.Policy) (Connection, error) {
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx, policy)
	}

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.attempts++
		if m.attempts <= m.FailCount {
			return fmt.Errorf("simulated connect failure %d", m.attempts)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.Conn, nil
}

func (m *MockTransport) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// MockConnection is a mock implementation of Connection for testing
type MockConnection struct {
	mu             sync.Mutex
	Receiver       *MockReceiver
	Sender         *MockSender
	ReceiverErr    error
	SenderErr      error
	ReceiverQueues []string
	SubQueues      []SubQueue
	closeCount     int
}

func (m *MockConnection) NewReceiver(ctx context.Context, queue string, subQueue SubQueue) (Receiver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReceiverErr != nil {
		return nil, m.ReceiverErr
	}
	m.ReceiverQueues = append(m.ReceiverQueues, queue)
	m.SubQueues = append(m.SubQueues, subQueue)
	return m.Receiver, nil
}

func (m *MockConnection) NewSender(ctx context.Context, queue string) (Sender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SenderErr != nil {
		return nil, m.SenderErr
	}
	m.Sender.Queue = queue
	return m.Sender, nil
}

func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCount++
	return nil
}

func (m *MockConnection) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

// MockReceiver is a mock implementation of Receiver for testing.
// Messages are yielded in order; ReceiveErr, when set, is yielded after them.
type MockReceiver struct {
	mu           sync.Mutex
	Messages     []*models.DeadLetteredMessage
	ReceiveErr   error
	ReceiveFunc  func(ctx context.Context) iter.Seq2[*models.DeadLetteredMessage, error]
	CompleteFunc func(ctx context.Context, msg *models.DeadLetteredMessage) error
	completed    []string
	pulled       int
	closeCount   int
}

func NewMockReceiver(msgs ...*models.DeadLetteredMessage) *MockReceiver {
	return &MockReceiver{Messages: msgs}
}

func (m *MockReceiver) Receive(ctx context.Context) iter.Seq2[*models.DeadLetteredMessage, error] {
	if m.ReceiveFunc != nil {
		return m.ReceiveFunc(ctx)
	}

	return func(yield func(*models.DeadLetteredMessage, error) bool) {
		for _, msg := range m.Messages {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			m.mu.Lock()
			m.pulled++
			m.mu.Unlock()
			if !yield(msg, nil) {
				return
			}
		}
		if m.ReceiveErr != nil {
			yield(nil, m.ReceiveErr)
		}
	}
}

func (m *MockReceiver) Complete(ctx context.Context, msg *models.DeadLetteredMessage) error {
	if m.CompleteFunc != nil {
		if err := m.CompleteFunc(ctx, msg); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, msg.MessageID)
	return nil
}

func (m *MockReceiver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCount++
	return nil
}

func (m *MockReceiver) GetCompleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, len(m.completed))
	copy(ids, m.completed)
	return ids
}

func (m *MockReceiver) Pulled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pulled
}

func (m *MockReceiver) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

// MockSender is a mock implementation of Sender for testing
type MockSender struct {
	mu         sync.Mutex
	Queue      string
	SendFunc   func(ctx context.Context, msgs []models.OutboundMessage) error
	batches    [][]models.OutboundMessage
	closeCount int
}

func NewMockSender() *MockSender {
	return &MockSender{}
}

func (m *MockSender) SendBatch(ctx context.Context, msgs []models.OutboundMessage) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, msgs); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	batch := make([]models.OutboundMessage, len(msgs))
	copy(batch, msgs)
	m.batches = append(m.batches, batch)
	return nil
}

func (m *MockSender) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCount++
	return nil
}

func (m *MockSender) GetBatches() [][]models.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	batches := make([][]models.OutboundMessage, len(m.batches))
	copy(batches, m.batches)
	return batches
}

func (m *MockSender) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

// MockArchiveStore is an in-memory ArchiveStore for testing
type MockArchiveStore struct {
	mu          sync.Mutex
	EnsureFunc  func(ctx context.Context) error
	WriteFunc   func(ctx context.Context, path, content string) (*WriteResult, error)
	blobs       map[string]string
	containers  int
	ensureCalls int
	writeCalls  int
}

func NewMockArchiveStore() *MockArchiveStore {
	return &MockArchiveStore{
		blobs: make(map[string]string),
	}
}

func (m *MockArchiveStore) EnsureContainer(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ensureCalls++
	if m.EnsureFunc != nil {
		return m.EnsureFunc(ctx)
	}
	if m.containers == 0 {
		m.containers = 1
	}
	return nil
}

func (m *MockArchiveStore) WriteBlob(ctx context.Context, path, content string) (*WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writeCalls++
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, path, content)
	}
	m.blobs[path] = content
	return &WriteResult{StatusCode: http.StatusCreated}, nil
}

func (m *MockArchiveStore) Blobs() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	blobs := make(map[string]string, len(m.blobs))
	for k, v := range m.blobs {
		blobs[k] = v
	}
	return blobs
}

func (m *MockArchiveStore) Containers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.containers
}

func (m *MockArchiveStore) EnsureCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureCalls
}

func (m *MockArchiveStore) WriteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeCalls
}
