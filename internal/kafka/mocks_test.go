package kafka

import (
	"context"
	"sync"

	kafka "github.com/segmentio/kafka-go"
)

// fakeReader serves queued messages and then blocks until ctx expires,
// like a consumer group reader on a drained topic
type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	fetchErr  error
	committed []kafka.Message
	offsets   map[int]int64 // last commit wins, like a group coordinator
	commitErr error
	closed    int
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if f.fetchErr != nil {
		err := f.fetchErr
		f.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(f.messages) > 0 {
		m := f.messages[0]
		f.messages = f.messages[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = append(f.committed, msgs...)
	if f.offsets == nil {
		f.offsets = make(map[int]int64)
	}
	for _, m := range msgs {
		f.offsets[m.Partition] = m.Offset + 1
	}
	return nil
}

func (f *fakeReader) groupOffset(partition int) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offsets[partition]
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

type fakeWriter struct {
	mu       sync.Mutex
	writes   [][]kafka.Message
	writeErr error
	closed   int
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, msgs)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}
