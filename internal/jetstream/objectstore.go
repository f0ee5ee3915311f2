package jetstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go-deadletter/internal/observability"
	"go-deadletter/internal/reconciler"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"
)

// ObjectArchive stores archive records in a JetStream object store bucket.
// Objects are write-once: writing an existing name reports a conflict.
type ObjectArchive struct {
	js     jetstream.JetStream
	bucket string
	logger *logrus.Entry

	store jetstream.ObjectStore
}

func NewObjectArchive(nc *nats.Conn, bucket string) (*ObjectArchive, error) {
	if bucket == "" {
		return nil, errors.New("bucket cannot be empty")
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	return &ObjectArchive{
		js:     js,
		bucket: bucket,
		logger: observability.WithField("bucket", bucket),
	}, nil
}

// EnsureContainer looks the bucket up and creates it when missing
func (a *ObjectArchive) EnsureContainer(ctx context.Context) error {
	store, err := a.js.ObjectStore(ctx, a.bucket)
	if err == nil {
		a.store = store
		return nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return fmt.Errorf("failed to look up object store %s: %w", a.bucket, err)
	}

	store, err = a.js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      a.bucket,
		Description: "Archived invalid dead-lettered messages",
	})
	if errors.Is(err, jetstream.ErrBucketExists) {
		store, err = a.js.ObjectStore(ctx, a.bucket)
	}
	if err != nil {
		return fmt.Errorf("failed to create object store %s: %w", a.bucket, err)
	}

	a.logger.Info("Created archive bucket")
	a.store = store
	return nil
}

func (a *ObjectArchive) WriteBlob(ctx context.Context, path, content string) (*reconciler.WriteResult, error) {
	if a.store == nil {
		if err := a.EnsureContainer(ctx); err != nil {
			return nil, err
		}
	}

	existing, err := a.store.GetInfo(ctx, path)
	if err == nil && existing != nil && !existing.Deleted {
		return &reconciler.WriteResult{
			StatusCode: http.StatusConflict,
			Body:       map[string]string{"error": "object already exists", "name": path},
		}, nil
	}
	if err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, fmt.Errorf("failed to stat object %s: %w", path, err)
	}

	info, err := a.store.PutString(ctx, path, content)
	if err != nil {
		return nil, fmt.Errorf("failed to put object %s: %w", path, err)
	}

	return &reconciler.WriteResult{
		StatusCode: http.StatusCreated,
		Body: map[string]interface{}{
			"name":   info.Name,
			"size":   info.Size,
			"digest": info.Digest,
		},
	}, nil
}
