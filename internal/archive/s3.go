package archive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go-deadletter/internal/observability"
	"go-deadletter/internal/reconciler"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

type s3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive writes archive records as objects of a single bucket. Writes are
// conditional on the key being absent, so an existing record is never
// overwritten; such a write reports a non-created status instead of failing.
type S3Archive struct {
	client s3API
	bucket string
	region string
	logger *logrus.Entry
}

func NewS3Archive(factory *ClientFactory, connectionString, bucket string) (*S3Archive, error) {
	if bucket == "" {
		return nil, errors.New("bucket cannot be empty")
	}
	cs, err := ParseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}
	client, err := factory.Client(connectionString)
	if err != nil {
		return nil, err
	}

	return &S3Archive{
		client: client,
		bucket: bucket,
		region: cs.Region,
		logger: observability.WithField("bucket", bucket),
	}, nil
}

func (a *S3Archive) EnsureContainer(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("failed to head bucket %s: %w", a.bucket, err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(a.bucket)}
	if a.region != "" && a.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(a.region),
		}
	}

	_, err = a.client.CreateBucket(ctx, input)
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
	}

	a.logger.Info("Created archive bucket")
	return nil
}

func (a *S3Archive) WriteBlob(ctx context.Context, path, content string) (*reconciler.WriteResult, error) {
	out, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(path),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain; charset=utf-8"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if status := responseStatus(err); status == http.StatusPreconditionFailed || status == http.StatusConflict {
			return &reconciler.WriteResult{StatusCode: status, Body: err.Error()}, nil
		}
		return nil, fmt.Errorf("failed to put object %s: %w", path, err)
	}

	return &reconciler.WriteResult{
		StatusCode: http.StatusCreated,
		Body: map[string]string{
			"etag":       aws.ToString(out.ETag),
			"version_id": aws.ToString(out.VersionId),
		},
	}, nil
}

func responseStatus(err error) int {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsb *types.NoSuchBucket
	if errors.As(err, &nf) || errors.As(err, &nsb) {
		return true
	}
	return responseStatus(err) == http.StatusNotFound
}
