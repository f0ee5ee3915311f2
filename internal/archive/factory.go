package archive

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ConnectionString describes how to reach an S3 compatible endpoint, written
// as semicolon separated key=value pairs:
//
//	region=eu-west-1;endpoint=http://localhost:4566;path_style=true
type ConnectionString struct {
	Region    string
	Endpoint  string
	PathStyle bool
}

func ParseConnectionString(raw string) (ConnectionString, error) {
	cs := ConnectionString{Region: "us-east-1"}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return cs, fmt.Errorf("invalid connection string segment %q", part)
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "region":
			cs.Region = strings.TrimSpace(value)
		case "endpoint":
			cs.Endpoint = strings.TrimSpace(value)
		case "path_style":
			b, err := strconv.ParseBool(strings.TrimSpace(value))
			if err != nil {
				return cs, fmt.Errorf("invalid path_style %q: %w", value, err)
			}
			cs.PathStyle = b
		default:
			return cs, fmt.Errorf("unknown connection string key %q", key)
		}
	}
	return cs, nil
}

type clientLoader func() (*s3.Client, error)

// ClientFactory caches one S3 client per connection string for the life of
// the process. Concurrent first requests for a key build the client once.
type ClientFactory struct {
	clients   sync.Map // connection string -> clientLoader
	newClient func(ctx context.Context, cs ConnectionString) (*s3.Client, error)
}

func NewClientFactory() *ClientFactory {
	return &ClientFactory{newClient: newS3Client}
}

func (f *ClientFactory) Client(connectionString string) (*s3.Client, error) {
	loader := sync.OnceValues(func() (*s3.Client, error) {
		cs, err := ParseConnectionString(connectionString)
		if err != nil {
			return nil, err
		}
		return f.newClient(context.Background(), cs)
	})

	actual, _ := f.clients.LoadOrStore(connectionString, clientLoader(loader))
	client, err := actual.(clientLoader)()
	if err != nil {
		// let a later call try again
		f.clients.CompareAndDelete(connectionString, actual)
		return nil, err
	}
	return client, nil
}

func newS3Client(ctx context.Context, cs ConnectionString) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cs.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if cs.Endpoint != "" {
			o.BaseEndpoint = aws.String(cs.Endpoint)
		}
		o.UsePathStyle = cs.PathStyle
	}), nil
}
