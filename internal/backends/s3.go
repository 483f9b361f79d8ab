package backends

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/nholik/backend-sentinel/internal/probe"
	"github.com/nholik/backend-sentinel/internal/registry"
	"github.com/rs/zerolog"
)

const defaultS3Region = "us-east-1"

// S3 lists buckets on an S3-compatible object store such as MinIO.
type S3 struct {
	logger zerolog.Logger
}

// NewS3 returns the object storage capability.
func NewS3(logger zerolog.Logger) *S3 {
	return &S3{logger: logger}
}

// S3Handle carries the verified client. Close is a no-op; the SDK client
// holds no resources that need releasing.
type S3Handle struct {
	Client *s3.Client
	Bucket string
}

// Close implements io.Closer.
func (h *S3Handle) Close() error {
	return nil
}

// Probe implements probe.Prober.
func (s *S3) Probe(ctx context.Context, d *registry.Descriptor) (probe.Conn, error) {
	client, err := s.newClient(ctx, d)
	if err != nil {
		return probe.Conn{}, err
	}

	out, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return probe.Conn{}, fmt.Errorf("list buckets: %w", err)
	}

	bucket := d.ExtraValue("bucket", "")
	if bucket != "" && !hasBucket(out.Buckets, bucket) {
		s.logger.Warn().
			Str("service", d.Name).
			Str("bucket", bucket).
			Msg("configured bucket not found")
	}

	return probe.Conn{
		Detail: fmt.Sprintf("Connected successfully. Found %d buckets.", len(out.Buckets)),
		Handle: &S3Handle{Client: client, Bucket: bucket},
	}, nil
}

func (s *S3) newClient(ctx context.Context, d *registry.Descriptor) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(d.ExtraValue("region", defaultS3Region)),
		awsconfig.WithRetryMaxAttempts(1),
	}
	if d.Username != "" && d.Password != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(d.Username, d.Password, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := baseURL(d)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}), nil
}

func hasBucket(buckets []s3types.Bucket, name string) bool {
	for _, b := range buckets {
		if aws.ToString(b.Name) == name {
			return true
		}
	}
	return false
}
