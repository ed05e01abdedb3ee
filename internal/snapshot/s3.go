package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const defaultS3Region = "us-east-1"

// S3Options configures the S3 archiver. Credentials come from the default
// AWS chain unless both static keys are set.
type S3Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
}

// S3Archiver uploads snapshots to an S3 or S3-compatible bucket.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Archiver builds an archiver for the configured bucket.
func NewS3Archiver(ctx context.Context, opts S3Options) (*S3Archiver, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("snapshot: s3 bucket is required")
	}
	region := opts.Region
	if region == "" {
		region = defaultS3Region
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = opts.UsePathStyle
		})
	}

	return &S3Archiver{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: opts.Bucket,
		prefix: opts.Prefix,
	}, nil
}

// Archive stores data under prefix+name and returns the object URI.
func (a *S3Archiver) Archive(ctx context.Context, name string, data []byte) (string, error) {
	key := a.prefix + name
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-snappy-framed"),
	})
	if err != nil {
		return "", fmt.Errorf("snapshot: s3 put object: %w", err)
	}
	return "s3://" + a.bucket + "/" + key, nil
}
