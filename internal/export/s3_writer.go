package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"promptforge/internal/utils"
)

// putObjectAPI is the part of the S3 client the writer needs.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Writer uploads artifacts to a bucket
type S3Writer struct {
	client putObjectAPI
	bucket string
	prefix string
	now    func() time.Time
	logger *utils.Logger
}

// NewS3Writer creates a writer using the default AWS credential chain
func NewS3Writer(ctx context.Context, bucket, region, prefix string) (*S3Writer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newS3Writer(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func newS3Writer(client putObjectAPI, bucket, prefix string) *S3Writer {
	return &S3Writer{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
		logger: utils.NewLogger("s3-writer"),
	}
}

// Write uploads a under prefix/YYYY/MM/DD/HHMMSS-name and returns the s3:// URI
func (w *S3Writer) Write(ctx context.Context, a Artifact) (string, error) {
	now := w.now().UTC()
	key := fmt.Sprintf("%s%04d/%02d/%02d/%s-%s",
		w.prefix,
		now.Year(),
		now.Month(),
		now.Day(),
		now.Format("150405"),
		a.Name,
	)

	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(a.Data),
		ContentType: aws.String(a.ContentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	w.logger.Info("Wrote export to S3", "key", key, "bytes", len(a.Data))
	return "s3://" + w.bucket + "/" + key, nil
}
