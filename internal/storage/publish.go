package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// S3Publisher uploads merged PDFs to {prefix}{file name} in a bucket.
type S3Publisher struct {
	uploader   *manager.Uploader
	bucketName string
	prefix     string
}

// NewS3Publisher uses the same options as NewS3Source.
func NewS3Publisher(ctx context.Context, opts S3Options) (*S3Publisher, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3: result bucket is required")
	}
	cli, err := newS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}
	return newS3Publisher(cli, opts), nil
}

func newS3Publisher(cli *s3.Client, opts S3Options) *S3Publisher {
	return &S3Publisher{
		uploader:   manager.NewUploader(cli),
		bucketName: opts.Bucket,
		prefix:     normalizePrefix(opts.Prefix),
	}
}

// Publish uploads localPath and returns its s3:// URL.
func (p *S3Publisher) Publish(ctx context.Context, localPath string, meta map[string]string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	key := p.prefix + filepath.Base(localPath)
	md := map[string]string{"created": time.Now().UTC().Format(time.RFC3339)}
	for k, v := range meta {
		if v != "" {
			md[k] = v
		}
	}
	out, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucketName),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/pdf"),
		Metadata:    md,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	url := fmt.Sprintf("s3://%s/%s", p.bucketName, key)
	log.Info().Str("key", key).Str("location", out.Location).Msg("uploaded merged PDF to S3")
	return url, nil
}
