package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"
)

// S3Source downloads pages stored under {prefix}{masechta}/{filename}.
type S3Source struct {
	client     *s3.Client
	downloader *manager.Downloader
	bucketName string
	prefix     string
}

// S3Options configures an S3Source. Static credentials are used only when both
// keys are set; otherwise the default AWS credential chain applies.
type S3Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Source loads AWS config and creates the client and downloader.
func NewS3Source(ctx context.Context, opts S3Options) (*S3Source, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	cli, err := newS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}
	return newS3Source(cli, opts), nil
}

// newS3Client builds a client from opts; a custom endpoint implies path-style addressing.
func newS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	var loadOpts []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func newS3Source(cli *s3.Client, opts S3Options) *S3Source {
	return &S3Source{
		client:     cli,
		downloader: manager.NewDownloader(cli),
		bucketName: opts.Bucket,
		prefix:     normalizePrefix(opts.Prefix),
	}
}

func (s *S3Source) Name() string { return "s3" }

// Key returns the object key for req.
func (s *S3Source) Key(req Request) string {
	return s.prefix + req.Corpus.Name + "/" + req.Filename
}

func (s *S3Source) Download(ctx context.Context, req Request, dst Sink) error {
	key := s.Key(req)
	n, err := s.downloader.Download(ctx, dst, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return classifyS3Error(fmt.Errorf("failed to download s3://%s/%s: %w", s.bucketName, key, err))
	}
	log.Debug().Str("bucket", s.bucketName).Str("key", key).Int64("bytes", n).Msg("downloaded page from s3")
	return nil
}

// Ping checks that the bucket exists and is reachable.
func (s *S3Source) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucketName, err)
	}
	return nil
}

func classifyS3Error(err error) error {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%v: %w", err, ErrNotFound)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%v: %w", err, ErrNotFound)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "NoSuchBucket":
			return Permanent(err)
		case "SlowDown", "RequestLimitExceeded", "Throttling", "ThrottlingException", "ServiceUnavailable":
			return Throttled(err)
		}
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return Throttled(err)
		}
	}
	return err
}

func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}
