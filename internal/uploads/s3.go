package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"NotifyAdmin/internal/config"
	"NotifyAdmin/internal/metrics"
	"NotifyAdmin/internal/models"
)

// s3API is the part of the S3 client the store uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, opts ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type S3Store struct {
	bucket  string
	client  s3API
	budget  int
	timeout time.Duration
	log     *zap.Logger
}

func NewS3Store(ctx context.Context, cfg *config.Config, log *zap.Logger) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})
	return newS3Store(client, cfg.UploadBucket, cfg.MetadataBudget, cfg.BlobTimeout, log), nil
}

func newS3Store(client s3API, bucket string, budget int, timeout time.Duration, log *zap.Logger) *S3Store {
	return &S3Store{
		bucket:  strings.TrimSpace(bucket),
		client:  client,
		budget:  budget,
		timeout: timeout,
		log:     log.Named("s3-uploads"),
	}
}

func (s *S3Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *S3Store) Put(ctx context.Context, serviceID, uploadID, csv string, meta models.UploadMetadata) (err error) {
	defer func() { metrics.RecordBlobOp("put", err) }()

	encoded, err := EncodeMetadata(meta, s.budget)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(ObjectKey(serviceID, uploadID)),
		Body:        strings.NewReader(csv),
		ContentType: aws.String("text/csv; charset=utf-8"),
		Metadata:    encoded,
	})
	if err != nil {
		return fmt.Errorf("put upload %s: %w", uploadID, err)
	}
	s.log.Debug("upload stored",
		zap.String("service_id", serviceID),
		zap.String("upload_id", uploadID),
		zap.Int("bytes", len(csv)),
	)
	return nil
}

// Get reads the whole object under the store timeout, so the returned body
// never outlives the request to S3.
func (s *S3Store) Get(ctx context.Context, serviceID, uploadID string) (_ io.ReadCloser, _ models.UploadMetadata, err error) {
	defer func() { metrics.RecordBlobOp("get", err) }()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ObjectKey(serviceID, uploadID)),
	})
	if err != nil {
		return nil, models.UploadMetadata{}, s.wrap("get", uploadID, err)
	}
	defer out.Body.Close()

	meta, err := DecodeMetadata(out.Metadata)
	if err != nil {
		return nil, models.UploadMetadata{}, err
	}
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, models.UploadMetadata{}, fmt.Errorf("read upload %s: %w", uploadID, err)
	}
	return io.NopCloser(bytes.NewReader(body)), meta, nil
}

func (s *S3Store) Metadata(ctx context.Context, serviceID, uploadID string) (_ models.UploadMetadata, err error) {
	defer func() { metrics.RecordBlobOp("head", err) }()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ObjectKey(serviceID, uploadID)),
	})
	if err != nil {
		return models.UploadMetadata{}, s.wrap("head", uploadID, err)
	}
	return DecodeMetadata(out.Metadata)
}

// SetMetadata rewrites the object's metadata by copying it onto itself.
func (s *S3Store) SetMetadata(ctx context.Context, serviceID, uploadID string, patch Patch) (err error) {
	current, err := s.Metadata(ctx, serviceID, uploadID)
	if err != nil {
		return err
	}
	defer func() { metrics.RecordBlobOp("copy", err) }()

	encoded, err := EncodeMetadata(patch.apply(current), s.budget)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	key := ObjectKey(serviceID, uploadID)
	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(key),
		CopySource:        aws.String(url.PathEscape(s.bucket) + "/" + escapeKey(key)),
		ContentType:       aws.String("text/csv; charset=utf-8"),
		Metadata:          encoded,
		MetadataDirective: types.MetadataDirectiveReplace,
	})
	if err != nil {
		return s.wrap("copy", uploadID, err)
	}
	return nil
}

func (s *S3Store) Health(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

func (s *S3Store) wrap(op, uploadID string, err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%s upload %s: %w", op, uploadID, ErrNotFound)
	}
	return fmt.Errorf("%s upload %s: %w", op, uploadID, err)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
