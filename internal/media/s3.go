package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/time-capsule/internal/model"
)

var (
	// ErrUnsupportedType is returned for content types other than image/* and video/*.
	ErrUnsupportedType = errors.New("unsupported media type")
	// ErrTooLarge is returned when the body exceeds the per-type limit.
	ErrTooLarge = errors.New("media too large")
)

// Store accepts uploaded assets and returns stable references.
type Store interface {
	Store(ctx context.Context, name string, body io.Reader, contentType string) (model.MediaAttachment, error)
}

// objectPutter is the subset of *s3.Client used by S3Store.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures an S3-compatible backend (AWS, MinIO, LocalStack).
type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string // empty for AWS
	AccessKey     string
	SecretKey     string
	PublicBaseURL string // prefix for returned URLs; defaults to Endpoint
}

// S3Store uploads attachments into a bucket.
type S3Store struct {
	client  objectPutter
	bucket  string
	baseURL string
	limits  Limits
	now     func() time.Time
}

// NewS3Store builds an S3 client from cfg.
func NewS3Store(ctx context.Context, cfg S3Config, limits Limits) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	base := cfg.PublicBaseURL
	if base == "" {
		base = cfg.Endpoint
	}
	if base == "" {
		base = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.Region)
	}
	return newS3Store(client, cfg.Bucket, base, limits), nil
}

func newS3Store(client objectPutter, bucket, baseURL string, limits Limits) *S3Store {
	return &S3Store{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		limits:  limits.withDefaults(),
		now:     time.Now,
	}
}

// Store buffers body up to the type limit and uploads it under a random key.
func (s *S3Store) Store(ctx context.Context, name string, body io.Reader, contentType string) (model.MediaAttachment, error) {
	mt, ok := TypeOf(contentType)
	if !ok {
		return model.MediaAttachment{}, fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	limit := s.limits.MaxBytes(mt)
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return model.MediaAttachment{}, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return model.MediaAttachment{}, fmt.Errorf("%w: %s over %d bytes", ErrTooLarge, mt, limit)
	}

	key, err := s.objectKey(name)
	if err != nil {
		return model.MediaAttachment{}, err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return model.MediaAttachment{}, fmt.Errorf("put object: %w", err)
	}
	return model.MediaAttachment{
		Name:      name,
		URL:       s.baseURL + "/" + s.bucket + "/" + key,
		Type:      mt,
		SizeBytes: int64(len(data)),
	}, nil
}

func (s *S3Store) objectKey(name string) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	d := s.now().UTC()
	ext := path.Ext(path.Base(strings.ReplaceAll(name, "\\", "/")))
	return fmt.Sprintf("capsules/%d/%02d/%02d/%s%s", d.Year(), d.Month(), d.Day(), id, ext), nil
}
