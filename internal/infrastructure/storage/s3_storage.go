// Package storage keeps product media in object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	catalogapp "github.com/erp/catalog-engine/internal/application/catalog"
	infraconfig "github.com/erp/catalog-engine/internal/infrastructure/config"
	"go.uber.org/zap"
)

// deleteBatchSize is the most keys one DeleteObjects call accepts
const deleteBatchSize = 1000

var _ catalogapp.MediaStorage = (*S3MediaStorage)(nil)

// PromotedKey returns where an uploaded tmp/ object lives once it belongs
// to a product: tmp/<rest> becomes products/<id>/<rest>
func PromotedKey(productID int64, key string) string {
	return "products/" + strconv.FormatInt(productID, 10) + "/" + strings.TrimPrefix(key, "tmp/")
}

// S3MediaStorage implements catalogapp.MediaStorage on any S3-compatible
// backend (AWS S3, MinIO, RustFS)
type S3MediaStorage struct {
	client *s3.Client
	bucket string
	logger *zap.Logger
}

// S3MediaStorageOption is a functional option for configuring S3MediaStorage
type S3MediaStorageOption func(*S3MediaStorage)

// WithLogger sets a custom logger for S3MediaStorage
func WithLogger(logger *zap.Logger) S3MediaStorageOption {
	return func(s *S3MediaStorage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClientOptions adjusts the S3 client, e.g. its retryer in tests
func WithClientOptions(fn func(*s3.Options)) S3MediaStorageOption {
	return func(s *S3MediaStorage) {
		s.client = s3.New(s.client.Options(), fn)
	}
}

// NewS3MediaStorage creates a new S3MediaStorage from configuration
func NewS3MediaStorage(cfg *infraconfig.StorageConfig, opts ...S3MediaStorageOption) (*S3MediaStorage, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Region == "" {
		loadOpts[0] = config.WithRegion("us-east-1")
	}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return nil, errors.New("storage access key id and secret access key must be set together")
		}
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	if endpoint != "" {
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid storage endpoint: %w", err)
		}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	storage := &S3MediaStorage{
		client: client,
		bucket: cfg.Bucket,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(storage)
	}
	return storage, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *S3MediaStorage) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating storage bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Promote copies a tmp/ upload under the product prefix and removes the
// upload. Keys outside tmp/ are returned unchanged. A replay whose upload
// is already gone succeeds when the promoted copy exists.
func (s *S3MediaStorage) Promote(ctx context.Context, productID int64, key string) (string, error) {
	if !catalogapp.IsTmpMedia(key) {
		return key, nil
	}
	dst := PromotedKey(productID, key)

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(s.bucket + "/" + escapeKey(key)),
	})
	if err != nil {
		if !isNotFound(err) {
			return "", fmt.Errorf("failed to copy %s: %w", key, err)
		}
		exists, headErr := s.exists(ctx, dst)
		if headErr != nil {
			return "", headErr
		}
		if !exists {
			return "", fmt.Errorf("uploaded media %s does not exist", key)
		}
		return dst, nil
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		// the copy is in place; a leftover upload only costs space
		s.logger.Warn("Failed to remove promoted upload", zap.String("key", key), zap.Error(err))
	}

	s.logger.Debug("Promoted media", zap.String("from", key), zap.String("to", dst))
	return dst, nil
}

// Delete removes objects in batches. Missing objects are ignored.
func (s *S3MediaStorage) Delete(ctx context.Context, keys ...string) error {
	var errs []error
	for start := 0; start < len(keys); start += deleteBatchSize {
		batch := keys[start:min(start+deleteBatchSize, len(keys))]
		objects := make([]types.ObjectIdentifier, 0, len(batch))
		for _, k := range batch {
			if k != "" {
				objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
			}
		}
		if len(objects) == 0 {
			continue
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to delete objects: %w", err))
			continue
		}
		for _, e := range out.Errors {
			if aws.ToString(e.Code) == "NoSuchKey" {
				continue
			}
			errs = append(errs, fmt.Errorf("failed to delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
		}
	}
	return errors.Join(errs...)
}

// Upload stores data under key, used to stage tmp/ uploads
func (s *S3MediaStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return errors.New("storage key is required")
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

func (s *S3MediaStorage) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check object existence: %w", err)
}

// escapeKey escapes each path segment of key for a copy source header
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	// some S3-compatible services only carry the code in the message
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "NoSuchKey")
}

// GetBucket returns the bucket name
func (s *S3MediaStorage) GetBucket() string {
	return s.bucket
}
