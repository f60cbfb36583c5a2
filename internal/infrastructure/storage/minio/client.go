// Package minio mirrors report artifacts into an S3-compatible bucket.
package minio

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/turtacn/KeyIP-Attribution/internal/config"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/storage"
	"github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// MinIOAPI is the subset of *minio.Client the store uses.
type MinIOAPI interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
}

const defaultPresignExpiry = time.Hour

// Store implements storage.Store over one bucket.
type Store struct {
	api    MinIOAPI
	bucket string
	region string
	logger logging.Logger
}

// NewStore connects, verifies credentials and makes sure the bucket exists.
func NewStore(ctx context.Context, cfg config.MinIOConfig, log logging.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageBucket, "failed to create minio client").WithDetail(cfg.Endpoint)
	}
	s := NewStoreWithAPI(client, cfg.Bucket, cfg.Region, log)

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := client.ListBuckets(cctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to connect to minio").WithDetail(cfg.Endpoint)
	}
	if err := s.EnsureBucket(cctx); err != nil {
		return nil, err
	}
	log.Info("MinIO store ready", logging.String("endpoint", cfg.Endpoint), logging.String("bucket", cfg.Bucket))
	return s, nil
}

func NewStoreWithAPI(api MinIOAPI, bucket, region string, log logging.Logger) *Store {
	if region == "" {
		region = "us-east-1"
	}
	return &Store{api: api, bucket: bucket, region: region, logger: log}
}

func (s *Store) Name() string { return "minio" }

func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageBucket, "failed to check bucket").WithDetail(s.bucket)
	}
	if exists {
		return nil
	}
	if err := s.api.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageBucket, "failed to create bucket").WithDetail(s.bucket)
	}
	s.logger.Info("Created bucket", logging.String("bucket", s.bucket))
	return nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (*storage.Object, error) {
	k, err := storage.CleanKey(key)
	if err != nil {
		return nil, err
	}
	info, err := s.api.PutObject(ctx, s.bucket, k, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageWriteFailed, "upload failed").WithDetail(s.bucket + "/" + k)
	}
	return &storage.Object{Key: info.Key, Size: info.Size, ContentType: contentType, Location: info.Location}, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	k, err := storage.CleanKey(key)
	if err != nil {
		return false, err
	}
	_, err = s.api.StatObject(ctx, s.bucket, k, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, errors.Wrap(err, errors.ErrCodeStorageReadFailed, "stat failed").WithDetail(k)
}

func (s *Store) List(ctx context.Context, prefix string) ([]storage.Object, error) {
	out := []storage.Object{}
	for obj := range s.api.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeStorageReadFailed, "list failed").WithDetail(prefix)
		}
		out = append(out, storage.Object{
			Key:          obj.Key,
			Size:         obj.Size,
			ContentType:  obj.ContentType,
			LastModified: obj.LastModified,
		})
	}
	return out, nil
}

// PresignedURL returns a time-limited download link for key.
func (s *Store) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	k, err := storage.CleanKey(key)
	if err != nil {
		return "", err
	}
	params := url.Values{}
	params.Set("response-content-disposition", `attachment; filename="`+k[strings.LastIndex(k, "/")+1:]+`"`)
	u, err := s.api.PresignedGetObject(ctx, s.bucket, k, expiry, params)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageReadFailed, "presign failed").WithDetail(k)
	}
	return u.String(), nil
}

// HealthCheck lists buckets as a liveness probe.
func (s *Store) HealthCheck(ctx context.Context) error {
	_, err := s.api.ListBuckets(ctx)
	return err
}
