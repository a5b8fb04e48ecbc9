// Package minio reads and writes dataset files in an S3-compatible bucket.
package minio

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/colinvwood/taxa-barplot/internal/config"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/ingest"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

var ErrObjectNotFound = errors.New(errors.CodeNotFound, "object not found")

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore is the subset of bucket operations the dataset code needs.
// Open must wrap fs.ErrNotExist when the key is absent.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket, region string) error
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	Remove(ctx context.Context, bucket, key string) error
}

type Client struct {
	store  ObjectStore
	config *config.MinIOConfig
	logger logging.Logger
}

func applyDefaults(cfg *config.MinIOConfig) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = config.DefaultMinIOBucket
	}
}

// NewClient connects to the endpoint and makes sure the dataset bucket exists.
func NewClient(ctx context.Context, cfg *config.MinIOConfig, log logging.Logger) (*Client, error) {
	applyDefaults(cfg)
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create minio client")
	}
	c := newClient(&sdkStore{mc: mc}, cfg, log)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	log.Info("MinIO client connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket),
		logging.Bool("ssl", cfg.UseSSL))
	return c, nil
}

func newClient(store ObjectStore, cfg *config.MinIOConfig, log logging.Logger) *Client {
	if cfg == nil {
		cfg = &config.MinIOConfig{}
	}
	applyDefaults(cfg)
	return &Client{store: store, config: cfg, logger: log}
}

func (c *Client) Bucket() string { return c.config.Bucket }

func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.store.BucketExists(ctx, c.config.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to reach object storage")
	}
	if exists {
		return nil
	}
	if err := c.store.MakeBucket(ctx, c.config.Bucket, c.config.Region); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create bucket").
			WithDetail("bucket=" + c.config.Bucket)
	}
	c.logger.Info("Created bucket", logging.String("bucket", c.config.Bucket))
	return nil
}

// Opener reads dataset files stored under prefix.
func (c *Client) Opener(prefix string) ingest.Opener {
	return func(ctx context.Context, name string) (io.ReadCloser, error) {
		return c.store.Open(ctx, c.config.Bucket, path.Join(prefix, name))
	}
}

// UploadFile copies a local file to key.
func (c *Client) UploadFile(ctx context.Context, key, filename, contentType string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if err := c.store.Put(ctx, c.config.Bucket, key, f, st.Size(), contentType); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to upload object").WithDetail("key=" + key)
	}
	c.logger.Debug("Object uploaded", logging.String("key", key), logging.Int64("bytes", st.Size()))
	return nil
}

func (c *Client) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	objs, err := c.store.List(ctx, c.config.Bucket, prefix)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to list objects")
	}
	return objs, nil
}

func (c *Client) Remove(ctx context.Context, key string) error {
	if err := c.store.Remove(ctx, c.config.Bucket, key); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to remove object").WithDetail("key=" + key)
	}
	return nil
}

// sdkStore adapts *minio.Client to ObjectStore.
type sdkStore struct {
	mc *minio.Client
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

func (s *sdkStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return s.mc.BucketExists(ctx, bucket)
}

func (s *sdkStore) MakeBucket(ctx context.Context, bucket, region string) error {
	return s.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

// Open stats the object first because GetObject defers errors to the first
// read.
func (s *sdkStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if _, err := s.mc.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%s/%s: %w", bucket, key, fs.ErrNotExist)
		}
		return nil, err
	}
	return s.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
}

func (s *sdkStore) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.mc.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (s *sdkStore) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for obj := range s.mc.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		out = append(out, ObjectInfo{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	return out, nil
}

func (s *sdkStore) Remove(ctx context.Context, bucket, key string) error {
	err := s.mc.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	if err != nil && isNoSuchKey(err) {
		return nil
	}
	return err
}
