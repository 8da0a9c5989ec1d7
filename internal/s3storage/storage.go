package s3storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/Quill/internal/config"
	"github.com/dharsanguruparan/Quill/internal/model"
)

// Storage wraps MinIO/S3 interactions for uploaded PDFs.
type Storage struct {
	client     *minio.Client
	bucket     string
	region     string
	presignTTL time.Duration
	maxBytes   int64
}

// New creates a MinIO client from the Config. maxBytes caps reads in Fetch
// the same way loader.HTTPFetcher does; zero disables the cap.
func New(cfg *config.Config, maxBytes int64) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client:     client,
		bucket:     cfg.RawBucket,
		region:     cfg.S3Region,
		presignTTL: cfg.PresignTTL,
		maxBytes:   maxBytes,
	}, nil
}

// EnsureBuckets makes sure the upload bucket exists before use.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// UploadRaw uploads the PDF into the bucket under objectKey.
func (s *Storage) UploadRaw(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	_, err := s.client.PutObject(ctx, s.bucket, objectKey, reader, size, opts)
	if err != nil {
		return fmt.Errorf("upload raw object: %w", err)
	}
	return nil
}

// Fetch downloads the object stored under file.Key.
func (s *Storage) Fetch(ctx context.Context, file model.File) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, file.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, model.WrapService(model.ErrFetch, "get object "+file.Key, err)
	}
	defer obj.Close()
	var body io.Reader = obj
	if s.maxBytes > 0 {
		body = io.LimitReader(obj, s.maxBytes+1)
	}
	buf, err := io.ReadAll(body)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("object %s: %w", file.Key, model.ErrNotFound)
		}
		return nil, model.WrapService(model.ErrFetch, "read object "+file.Key, err)
	}
	return buf, nil
}

// PresignURL returns a signed GET URL for objectKey valid for the
// configured TTL. It becomes File.URL.
func (s *Storage) PresignURL(ctx context.Context, objectKey string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, s.presignTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}
