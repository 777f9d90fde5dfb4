// Package files manages file/image block attachments: metadata rows in
// Postgres, bytes in S3-compatible object storage, downloads through
// short-lived presigned URLs.
package files

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"tessera/api/internal/store"
	"tessera/api/internal/util"
)

type recordStore interface {
	InsertFileRecord(ctx context.Context, item store.FileRecord) error
	ListBlockFiles(ctx context.Context, blockID string) ([]store.FileRecord, error)
	GetFileRecord(ctx context.Context, fileID string) (store.FileRecord, error)
	DeleteFileRecord(ctx context.Context, blockID, fileID string) error
}

type Service struct {
	client  *minio.Client
	bucket  string
	urlTTL  time.Duration
	records recordStore
}

func New(endpoint, accessKey, secretKey string, useSSL bool, bucket string, urlTTL time.Duration, records recordStore) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Service{
		client:  client,
		bucket:  bucket,
		urlTTL:  urlTTL,
		records: records,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	return nil
}

// Attach uploads the bytes and records the attachment against the block.
func (s *Service) Attach(ctx context.Context, blockID, name, contentType string, size int64, r io.Reader) (store.FileRecord, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	record := store.FileRecord{
		ID:          util.NewID("file"),
		BlockID:     blockID,
		Name:        name,
		ObjectKey:   blockID + "/" + util.NewID(""),
		ContentType: contentType,
		Size:        size,
	}

	if _, err := s.client.PutObject(ctx, s.bucket, record.ObjectKey, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return store.FileRecord{}, fmt.Errorf("upload object: %w", err)
	}

	if err := s.records.InsertFileRecord(ctx, record); err != nil {
		// Metadata write failed; drop the orphaned object.
		_ = s.client.RemoveObject(ctx, s.bucket, record.ObjectKey, minio.RemoveObjectOptions{})
		return store.FileRecord{}, err
	}
	return record, nil
}

// List returns the block's attachment metadata.
func (s *Service) List(ctx context.Context, blockID string) ([]store.FileRecord, error) {
	return s.records.ListBlockFiles(ctx, blockID)
}

// SignedURL issues a short-lived presigned download URL for the file.
func (s *Service) SignedURL(ctx context.Context, fileID string) (string, error) {
	record, err := s.records.GetFileRecord(ctx, fileID)
	if err != nil {
		return "", err
	}
	params := make(url.Values)
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", record.Name))
	signed, err := s.client.PresignedGetObject(ctx, s.bucket, record.ObjectKey, s.urlTTL, params)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return signed.String(), nil
}

// Detach removes the attachment record and then the object. A failed
// object delete leaves only unreferenced bytes, so it is not fatal.
func (s *Service) Detach(ctx context.Context, blockID, fileID string) error {
	record, err := s.records.GetFileRecord(ctx, fileID)
	if err != nil {
		return err
	}
	if record.BlockID != blockID {
		return store.ErrNotFound
	}
	if err := s.records.DeleteFileRecord(ctx, blockID, fileID); err != nil {
		return err
	}
	_ = s.client.RemoveObject(ctx, s.bucket, record.ObjectKey, minio.RemoveObjectOptions{})
	return nil
}
