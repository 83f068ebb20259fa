package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/plexwatch/histview/internal/config"
)

// Store keeps generated CSV exports in an S3-compatible bucket so they
// can be fetched later without rerunning the query.
type Store struct {
	client     *minio.Client
	bucketName string
}

// New creates a new export store client
func New(cfg config.StorageConfig) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	// Ensure bucket exists
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Store{
		client:     client,
		bucketName: cfg.BucketName,
	}, nil
}

// exportObjectName builds the bucket key for one export file. Every
// export of a run lives under the run's own prefix so a whole run can
// be listed or expired as a unit.
func exportObjectName(runID, filename string) string {
	return fmt.Sprintf("%s/%s", runID, filename)
}

// runPrefix is the listing prefix covering every export of a run.
func runPrefix(runID string) string {
	return runID + "/"
}

// UploadExport stores one CSV export blob under runID/filename.
func (s *Store) UploadExport(ctx context.Context, runID, filename string, data []byte) (string, error) {
	objectName := exportObjectName(runID, filename)
	_, err := s.client.PutObject(ctx, s.bucketName, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "text/csv"})
	if err != nil {
		return "", fmt.Errorf("failed to upload export: %w", err)
	}
	return objectName, nil
}

// DownloadExport retrieves a previously stored export. The caller owns
// the returned reader; object errors surface on first read.
func (s *Store) DownloadExport(ctx context.Context, runID, filename string) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, s.bucketName, exportObjectName(runID, filename), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download export: %w", err)
	}
	return object, nil
}

// Delete removes a stored export.
func (s *Store) Delete(ctx context.Context, runID, filename string) error {
	err := s.client.RemoveObject(ctx, s.bucketName, exportObjectName(runID, filename), minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete export: %w", err)
	}
	return nil
}

// List returns the object names of every export stored under runID.
func (s *Store) List(ctx context.Context, runID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var names []string
	for object := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    runPrefix(runID),
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list exports: %w", object.Err)
		}
		names = append(names, object.Key)
	}
	return names, nil
}

// PresignedURL generates a time-limited download link for an export.
func (s *Store) PresignedURL(ctx context.Context, runID, filename string, expiry time.Duration) (string, error) {
	url, err := s.client.PresignedGetObject(ctx, s.bucketName, exportObjectName(runID, filename), expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url.String(), nil
}
