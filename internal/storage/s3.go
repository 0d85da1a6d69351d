// Package storage mirrors staged runs and canonical outputs to S3/MinIO.
// The mirror is a durability copy; the local filesystem stays canonical.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mostafazog/mro-harvest/internal/config"
	"github.com/mostafazog/mro-harvest/pkg/models"
)

// Object key prefixes inside the bucket.
const (
	runsPrefix      = "runs"
	canonicalPrefix = "consolidated"
)

// Client wraps the MinIO/S3 client for harvest mirror operations.
type Client struct {
	minioClient *minio.Client
	bucket      string
}

// New creates a new S3/MinIO mirror client.
func New(cfg config.Storage) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: storage endpoint is required", config.ErrInvalid)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: storage bucket is required", config.ErrInvalid)
	}

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{
		minioClient: minioClient,
		bucket:      cfg.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minioClient.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	err = c.minioClient.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// PutRunRecords writes one run's staged records to the mirror. Writing the
// same run again overwrites the object, matching local staging semantics.
func (c *Client) PutRunRecords(ctx context.Context, runID string, records []models.Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run records: %w", err)
	}

	objectName := runObjectName(runID)
	reader := bytes.NewReader(data)
	_, err = c.minioClient.PutObject(ctx, c.bucket, objectName, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to put run %s: %w", runID, err)
	}
	return nil
}

// GetRunRecords reads one run's mirrored records back.
func (c *Client) GetRunRecords(ctx context.Context, runID string) ([]models.Record, error) {
	object, err := c.minioClient.GetObject(ctx, c.bucket, runObjectName(runID), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", runID, err)
	}

	var records []models.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", runID, err)
	}
	return records, nil
}

// ListRunIDs returns the IDs of all mirrored runs.
func (c *Client) ListRunIDs(ctx context.Context) ([]string, error) {
	var ids []string

	objectCh := c.minioClient.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    runsPrefix + "/",
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		name := path.Base(object.Key)
		if strings.HasPrefix(name, "run_") && strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, "run_"), ".json"))
		}
	}

	return ids, nil
}

// PutCanonicalFile writes one canonical output file to the mirror.
func (c *Client) PutCanonicalFile(ctx context.Context, filename string, data []byte) error {
	objectName := path.Join(canonicalPrefix, filename)
	contentType := "application/json"
	if strings.HasSuffix(filename, ".csv") {
		contentType = "text/csv"
	}

	reader := bytes.NewReader(data)
	_, err := c.minioClient.PutObject(ctx, c.bucket, objectName, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put canonical file %s: %w", filename, err)
	}
	return nil
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

func runObjectName(runID string) string {
	return path.Join(runsPrefix, "run_"+runID+".json")
}
