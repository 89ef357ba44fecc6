// Package minio archives resolver run reports to a MinIO bucket.
package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/rossigee/slot-rank-tracker/internal/retry"
	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

// DefaultBucket receives reports when MINIO_BUCKET is unset
const DefaultBucket = "rank-reports"

// Config locates the bucket reports are written to
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Upload    retry.Config
}

// ConfigFromEnv reads MINIO_* variables. It reports false when MINIO_ENDPOINT is unset,
// meaning report upload is disabled.
func ConfigFromEnv() (Config, bool) {
	cfg := Config{
		Endpoint:  os.Getenv("MINIO_ENDPOINT"),
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Bucket:    os.Getenv("MINIO_BUCKET"),
		Prefix:    os.Getenv("MINIO_PREFIX"),
		Upload: retry.ParseConfig(
			os.Getenv("UPLOAD_RETRY_ATTEMPTS"),
			os.Getenv("UPLOAD_RETRY_BACKOFF_MS"),
			retry.Config{MaxAttempts: 3, Delays: []time.Duration{time.Second, 5 * time.Second}},
		),
	}
	if cfg.AccessKey == "" {
		// Also check for AWS/MinIO standard variable name
		cfg.AccessKey = os.Getenv("MINIO_ACCESS_KEY_ID")
	}
	if cfg.SecretKey == "" {
		cfg.SecretKey = os.Getenv("MINIO_SECRET_ACCESS_KEY")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}

	logrus.WithFields(logrus.Fields{
		"MINIO_ENDPOINT":  cfg.Endpoint,
		"MINIO_BUCKET":    cfg.Bucket,
		"accessKey_found": cfg.AccessKey != "",
		"secretKey_found": cfg.SecretKey != "",
	}).Debug("MinIO environment variable check")

	return cfg, cfg.Endpoint != ""
}

// Client handles MinIO operations.
type Client struct {
	minioClient *minio.Client
	bucket      string
	prefix      string
	upload      retry.Config
}

// NewClient creates a new MinIO client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY or MINIO_ACCESS_KEY_ID environment variable is required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("MINIO_SECRET_KEY or MINIO_SECRET_ACCESS_KEY environment variable is required")
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid MINIO_ENDPOINT '%s': %w (expected format: https://hostname:port)", cfg.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid MINIO_ENDPOINT scheme '%s': must be http or https", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid MINIO_ENDPOINT '%s': missing hostname", cfg.Endpoint)
	}

	minioClient, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client for %s: %w", u.Host, err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &Client{
		minioClient: minioClient,
		bucket:      bucket,
		prefix:      strings.Trim(cfg.Prefix, "/"),
		upload:      cfg.Upload,
	}, nil
}

// ObjectName is where a report is stored: <prefix>/<yyyy-mm-dd>/<run id>.json
func ObjectName(prefix string, report *types.RunReport) string {
	day := report.StartedAt.UTC().Format("2006-01-02")
	return path.Join(strings.Trim(prefix, "/"), day, report.RunID+".json")
}

// UploadReport writes report as JSON, creating the bucket on first use. It returns the
// object name.
func (c *Client) UploadReport(ctx context.Context, report *types.RunReport) (string, error) {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	if err := c.ensureBucket(ctx); err != nil {
		return "", err
	}

	object := ObjectName(c.prefix, report)
	err = retry.WithRetry(ctx, c.upload, "upload report", func() error {
		_, err := c.minioClient.PutObject(ctx, c.bucket, object, bytes.NewReader(body), int64(len(body)),
			minio.PutObjectOptions{ContentType: "application/json"})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report %s: %w", object, err)
	}

	logrus.WithFields(logrus.Fields{
		"bucket": c.bucket,
		"object": object,
		"bytes":  len(body),
	}).Info("Uploaded run report")
	return object, nil
}

func (c *Client) ensureBucket(ctx context.Context) error {
	exists, err := c.minioClient.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", c.bucket, err)
	}
	if exists {
		return nil
	}

	if err := c.minioClient.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
	}
	logrus.WithField("bucket", c.bucket).Info("Created report bucket")
	return nil
}
