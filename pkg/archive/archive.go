// Package archive stores the logs of failed rollouts in S3-compatible storage.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/wharf/pkg/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds the object store connection settings
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
}

// S3Archiver writes rollout logs to a bucket
type S3Archiver struct {
	mc     *minio.Client
	bucket string
	region string
}

// NewS3Archiver creates an archiver. No request is made until first use.
func NewS3Archiver(cfg Config) (*S3Archiver, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return &S3Archiver{mc: mc, bucket: cfg.Bucket, region: region}, nil
}

// EnsureBucket creates the bucket when it does not exist
func (a *S3Archiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.mc.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.mc.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	logger := log.WithComponent("archive")
	logger.Info().Str("bucket", a.bucket).Msg("Created log archive bucket")
	return nil
}

// ArchiveLogs uploads logs for releaseID and returns the object URI
func (a *S3Archiver) ArchiveLogs(ctx context.Context, releaseID, logs string) (string, error) {
	key := ObjectKey(releaseID, time.Now())
	_, err := a.mc.PutObject(ctx, a.bucket, key, strings.NewReader(logs), int64(len(logs)), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
		UserMetadata: map[string]string{
			"release-id": releaseID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}

// ObjectKey is rollouts/<release>/<UTC timestamp>.log
func ObjectKey(releaseID string, at time.Time) string {
	return fmt.Sprintf("rollouts/%s/%s.log", releaseID, at.UTC().Format("20060102T150405Z"))
}
