// Package reliability backs up and restores sentinelad's SQLite stores
// (the monitor/alert/issue ledger and the durable queue) to Cloudflare R2:
//
// - BackupService copies each database file into a local backup directory
// - R2BackupService packs those copies into a tar.gz and uploads it to R2
//   on a schedule and on demand
// - RestoreService stages a downloaded archive and applies it on restart,
//   with a pre-restore safety copy of whatever was running
package reliability

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// r2PartSize and r2Concurrency tune the multipart transfer of a sentinel
// backup archive - large enough that a several-hundred-MB archive of the
// ledger database doesn't turn into thousands of tiny parts.
const (
	r2PartSize    = 10 * 1024 * 1024
	r2Concurrency = 5
)

// R2Client wraps the AWS S3 SDK to read and write sentinelad's backup
// archives in Cloudflare R2. R2 is S3-compatible object storage, so this
// is the AWS SDK pointed at R2's endpoint with a static access key instead
// of IAM credentials.
type R2Client struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	log        zerolog.Logger
}

// NewR2Client builds a client for the R2 bucket sentinelad archives its
// backups into.
func NewR2Client(accountID, accessKeyID, secretAccessKey, bucketName string, log zerolog.Logger) (*R2Client, error) {
	if accountID == "" || accessKeyID == "" || secretAccessKey == "" || bucketName == "" {
		return nil, fmt.Errorf("r2 credentials incomplete")
	}

	r2Resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL:               fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
			HostnameImmutable: true,
			SigningRegion:     "auto",
		}, nil
	})

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithEndpointResolverWithOptions(r2Resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = r2PartSize
		u.Concurrency = r2Concurrency
	})

	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.PartSize = r2PartSize
		d.Concurrency = r2Concurrency
	})

	return &R2Client{
		client:     client,
		uploader:   uploader,
		downloader: downloader,
		bucket:     bucketName,
		log:        log.With().Str("component", "r2_client").Logger(),
	}, nil
}

// Upload sends a backup archive to R2 under the given object key (the
// archive's filename, e.g. "sentinel-backup-2026-07-31-120000.tar.gz").
func (r *R2Client) Upload(ctx context.Context, key string, reader io.Reader, contentLength int64) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	r.log.Info().
		Str("key", key).
		Int64("size", contentLength).
		Msg("uploading backup archive to r2")

	_, err := r.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          reader,
		ContentLength: aws.Int64(contentLength),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to r2: %w", err)
	}

	r.log.Info().Str("key", key).Msg("backup archive uploaded to r2")

	return nil
}

// Download fetches a backup archive from R2 into writer, for a restore or
// a manual export.
func (r *R2Client) Download(ctx context.Context, key string, writer io.WriterAt) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	r.log.Info().Str("key", key).Msg("downloading backup archive from r2")

	bytesDownloaded, err := r.downloader.Download(ctx, writer, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to download from r2: %w", err)
	}

	r.log.Info().
		Str("key", key).
		Int64("bytes", bytesDownloaded).
		Msg("backup archive downloaded from r2")

	return bytesDownloaded, nil
}

// List returns the backup archives in the bucket whose key starts with prefix.
func (r *R2Client) List(ctx context.Context, prefix string) ([]types.Object, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	r.log.Debug().Str("prefix", prefix).Msg("listing backup archives in r2")

	var objects []types.Object

	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list r2 objects: %w", err)
		}
		objects = append(objects, page.Contents...)
	}

	r.log.Debug().Int("count", len(objects)).Msg("listed backup archives in r2")

	return objects, nil
}

// Delete removes a backup archive from R2, e.g. when pruning old backups.
func (r *R2Client) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Minute)
	defer cancel()

	r.log.Info().Str("key", key).Msg("deleting backup archive from r2")

	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from r2: %w", err)
	}

	r.log.Info().Str("key", key).Msg("backup archive deleted from r2")

	return nil
}

// TestConnection verifies the backup bucket is reachable with the configured
// credentials, without transferring any backup data.
func (r *R2Client) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	r.log.Debug().Msg("testing r2 connection")

	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(r.bucket),
	})
	if err != nil {
		return fmt.Errorf("r2 connection test failed: %w", err)
	}

	r.log.Info().Msg("r2 connection test successful")
	return nil
}

// GetObjectMetadata returns a backup archive's size and last-modified time
// without downloading it. RestoreService does not call it; a staged
// restore is validated from its downloaded backup-metadata.json instead.
func (r *R2Client) GetObjectMetadata(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	output, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object metadata: %w", err)
	}

	return output, nil
}
