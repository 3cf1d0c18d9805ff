// Package objectstore mirrors published artifacts into an S3-compatible bucket.
package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/couchcryptid/aladin-mirror/internal/config"
	"github.com/couchcryptid/aladin-mirror/internal/domain"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client is the subset of *minio.Client the mirror uses.
type Client interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error)
}

// NewMinIOClient builds a client from the MINIO_* settings.
func NewMinIOClient(cfg *config.Config) (*minio.Client, error) {
	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure:    cfg.MinioUseSSL,
		Region:    cfg.MinioRegion,
		Transport: newTransport(),
	}
	return minio.New(cfg.MinioEndpoint, opts)
}

// Mirror uploads each published artifact under its stamped key and copies
// it server-side onto the latest key.
// It implements pipeline.PublishHook.
type Mirror struct {
	client   Client
	bucket   string
	region   string
	aliasKey string
	logger   *slog.Logger

	mu          sync.Mutex
	bucketReady bool
}

// NewMirror creates a Mirror writing into bucket.
func NewMirror(client Client, bucket, region string, naming domain.ArtifactNaming, logger *slog.Logger) *Mirror {
	return &Mirror{
		client:   client,
		bucket:   bucket,
		region:   region,
		aliasKey: naming.Alias(),
		logger:   logger,
	}
}

// Name identifies the hook in logs.
func (m *Mirror) Name() string { return "objectstore" }

// AfterPublish uploads the artifact and repoints the latest key.
func (m *Mirror) AfterPublish(ctx context.Context, artifact domain.PublishedArtifact) error {
	if err := m.ensureBucket(ctx); err != nil {
		return err
	}

	meta := map[string]string{
		"run-dir":   artifact.Run.Dir,
		"timestamp": artifact.Run.Timestamp.String(),
	}
	info, err := m.client.FPutObject(ctx, m.bucket, artifact.Name, artifact.StampedPath, minio.PutObjectOptions{
		ContentType:  "application/octet-stream",
		UserMetadata: meta,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", artifact.Name, err)
	}

	_, err = m.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: m.bucket, Object: m.aliasKey},
		minio.CopySrcOptions{Bucket: m.bucket, Object: artifact.Name},
	)
	if err != nil {
		return fmt.Errorf("copy %s to %s: %w", artifact.Name, m.aliasKey, err)
	}

	m.logger.Info("artifact mirrored", "bucket", m.bucket, "key", artifact.Name, "size", info.Size)
	return nil
}

// ensureBucket creates the bucket on first use. A failure is retried on the
// next publication.
func (m *Mirror) ensureBucket(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bucketReady {
		return nil
	}
	if err := ensureBucket(ctx, m.client, m.bucket, m.region); err != nil {
		return fmt.Errorf("ensure bucket %s: %w", m.bucket, err)
	}
	m.bucketReady = true
	return nil
}

func ensureBucket(ctx context.Context, client Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
