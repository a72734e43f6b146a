package storage

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"imagegen/internal/config"
)

// S3 writes artifacts to an S3-compatible bucket.
type S3 struct {
	client *minio.Client
}

// NewS3 creates an object storage sink. It returns nil, nil when no endpoint
// is configured.
func NewS3(cfg config.StorageConfig) (*S3, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_ENDPOINT is set")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	return &S3{client: client}, nil
}

// Put uploads data to the bucket and key named by dest.
func (s *S3) Put(ctx context.Context, dest string, data []byte, contentType string) (string, error) {
	bucket, key, err := ParseS3URI(dest)
	if err != nil {
		return "", err
	}

	putCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err = s.client.PutObject(
		putCtx,
		bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return "", fmt.Errorf("failed to upload to %s: %w", dest, err)
	}
	return dest, nil
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
