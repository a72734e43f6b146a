// Package storage writes materialized artifacts to a local path or an
// S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"imagegen/internal/apperrors"
)

// S3Scheme prefixes destinations routed to object storage.
const S3Scheme = "s3://"

// Sink persists artifact bytes at a destination and returns where they landed.
type Sink interface {
	Put(ctx context.Context, dest string, data []byte, contentType string) (string, error)
}

// Local writes artifacts to the filesystem.
type Local struct{}

// Put writes data to dest, creating parent directories as needed.
func (Local) Put(_ context.Context, dest string, data []byte, _ string) (string, error) {
	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return dest, nil
}

// Router picks a sink by destination scheme.
type Router struct {
	Local  Sink
	Object Sink // nil when no object storage is configured
}

// NewRouter creates a router writing local paths to disk.
func NewRouter(object Sink) *Router {
	return &Router{Local: Local{}, Object: object}
}

// Accepts reports whether dest can be written by one of the router's sinks.
func (r *Router) Accepts(dest string) error {
	if !strings.HasPrefix(dest, S3Scheme) {
		return nil
	}
	if _, _, err := ParseS3URI(dest); err != nil {
		return err
	}
	if r.Object == nil {
		return apperrors.Validation("output", "s3:// output requires S3_ENDPOINT to be configured")
	}
	return nil
}

// Put implements Sink.
func (r *Router) Put(ctx context.Context, dest string, data []byte, contentType string) (string, error) {
	if !strings.HasPrefix(dest, S3Scheme) {
		return r.Local.Put(ctx, dest, data, contentType)
	}
	if err := r.Accepts(dest); err != nil {
		return "", err
	}
	return r.Object.Put(ctx, dest, data, contentType)
}

// Scheme returns the destination scheme used for metrics ("file" or "s3").
func Scheme(dest string) string {
	if strings.HasPrefix(dest, S3Scheme) {
		return "s3"
	}
	return "file"
}

// ParseS3URI splits s3://bucket/key into its parts.
func ParseS3URI(dest string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(dest, S3Scheme)
	if !ok {
		return "", "", apperrors.Validation("output", fmt.Sprintf("not an s3 destination: %s", dest))
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", apperrors.Validation("output", fmt.Sprintf("s3 destination must be s3://bucket/key, got %s", dest))
	}
	return bucket, key, nil
}
