package job

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	_ "golang.org/x/image/webp" // register WebP decoding for image.Decode

	"imagegen/internal/apperrors"
	"imagegen/internal/observability"
	"imagegen/internal/storage"
)

// maxArtifactSize caps how much of an artifact response is read.
const maxArtifactSize = 64 << 20

// Resolver materializes the artifact of a succeeded job.
type Resolver struct {
	httpClient *http.Client
	sink       storage.Sink
	metrics    *observability.Metrics
}

// NewResolver creates a resolver that fetches with httpClient and writes to sink.
func NewResolver(httpClient *http.Client, sink storage.Sink, metrics *observability.Metrics) *Resolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if sink == nil {
		sink = storage.NewRouter(nil)
	}
	return &Resolver{
		httpClient: httpClient,
		sink:       sink,
		metrics:    metrics,
	}
}

// Accepts reports whether dest can be written by the resolver's sink. Sinks
// that cannot tell in advance accept every destination.
func (r *Resolver) Accepts(dest string) error {
	if a, ok := r.sink.(interface{ Accepts(dest string) error }); ok {
		return a.Accepts(dest)
	}
	return nil
}

// Resolve fetches the first artifact of j, decodes it, and writes it to dest
// re-encoded according to dest's extension.
func (r *Resolver) Resolve(ctx context.Context, j *Job, dest string) (*Result, error) {
	if j.Status != StatusSucceeded {
		return nil, apperrors.Internal("resolve", fmt.Errorf("job %s is %s, not %s", j.ID, j.Status, StatusSucceeded))
	}
	if len(j.Artifacts) == 0 || j.Artifacts[0] == "" {
		return nil, apperrors.MalformedResult(j.ID, "no output images were returned")
	}
	if dest == "" {
		dest = DefaultOutput
	}

	url := j.Artifacts[0]
	logger := slog.With("jobId", j.ID, "url", url)
	logger.Info("Downloading artifact")

	data, err := r.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Decode("decode image", err)
	}

	encoded, contentType, err := encode(img, dest)
	if err != nil {
		return nil, err
	}

	location, err := r.sink.Put(ctx, dest, encoded, contentType)
	if err != nil {
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.RecordArtifactWritten(ctx, storage.Scheme(dest), len(encoded))
	}
	logger.Info("Image saved", "path", location, "sourceFormat", format, "bytes", len(encoded))

	return &Result{
		JobID:       j.ID,
		ArtifactURL: url,
		Location:    location,
		Bytes:       len(encoded),
	}, nil
}

func (r *Resolver) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, apperrors.Download(url, 0, err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Download(url, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Download(url, resp.StatusCode, nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactSize))
	if err != nil {
		return nil, apperrors.Download(url, resp.StatusCode, err)
	}
	return data, nil
}

// encode re-encodes img in the format implied by dest's extension.
func encode(img image.Image, dest string) ([]byte, string, error) {
	var buf bytes.Buffer
	var contentType string
	var err error

	switch strings.ToLower(path.Ext(dest)) {
	case ".png":
		contentType = "image/png"
		err = png.Encode(&buf, img)
	case ".gif":
		contentType = "image/gif"
		err = gif.Encode(&buf, img, nil)
	case ".jpg", ".jpeg", "":
		contentType = "image/jpeg"
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
	default:
		return nil, "", apperrors.Validation("output", fmt.Sprintf("unsupported output format %q", path.Ext(dest)))
	}
	if err != nil {
		return nil, "", apperrors.Decode("encode image", err)
	}
	return buf.Bytes(), contentType, nil
}
