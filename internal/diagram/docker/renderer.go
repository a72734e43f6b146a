// Package docker renders Mermaid diagrams with the mermaid-cli image on the
// local Docker daemon.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"imagegen/internal/diagram"
	"imagegen/pkg/backoff"
)

const (
	// DefaultImage ships mmdc with a headless Chromium.
	DefaultImage = "minlag/mermaid-cli:latest"

	// workDir is where the scratch directory is mounted inside the container.
	workDir = "/data"

	readyAttempts = 5
)

// Config holds configuration for the Docker renderer.
type Config struct {
	Image       string        // mermaid-cli image (default minlag/mermaid-cli:latest)
	Timeout     time.Duration // Per diagram, excluding the image pull (default 60s)
	PullTimeout time.Duration // First-time image pull (default 10m)
}

// imageAPI is the part of the Docker client used to make the image available.
type imageAPI interface {
	ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
}

// Renderer implements diagram.Renderer by running one mermaid-cli container
// per diagram.
type Renderer struct {
	client      *client.Client
	images      imageAPI
	image       string
	timeout     time.Duration
	pullTimeout time.Duration

	// mu guards pulled. Only a successful pull is remembered.
	mu     sync.Mutex
	pulled bool
}

var _ diagram.Renderer = (*Renderer)(nil)

// New connects to the Docker daemon and waits until it answers.
func New(ctx context.Context, cfg Config) (*Renderer, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	imageName := cfg.Image
	if imageName == "" {
		imageName = DefaultImage
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	pullTimeout := cfg.PullTimeout
	if pullTimeout <= 0 {
		pullTimeout = 10 * time.Minute
	}

	r := &Renderer{
		client:      dockerClient,
		images:      dockerClient,
		image:       imageName,
		timeout:     timeout,
		pullTimeout: pullTimeout,
	}
	if err := r.waitReady(ctx); err != nil {
		_ = dockerClient.Close()
		return nil, err
	}
	return r, nil
}

// waitReady pings the daemon with exponential backoff.
func (r *Renderer) waitReady(ctx context.Context) error {
	policy := &backoff.Config{Initial: 200 * time.Millisecond, Max: 2 * time.Second}

	var err error
	for attempt := 1; attempt <= readyAttempts; attempt++ {
		if _, err = r.client.Ping(ctx); err == nil {
			return nil
		}
		slog.Debug("Docker daemon not ready", "attempt", attempt, "error", err)
		if attempt < readyAttempts {
			if serr := backoff.Sleep(ctx, policy.Delay(attempt)); serr != nil {
				return serr
			}
		}
	}
	return fmt.Errorf("docker daemon unreachable: %w", err)
}

// Close releases the Docker client.
func (r *Renderer) Close() error {
	return r.client.Close()
}

// Render implements diagram.Renderer.
func (r *Renderer) Render(ctx context.Context, source, outPath string, opts diagram.RenderOptions) error {
	if err := r.ensureImage(ctx); err != nil {
		return fmt.Errorf("failed to pull %s: %w", r.image, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	scratch, err := os.MkdirTemp("", "mermaid-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)
	// The image runs mmdc as an unprivileged user that must write the output.
	if err := os.Chmod(scratch, 0o777); err != nil {
		return fmt.Errorf("failed to prepare scratch directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(scratch, "input.mmd"), []byte(source), 0o644); err != nil {
		return fmt.Errorf("failed to write diagram source: %w", err)
	}

	outName := "output." + opts.Format
	containerID, err := r.createContainer(ctx, scratch, outName, opts)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	defer r.removeContainer(containerID)

	if err := r.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}

	exitCode, err := r.waitForExit(ctx, containerID)
	if err != nil {
		return fmt.Errorf("mermaid-cli did not finish: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("mermaid-cli exited with code %d: %s", exitCode, r.stderr(ctx, containerID))
	}

	data, err := os.ReadFile(filepath.Join(scratch, outName))
	if err != nil {
		return fmt.Errorf("mermaid-cli produced no output: %w", err)
	}
	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return os.WriteFile(outPath, data, 0o644)
}

func (r *Renderer) createContainer(ctx context.Context, scratch, outName string, opts diagram.RenderOptions) (string, error) {
	containerConfig := &container.Config{
		Image: r.image,
		Cmd: []string{
			"-i", workDir + "/input.mmd",
			"-o", workDir + "/" + outName,
			"-b", opts.Background,
			"-w", strconv.Itoa(opts.Width),
		},
		Labels: map[string]string{
			"managed-by": "mermaid2png",
		},
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: scratch,
				Target: workDir,
			},
		},
	}

	resp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// ensureImage pulls the renderer image under its own timeout. A failed pull
// is retried by the next diagram.
func (r *Renderer) ensureImage(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pulled {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.pullTimeout)
	defer cancel()

	if _, err := r.images.ImageInspect(ctx, r.image); err == nil {
		r.pulled = true
		return nil
	}

	slog.Info("Pulling renderer image", "image", r.image)
	reader, err := r.images.ImagePull(ctx, r.image, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return err
	}
	r.pulled = true
	return nil
}

func (r *Renderer) waitForExit(ctx context.Context, containerID string) (int, error) {
	statusCh, errCh := r.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case err := <-errCh:
		return -1, err
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("%s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	}
}

// stderr returns the trimmed error output of a finished container.
func (r *Renderer) stderr(ctx context.Context, containerID string) string {
	logs, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return err.Error()
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return err.Error()
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return msg
	}
	return strings.TrimSpace(stdout.String())
}

// removeContainer runs on a fresh context so cleanup survives cancellation.
func (r *Renderer) removeContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		slog.Debug("Failed to remove container", "containerId", containerID, "error", err)
	}
}
