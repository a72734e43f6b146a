// Package modelscope is a client for the ModelScope API-Inference asynchronous
// image generation endpoints.
package modelscope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"imagegen/internal/apperrors"
	"imagegen/internal/job"
)

// DefaultBaseURL is the public API-Inference endpoint.
const DefaultBaseURL = "https://api-inference.modelscope.cn/"

// maxErrorBody caps how much of an error response is kept for diagnosis.
const maxErrorBody = 4096

// Client implements job.Remote over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ job.Remote = (*Client)(nil)

// NewClient creates a client. Each request is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Submit posts a generation request in async mode and returns the task ID.
func (c *Client) Submit(ctx context.Context, token string, req *job.Request) (string, error) {
	requestID := uuid.NewString()
	id, err := c.submit(ctx, token, requestID, req)
	if err != nil {
		return "", withRequestID(err, requestID)
	}
	slog.Debug("Task accepted", "jobId", id, "requestId", requestID)
	return id, nil
}

func (c *Client) submit(ctx context.Context, token, requestID string, req *job.Request) (string, error) {
	body, err := encodeRequest(req)
	if err != nil {
		return "", apperrors.Internal("modelscope.submit", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", apperrors.Internal("modelscope.submit", err)
	}
	setCommonHeaders(httpReq, token, requestID)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-ModelScope-Async-Mode", "true")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", apperrors.Submission(0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.Submission(resp.StatusCode, readErrorBody(resp.Body), nil)
	}

	var res submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", apperrors.Submission(resp.StatusCode, "", fmt.Errorf("invalid response: %w", err))
	}
	if res.TaskID == "" {
		return "", apperrors.Submission(resp.StatusCode, "response did not contain a task_id", nil)
	}
	return res.TaskID, nil
}

// Status fetches the current state of a task. Any transport failure, non-200
// answer or unreadable body is reported as a transient poll error.
func (c *Client) Status(ctx context.Context, token, taskID string) (*job.RemoteStatus, error) {
	requestID := uuid.NewString()
	slog.Debug("Checking task status", "jobId", taskID, "requestId", requestID)
	st, err := c.status(ctx, token, requestID, taskID)
	if err != nil {
		return nil, withRequestID(err, requestID)
	}
	return st, nil
}

func (c *Client) status(ctx context.Context, token, requestID, taskID string) (*job.RemoteStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"v1/tasks/"+url.PathEscape(taskID), http.NoBody)
	if err != nil {
		return nil, apperrors.Internal("modelscope.status", err)
	}
	setCommonHeaders(httpReq, token, requestID)
	httpReq.Header.Set("X-ModelScope-Task-Type", "image_generation")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.TransientPoll(taskID, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, apperrors.TransientPoll(taskID, resp.StatusCode, nil)
	}

	var res taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, apperrors.TransientPoll(taskID, resp.StatusCode, fmt.Errorf("invalid response: %w", err))
	}

	status := res.TaskStatus
	if status == "" {
		status = "UNKNOWN"
	}
	return &job.RemoteStatus{
		Status:    status,
		Artifacts: res.OutputImages,
		Detail:    res.detail(),
	}, nil
}

func setCommonHeaders(req *http.Request, token, requestID string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
}

// withRequestID stamps the request ID onto a classified error.
func withRequestID(err error, requestID string) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		appErr.RequestID = requestID
	}
	return err
}

// encodeRequest marshals the request without escaping non-ASCII or HTML
// characters so prompts reach the model verbatim.
func encodeRequest(req *job.Request) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(req); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func readErrorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(data))
}
