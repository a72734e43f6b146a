// Package apperrors provides the structured error taxonomy for a generation run.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation      = errors.New("validation error")
	ErrCredentials     = errors.New("credentials unavailable")
	ErrSubmission      = errors.New("submission rejected")
	ErrTransientPoll   = errors.New("status check failed")
	ErrRemoteFailure   = errors.New("remote job failed")
	ErrTimeout         = errors.New("job timed out")
	ErrMalformedResult = errors.New("malformed result")
	ErrDownload        = errors.New("artifact download failed")
	ErrDecode          = errors.New("artifact decode failed")
	ErrInternal        = errors.New("internal error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel   error  // Wrapped sentinel for errors.Is() classification
	Message    string // Human-readable message
	Field      string // For validation errors (e.g., "prompt", "loras")
	Op         string // Operation that failed (e.g., "modelscope.submit")
	JobID      string // Remote task identifier, when one was assigned
	RequestID  string // X-Request-Id sent with the failing call
	StatusCode int    // HTTP status returned by the remote, 0 for transport failures
	Body       string // Raw response body kept for diagnosis
	Detail     string // Remote-supplied failure detail
	Cause      error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// Credentials reports that no usable API key could be resolved.
func Credentials(message string, cause error) error {
	return &Error{
		Sentinel: ErrCredentials,
		Message:  message,
		Cause:    cause,
	}
}

// Submission creates an error for a rejected generation request.
// statusCode is 0 when the request never reached the remote.
func Submission(statusCode int, body string, cause error) error {
	detail := body
	if cause != nil {
		if detail != "" {
			detail += ": "
		}
		detail += cause.Error()
	}
	msg := fmt.Sprintf("error submitting task: status %d: %s", statusCode, detail)
	if statusCode == 0 {
		msg = fmt.Sprintf("error submitting task: %s", detail)
	}
	return &Error{
		Sentinel:   ErrSubmission,
		Message:    msg,
		Op:         "submit",
		StatusCode: statusCode,
		Body:       body,
		Cause:      cause,
	}
}

// TransientPoll creates an error for a single failed status query.
func TransientPoll(jobID string, statusCode int, cause error) error {
	msg := fmt.Sprintf("error checking status of task %s: status %d", jobID, statusCode)
	if cause != nil {
		msg = fmt.Sprintf("error checking status of task %s: %v", jobID, cause)
	}
	return &Error{
		Sentinel:   ErrTransientPoll,
		Message:    msg,
		Op:         "poll",
		JobID:      jobID,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// RemoteFailure creates an error for a task the remote reported as FAILED.
func RemoteFailure(jobID, detail string) error {
	msg := fmt.Sprintf("image generation failed (task %s)", jobID)
	if detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, detail)
	}
	return &Error{
		Sentinel: ErrRemoteFailure,
		Message:  msg,
		JobID:    jobID,
		Detail:   detail,
	}
}

// Timeout creates an error for a task that never reached a terminal state.
func Timeout(jobID string, attempts int, lastErr error) error {
	return &Error{
		Sentinel: ErrTimeout,
		Message:  fmt.Sprintf("timeout: task %s still not finished after %d status checks", jobID, attempts),
		Op:       "poll",
		JobID:    jobID,
		Cause:    lastErr,
	}
}

// MalformedResult creates an error for a success payload that cannot be used.
func MalformedResult(jobID, reason string) error {
	return &Error{
		Sentinel: ErrMalformedResult,
		Message:  fmt.Sprintf("task %s succeeded but %s", jobID, reason),
		JobID:    jobID,
	}
}

// Download creates an error for a failed artifact fetch.
func Download(url string, statusCode int, cause error) error {
	msg := fmt.Sprintf("download %s failed with status %d", url, statusCode)
	if cause != nil {
		msg = fmt.Sprintf("download %s failed: %v", url, cause)
	}
	return &Error{
		Sentinel:   ErrDownload,
		Message:    msg,
		Op:         "download",
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// Decode creates an error for fetched bytes that are not a usable image.
func Decode(op string, cause error) error {
	return &Error{
		Sentinel: ErrDecode,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
