package apperrors

import (
	"context"
	"errors"
)

// Process exit codes for a failed run.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitSubmission  = 3
	ExitRemote      = 4
	ExitTimeout     = 5
	ExitArtifact    = 6
	ExitInterrupted = 130
)

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, ErrValidation), errors.Is(err, ErrCredentials):
		return ExitUsage
	case errors.Is(err, ErrSubmission):
		return ExitSubmission
	case errors.Is(err, ErrRemoteFailure):
		return ExitRemote
	case errors.Is(err, ErrTimeout):
		return ExitTimeout
	case errors.Is(err, ErrMalformedResult), errors.Is(err, ErrDownload), errors.Is(err, ErrDecode):
		return ExitArtifact
	default:
		return ExitFailure
	}
}
