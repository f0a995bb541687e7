package core

import (
	"context"
	"errors"
)

// Exit codes for the waifu2x command.
// Signal-based exits follow the Unix 128 + signal number convention.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1

	// ExitCodeConfig indicates invalid configuration (bad flag, env or config file).
	ExitCodeConfig = 2

	// ExitCodePartialFailure indicates a batch finished but some jobs failed.
	ExitCodePartialFailure = 3

	// ExitCodeSIGINT indicates termination due to SIGINT (128 + 2).
	ExitCodeSIGINT = 130

	// ExitCodeSIGTERM indicates termination due to SIGTERM (128 + 15).
	ExitCodeSIGTERM = 143
)

// ErrPartialFailure is returned by batch commands when at least one job failed.
var ErrPartialFailure = errors.New("one or more jobs failed")

// ExitCodeName returns a human-readable name for an exit code.
func ExitCodeName(code int) string {
	switch code {
	case ExitCodeSuccess:
		return "success"
	case ExitCodeError:
		return "error"
	case ExitCodeConfig:
		return "configuration error"
	case ExitCodePartialFailure:
		return "partial failure"
	case ExitCodeSIGINT:
		return "interrupted (SIGINT)"
	case ExitCodeSIGTERM:
		return "terminated (SIGTERM)"
	default:
		return "unknown"
	}
}

// IsSignalExit returns true if the exit code indicates a signal-based termination.
func IsSignalExit(code int) bool {
	return code == ExitCodeSIGINT || code == ExitCodeSIGTERM
}

// ExitCodeForError maps a command error to the process exit code.
func ExitCodeForError(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case errors.Is(err, context.Canceled):
		return ExitCodeSIGINT
	case errors.Is(err, ErrPartialFailure):
		return ExitCodePartialFailure
	}
	if _, ok := IsConfigError(err); ok {
		return ExitCodeConfig
	}
	return ExitCodeError
}
