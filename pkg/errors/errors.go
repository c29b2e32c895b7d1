// Package errors provides standardized error handling for the SimpleRemote
// agent. It implements structured error types with proper wrapping and
// classification following Go 1.20+ error handling best practices.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// Job-related errors
	ErrInvalidJobID       = errors.New("invalid job id")
	ErrJobNotFinished     = errors.New("job has not finished")
	ErrJobAlreadyFinished = errors.New("job has already finished")
	ErrSpawnFailed        = errors.New("failed to spawn process")

	// Transfer-related errors
	ErrPermissionDenied = errors.New("permission denied")
	ErrTransferTimeout  = errors.New("no peer connected before the transfer timeout")
	ErrTransferProtocol = errors.New("transfer protocol error")

	// Streaming-related errors
	ErrSinkFailure         = errors.New("output sink failure")
	ErrCallbackUnreachable = errors.New("completion endpoint unreachable")

	// System-related errors
	ErrPlatformUnsupported = errors.New("operation not supported on this platform")
	ErrInvalidConfig       = errors.New("invalid configuration")
)

// JobError represents an error related to a specific job
type JobError struct {
	JobID     int64
	Operation string
	Err       error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %d: operation %s: %v", e.JobID, e.Operation, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// TransferError represents an error related to an upload or download
type TransferError struct {
	Path      string
	Operation string
	Err       error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s: operation %s: %v", e.Path, e.Operation, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// ConfigError represents an error related to configuration
type ConfigError struct {
	Component string
	Field     string
	Err       error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config %s.%s: %v", e.Component, e.Field, e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Component, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Error wrapping constructors
func WrapJobError(jobID int64, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &JobError{JobID: jobID, Operation: operation, Err: err}
}

func WrapTransferError(path, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &TransferError{Path: path, Operation: operation, Err: err}
}

func WrapConfigError(component, field string, err error) error {
	if err == nil {
		return nil
	}
	return &ConfigError{Component: component, Field: field, Err: err}
}

// Error classification functions
func IsJobError(err error) bool {
	var je *JobError
	return errors.As(err, &je)
}

func IsTransferError(err error) bool {
	var te *TransferError
	return errors.As(err, &te)
}

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrInvalidJobID)
}

func IsTimeoutError(err error) bool {
	return errors.Is(err, ErrTransferTimeout)
}

func IsPermissionError(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// Error extraction helpers
func GetJobID(err error) (int64, bool) {
	var je *JobError
	if errors.As(err, &je) {
		return je.JobID, true
	}
	return 0, false
}

// Convenience functions for common error patterns
func NewInvalidJobIDError(jobID int64) error {
	return WrapJobError(jobID, "lookup", ErrInvalidJobID)
}

func NewSpawnError(command string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrSpawnFailed, command, err)
}

// Context-aware error handling
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// RPCCode maps an error to the JSON-RPC error code the boundary adapter
// reports for it. Codes in the -32000..-32099 range are reserved for
// implementation-defined server errors by the JSON-RPC 2.0 spec.
func RPCCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidJobID):
		return -32000
	case errors.Is(err, ErrJobNotFinished):
		return -32001
	case errors.Is(err, ErrJobAlreadyFinished):
		return -32002
	case errors.Is(err, ErrSpawnFailed):
		return -32003
	case errors.Is(err, ErrPermissionDenied):
		return -32004
	case errors.Is(err, ErrTransferTimeout):
		return -32005
	case errors.Is(err, ErrTransferProtocol):
		return -32006
	case errors.Is(err, ErrSinkFailure):
		return -32007
	case errors.Is(err, ErrCallbackUnreachable):
		return -32008
	case errors.Is(err, ErrPlatformUnsupported):
		return -32009
	case errors.Is(err, ErrInvalidConfig):
		return -32602
	default:
		return -32603
	}
}
