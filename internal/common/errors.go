package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrDatabase     = errors.New("database error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// InvalidArgument builds the error returned for bad command-line input.
func InvalidArgument(format string, args ...interface{}) error {
	return NewAppError("INVALID_ARGUMENT", fmt.Sprintf(format, args...), ErrInvalidInput)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Exit codes
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInvalidInput):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// gRPC error helpers
func UnavailableError(message string) error {
	return status.Error(codes.Unavailable, message)
}

func UnavailableErrorf(format string, args ...interface{}) error {
	return UnavailableError(fmt.Sprintf(format, args...))
}

// GRPCCode extracts the gRPC status code from err, or codes.Unknown.
func GRPCCode(err error) codes.Code {
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Unknown
}
