// Package errors maps rqlens failures onto CLI exit codes and HTTP error
// envelopes.
package errors

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/3leaps/rqlens/pkg/rq"
)

// Error codes used in envelopes.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeDataCorruption     = "DATA_CORRUPTION"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeCanceled           = "CANCELED"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInternal           = "INTERNAL_ERROR"
)

// ExitFailure is the generic non-zero exit code.
const ExitFailure = 1

type codeInfo struct {
	status int
	exit   int
}

var codes = map[string]codeInfo{
	CodeNotFound:           {http.StatusNotFound, foundry.ExitFileNotFound},
	CodeInvalidArgument:    {http.StatusBadRequest, foundry.ExitInvalidArgument},
	CodeDataCorruption:     {http.StatusUnprocessableEntity, foundry.ExitFileReadError},
	CodeServiceUnavailable: {http.StatusServiceUnavailable, foundry.ExitExternalServiceUnavailable},
	CodeCanceled:           {499, foundry.ExitSignalInt},
	CodeMethodNotAllowed:   {http.StatusMethodNotAllowed, foundry.ExitInvalidArgument},
	CodeInternal:           {http.StatusInternalServerError, ExitFailure},
}

// AppError is an error classified for presentation.
type AppError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

// New creates an AppError with no cause.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NewExternalServiceError reports an unreachable dependency.
func NewExternalServiceError(message string) *AppError {
	return New(CodeServiceUnavailable, message)
}

// NewInvalidArgumentError reports bad user input.
func NewInvalidArgumentError(message string) *AppError {
	return New(CodeInvalidArgument, message)
}

// WrapInternal classifies err as internal unless it already carries a more
// specific classification. A canceled ctx wins over everything.
func WrapInternal(ctx context.Context, err error, message string) *AppError {
	if ctx != nil && stderrors.Is(ctx.Err(), context.Canceled) {
		return &AppError{Code: CodeCanceled, Message: message, Err: err}
	}
	if ae := FromError(err); ae.Code != CodeInternal {
		return &AppError{Code: ae.Code, Message: message, Details: ae.Details, Err: err}
	}
	return &AppError{Code: CodeInternal, Message: message, Err: err}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails attaches structured context shown in envelopes.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// HTTPStatus returns the status code for e.
func (e *AppError) HTTPStatus() int {
	if info, ok := codes[e.Code]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// ExitCode returns the process exit code for e.
func (e *AppError) ExitCode() int {
	if info, ok := codes[e.Code]; ok {
		return info.exit
	}
	return ExitFailure
}

// FromError classifies err. AppErrors pass through; rq taxonomy errors map
// to their codes; anything else is internal.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if stderrors.As(err, &ae) {
		return ae
	}

	code := CodeInternal
	switch {
	case rq.IsServiceUnavailable(err):
		code = CodeServiceUnavailable
	case rq.IsInvalidArgument(err):
		code = CodeInvalidArgument
	case rq.IsNotFound(err):
		code = CodeNotFound
	case rq.IsDataCorruption(err):
		code = CodeDataCorruption
	case stderrors.Is(err, context.Canceled):
		code = CodeCanceled
	case stderrors.Is(err, context.DeadlineExceeded):
		code = CodeServiceUnavailable
	}
	return &AppError{Code: code, Message: err.Error(), Err: err}
}

// ExitCode returns the process exit code for err, 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return FromError(err).ExitCode()
}
