package errors

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// AppError is the error type every layer of the reconciler returns. Adapters
// classify provider failures into a Code; the CLI prints Message and
// SuggestedAction only when IsUserFacing is set.
type AppError struct {
	Code            Code
	Message         string
	InternalDetails string
	IsUserFacing    bool
	SuggestedAction string
	WrappedError    error
	StackTrace      string
}

func (e *AppError) Error() string {
	if e.WrappedError != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.WrappedError)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.WrappedError
}

func newAppError(code Code, message string, cause error) *AppError {
	return &AppError{
		Code:         code,
		Message:      message,
		WrappedError: cause,
		StackTrace:   string(debug.Stack()),
	}
}

// New returns an internal error with the caller's stack attached.
func New(code Code, message string) *AppError {
	return newAppError(code, message, nil)
}

// NewUserFacing returns an error whose message and suggestion the CLI shows
// as is.
func NewUserFacing(code Code, message string, suggestion string) *AppError {
	e := newAppError(code, message, nil)
	e.IsUserFacing = true
	e.SuggestedAction = suggestion
	return e
}

// Wrap classifies err under code. If err already contains an AppError, that
// one is returned unchanged: the layer that built it knew the cause best.
func Wrap(err error, code Code, message string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return newAppError(code, message, err)
}

// WrapUserFacing makes this layer the one the CLI reports. Unlike Wrap it
// always adds a layer; the inner AppError's stack and text are carried over.
func WrapUserFacing(err error, code Code, message string, suggestion string) *AppError {
	if err == nil {
		return nil
	}
	e := newAppError(code, message, err)
	e.IsUserFacing = true
	e.SuggestedAction = suggestion

	var appErr *AppError
	if errors.As(err, &appErr) {
		e.InternalDetails = appErr.Error()
		e.StackTrace = appErr.StackTrace
	}
	return e
}

// GetCode returns the code of the outermost AppError in err, or CodeUnknown.
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// Is reports whether the outermost AppError in err has code.
func Is(err error, code Code) bool {
	return errors.As(err, new(*AppError)) && GetCode(err) == code
}

// IsNotFound reports whether err carries CodeResourceNotFound anywhere in its chain.
func IsNotFound(err error) bool {
	return hasCode(err, CodeResourceNotFound)
}

// IsRejected reports whether the provider refused a requested transition.
func IsRejected(err error) bool {
	return hasCode(err, CodeRequestRejected)
}

func hasCode(err error, code Code) bool {
	return find(err, func(e *AppError) bool { return e.Code == code }) != nil
}

// find walks every AppError in the chain of err, outermost first, and
// returns the first one match accepts.
func find(err error, match func(*AppError) bool) *AppError {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return nil
		}
		if match(appErr) {
			return appErr
		}
		err = appErr.WrappedError
	}
	return nil
}

// GetUserFacingMessage returns the message and suggestion of the outermost
// user-facing AppError in err. ok is false when there is none, and a generic
// message is returned instead.
func GetUserFacingMessage(err error) (message, suggestion string, ok bool) {
	if e := find(err, func(e *AppError) bool { return e.IsUserFacing }); e != nil {
		return e.Message, e.SuggestedAction, true
	}
	return "An unexpected error occurred.", "Check logs for more details.", false
}
