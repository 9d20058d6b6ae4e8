package errors

import (
	"fmt"

	rpccode "google.golang.org/genproto/googleapis/rpc/code"
)

// PushError Error with code.
type PushError interface {
	Code() rpccode.Code
	Error() string
}

// ConfigurationError Invalid or missing channel classification data or a missing transport. Aborts a dispatch before any gateway call.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

// Code Code of the error.
func (e *ConfigurationError) Code() rpccode.Code {
	return rpccode.Code_FAILED_PRECONDITION
}

// NewConfigurationError Formats new ConfigurationError.
func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// TransportError Gateway was unreachable or rejected a whole batch.
type TransportError struct {
	Gateway string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%v transport error: %v", e.Gateway, e.Err)
}

// Unwrap Returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Code Code of the error.
func (e *TransportError) Code() rpccode.Code {
	return rpccode.Code_UNAVAILABLE
}

// UnknownError Unknown error
type UnknownError struct {
	Msg string
}

func (e *UnknownError) Error() string {
	return e.Msg
}

// Code Code of the error.
func (e *UnknownError) Code() rpccode.Code {
	return rpccode.Code_INTERNAL
}

// MalformedRequestError Error for malformed request
type MalformedRequestError struct {
	Status int
	Msg    string
}

func (mr *MalformedRequestError) Error() string {
	return mr.Msg
}

// Code Code of the error.
func (mr *MalformedRequestError) Code() rpccode.Code {
	return rpccode.Code_INVALID_ARGUMENT
}

// NotFoundError Error for missing entity
type NotFoundError struct {
	Msg string
}

func (nf *NotFoundError) Error() string {
	return nf.Msg
}

// Code Code of the error.
func (nf *NotFoundError) Code() rpccode.Code {
	return rpccode.Code_NOT_FOUND
}

// UnauthorizedError Error for a bad API key
type UnauthorizedError struct {
	Msg string
}

func (u *UnauthorizedError) Error() string {
	return u.Msg
}

// Code Code of the error.
func (u *UnauthorizedError) Code() rpccode.Code {
	return rpccode.Code_UNAUTHENTICATED
}
