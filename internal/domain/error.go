package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	CodeUnavailable   ErrorCode = "UNAVAILABLE"
	CodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	CodeToolExecution ErrorCode = "TOOL_EXECUTION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"
	CodeInternal      ErrorCode = "INTERNAL"
)

// Error is the discriminated error kind surfaced by every caller-facing
// operation. Domain errors are never retried and never leak raw transport
// error types to callers.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

// NotFoundError reports an unknown server name.
func NotFoundError(op, name string) *Error {
	return E(CodeNotFound, op, fmt.Sprintf("server %q not found", name), nil)
}

// AlreadyExistsError reports a duplicate registration.
func AlreadyExistsError(op, name string) *Error {
	return E(CodeAlreadyExists, op, fmt.Sprintf("server %q already exists", name), nil)
}

// UnavailableError reports a disabled or unreachable server.
func UnavailableError(op, name string, cause error) *Error {
	return E(CodeUnavailable, op, fmt.Sprintf("server %q is unavailable", name), cause)
}

// InvalidConfigError reports a structurally invalid transport config.
func InvalidConfigError(op, msg string) *Error {
	return E(CodeInvalidConfig, op, msg, nil)
}

// CodeFrom extracts the discriminated code from err, if any.
func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var toolErr *ToolExecutionError
	if errors.As(err, &toolErr) {
		return CodeToolExecution, true
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code, true
	}
	return "", false
}

// IsDomainError reports whether err carries one of the gateway's
// discriminated error kinds. Such errors are never retried.
func IsDomainError(err error) bool {
	_, ok := CodeFrom(err)
	return ok
}

// ToolExecutionError reports that a downstream tool ran and explicitly
// flagged its result as an error. The lower-level call itself succeeded.
type ToolExecutionError struct {
	Server  string
	Tool    string
	Message string
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q on server %q failed: %s", e.Tool, e.Server, e.Message)
}
