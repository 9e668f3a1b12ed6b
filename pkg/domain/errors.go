package domain

import "fmt"

// Code is a machine-readable error category.
type Code string

// Error codes surfaced by registry operations.
const (
	CodeBatchNotFound        Code = "BATCH_NOT_FOUND"
	CodeInvalidStage         Code = "INVALID_STAGE"
	CodeInvalidStatus        Code = "INVALID_STATUS"
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeAuditSinkUnavailable Code = "AUDIT_SINK_UNAVAILABLE"
)

// Error is the structured domain error returned by the registry.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Sentinels for errors.Is matching by code.
var (
	ErrBatchNotFound        = &Error{Code: CodeBatchNotFound, Message: "batch not found"}
	ErrInvalidStage         = &Error{Code: CodeInvalidStage, Message: "invalid stage"}
	ErrInvalidStatus        = &Error{Code: CodeInvalidStatus, Message: "invalid status"}
	ErrInvalidArgument      = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrAuditSinkUnavailable = &Error{Code: CodeAuditSinkUnavailable, Message: "audit sink unavailable"}
)

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by code. Stage and status errors also match ErrInvalidArgument.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Code == t.Code {
		return true
	}
	return t.Code == CodeInvalidArgument && (e.Code == CodeInvalidStage || e.Code == CodeInvalidStatus)
}

// NotFound reports an unknown batch identifier.
func NotFound(id string) *Error {
	return &Error{Code: CodeBatchNotFound, Message: fmt.Sprintf("batch %s not found", id)}
}

// InvalidStagef builds an INVALID_STAGE error.
func InvalidStagef(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidStage, Message: fmt.Sprintf(format, args...)}
}

// InvalidStatusf builds an INVALID_STATUS error.
func InvalidStatusf(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidStatus, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgumentf builds an INVALID_ARGUMENT error.
func InvalidArgumentf(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// AuditUnavailable wraps a sink failure.
func AuditUnavailable(cause error) *Error {
	return &Error{Code: CodeAuditSinkUnavailable, Message: "audit sink unavailable", Cause: cause}
}

// CodeOf extracts the domain code from err, if any.
func CodeOf(err error) (Code, bool) {
	for err != nil {
		if de, ok := err.(*Error); ok {
			return de.Code, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return "", false
		}
		err = u.Unwrap()
	}
	return "", false
}
