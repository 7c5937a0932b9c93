package service

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode classifies why an engine operation was refused.
type ErrorCode int

const (
	// ErrorCodeInternal is reported for infrastructure failures that carry
	// no domain classification.
	ErrorCodeInternal ErrorCode = 0

	// ErrorCodePermissionDenied is returned when the caller lacks the role
	// the operation requires or is not the owner of the target.
	ErrorCodePermissionDenied ErrorCode = 1

	// ErrorCodePhaseViolation is returned when an operation is invoked
	// outside its time window or lifecycle state.
	ErrorCodePhaseViolation ErrorCode = 2

	// ErrorCodeCreditExhausted is returned when the caller used up the
	// actions allowed for the current period.
	ErrorCodeCreditExhausted ErrorCode = 3

	// ErrorCodeNotFound is returned when a referenced key does not
	// correspond to an existing entity.
	ErrorCodeNotFound ErrorCode = 4

	// ErrorCodeDuplicateAction is returned when an action that may happen
	// only once was already performed.
	ErrorCodeDuplicateAction ErrorCode = 5

	// ErrorCodeSelfReference is returned when an actor targets itself.
	ErrorCodeSelfReference ErrorCode = 6

	// ErrorCodeInvalidInput is returned for malformed arguments.
	ErrorCodeInvalidInput ErrorCode = 7

	// ErrorCodeProofRejected is returned when submitted quiz answers do not
	// match the committed answer hashes.
	ErrorCodeProofRejected ErrorCode = 8
)

// ErrorCodes maps each code to a stable, human readable identifier.
var ErrorCodes = map[ErrorCode]string{
	ErrorCodeInternal:         "internal",
	ErrorCodePermissionDenied: "permission_denied",
	ErrorCodePhaseViolation:   "phase_violation",
	ErrorCodeCreditExhausted:  "credit_exhausted",
	ErrorCodeNotFound:         "not_found",
	ErrorCodeDuplicateAction:  "duplicate_action",
	ErrorCodeSelfReference:    "self_reference",
	ErrorCodeInvalidInput:     "invalid_input",
	ErrorCodeProofRejected:    "proof_rejected",
}

func (c ErrorCode) String() string {
	if s, ok := ErrorCodes[c]; ok {
		return s
	}
	return fmt.Sprintf("error_code_%d", int(c))
}

// Error 业务错误，携带错误分类和结构化上下文
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Details map[string]interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
}

// With attaches a detail field and returns the same error.
func (e *Error) With(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code ErrorCode, op, format string, args ...interface{}) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

func permissionDenied(op, format string, args ...interface{}) *Error {
	return newError(ErrorCodePermissionDenied, op, format, args...)
}

func phaseViolation(op, format string, args ...interface{}) *Error {
	return newError(ErrorCodePhaseViolation, op, format, args...)
}

func creditExhausted(op, format string, args ...interface{}) *Error {
	return newError(ErrorCodeCreditExhausted, op, format, args...)
}

func notFound(op, format string, args ...interface{}) *Error {
	return newError(ErrorCodeNotFound, op, format, args...)
}

func duplicateAction(op, format string, args ...interface{}) *Error {
	return newError(ErrorCodeDuplicateAction, op, format, args...)
}

func selfReference(op, format string, args ...interface{}) *Error {
	return newError(ErrorCodeSelfReference, op, format, args...)
}

func invalidInput(op, format string, args ...interface{}) *Error {
	return newError(ErrorCodeInvalidInput, op, format, args...)
}

func proofRejected(op, format string, args ...interface{}) *Error {
	return newError(ErrorCodeProofRejected, op, format, args...)
}

// AsError extracts the engine error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the classification of err, ErrorCodeInternal when err is
// not an engine error.
func CodeOf(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ErrorCodeInternal
}

// IsCode reports whether err is an engine error with the given code.
func IsCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}
