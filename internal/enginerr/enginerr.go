// Package enginerr defines the error taxonomy shared across the engine:
// storage, transaction, and executor layers all return one of these
// kinds rather than a bare error, so the server boundary can map them
// to MySQL error codes without inspecting message text.
package enginerr

import (
	"fmt"
	"strings"
)

// ParseError reports syntactically invalid SQL or a malformed identifier.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse error: %s", e.Message) }

// NotSupportedError reports a recognized-but-declined construct.
type NotSupportedError struct {
	Message string
}

func (e *NotSupportedError) Error() string { return fmt.Sprintf("not supported: %s", e.Message) }

// AccessDeniedError reports a failed privilege check.
type AccessDeniedError struct {
	Message string
}

func (e *AccessDeniedError) Error() string { return fmt.Sprintf("access denied: %s", e.Message) }

// NotFoundError reports a missing database, table, column, user,
// savepoint, or prepared-statement id.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("not found: %s", e.Message) }

// InvalidError reports a type mismatch, null-into-not-null, duplicate
// pk, bad literal format, numeric out-of-range, or ambiguous column.
type InvalidError struct {
	Message string
}

func (e *InvalidError) Error() string { return fmt.Sprintf("invalid: %s", e.Message) }

// LockWaitTimeoutError reports that a row is already locked by another
// connection; the engine never waits, so this is returned immediately.
type LockWaitTimeoutError struct {
	Message string
}

func (e *LockWaitTimeoutError) Error() string {
	return fmt.Sprintf("lock wait timeout: %s", e.Message)
}

// UnknownSystemVariableError reports a SET/SHOW/@@ reference to a
// system variable the engine does not recognize.
type UnknownSystemVariableError struct {
	Name string
}

func (e *UnknownSystemVariableError) Error() string {
	return fmt.Sprintf("unknown system variable '%s'", e.Name)
}

// StorageError wraps a failure from the KV substrate.
type StorageError struct {
	Message string
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage error: %s", e.Message) }

// SerializationError wraps a codec failure encoding or decoding a
// persisted value.
type SerializationError struct {
	Message string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error: %s", e.Message)
}

// Parsef builds a *ParseError with a formatted message.
func Parsef(format string, args ...any) error { return &ParseError{Message: fmt.Sprintf(format, args...)} }

// NotSupportedf builds a *NotSupportedError with a formatted message.
func NotSupportedf(format string, args ...any) error {
	return &NotSupportedError{Message: fmt.Sprintf(format, args...)}
}

// AccessDeniedf builds an *AccessDeniedError with a formatted message.
func AccessDeniedf(format string, args ...any) error {
	return &AccessDeniedError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a *NotFoundError with a formatted message.
func NotFoundf(format string, args ...any) error {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// Invalidf builds an *InvalidError with a formatted message.
func Invalidf(format string, args ...any) error {
	return &InvalidError{Message: fmt.Sprintf(format, args...)}
}

// LockWaitTimeoutf builds a *LockWaitTimeoutError with a formatted message.
func LockWaitTimeoutf(format string, args ...any) error {
	return &LockWaitTimeoutError{Message: fmt.Sprintf(format, args...)}
}

// Code is a MySQL protocol error code, surfaced by the adapter in an
// ERR packet. The core never emits ERR packets itself; Code is a pure
// classification returned alongside the Go error.
type Code int

const (
	ErrUnknown              Code = 1105 // ER_UNKNOWN_ERROR
	ErrParse                Code = 1064 // ER_PARSE_ERROR
	ErrBadDB                Code = 1049 // ER_BAD_DB_ERROR
	ErrBadTable             Code = 1051 // ER_BAD_TABLE_ERROR
	ErrAccessDenied         Code = 1045 // ER_ACCESS_DENIED_ERROR
	ErrNotSupportedYet      Code = 1235 // ER_NOT_SUPPORTED_YET
	ErrWrongValueCount      Code = 1136 // ER_WRONG_VALUE_COUNT_ON_ROW
	ErrLockWaitTimeout      Code = 1205
	ErrUnknownSystemVariable Code = 1193 // ER_UNKNOWN_SYSTEM_VARIABLE
)

// ClassifyCode maps an engine error to the MySQL error code the
// protocol adapter should surface, per the canonical mapping table.
func ClassifyCode(err error) Code {
	switch e := err.(type) {
	case *ParseError:
		return ErrParse
	case *NotFoundError:
		if strings.Contains(e.Message, "database") {
			return ErrBadDB
		}
		return ErrBadTable
	case *AccessDeniedError:
		return ErrAccessDenied
	case *NotSupportedError:
		return ErrNotSupportedYet
	case *InvalidError:
		return ErrWrongValueCount
	case *LockWaitTimeoutError:
		return ErrLockWaitTimeout
	case *UnknownSystemVariableError:
		return ErrUnknownSystemVariable
	default:
		return ErrUnknown
	}
}

