// Package apperr carries typed application errors. Every code belongs to one
// of three kinds so callers can decide between fixing input, resynchronising
// with the server, or retrying.
package apperr

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeIncomplete    Code = "INCOMPLETE_ASSIGNMENT"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeInFlight      Code = "OPERATION_IN_FLIGHT"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Kind groups codes by what the caller should do next.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindTransient  Kind = "transient"
)

type Metadata struct {
	HTTPStatus    int
	Retryable     bool
	Kind          Kind
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {HTTPStatus: http.StatusBadRequest, Kind: KindValidation, PublicMessage: "validation failed"},
	CodeIncomplete:    {HTTPStatus: http.StatusBadRequest, Kind: KindValidation, PublicMessage: "incomplete staff assignment"},
	CodeUnauthorized:  {HTTPStatus: http.StatusUnauthorized, Kind: KindValidation, PublicMessage: "authentication required"},
	CodeForbidden:     {HTTPStatus: http.StatusForbidden, Kind: KindValidation, PublicMessage: "access denied"},
	CodeNotFound:      {HTTPStatus: http.StatusNotFound, Kind: KindConflict, PublicMessage: "resource not found"},
	CodeConflict:      {HTTPStatus: http.StatusConflict, Kind: KindConflict, PublicMessage: "conflict detected"},
	CodeStateConflict: {HTTPStatus: http.StatusUnprocessableEntity, Kind: KindConflict, PublicMessage: "state transition disallowed"},
	CodeInFlight:      {HTTPStatus: http.StatusConflict, Retryable: true, Kind: KindTransient, PublicMessage: "operation already in progress"},
	CodeRateLimit:     {HTTPStatus: http.StatusTooManyRequests, Retryable: true, Kind: KindTransient, PublicMessage: "rate limit exceeded"},
	CodeInternal:      {HTTPStatus: http.StatusInternalServerError, Retryable: true, Kind: KindTransient, PublicMessage: "internal server error"},
	CodeDependency:    {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, Kind: KindTransient, PublicMessage: "dependency unavailable"},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error by code, so errors.Is(err, apperr.New(CodeConflict, ""))
// works regardless of message.
func (e *Error) Is(target error) bool {
	var other *Error
	if !stdErrors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.code == other.code
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// KindOf reports the kind of err. Untyped errors are treated as transient.
func KindOf(err error) Kind {
	return MetadataFor(CodeOf(err)).Kind
}

func IsValidation(err error) bool { return err != nil && KindOf(err) == KindValidation }
func IsConflict(err error) bool   { return err != nil && KindOf(err) == KindConflict }
func IsTransient(err error) bool  { return err != nil && KindOf(err) == KindTransient }
