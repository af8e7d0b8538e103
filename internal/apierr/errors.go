// Package apierr defines the error taxonomy shared by every component of the
// ingestion and retrieval engine. Components at the edges of the core map
// vendor/library errors into these types; the ingestion pipeline and the
// agent loop apply recovery policy by inspecting them with errors.As.
package apierr

import "fmt"

// Kind classifies an error for transport mapping and recovery policy.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindForbidden  Kind = "forbidden"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindTransient  Kind = "transient_upstream"
	KindUnavailable Kind = "unavailable"
	KindInternal   Kind = "internal"
)

// Error is the engine-wide error type. Every component-facing error should be
// constructed with one of the per-kind helpers below (Validation, Auth,
// NotFound, ...) rather than ad-hoc errors.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Message: msg, Cause: cause}
}

func Validation(msg string, cause error) *Error  { return newErr(KindValidation, msg, cause) }
func Auth(msg string, cause error) *Error        { return newErr(KindAuth, msg, cause) }
func Forbidden(msg string, cause error) *Error   { return newErr(KindForbidden, msg, cause) }
func NotFound(msg string, cause error) *Error    { return newErr(KindNotFound, msg, cause) }
func Conflict(msg string, cause error) *Error    { return newErr(KindConflict, msg, cause) }
func Transient(msg string, cause error) *Error   { return newErr(KindTransient, msg, cause) }
func Unavailable(msg string, cause error) *Error { return newErr(KindUnavailable, msg, cause) }

// Internal never leaks cause details to callers outside the process; the
// caller is expected to log the wrapped cause under the request's
// correlation id and present only the generic message upstream.
func Internal(cause error) *Error {
	return newErr(KindInternal, "an internal error occurred", cause)
}

// HTTPStatus maps a Kind to the status code the transport surface should use.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return 422
	case KindAuth:
		return 401
	case KindForbidden:
		return 403
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindUnavailable:
		return 500
	case KindInternal:
		return 500
	default:
		return 500
	}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if as(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// as is a tiny indirection over errors.As kept local to avoid importing
// errors in every caller that just wants KindOf.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
