package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into one of the account store's failure classes.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindValidation
	KindTransientStore
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindTransientStore:
		return "transient_store"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Error is a classified error. Authorization is deliberately a separate kind
// from NotFound: a present-but-forbidden row must not look like an absent one.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with a user-presentable message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error. The message is what callers may show;
// the wrapped error stays available via errors.Unwrap for logging.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Configuration(message string) *Error  { return New(KindConfiguration, message) }
func Authentication(message string) *Error { return New(KindAuthentication, message) }
func Authorization(message string) *Error  { return New(KindAuthorization, message) }
func NotFound(message string) *Error       { return New(KindNotFound, message) }
func Conflict(message string) *Error       { return New(KindConflict, message) }
func Validation(message string) *Error     { return New(KindValidation, message) }
func RateLimited(message string) *Error    { return New(KindRateLimited, message) }

// TransientStore marks a store failure that must not abort the caller's auth
// flow. Callers log it and continue; the work is retried lazily later.
func TransientStore(message string, err error) *Error {
	return Wrap(KindTransientStore, message, err)
}

// KindOf extracts the classification from anywhere in an error chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a classified error to the status the facade returns.
// Unclassified errors are treated as internal.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the user-presentable text for a classified error, or a
// generic fallback so internal store details never reach the client.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}
