// Package apperr carries the failure kind of a core operation so handlers
// can pick a status code without matching on message text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindGone
	KindUpstream
	KindIntegrity
	KindAuthentication
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindGone:
		return "gone"
	case KindUpstream:
		return "upstream"
	case KindIntegrity:
		return "integrity"
	case KindAuthentication:
		return "authentication"
	default:
		return "internal"
	}
}

// Error is a classified application error. Message is safe to show to callers.
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

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error { return New(KindValidation, message, nil) }
func NotFound(message string) *Error   { return New(KindNotFound, message, nil) }
func Conflict(message string) *Error   { return New(KindConflict, message, nil) }
func Gone(message string) *Error       { return New(KindGone, message, nil) }
func Integrity(message string) *Error  { return New(KindIntegrity, message, nil) }

func Upstream(message string, err error) *Error {
	return New(KindUpstream, message, err)
}

func Authentication(message string, err error) *Error {
	return New(KindAuthentication, message, err)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusCode maps err to an HTTP status.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindValidation, KindAuthentication:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindGone:
		return http.StatusGone
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message that may be sent to the caller.
// Errors that never went through this package are hidden behind a generic message.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "Internal Server Error"
}
