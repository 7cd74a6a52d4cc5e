package oidc

import (
	"errors"
	"fmt"
	"log/slog"
)

type errorType string

const (
	InvalidRequest          errorType = "invalid_request"
	InvalidRequestObject    errorType = "invalid_request_object"
	InvalidRequestURI       errorType = "invalid_request_uri"
	InvalidScope            errorType = "invalid_scope"
	InvalidClient           errorType = "invalid_client"
	InvalidGrant            errorType = "invalid_grant"
	UnauthorizedClient      errorType = "unauthorized_client"
	UnsupportedGrantType    errorType = "unsupported_grant_type"
	UnsupportedResponseType errorType = "unsupported_response_type"
	AccessDenied            errorType = "access_denied"
	ServerError             errorType = "server_error"

	// CIBA token endpoint polling results.
	AuthorizationPending errorType = "authorization_pending"
	SlowDown             errorType = "slow_down"
	ExpiredToken         errorType = "expired_token"

	// CIBA backchannel authentication endpoint errors.
	InvalidBindingMessage errorType = "invalid_binding_message"
	MissingUserCode       errorType = "missing_user_code"
)

// ErrorKind classifies an Error for the server side.
// It never reaches the client, the ErrorType does.
type ErrorKind int

const (
	// KindBadRequest is a client fault that is not retried.
	KindBadRequest ErrorKind = iota
	// KindInvalidRequestObject is a bad request caused by a request object
	// failing a trust check. It is kept apart so forgery attempts can be
	// logged and alerted on separately.
	KindInvalidRequestObject
	// KindNotFound is a missing or expired grant.
	KindNotFound
	// KindFatal is a wiring or configuration fault of the server.
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindInvalidRequestObject:
		return "invalid_request_object"
	case KindNotFound:
		return "not_found"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

var (
	ErrInvalidRequest = func() *Error {
		return &Error{
			ErrorType: InvalidRequest,
		}
	}
	ErrInvalidRequestObject = func() *Error {
		return &Error{
			ErrorType: InvalidRequestObject,
			Kind:      KindInvalidRequestObject,
		}
	}
	ErrInvalidRequestURI = func() *Error {
		return &Error{
			ErrorType: InvalidRequestURI,
		}
	}
	ErrInvalidScope = func() *Error {
		return &Error{
			ErrorType: InvalidScope,
		}
	}
	ErrInvalidClient = func() *Error {
		return &Error{
			ErrorType: InvalidClient,
		}
	}
	ErrInvalidGrant = func() *Error {
		return &Error{
			ErrorType: InvalidGrant,
		}
	}
	ErrUnauthorizedClient = func() *Error {
		return &Error{
			ErrorType: UnauthorizedClient,
		}
	}
	ErrUnsupportedGrantType = func() *Error {
		return &Error{
			ErrorType: UnsupportedGrantType,
		}
	}
	ErrUnsupportedResponseType = func() *Error {
		return &Error{
			ErrorType: UnsupportedResponseType,
		}
	}
	ErrAccessDenied = func() *Error {
		return &Error{
			ErrorType: AccessDenied,
		}
	}
	ErrServerError = func() *Error {
		return &Error{
			ErrorType: ServerError,
			Kind:      KindFatal,
		}
	}
	ErrAuthorizationPending = func() *Error {
		return &Error{
			ErrorType: AuthorizationPending,
		}
	}
	ErrSlowDown = func() *Error {
		return &Error{
			ErrorType: SlowDown,
		}
	}
	ErrExpiredToken = func() *Error {
		return &Error{
			ErrorType: ExpiredToken,
			Kind:      KindNotFound,
		}
	}
	ErrInvalidBindingMessage = func() *Error {
		return &Error{
			ErrorType: InvalidBindingMessage,
		}
	}
	ErrMissingUserCode = func() *Error {
		return &Error{
			ErrorType: MissingUserCode,
		}
	}
)

type Error struct {
	Parent      error     `json:"-" schema:"-"`
	ErrorType   errorType `json:"error" schema:"error"`
	Description string    `json:"error_description,omitempty" schema:"error_description,omitempty"`
	State       string    `json:"state,omitempty" schema:"state,omitempty"`
	Kind        ErrorKind `json:"-" schema:"-"`
}

func (e *Error) Error() string {
	message := "ErrorType=" + string(e.ErrorType)
	if e.Description != "" {
		message += " Description=" + e.Description
	}
	if e.Parent != nil {
		message += " Parent=" + e.Parent.Error()
	}
	return message
}

func (e *Error) Unwrap() error {
	return e.Parent
}

// Is matches on the error type, and on description and state
// only when the target sets them.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.ErrorType == t.ErrorType &&
		(e.Description == t.Description || t.Description == "") &&
		(e.State == t.State || t.State == "")
}

func (e *Error) WithParent(err error) *Error {
	e.Parent = err
	return e
}

func (e *Error) WithDescription(desc string, args ...any) *Error {
	e.Description = fmt.Sprintf(desc, args...)
	return e
}

func (e *Error) WithKind(kind ErrorKind) *Error {
	e.Kind = kind
	return e
}

func (e *Error) WithState(state string) *Error {
	e.State = state
	return e
}

// LogValue implements [slog.LogValuer].
func (e *Error) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 4)
	attrs = append(attrs, slog.String("type", string(e.ErrorType)), slog.String("kind", e.Kind.String()))
	if e.Description != "" {
		attrs = append(attrs, slog.String("description", e.Description))
	}
	if e.Parent != nil {
		attrs = append(attrs, slog.Any("parent", e.Parent))
	}
	return slog.GroupValue(attrs...)
}

// DefaultToServerError checks if the error is an Error
// if not the provided error will be wrapped into a ServerError
func DefaultToServerError(err error, description string) *Error {
	oauth := new(Error)
	if ok := errors.As(err, &oauth); !ok {
		oauth.ErrorType = ServerError
		oauth.Kind = KindFatal
		oauth.Description = description
		oauth.Parent = err
	}
	return oauth
}
