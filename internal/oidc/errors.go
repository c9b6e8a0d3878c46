package oidc

import (
	"errors"
	"net/http"
)

// Error is a protocol error that maps onto an HTTP status and an OAuth
// error code.
type Error struct {
	Code        string
	Description string
	Status      int
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// Is matches on the error code, so wrapped copies with other descriptions
// still satisfy errors.Is against the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDescription returns a copy carrying a different description.
func (e *Error) WithDescription(desc string) *Error {
	cp := *e
	cp.Description = desc
	return &cp
}

var (
	ErrInvalidClient        = &Error{Code: "invalid_client", Description: "invalid client credentials", Status: http.StatusUnauthorized}
	ErrInvalidRequest       = &Error{Code: "invalid_request", Description: "invalid client_id", Status: http.StatusBadRequest}
	ErrInvalidOrExpiredCode = &Error{Code: "invalid_grant", Description: "invalid or expired code", Status: http.StatusBadRequest}
	ErrUnsupportedGrantType = &Error{Code: "unsupported_grant_type", Description: "only authorization_code is supported", Status: http.StatusBadRequest}
	ErrMissingToken         = &Error{Code: "missing_token", Status: http.StatusUnauthorized}
	ErrInvalidToken         = &Error{Code: "invalid_token", Status: http.StatusUnauthorized}
	ErrServerError          = &Error{Code: "server_error", Status: http.StatusInternalServerError}
)

// AsError converts any error into a protocol error, defaulting to
// server_error.
func AsError(err error) *Error {
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	return ErrServerError
}
