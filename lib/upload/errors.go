// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized means the sink rejected the credential. Retrying
	// without a new credential cannot succeed.
	ErrUnauthorized = errors.New("upload: unauthorized")

	// ErrForbidden means the credential is valid but not allowed to
	// submit this data.
	ErrForbidden = errors.New("upload: forbidden")

	// ErrTransport covers network failures and non-success responses
	// other than 401 and 403.
	ErrTransport = errors.New("upload: transport or server error")
)

// StatusError is a non-success HTTP response from a sink.
type StatusError struct {
	StatusCode int
	Endpoint   string

	// Body is a bounded prefix of the response body, for diagnostics.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upload to %s: HTTP %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("upload to %s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Is maps the status code onto the failure classes.
func (e *StatusError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return target == ErrUnauthorized
	case http.StatusForbidden:
		return target == ErrForbidden
	default:
		return target == ErrTransport
	}
}

// Class is the failure class of an upload error.
type Class string

const (
	ClassNone         Class = ""
	ClassUnauthorized Class = "unauthorized"
	ClassForbidden    Class = "forbidden"
	ClassTransport    Class = "transport"
)

// Classify maps err to a failure class. A nil error is ClassNone; any
// error that is neither unauthorized nor forbidden is ClassTransport.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrUnauthorized):
		return ClassUnauthorized
	case errors.Is(err, ErrForbidden):
		return ClassForbidden
	default:
		return ClassTransport
	}
}

// Credential reports whether the class means the credential must
// change before uploads can succeed.
func (c Class) Credential() bool {
	return c == ClassUnauthorized || c == ClassForbidden
}
