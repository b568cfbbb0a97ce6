// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O helpers for the upload sinks.
//
// Response reads are bounded. The collection API answers uploads with
// an empty body or a short error message, so anything beyond
// MaxErrorBodySize is noise and is discarded rather than held in
// memory or written into logs.
package netutil

import (
	"io"
	"strings"
)

// MaxErrorBodySize bounds how much of an error response is kept for
// diagnostics.
const MaxErrorBodySize int64 = 4 << 10

// maxDrainSize bounds how much of a response body is read and thrown
// away so the connection can be reused.
const maxDrainSize int64 = 64 << 10

// ErrorBody reads up to MaxErrorBodySize bytes of an error response
// for a diagnostic message. Read errors are ignored; a partial body
// is still useful. Surrounding whitespace is trimmed.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxErrorBodySize))
	return strings.TrimSpace(string(data))
}

// DrainAndClose discards a bounded amount of body and closes it.
func DrainAndClose(body io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxDrainSize))
	return body.Close()
}
