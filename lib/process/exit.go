// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitCodeUsage is returned for command-line errors.
const ExitCodeUsage = 2

// UsageError marks an error caused by invalid command-line input.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

// Fatal writes "error: err" to stderr and exits: code 2 for a
// *UsageError, 1 otherwise. Use it in main() for errors from run().
func Fatal(err error) {
	os.Exit(report(os.Stderr, err))
}

func report(w io.Writer, err error) int {
	fmt.Fprintf(w, "error: %v\n", err)
	var usage *UsageError
	if errors.As(err, &usage) {
		return ExitCodeUsage
	}
	return 1
}
