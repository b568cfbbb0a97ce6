// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"errors"
	"fmt"
)

// ErrDuplicateTask matches every *DuplicateTaskError via errors.Is.
var ErrDuplicateTask = errors.New("scheduler: task already scheduled")

// ErrClosed is returned by Schedule after Shutdown.
var ErrClosed = errors.New("scheduler: shut down")

// DuplicateTaskError is returned when a task name is scheduled while a
// task with the same name is still registered. It is a programming
// error in the caller: the registry is keyed by name and never holds
// two loops for one name.
type DuplicateTaskError struct {
	Name TaskName
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("scheduler: task %q already scheduled", e.Name)
}

// Is reports ErrDuplicateTask as a match.
func (e *DuplicateTaskError) Is(target error) bool {
	return target == ErrDuplicateTask
}

// PanicError carries a panic recovered from a task body.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}
