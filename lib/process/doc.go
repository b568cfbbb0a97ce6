// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the entrypoint error handler for the agent
// binary: the one place raw output is written to stderr, before the
// structured logger exists or after run() has returned.
package process
