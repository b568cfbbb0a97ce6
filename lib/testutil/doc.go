// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds the bounded-wait helpers shared by the agent's
// tests.
//
// [RequireReceive], [RequireClosed], and [RequireNoReceive] wrap the
// select-with-timeout pattern so that individual tests never call
// time.After themselves. These helpers are the only place tests use
// real wall-clock timeouts; every behavioural timing assertion goes
// through lib/clock's FakeClock instead.
//
// All helpers fail the test with t.Fatalf rather than returning
// errors.
package testutil
