// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the forays
// agent.
//
// Release builds set [Version], [GitCommit] and [BuildTime] with
// -ldflags -X; development builds report "0.1.0-dev" and "unknown".
//
// [UserAgent] is the string the HTTP sink sends with every upload; the
// collection API uses it to tell agent releases apart.
package version
