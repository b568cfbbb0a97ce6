// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

// Package foray defines the two record kinds the agent reports from
// foray content, enemy positions and fates, and the collectors that
// build them from raw host observations.
//
// Wire field names match the collection API (camelCase JSON, reused
// by the CBOR encoder).
package foray
