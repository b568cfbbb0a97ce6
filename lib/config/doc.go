// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the forays
// agent.
//
// Configuration is loaded from a single file specified by either the
// FORAYS_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search.
//
// The file may contain environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. After overrides, ${VAR} and
// ${VAR:-default} references in credential, address, and path fields
// are expanded from the process environment, so an API key can be
// kept out of the file.
//
// [Watcher] reloads the file when it changes on disk and hands each
// valid result to a callback. The agent uses it as the enable signal:
// flipping crowdsource (or a kind's enabled flag) starts or stops
// that kind's sampling and upload tasks.
//
// This package depends only on lib/clock.
package config
