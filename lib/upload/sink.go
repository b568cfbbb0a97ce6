// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"

	"github.com/xivforays/forays-agent/lib/tracking"
)

// Sink accepts one batch of records of one kind. Send blocks until the
// remote side has accepted or rejected the batch. Errors should match
// ErrUnauthorized, ErrForbidden, or ErrTransport under errors.Is;
// anything else is treated as ErrTransport.
type Sink interface {
	Send(ctx context.Context, kind tracking.Kind, records any) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, kind tracking.Kind, records any) error

func (f SinkFunc) Send(ctx context.Context, kind tracking.Kind, records any) error {
	return f(ctx, kind, records)
}
