// Copyright 2026 The XivForays Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xivforays/forays-agent/lib/config"
	"github.com/xivforays/forays-agent/lib/sink/httpsink"
	"github.com/xivforays/forays-agent/lib/sink/redissink"
	"github.com/xivforays/forays-agent/lib/tracking"
	"github.com/xivforays/forays-agent/lib/upload"
)

// buildSink creates the sink selected by cfg.Sink. The close function
// is never nil.
func buildSink(cfg *config.Config, logger *slog.Logger) (upload.Sink, func() error, error) {
	switch cfg.Sink {
	case config.SinkHTTP:
		sink, err := httpsink.FromConfig(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() error { return nil }, nil
	case config.SinkRedis:
		return redissink.FromConfig(cfg, logger)
	default:
		return nil, nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}

// switchSink forwards to the current sink. Reloads replace the sink
// without touching the upload workers that hold a switchSink.
type switchSink struct {
	mu      sync.RWMutex
	current upload.Sink
	close   func() error
}

var _ upload.Sink = (*switchSink)(nil)

func (s *switchSink) Send(ctx context.Context, kind tracking.Kind, records any) error {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()
	if current == nil {
		return fmt.Errorf("no sink configured: %w", upload.ErrTransport)
	}
	return current.Send(ctx, kind, records)
}

// swap installs sink and closes the previous one. A send already in
// flight on the previous sink may fail; its batch is requeued.
func (s *switchSink) swap(sink upload.Sink, closeSink func() error) error {
	s.mu.Lock()
	previousClose := s.close
	s.current = sink
	s.close = closeSink
	s.mu.Unlock()
	if previousClose != nil {
		return previousClose()
	}
	return nil
}

func (s *switchSink) Close() error {
	return s.swap(nil, nil)
}
